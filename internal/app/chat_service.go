package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatforge/internal/ai"
	"chatforge/internal/model"
	"chatforge/internal/repository"
)

const (
	EventSources = "sources"
	EventToken   = "token"
	EventError   = "error"

	fallbackTitle  = "New Chat"
	titleMaxRunes  = 100
	sourcePreview  = 200
	emptyAnswerMsg = "The model returned an empty response."
)

// HistoryCache is the optional read-through cache in front of the message
// log. A nil cache disables caching entirely.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

// ModelResolver maps a configuration's model identifier to a callable model.
type ModelResolver interface {
	Resolve(modelName string, temperature float64) (ai.Model, error)
}

// ContextRetriever is the similarity-search collaborator.
type ContextRetriever interface {
	Search(ctx context.Context, query string, k int, configID string) ([]ScoredChunk, error)
}

// ChatService is the per-request chat pipeline: config resolution, access
// check, retrieval, prompt assembly, model invocation, persistence.
type ChatService struct {
	configs      *repository.ConfigRepository
	sessions     *repository.SessionRepository
	messages     *repository.MessageRepository
	retriever    ContextRetriever
	models       ModelResolver
	historyCache HistoryCache
	topK         int
	log          zerolog.Logger
}

func NewChatService(
	configs *repository.ConfigRepository,
	sessions *repository.SessionRepository,
	messages *repository.MessageRepository,
	retriever ContextRetriever,
	models ModelResolver,
	historyCache HistoryCache,
	topK int,
	log zerolog.Logger,
) *ChatService {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &ChatService{
		configs:      configs,
		sessions:     sessions,
		messages:     messages,
		retriever:    retriever,
		models:       models,
		historyCache: historyCache,
		topK:         topK,
		log:          log.With().Str("component", "chat").Logger(),
	}
}

// TurnInput is one inbound chat turn. Identity is the verified user id, empty
// when the caller is unauthenticated.
type TurnInput struct {
	ConfigID  string
	SessionID string
	Input     string
	Identity  string
}

// Source is one retrieval citation returned alongside the answer.
type Source struct {
	Source      string `json:"source"`
	PageContent string `json:"page_content"`
}

// StreamEvent is one newline-delimited JSON event on the streaming path.
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

type turnContext struct {
	config      *model.BotConfig
	model       ai.Model
	historyUser string
}

// resolveTurn runs the side-effect-free head of the pipeline: validation,
// config load, access check, model resolution. Errors here happen before
// anything was emitted or written, so callers surface them as plain statuses.
func (s *ChatService) resolveTurn(in TurnInput) (*turnContext, error) {
	if strings.TrimSpace(in.Input) == "" {
		return nil, fmt.Errorf("%w: missing input", ErrInvalidInput)
	}
	if strings.TrimSpace(in.SessionID) == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidInput)
	}

	cfg, err := s.configs.GetByID(in.ConfigID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}

	// Public bots serve everyone under the anonymous sentinel; private bots
	// require the verified owner.
	historyUser := model.AnonymousUser
	if !cfg.IsPublic {
		if in.Identity == "" {
			return nil, ErrUnauthorized
		}
		if in.Identity != cfg.UserID {
			return nil, ErrForbidden
		}
		historyUser = in.Identity
	}

	m, err := s.models.Resolve(cfg.ModelName, cfg.Temperature)
	if err != nil {
		return nil, err
	}

	return &turnContext{config: cfg, model: m, historyUser: historyUser}, nil
}

// StreamTurn runs one turn and emits sources, then tokens, onto emit. From
// retrieval onward, failures are reported as a single terminal "error" event
// and a nil return: output already sent to the caller is never retracted.
func (s *ChatService) StreamTurn(ctx context.Context, in TurnInput, emit func(StreamEvent) error) error {
	tc, err := s.resolveTurn(in)
	if err != nil {
		return err
	}

	hits, err := s.retriever.Search(ctx, in.Input, s.topK, tc.config.ID)
	if err != nil {
		s.log.Error().Err(err).Str("config_id", tc.config.ID).Msg("retrieval failed")
		return emit(StreamEvent{Type: EventError, Data: "retrieval failed"})
	}
	contextBlock := joinChunks(hits)

	if err := emit(StreamEvent{Type: EventSources, Data: sourcesOf(hits)}); err != nil {
		return nil // caller went away
	}

	history, err := s.loadHistory(ctx, in.SessionID)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", in.SessionID).Msg("load history failed")
		return emit(StreamEvent{Type: EventError, Data: "history unavailable"})
	}

	prompt := AssemblePrompt(tc.config.PromptTemplate, contextBlock, history, in.Input)

	answer, err := tc.model.Stream(ctx, prompt, func(token string) error {
		return emit(StreamEvent{Type: EventToken, Data: token})
	})
	if err != nil {
		s.log.Error().Err(err).Str("vendor", tc.model.Vendor()).Msg("model stream failed")
		return emit(StreamEvent{Type: EventError, Data: err.Error()})
	}

	if err := s.persistTurn(ctx, tc, in, answer); err != nil {
		s.log.Error().Err(err).Str("session_id", in.SessionID).Msg("persist turn failed")
		return emit(StreamEvent{Type: EventError, Data: "failed to record conversation"})
	}
	return nil
}

// Answer runs the same pipeline synchronously and returns the materialized
// answer plus sources. The configuration's response delay is applied before
// returning; it is a pacing knob, not an error condition.
func (s *ChatService) Answer(ctx context.Context, in TurnInput) (string, []Source, error) {
	tc, err := s.resolveTurn(in)
	if err != nil {
		return "", nil, err
	}

	hits, err := s.retriever.Search(ctx, in.Input, s.topK, tc.config.ID)
	if err != nil {
		return "", nil, fmt.Errorf("retrieval failed: %w", err)
	}
	contextBlock := joinChunks(hits)

	history, err := s.loadHistory(ctx, in.SessionID)
	if err != nil {
		return "", nil, err
	}

	prompt := AssemblePrompt(tc.config.PromptTemplate, contextBlock, history, in.Input)

	answer, err := tc.model.Complete(ctx, prompt)
	if err != nil {
		return "", nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = emptyAnswerMsg
	}

	if err := s.persistTurn(ctx, tc, in, answer); err != nil {
		return "", nil, err
	}

	if tc.config.ResponseDelay > 0 {
		select {
		case <-time.After(time.Duration(tc.config.ResponseDelay) * time.Second):
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
	return answer, sourcesOf(hits), nil
}

// persistTurn ensures the session metadata exists (first writer wins) and
// appends the human and assistant turns in that order.
func (s *ChatService) persistTurn(ctx context.Context, tc *turnContext, in TurnInput, answer string) error {
	err := s.sessions.Ensure(&model.ChatSession{
		SessionID: in.SessionID,
		UserID:    tc.historyUser,
		ConfigID:  tc.config.ID,
	})
	if err != nil {
		return err
	}

	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, in.SessionID)
		_ = s.historyCache.DeleteHistory(ctx, in.SessionID)
	}

	human := &model.Message{
		SessionID: in.SessionID,
		UserID:    tc.historyUser,
		ConfigID:  tc.config.ID,
		Role:      model.RoleHuman,
		Content:   in.Input,
		History:   model.EncodeTurn(model.RoleHuman, in.Input),
	}
	if err := s.messages.Create(human); err != nil {
		return err
	}

	assistant := &model.Message{
		SessionID: in.SessionID,
		UserID:    tc.historyUser,
		ConfigID:  tc.config.ID,
		Role:      model.RoleAssistant,
		Content:   answer,
		History:   model.EncodeTurn(model.RoleAssistant, answer),
	}
	return s.messages.Create(assistant)
}

// History returns the full session history in insertion order, as serialized
// turn payloads.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]model.TurnPayload, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidInput)
	}
	messages, err := s.loadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turns := make([]model.TurnPayload, len(messages))
	for i := range messages {
		turns[i] = messages[i].Turn()
	}
	return turns, nil
}

// ListSessions lists the caller's sessions for a configuration, newest first.
// Any anonymous session encountered is claimed for the caller; the user_id
// guard in the repository makes the reassignment happen at most once.
func (s *ChatService) ListSessions(ctx context.Context, userID, configID string) ([]SessionSummary, error) {
	if userID == "" || userID == model.AnonymousUser {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidInput)
	}

	sessions, err := s.sessions.ListForUserAndConfig(userID, configID)
	if err != nil {
		return nil, err
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		if sess.UserID == model.AnonymousUser {
			if err := s.sessions.Claim(sess.SessionID, userID); err != nil {
				s.log.Error().Err(err).Str("session_id", sess.SessionID).Msg("claim session failed")
			} else {
				s.log.Info().Str("session_id", sess.SessionID).Str("user_id", userID).Msg("claimed anonymous session")
			}
		}
		summaries = append(summaries, SessionSummary{
			SessionID: sess.SessionID,
			Title:     s.sessionTitle(sess.SessionID),
			Timestamp: sess.CreatedAt,
		})
	}
	return summaries, nil
}

// sessionTitle derives the listing title from the first message, falling back
// to a placeholder when the session is empty or the payload is unparseable.
func (s *ChatService) sessionTitle(sessionID string) string {
	first, err := s.messages.FirstBySessionID(sessionID)
	if err != nil || first == nil {
		return fallbackTitle
	}
	content := first.Turn().Data.Content
	if content == "" {
		return fallbackTitle
	}
	return truncateRunes(content, titleMaxRunes)
}

func (s *ChatService) loadHistory(ctx context.Context, sessionID string) ([]model.Message, error) {
	if s.historyCache != nil {
		if dirty, err := s.historyCache.IsDirty(ctx, sessionID); err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messages.ListBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, err := s.historyCache.IsDirty(ctx, sessionID); err == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

func joinChunks(hits []ScoredChunk) string {
	parts := make([]string, len(hits))
	for i := range hits {
		parts[i] = hits[i].Chunk.Content
	}
	return strings.Join(parts, "\n\n")
}

func sourcesOf(hits []ScoredChunk) []Source {
	sources := make([]Source, len(hits))
	for i := range hits {
		sources[i] = Source{
			Source:      hits[i].Chunk.Source,
			PageContent: previewContent(hits[i].Chunk.Content),
		}
	}
	return sources
}

func previewContent(content string) string {
	runes := []rune(content)
	if len(runes) <= sourcePreview {
		return content
	}
	return string(runes[:sourcePreview]) + "..."
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
