package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatforge/internal/model"
	"chatforge/internal/repository"
)

const defaultTemperature = 0.7

// ConfigInput is the mutable surface of a bot configuration as submitted by
// the owner. Exactly one of Instructions and PromptTemplate may be set:
// instructions are expanded into a starter template, a template is taken
// verbatim.
type ConfigInput struct {
	BotName        string   `json:"bot_name"`
	BotAvatar      string   `json:"bot_avatar"`
	Introduction   string   `json:"introduction"`
	ModelName      string   `json:"model_name"`
	Temperature    *float64 `json:"temperature"`
	ResponseDelay  int      `json:"response_timeout"`
	IsPublic       bool     `json:"is_public"`
	Instructions   string   `json:"instructions"`
	PromptTemplate string   `json:"prompt_template"`
	Collection     string   `json:"collection_name"`
}

// ConfigService owns the bot configuration lifecycle, including document
// ingestion and the cascade that removes a configuration's derived data.
type ConfigService struct {
	configs  *repository.ConfigRepository
	sessions *repository.SessionRepository
	messages *repository.MessageRepository
	chunks   *repository.ChunkRepository
	ingest   *IngestService
	log      zerolog.Logger
}

func NewConfigService(
	configs *repository.ConfigRepository,
	sessions *repository.SessionRepository,
	messages *repository.MessageRepository,
	chunks *repository.ChunkRepository,
	ingest *IngestService,
	log zerolog.Logger,
) *ConfigService {
	return &ConfigService{
		configs:  configs,
		sessions: sessions,
		messages: messages,
		chunks:   chunks,
		ingest:   ingest,
		log:      log.With().Str("component", "config").Logger(),
	}
}

// Create stores a new configuration for userID and ingests any supplied
// knowledge files into its namespace.
func (s *ConfigService) Create(ctx context.Context, userID string, in ConfigInput, files []UploadFile) (*model.BotConfig, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(in.BotName) == "" {
		return nil, fmt.Errorf("%w: missing bot_name", ErrInvalidInput)
	}
	if strings.TrimSpace(in.ModelName) == "" {
		return nil, fmt.Errorf("%w: missing model_name", ErrInvalidInput)
	}
	template, err := resolveTemplate(in, "")
	if err != nil {
		return nil, err
	}
	temperature := defaultTemperature
	if in.Temperature != nil {
		temperature = *in.Temperature
	}
	if err := validateTemperature(temperature); err != nil {
		return nil, err
	}
	if in.ResponseDelay < 0 {
		return nil, fmt.Errorf("%w: response_timeout must not be negative", ErrInvalidInput)
	}

	id := uuid.NewString()
	collection := in.Collection
	if collection == "" {
		collection = "config_" + id
	}

	cfg := &model.BotConfig{
		ID:             id,
		UserID:         userID,
		BotName:        in.BotName,
		BotAvatar:      in.BotAvatar,
		Introduction:   in.Introduction,
		ModelName:      in.ModelName,
		Temperature:    temperature,
		ResponseDelay:  in.ResponseDelay,
		IsPublic:       in.IsPublic,
		PromptTemplate: template,
		Collection:     collection,
	}
	if err := s.configs.Create(cfg); err != nil {
		return nil, err
	}

	if len(files) > 0 {
		sources, err := s.ingest.Ingest(ctx, files, collection, id)
		if err != nil {
			return nil, fmt.Errorf("ingest documents: %w", err)
		}
		cfg.SetDocumentList(sources)
		if err := s.configs.Save(cfg); err != nil {
			return nil, err
		}
	}

	s.log.Info().Str("config_id", id).Str("user_id", userID).Int("documents", len(files)).Msg("config created")
	return cfg, nil
}

// Get returns a configuration if the caller may see it: public configurations
// are readable by anyone, private ones only by their owner.
func (s *ConfigService) Get(id, identity string) (*model.BotConfig, error) {
	cfg, err := s.configs.GetByID(id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}
	if !cfg.IsPublic {
		if identity == "" {
			return nil, ErrUnauthorized
		}
		if identity != cfg.UserID {
			return nil, ErrForbidden
		}
	}
	return cfg, nil
}

// List returns all configurations owned by userID, most recently updated
// first.
func (s *ConfigService) List(userID string) ([]model.BotConfig, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	return s.configs.ListByUserID(userID)
}

// Update applies in to an existing configuration, removes the chunks of any
// file named in filesToDelete, and ingests newly supplied files.
func (s *ConfigService) Update(ctx context.Context, userID, configID string, in ConfigInput, files []UploadFile, filesToDelete []string) (*model.BotConfig, error) {
	cfg, err := s.ownedConfig(userID, configID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.BotName) == "" {
		return nil, fmt.Errorf("%w: missing bot_name", ErrInvalidInput)
	}
	if strings.TrimSpace(in.ModelName) == "" {
		return nil, fmt.Errorf("%w: missing model_name", ErrInvalidInput)
	}
	template, err := resolveTemplate(in, cfg.PromptTemplate)
	if err != nil {
		return nil, err
	}
	if in.Temperature != nil {
		if err := validateTemperature(*in.Temperature); err != nil {
			return nil, err
		}
		cfg.Temperature = *in.Temperature
	}
	if in.ResponseDelay < 0 {
		return nil, fmt.Errorf("%w: response_timeout must not be negative", ErrInvalidInput)
	}

	cfg.BotName = in.BotName
	cfg.BotAvatar = in.BotAvatar
	cfg.Introduction = in.Introduction
	cfg.ModelName = in.ModelName
	cfg.ResponseDelay = in.ResponseDelay
	cfg.IsPublic = in.IsPublic
	cfg.PromptTemplate = template

	documents := cfg.DocumentList()
	for _, name := range filesToDelete {
		if err := s.chunks.DeleteByConfigIDAndSource(cfg.ID, name); err != nil {
			return nil, err
		}
		documents = removeString(documents, name)
	}

	if len(files) > 0 {
		sources, err := s.ingest.Ingest(ctx, files, cfg.Collection, cfg.ID)
		if err != nil {
			return nil, fmt.Errorf("ingest documents: %w", err)
		}
		for _, src := range sources {
			documents = removeString(documents, src) // re-upload replaces the listing entry
			documents = append(documents, src)
		}
	}
	cfg.SetDocumentList(documents)

	if err := s.configs.Save(cfg); err != nil {
		return nil, err
	}
	s.log.Info().Str("config_id", cfg.ID).Msg("config updated")
	return cfg, nil
}

// Delete removes a configuration and cascades over its derived data. Cleanup
// of chunks, messages and session metadata is best effort: a failure there is
// logged but does not block removal of the configuration itself.
func (s *ConfigService) Delete(ctx context.Context, userID, configID string) error {
	cfg, err := s.ownedConfig(userID, configID)
	if err != nil {
		return err
	}

	if err := s.chunks.DeleteByConfigID(cfg.ID); err != nil {
		s.log.Warn().Err(err).Str("config_id", cfg.ID).Msg("chunk cleanup failed")
	}

	sessions, err := s.sessions.ListByConfigID(cfg.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("config_id", cfg.ID).Msg("session lookup failed during delete")
	} else if len(sessions) > 0 {
		sessionIDs := make([]string, len(sessions))
		for i := range sessions {
			sessionIDs[i] = sessions[i].SessionID
		}
		if err := s.messages.DeleteBySessionIDs(sessionIDs); err != nil {
			s.log.Warn().Err(err).Str("config_id", cfg.ID).Msg("message cleanup failed")
		}
		if err := s.sessions.DeleteByConfigID(cfg.ID); err != nil {
			s.log.Warn().Err(err).Str("config_id", cfg.ID).Msg("session cleanup failed")
		}
	}

	if err := s.configs.DeleteByID(cfg.ID); err != nil {
		return err
	}
	s.log.Info().Str("config_id", cfg.ID).Msg("config deleted")
	return nil
}

func (s *ConfigService) ownedConfig(userID, configID string) (*model.BotConfig, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	cfg, err := s.configs.GetByID(configID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}
	if cfg.UserID != userID {
		return nil, ErrForbidden
	}
	return cfg, nil
}

// resolveTemplate enforces that instructions and a raw template are mutually
// exclusive. When neither is supplied the existing template is kept; on
// create there is no existing template, so one of the two is required.
func resolveTemplate(in ConfigInput, existing string) (string, error) {
	instructions := strings.TrimSpace(in.Instructions)
	template := strings.TrimSpace(in.PromptTemplate)
	switch {
	case instructions != "" && template != "":
		return "", fmt.Errorf("%w: instructions and prompt_template are mutually exclusive", ErrInvalidInput)
	case template != "":
		return template, nil
	case instructions != "":
		return starterTemplate(in.BotName, instructions), nil
	case existing != "":
		return existing, nil
	default:
		return "", fmt.Errorf("%w: either instructions or prompt_template is required", ErrInvalidInput)
	}
}

func starterTemplate(botName, instructions string) string {
	return fmt.Sprintf(
		"You are %s.\n%s\nAnswer using the provided context. If the context does not contain the answer, say that you don't know.",
		botName, instructions,
	)
}

func validateTemperature(t float64) error {
	if t < 0 || t > 2 {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidInput)
	}
	return nil
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
