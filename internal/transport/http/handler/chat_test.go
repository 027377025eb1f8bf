package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"chatforge/internal/ai"
	"chatforge/internal/app"
	"chatforge/internal/model"
	"chatforge/internal/repository"
)

type stubModel struct {
	tokens []string
}

func (m *stubModel) Vendor() string { return "openai" }

func (m *stubModel) Stream(ctx context.Context, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	_ = ctx
	_ = messages
	var b strings.Builder
	for _, tok := range m.tokens {
		if err := onChunk(tok); err != nil {
			return "", err
		}
		b.WriteString(tok)
	}
	return b.String(), nil
}

func (m *stubModel) Complete(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	_ = ctx
	_ = messages
	return strings.Join(m.tokens, ""), nil
}

type stubResolver struct{ model ai.Model }

func (r *stubResolver) Resolve(modelName string, temperature float64) (ai.Model, error) {
	_ = modelName
	_ = temperature
	return r.model, nil
}

type stubRetriever struct{ hits []app.ScoredChunk }

func (r *stubRetriever) Search(ctx context.Context, query string, k int, configID string) ([]app.ScoredChunk, error) {
	_ = ctx
	_ = query
	_ = k
	_ = configID
	return r.hits, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *repository.ConfigRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(gormsqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.BotConfig{}, &model.ChatSession{}, &model.Message{}, &model.DocumentChunk{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	configRepo := repository.NewConfigRepository(db)
	chatService := app.NewChatService(
		configRepo,
		repository.NewSessionRepository(db),
		repository.NewMessageRepository(db),
		&stubRetriever{hits: []app.ScoredChunk{
			{Chunk: model.DocumentChunk{Source: "doc.txt", Content: "context passage"}, Score: 0.8},
		}},
		&stubResolver{model: &stubModel{tokens: []string{"Hi", "!"}}},
		nil,
		3,
		zerolog.Nop(),
	)

	chatHandler := NewChatHandler(chatService)
	router := gin.New()
	router.POST("/api/v1/chat/:config_id/:session_id", chatHandler.SendMessage)
	router.GET("/api/v1/history/:session_id", chatHandler.GetHistory)
	return router, configRepo
}

func seedPublicConfig(t *testing.T, repo *repository.ConfigRepository, id string) {
	t.Helper()
	err := repo.Create(&model.BotConfig{
		ID: id, UserID: "owner", BotName: "bot", ModelName: "gpt-4o",
		IsPublic: true, PromptTemplate: "Be helpful.", Collection: "config_" + id,
	})
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}
}

func TestSendMessage_StreamNDJSON(t *testing.T) {
	router, configs := newTestRouter(t)
	seedPublicConfig(t, configs, "cfg-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/cfg-1/sess-1?stream=1",
		strings.NewReader(`{"input":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/x-ndjson") {
		t.Fatalf("unexpected content type: %q", ct)
	}

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(lines), lines)
	}

	var events []app.StreamEvent
	for _, line := range lines {
		var e app.StreamEvent
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("bad ndjson line %q: %v", line, err)
		}
		events = append(events, e)
	}
	if events[0].Type != app.EventSources {
		t.Fatalf("first event %q, want sources", events[0].Type)
	}
	if events[1].Type != app.EventToken || events[1].Data != "Hi" {
		t.Fatalf("unexpected token event: %+v", events[1])
	}
	if events[2].Type != app.EventToken || events[2].Data != "!" {
		t.Fatalf("unexpected token event: %+v", events[2])
	}
}

func TestSendMessage_SyncEnvelope(t *testing.T) {
	router, configs := newTestRouter(t)
	seedPublicConfig(t, configs, "cfg-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/cfg-1/sess-1",
		strings.NewReader(`{"input":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}

	var envelope struct {
		Code int `json:"code"`
		Data struct {
			Response string       `json:"response"`
			Sources  []app.Source `json:"sources"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if envelope.Code != 0 {
		t.Fatalf("unexpected code: %d", envelope.Code)
	}
	if envelope.Data.Response != "Hi!" {
		t.Fatalf("unexpected response: %q", envelope.Data.Response)
	}
	if len(envelope.Data.Sources) != 1 || envelope.Data.Sources[0].Source != "doc.txt" {
		t.Fatalf("unexpected sources: %+v", envelope.Data.Sources)
	}
}

func TestSendMessage_UnknownConfig(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/no-such/sess-1?stream=1",
		strings.NewReader(`{"input":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", w.Code)
	}
}

func TestGetHistory_AfterTurn(t *testing.T) {
	router, configs := newTestRouter(t)
	seedPublicConfig(t, configs, "cfg-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/cfg-1/sess-1",
		strings.NewReader(`{"input":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("chat status %d", w.Code)
	}

	histReq := httptest.NewRequest(http.MethodGet, "/api/v1/history/sess-1", nil)
	histW := httptest.NewRecorder()
	router.ServeHTTP(histW, histReq)

	if histW.Code != http.StatusOK {
		t.Fatalf("history status %d, body %s", histW.Code, histW.Body.String())
	}

	var envelope struct {
		Data struct {
			History []model.TurnPayload `json:"history"`
		} `json:"data"`
	}
	if err := json.Unmarshal(histW.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(envelope.Data.History) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(envelope.Data.History))
	}
	if envelope.Data.History[0].Type != "human" || envelope.Data.History[0].Data.Content != "hello" {
		t.Fatalf("unexpected first turn: %+v", envelope.Data.History[0])
	}
	if envelope.Data.History[1].Type != "ai" || envelope.Data.History[1].Data.Content != "Hi!" {
		t.Fatalf("unexpected second turn: %+v", envelope.Data.History[1])
	}
}
