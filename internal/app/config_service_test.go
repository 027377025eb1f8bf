package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chatforge/internal/model"
	"chatforge/internal/repository"
)

type configFixture struct {
	svc      *ConfigService
	configs  *repository.ConfigRepository
	sessions *repository.SessionRepository
	messages *repository.MessageRepository
	chunks   *repository.ChunkRepository
}

func newConfigFixture(t *testing.T) *configFixture {
	t.Helper()
	db := openTestDB(t)
	configs := repository.NewConfigRepository(db)
	sessions := repository.NewSessionRepository(db)
	messages := repository.NewMessageRepository(db)
	chunks := repository.NewChunkRepository(db)
	ingest := NewIngestService(chunks, &fakeEmbedder{}, testLogger())
	svc := NewConfigService(configs, sessions, messages, chunks, ingest, testLogger())
	return &configFixture{svc: svc, configs: configs, sessions: sessions, messages: messages, chunks: chunks}
}

func textUpload(name, content string) UploadFile {
	return UploadFile{Name: name, Reader: strings.NewReader(content)}
}

func TestCreateConfig_DefaultsAndIngest(t *testing.T) {
	f := newConfigFixture(t)

	cfg, err := f.svc.Create(context.Background(), "user-1", ConfigInput{
		BotName:      "support bot",
		ModelName:    "gpt-4o",
		Instructions: "Answer support questions.",
	}, []UploadFile{textUpload("faq.txt", "Our opening hours are 9 to 5.")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if cfg.ID == "" {
		t.Fatal("expected generated id")
	}
	if cfg.Collection != "config_"+cfg.ID {
		t.Fatalf("unexpected collection: %q", cfg.Collection)
	}
	if cfg.Temperature != defaultTemperature {
		t.Fatalf("unexpected default temperature: %v", cfg.Temperature)
	}
	if !strings.Contains(cfg.PromptTemplate, "Answer support questions.") {
		t.Fatalf("instructions missing from template: %q", cfg.PromptTemplate)
	}
	docs := cfg.DocumentList()
	if len(docs) != 1 || docs[0] != "faq.txt" {
		t.Fatalf("unexpected document listing: %v", docs)
	}

	rows, err := f.chunks.ListByConfigID(cfg.ID)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("expected ingested chunks")
	}
	if rows[0].Source != "faq.txt" {
		t.Fatalf("unexpected chunk source: %q", rows[0].Source)
	}
}

func TestCreateConfig_TemperatureBounds(t *testing.T) {
	f := newConfigFixture(t)

	for _, valid := range []float64{0.0, 2.0} {
		v := valid
		if _, err := f.svc.Create(context.Background(), "user-1", ConfigInput{
			BotName: "b", ModelName: "gpt-4o", Instructions: "i", Temperature: &v,
		}, nil); err != nil {
			t.Fatalf("temperature %v should be accepted: %v", valid, err)
		}
	}
	for _, invalid := range []float64{-0.1, 2.1} {
		v := invalid
		if _, err := f.svc.Create(context.Background(), "user-1", ConfigInput{
			BotName: "b", ModelName: "gpt-4o", Instructions: "i", Temperature: &v,
		}, nil); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("temperature %v should be rejected, got %v", invalid, err)
		}
	}
}

func TestConfig_RequiresModelName(t *testing.T) {
	f := newConfigFixture(t)

	_, err := f.svc.Create(context.Background(), "user-1", ConfigInput{
		BotName: "b", Instructions: "i",
	}, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("create without model_name should be rejected, got %v", err)
	}

	cfg, err := f.svc.Create(context.Background(), "user-1", ConfigInput{
		BotName: "b", ModelName: "gpt-4o", Instructions: "i",
	}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.Update(context.Background(), "user-1", cfg.ID, ConfigInput{
		BotName: "b", ModelName: "   ",
	}, nil, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("update with blank model_name should be rejected, got %v", err)
	}
}

func TestCreateConfig_TemplateExclusivity(t *testing.T) {
	f := newConfigFixture(t)

	_, err := f.svc.Create(context.Background(), "user-1", ConfigInput{
		BotName: "b", ModelName: "gpt-4o", Instructions: "i", PromptTemplate: "t",
	}, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("both instructions and template should be rejected, got %v", err)
	}

	_, err = f.svc.Create(context.Background(), "user-1", ConfigInput{BotName: "b", ModelName: "gpt-4o"}, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("neither instructions nor template should be rejected, got %v", err)
	}

	cfg, err := f.svc.Create(context.Background(), "user-1", ConfigInput{
		BotName: "b", ModelName: "gpt-4o", PromptTemplate: "verbatim template",
	}, nil)
	if err != nil {
		t.Fatalf("create with template: %v", err)
	}
	if cfg.PromptTemplate != "verbatim template" {
		t.Fatalf("template not taken verbatim: %q", cfg.PromptTemplate)
	}
}

func TestGetConfig_Access(t *testing.T) {
	f := newConfigFixture(t)

	pub, err := f.svc.Create(context.Background(), "owner", ConfigInput{
		BotName: "pub", ModelName: "gpt-4o", Instructions: "i", IsPublic: true,
	}, nil)
	if err != nil {
		t.Fatalf("create public: %v", err)
	}
	priv, err := f.svc.Create(context.Background(), "owner", ConfigInput{
		BotName: "priv", ModelName: "gpt-4o", Instructions: "i",
	}, nil)
	if err != nil {
		t.Fatalf("create private: %v", err)
	}

	if _, err := f.svc.Get(pub.ID, ""); err != nil {
		t.Fatalf("anonymous read of public config: %v", err)
	}
	if _, err := f.svc.Get(priv.ID, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.Get(priv.ID, "someone-else"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Get(priv.ID, "owner"); err != nil {
		t.Fatalf("owner read of private config: %v", err)
	}
	if _, err := f.svc.Get("no-such", "owner"); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestUpdateConfig_FileDeleteAndReingest(t *testing.T) {
	f := newConfigFixture(t)

	cfg, err := f.svc.Create(context.Background(), "owner", ConfigInput{
		BotName: "b", ModelName: "gpt-4o", Instructions: "i",
	}, []UploadFile{
		textUpload("keep.txt", "keep me"),
		textUpload("drop.txt", "drop me"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := f.svc.Update(context.Background(), "owner", cfg.ID, ConfigInput{
		BotName: "b", ModelName: "gpt-4o", Instructions: "i",
	}, []UploadFile{textUpload("new.txt", "fresh content")}, []string{"drop.txt"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	docs := updated.DocumentList()
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %v", docs)
	}
	for _, d := range docs {
		if d == "drop.txt" {
			t.Fatal("deleted document still listed")
		}
	}

	rows, err := f.chunks.ListByConfigID(cfg.ID)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	for _, row := range rows {
		if row.Source == "drop.txt" {
			t.Fatal("deleted document's chunks still present")
		}
	}
}

func TestUpdateConfig_OwnerOnly(t *testing.T) {
	f := newConfigFixture(t)
	cfg, err := f.svc.Create(context.Background(), "owner", ConfigInput{BotName: "b", ModelName: "gpt-4o", Instructions: "i"}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.Update(context.Background(), "intruder", cfg.ID, ConfigInput{BotName: "b"}, nil, nil)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestDeleteConfig_Cascades(t *testing.T) {
	f := newConfigFixture(t)

	cfg, err := f.svc.Create(context.Background(), "owner", ConfigInput{
		BotName: "b", ModelName: "gpt-4o", Instructions: "i",
	}, []UploadFile{textUpload("doc.txt", "some knowledge")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.sessions.Ensure(&model.ChatSession{
		SessionID: "sess-1", UserID: model.AnonymousUser, ConfigID: cfg.ID,
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := f.messages.Create(&model.Message{
		SessionID: "sess-1", UserID: model.AnonymousUser, ConfigID: cfg.ID,
		Role: model.RoleHuman, Content: "hi", History: model.EncodeTurn(model.RoleHuman, "hi"),
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	if err := f.svc.Delete(context.Background(), "owner", cfg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got, err := f.configs.GetByID(cfg.ID); err != nil || got != nil {
		t.Fatalf("config still present: %v %v", got, err)
	}
	if rows, err := f.chunks.ListByConfigID(cfg.ID); err != nil || len(rows) != 0 {
		t.Fatalf("chunks not cleaned up: %d rows, err %v", len(rows), err)
	}
	if msgs, err := f.messages.ListBySessionID("sess-1"); err != nil || len(msgs) != 0 {
		t.Fatalf("messages not cleaned up: %d rows, err %v", len(msgs), err)
	}
	if sess, err := f.sessions.GetBySessionID("sess-1"); err != nil || sess != nil {
		t.Fatalf("session metadata not cleaned up: %v %v", sess, err)
	}
}

func TestDeleteConfig_OwnerOnly(t *testing.T) {
	f := newConfigFixture(t)
	cfg, err := f.svc.Create(context.Background(), "owner", ConfigInput{BotName: "b", ModelName: "gpt-4o", Instructions: "i"}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.svc.Delete(context.Background(), "intruder", cfg.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := f.svc.Delete(context.Background(), "owner", "no-such"); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestListConfigs_ScopedToOwner(t *testing.T) {
	f := newConfigFixture(t)
	if _, err := f.svc.Create(context.Background(), "user-a", ConfigInput{BotName: "a", ModelName: "gpt-4o", Instructions: "i"}, nil); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := f.svc.Create(context.Background(), "user-b", ConfigInput{BotName: "b", ModelName: "gpt-4o", Instructions: "i"}, nil); err != nil {
		t.Fatalf("create b: %v", err)
	}

	configs, err := f.svc.List("user-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(configs) != 1 || configs[0].BotName != "a" {
		t.Fatalf("unexpected listing: %+v", configs)
	}
}
