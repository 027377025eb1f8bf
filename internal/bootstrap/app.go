package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"chatforge/internal/ai"
	"chatforge/internal/config"
	"chatforge/internal/model"
	mysqlClient "chatforge/internal/platform/mysql"
	rabbitmqClient "chatforge/internal/platform/rabbitmq"
	redisClient "chatforge/internal/platform/redis"
	"chatforge/internal/worker"
)

type App struct {
	Config     *config.Config
	Log        zerolog.Logger
	MySQL      *gorm.DB
	Redis      *redis.Client
	MQConn     *amqp.Connection
	Registry   *ai.Registry
	Embedder   *ai.Embedder
	MailWorker *worker.MailWorker

	StartedAt time.Time
}

func New(ctx context.Context, log zerolog.Logger) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.BotConfig{},
		&model.ChatSession{},
		&model.Message{},
		&model.DocumentChunk{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	client := ai.NewOpenAICompatibleClient()
	registry := ai.NewRegistry(client, vendorsFromConfig(cfg), "openai")
	embedder := ai.NewEmbedder(client, ai.EmbeddingConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
	})

	mailWorker := worker.NewMailWorker(mqConn, worker.SMTPSettings{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUser,
		Password: cfg.Mail.SMTPPassword,
		From:     cfg.Mail.From,
	}, cfg.RabbitMQ.MailQueue, log)
	if err := mailWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mail worker failed: %w", err)
	}

	return &App{
		Config:     cfg,
		Log:        log,
		MySQL:      mysqlDB,
		Redis:      redisCli,
		MQConn:     mqConn,
		Registry:   registry,
		Embedder:   embedder,
		MailWorker: mailWorker,
		StartedAt:  time.Now(),
	}, nil
}

// vendorsFromConfig fixes the routing table: model identifiers are dispatched
// to a vendor by name prefix, anything unrecognized lands on OpenAI. Qwen's
// compatible endpoint rejects the temperature field, so it is dropped there.
func vendorsFromConfig(cfg *config.Config) []ai.VendorConfig {
	return []ai.VendorConfig{
		{
			Name:          "openai",
			Prefix:        "gpt",
			BaseURL:       cfg.Providers.OpenAI.BaseURL,
			APIKey:        cfg.Providers.OpenAI.APIKey,
			CredentialKey: "OPENAI_API_KEY",
		},
		{
			Name:             "qwen",
			Prefix:           "qwen",
			BaseURL:          cfg.Providers.Qwen.BaseURL,
			APIKey:           cfg.Providers.Qwen.APIKey,
			CredentialKey:    "QWEN_API_KEY",
			DropsTemperature: true,
		},
		{
			Name:          "deepseek",
			Prefix:        "deepseek",
			BaseURL:       cfg.Providers.DeepSeek.BaseURL,
			APIKey:        cfg.Providers.DeepSeek.APIKey,
			CredentialKey: "DEEPSEEK_API_KEY",
		},
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MailWorker != nil {
		a.MailWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
