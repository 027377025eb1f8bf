package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appsvc "chatforge/internal/app"
	"chatforge/internal/bootstrap"
	"chatforge/internal/cache"
	"chatforge/internal/platform/rabbitmq"
	"chatforge/internal/repository"
	"chatforge/internal/transport/http/handler"
	"chatforge/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.Metrics())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	userRepo := repository.NewUserRepository(app.MySQL)
	configRepo := repository.NewConfigRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	chunkRepo := repository.NewChunkRepository(app.MySQL)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	mailPublisher := rabbitmq.NewMailPublisher(app.MQConn, app.Config.RabbitMQ.MailQueue)

	authService := appsvc.NewAuthService(
		userRepo,
		mailPublisher,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
		app.Log,
	)
	ingestService := appsvc.NewIngestService(chunkRepo, app.Embedder, app.Log)
	configService := appsvc.NewConfigService(configRepo, sessionRepo, messageRepo, chunkRepo, ingestService, app.Log)
	retriever := appsvc.NewRetriever(chunkRepo, app.Embedder)
	chatService := appsvc.NewChatService(
		configRepo,
		sessionRepo,
		messageRepo,
		retriever,
		app.Registry,
		historyCache,
		app.Config.Retrieval.TopK,
		app.Log,
	)

	authHandler := handler.NewAuthHandler(authService)
	configHandler := handler.NewConfigHandler(configService)
	chatHandler := handler.NewChatHandler(chatService)

	requireAuth := middleware.AuthJWT(app.Config.Auth.JWTSecret)
	optionalAuth := middleware.OptionalAuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", requireAuth, authHandler.Me)

	configGroup := v1.Group("/config")
	configGroup.POST("", requireAuth, configHandler.Create)
	configGroup.GET("", requireAuth, configHandler.List)
	configGroup.GET("/:id", optionalAuth, configHandler.Get)
	configGroup.PUT("/:id", requireAuth, configHandler.Update)
	configGroup.DELETE("/:id", requireAuth, configHandler.Delete)

	chatGroup := v1.Group("/chat")
	chatGroup.GET("/list/:config_id", requireAuth, chatHandler.ListSessions)
	chatGroup.POST("/:config_id/:session_id", optionalAuth, chatHandler.SendMessage)

	v1.GET("/history/:session_id", optionalAuth, chatHandler.GetHistory)

	return router
}
