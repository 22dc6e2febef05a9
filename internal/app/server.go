// internal/app/server.go
package app

import (
	"context"
	"fmt"

	"tokenguard-service/internal/config"
	"tokenguard-service/internal/db"
	authHandler "tokenguard-service/internal/handlers/auth"
	"tokenguard-service/internal/middleware"
	"tokenguard-service/internal/pkg/token"
	"tokenguard-service/internal/repository/postgres"
	"tokenguard-service/internal/service/cleanup"
	"tokenguard-service/internal/service/introspect"
	"tokenguard-service/internal/service/revocation"
	sessionsvc "tokenguard-service/internal/service/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.Default()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis", zap.String("addr", s.cfg.RedisAddr))

	// ----- Access-token codec -----
	// A missing signing secret is fatal here, not per-request.
	codec, err := token.NewCodec(s.cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to build token codec: %w", err)
	}

	// ----- Repositories -----
	sessionRepo := postgres.NewSessionRepository(pool)
	revocationRepo := postgres.NewRevocationRepository(pool)
	directoryRepo := postgres.NewDirectoryRepository(pool)

	// ----- Services -----
	revocationList := revocation.NewList(
		revocationRepo,
		redisClient,
		revocation.ParsePolicy(s.cfg.RevocationPolicy),
		logger,
	)

	sessionManager := sessionsvc.NewManager(sessionRepo, revocationList, logger, sessionsvc.Config{
		SessionTTL:  s.cfg.SessionTTL,
		MaxPerOwner: s.cfg.MaxSessionsPerOwner,
	})

	introspector := introspect.NewIntrospector(codec, revocationList, logger)

	// ----- Cleanup job -----
	janitor := cleanup.NewJanitor(sessionManager, revocationList, s.cfg.CleanupInterval, logger)
	go janitor.Run(ctx)

	// ----- Handlers -----
	handler := authHandler.NewAuthHandler(
		sessionManager,
		codec,
		revocationList,
		introspector,
		directoryRepo,
		logger,
	)
	authMiddleware := middleware.NewAuthMiddleware(introspector)

	SetupRouter(s.engine, logger, &Handlers{
		AuthHandler:    handler,
		AuthMiddleware: authMiddleware,
	})

	logger.Info("starting HTTP server", zap.String("addr", s.cfg.HTTPAddr))
	return s.engine.Run(s.cfg.HTTPAddr)
}
