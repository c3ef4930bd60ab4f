package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aiox-platform/agentmemory/internal/api"
	"github.com/aiox-platform/agentmemory/internal/audit"
	"github.com/aiox-platform/agentmemory/internal/auth"
	"github.com/aiox-platform/agentmemory/internal/config"
	"github.com/aiox-platform/agentmemory/internal/database"
	"github.com/aiox-platform/agentmemory/internal/embedding"
	"github.com/aiox-platform/agentmemory/internal/memory"
	"github.com/aiox-platform/agentmemory/internal/middleware"
	inats "github.com/aiox-platform/agentmemory/internal/nats"
	iredis "github.com/aiox-platform/agentmemory/internal/redis"
	"github.com/aiox-platform/agentmemory/internal/server"
	"github.com/aiox-platform/agentmemory/internal/vectorindex"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("agentmemory stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs the primary store, the embedding cache and rate limiting.
	redisClient := iredis.NewClient(ctx, cfg.Redis, logger)
	defer redisClient.Close()

	// PostgreSQL backs the pgvector index and the audit trail.
	var (
		pool *pgxpool.Pool
		err  error
	)
	if cfg.NeedsPostgres() {
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath, logger); err != nil {
			return err
		}
		pool, err = database.NewPostgresPool(ctx, cfg.DB, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	index, err := vectorindex.Open(ctx, cfg.Vector, cfg.Embedding.Dimension, pool, logger)
	if err != nil {
		return fmt.Errorf("opening vector index: %w", err)
	}

	vectors := vectorindex.NewAdapter(index, vectorindex.Options{
		Dimension: cfg.Embedding.Dimension,
		Workers:   cfg.Vector.Workers,
		QueueSize: cfg.Vector.QueueSize,
		Timeout:   cfg.Vector.Timeout,
	}, logger)

	embeddings, err := embedding.NewCacheFromConfig(cfg.Embedding, redisClient, logger)
	if err != nil {
		return fmt.Errorf("creating embedding cache: %w", err)
	}
	defer embeddings.Close()

	deps := memory.Deps{
		Embedder: embeddings,
		Vectors:  vectors,
		Tokens:   memory.NewTiktokenCounter(logger),
		Logger:   logger,
	}
	if cfg.Memory.Enabled {
		deps.Primary = memory.NewRedisStore(redisClient, logger)
	} else {
		logger.Warn("primary store disabled, memories live in process only")
	}

	var natsClient *inats.Client
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS, logger)
		if err != nil {
			return err
		}
		defer natsClient.Close()
		deps.Events = inats.NewPublisher(natsClient.JetStream())
	}

	var auditHandler *audit.Handler
	if cfg.Audit.Enabled {
		repo := audit.NewRepository(pool)
		consumer := audit.NewConsumer(repo, inats.NewConsumerManager(natsClient.JetStream()), logger)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("audit consumer stopped", zap.Error(err))
			}
		}()
		auditHandler = audit.NewHandler(repo, logger)
	}

	svc := memory.NewService(deps, memory.OptionsFromConfig(cfg.Memory))
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("closing memory service", zap.Error(err))
		}
	}()
	memoryHandler := memory.NewHandler(svc, logger)

	handlers := api.HandlerSet{
		CreateMemory:      memoryHandler.Create,
		ListMemories:      memoryHandler.List,
		ImportantMemories: memoryHandler.Important,
		SearchMemories:    memoryHandler.Search,
		MemorySummary:     memoryHandler.Summary,
		GetMemory:         memoryHandler.Get,
		UpdateMemory:      memoryHandler.UpdateImportance,
		DeleteMemory:      memoryHandler.Delete,
		ClearMemories:     memoryHandler.Clear,
		RecordInteraction: memoryHandler.RecordInteraction,
		Recall:            memoryHandler.Recall,
	}
	if auditHandler != nil {
		handlers.AuditLog = auditHandler.List
	}
	if cfg.Auth.JWTSecret != "" {
		jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		handlers.AuthMiddleware = auth.Middleware(jwtManager)
		handlers.AgentMiddleware = auth.RequireAgent
	} else {
		logger.Warn("AUTH_JWT_SECRET not set, API is unauthenticated")
	}

	routerCfg := api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Logger:             logger,
	}
	if pool != nil {
		routerCfg.Postgres = pool
	}
	if cfg.RateLimit.Requests > 0 {
		limiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, logger)
		routerCfg.RateLimiter = limiter.Middleware
	}

	router := api.NewRouter(redisClient, natsClient, routerCfg, handlers)

	logger.Info("memory service ready",
		zap.Bool("primary", deps.Primary != nil),
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Bool("events", deps.Events != nil),
	)

	return server.New(cfg.Server, router, logger).Run(ctx)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" || cfg.Format == "text" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("service", "agentmemory"))
}
