package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	mw "github.com/aiox-platform/agentmemory/internal/middleware"
	inats "github.com/aiox-platform/agentmemory/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	CreateMemory      http.HandlerFunc
	ListMemories      http.HandlerFunc
	ImportantMemories http.HandlerFunc
	SearchMemories    http.HandlerFunc
	MemorySummary     http.HandlerFunc
	GetMemory         http.HandlerFunc
	UpdateMemory      http.HandlerFunc
	DeleteMemory      http.HandlerFunc
	ClearMemories     http.HandlerFunc
	RecordInteraction http.HandlerFunc
	Recall            http.HandlerFunc

	// AuditLog is nil when the audit trail is disabled.
	AuditLog http.HandlerFunc

	// Auth middleware; both nil when auth is disabled.
	AuthMiddleware  func(http.Handler) http.Handler
	AgentMiddleware func(http.Handler) http.Handler
}

// Pinger is a dependency the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RateLimiter        func(http.Handler) http.Handler
	// Postgres is nil unless pgvector or the audit trail is enabled.
	Postgres Pinger
	Logger   *zap.Logger
}

func NewRouter(redisClient redis.UniversalClient, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging(logger))
	r.Use(mw.Recovery(logger))
	r.Use(mw.Metrics)
	r.Use(mw.CORS(cfg.CORSAllowedOrigins))

	// Liveness probe, always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health, status := readiness(r.Context(), redisClient, natsClient, cfg.Postgres)
		JSON(w, status, health)
	}
	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter)
		}
		if h.AuthMiddleware != nil {
			r.Use(h.AuthMiddleware)
		}

		r.Route("/agents/{agentID}", func(r chi.Router) {
			if h.AgentMiddleware != nil {
				r.Use(h.AgentMiddleware)
			}

			r.Route("/memories", func(r chi.Router) {
				r.Post("/", h.CreateMemory)
				r.Get("/", h.ListMemories)
				r.Delete("/", h.ClearMemories)
				r.Get("/important", h.ImportantMemories)
				r.Get("/search", h.SearchMemories)
				r.Get("/summary", h.MemorySummary)
				r.Get("/{memoryID}", h.GetMemory)
				r.Patch("/{memoryID}", h.UpdateMemory)
				r.Delete("/{memoryID}", h.DeleteMemory)
			})

			r.Post("/clear-memory", h.ClearMemories)
			r.Post("/interactions", h.RecordInteraction)
			r.Get("/recall", h.Recall)
			if h.AuditLog != nil {
				r.Get("/audit", h.AuditLog)
			}
		})
	})

	return r
}

// readiness reports dependency health. Any configured dependency that is
// unreachable fails the probe.
func readiness(ctx context.Context, redisClient redis.UniversalClient, natsClient *inats.Client, postgres Pinger) (map[string]string, int) {
	health := map[string]string{
		"status":   "healthy",
		"redis":    "healthy",
		"nats":     "healthy",
		"postgres": "healthy",
	}
	status := http.StatusOK

	if redisClient == nil {
		health["redis"] = "not configured"
	} else if err := redisClient.Ping(ctx).Err(); err != nil {
		health["redis"] = "unhealthy"
		health["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}

	if natsClient == nil {
		health["nats"] = "not configured"
	} else if !natsClient.Healthy() {
		health["nats"] = "unhealthy"
		health["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}

	if postgres == nil {
		health["postgres"] = "not configured"
	} else if err := postgres.Ping(ctx); err != nil {
		health["postgres"] = "unhealthy"
		health["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}

	return health, status
}
