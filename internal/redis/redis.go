package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aiox-platform/agentmemory/internal/config"
)

// NewClient builds the Redis client and checks the connection. An
// unreachable server is logged, not fatal: the client reconnects on demand
// and memory operations use the in-process cache until then.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, running on fallback cache", zap.String("addr", cfg.Addr()), zap.Error(err))
		return client
	}

	logger.Info("connected to Redis", zap.String("addr", cfg.Addr()))
	return client
}
