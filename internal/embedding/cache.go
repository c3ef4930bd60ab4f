package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aiox-platform/agentmemory/internal/metrics"
)

// CacheConfig configures Cache.
type CacheConfig struct {
	Dimension int
	TTL       time.Duration
	// Timeout bounds each Redis and provider call.
	Timeout time.Duration
	// LocalEntries caps the in-process tier.
	LocalEntries int64
}

// Cache memoizes embeddings by content hash in Redis and in process. On a
// miss it asks the provider and, when there is none or it fails, falls back
// to a deterministic local vector, so GetOrCreate always yields a vector.
type Cache struct {
	cfg      CacheConfig
	redis    redis.UniversalClient
	local    *ristretto.Cache
	provider Provider
	hashed   *LocalProvider
	group    singleflight.Group
	logger   *zap.Logger
}

// NewCache creates a cache. client and provider may be nil.
func NewCache(cfg CacheConfig, client redis.UniversalClient, provider Provider, logger *zap.Logger) (*Cache, error) {
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.LocalEntries <= 0 {
		cfg.LocalEntries = 10000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	local, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.LocalEntries * 10,
		MaxCost:     cfg.LocalEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating local embedding cache: %w", err)
	}

	return &Cache{
		cfg:      cfg,
		redis:    client,
		local:    local,
		provider: provider,
		hashed:   NewLocalProvider(cfg.Dimension),
		logger:   logger.With(zap.String("component", "embedding_cache")),
	}, nil
}

// Key returns the cache key for text.
func Key(text string) string {
	sum := md5.Sum([]byte(text))
	return "embedding:" + hex.EncodeToString(sum[:])
}

// GetOrCreate returns the embedding of text. Empty text has no embedding.
func (c *Cache) GetOrCreate(ctx context.Context, text string) []float32 {
	if text == "" {
		return nil
	}
	key := Key(text)

	v, _, _ := c.group.Do(key, func() (any, error) {
		return c.resolve(ctx, key, text), nil
	})
	vec, _ := v.([]float32)
	return append([]float32(nil), vec...)
}

func (c *Cache) resolve(ctx context.Context, key, text string) []float32 {
	if vec, ok := c.fromRedis(ctx, key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("redis_hit").Inc()
		c.setLocal(key, vec)
		return vec
	}
	if v, ok := c.local.Get(key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("local_hit").Inc()
		return v.([]float32)
	}

	vec, source := c.generate(ctx, text)
	metrics.EmbeddingCacheTotal.WithLabelValues(source).Inc()

	c.toRedis(ctx, key, vec)
	c.setLocal(key, vec)
	return vec
}

func (c *Cache) generate(ctx context.Context, text string) ([]float32, string) {
	if c.provider != nil {
		pctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		vecs, err := c.provider.Embed(pctx, []string{text})
		cancel()
		switch {
		case err != nil:
			c.logger.Warn("embedding provider failed, using local vector", zap.Error(err))
		case len(vecs) == 0 || len(vecs[0]) == 0:
			c.logger.Warn("embedding provider returned no vector, using local vector")
		default:
			return vecs[0], "provider"
		}
	}
	return c.hashed.Vector(text), "local_generated"
}

func (c *Cache) fromRedis(ctx context.Context, key string) ([]float32, bool) {
	if c.redis == nil {
		return nil, false
	}
	rctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	raw, err := c.redis.Get(rctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("reading cached embedding failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil || len(vec) == 0 {
		c.logger.Warn("discarding undecodable cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *Cache) toRedis(ctx context.Context, key string, vec []float32) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(vec)
	if err != nil {
		c.logger.Warn("encoding embedding failed", zap.Error(err))
		return
	}
	rctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	if err := c.redis.Set(rctx, key, data, c.cfg.TTL).Err(); err != nil {
		c.logger.Warn("caching embedding failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) setLocal(key string, vec []float32) {
	c.local.SetWithTTL(key, vec, 1, c.cfg.TTL)
	c.local.Wait()
}

// Dimension is the length of locally generated vectors.
func (c *Cache) Dimension() int {
	return c.cfg.Dimension
}

// Close releases the in-process tier.
func (c *Cache) Close() {
	c.local.Close()
}
