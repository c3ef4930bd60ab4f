package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aiox-platform/agentmemory/internal/config"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// NewProvider builds the remote provider named in cfg, wrapped in a rate
// limiter. The local provider needs no remote side, so it yields nil and the
// cache generates hash vectors itself.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	var p Provider
	switch cfg.Provider {
	case "", "local":
		return nil, nil
	case "gemini":
		p = NewGeminiProvider(GeminiConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	case "openai":
		p = NewOpenAIProvider(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return NewRateLimited(p, cfg.Rate, 1), nil
}

// NewCacheFromConfig wires a Cache for the process config.
func NewCacheFromConfig(cfg config.EmbeddingConfig, client redis.UniversalClient, logger *zap.Logger) (*Cache, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewCache(CacheConfig{
		Dimension: cfg.Dimension,
		TTL:       cfg.CacheTTL,
		Timeout:   cfg.Timeout,
	}, client, provider, logger)
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
