package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aiox-platform/agentmemory/internal/config"
)

// ErrNotConfigured is returned when a backend is selected without the
// settings it needs.
var ErrNotConfigured = errors.New("vector backend not configured")

// Open builds the backend named by cfg.Backend. It returns a nil Index for
// "none". pool is required only for pgvector.
func Open(ctx context.Context, cfg config.VectorConfig, dimension int, pool *pgxpool.Pool, logger *zap.Logger) (Index, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "pinecone":
		p, err := NewPinecone(PineconeConfig{
			APIKey:  cfg.PineconeKey,
			BaseURL: cfg.PineconeURL,
			Index:   cfg.PineconeIdx,
			Timeout: cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "pgvector":
		if pool == nil {
			return nil, fmt.Errorf("%w: pgvector needs a postgres pool", ErrNotConfigured)
		}
		return NewPGVector(pool), nil
	case "qdrant":
		q, err := NewQdrant(ctx, QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			Collection: cfg.Collection,
			Dimension:  dimension,
		})
		if err != nil {
			return nil, err
		}
		return q, nil
	case "chromem":
		c, err := NewChromem(cfg.ChromemPath)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}
