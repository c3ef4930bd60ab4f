package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// PGVector stores vectors in Postgres with the pgvector extension. The
// schema comes from the memory_vectors migration.
type PGVector struct {
	pool *pgxpool.Pool
}

func NewPGVector(pool *pgxpool.Pool) *PGVector {
	return &PGVector{pool: pool}
}

func (p *PGVector) Upsert(ctx context.Context, namespace string, points []Point) error {
	for _, pt := range points {
		meta, err := json.Marshal(pt.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", pt.ID, err)
		}
		_, err = p.pool.Exec(ctx,
			`INSERT INTO memory_vectors (namespace, id, embedding, metadata)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (namespace, id)
			 DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = now()`,
			namespace, pt.ID, pgvector.NewVector(pt.Vector), meta,
		)
		if err != nil {
			return fmt.Errorf("upserting vector %s: %w", pt.ID, err)
		}
	}
	return nil
}

func (p *PGVector) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	vec := pgvector.NewVector(vector)
	rows, err := p.pool.Query(ctx,
		`SELECT id, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM memory_vectors
		 WHERE namespace = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, namespace, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		var (
			m   Match
			raw []byte
		)
		if err := rows.Scan(&m.ID, &raw, &m.Score); err != nil {
			return nil, fmt.Errorf("scanning vector match: %w", err)
		}
		if err := json.Unmarshal(raw, &m.Metadata); err != nil {
			m.Metadata = map[string]any{}
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *PGVector) UpdateMetadata(ctx context.Context, namespace, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", id, err)
	}
	_, err = p.pool.Exec(ctx,
		`UPDATE memory_vectors SET metadata = metadata || $3::jsonb, updated_at = now()
		 WHERE namespace = $1 AND id = $2`,
		namespace, id, patch,
	)
	if err != nil {
		return fmt.Errorf("updating vector metadata %s: %w", id, err)
	}
	return nil
}

func (p *PGVector) Delete(ctx context.Context, namespace string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx,
		`DELETE FROM memory_vectors WHERE namespace = $1 AND id = ANY($2)`,
		namespace, ids,
	)
	if err != nil {
		return fmt.Errorf("deleting vectors: %w", err)
	}
	return nil
}

func (p *PGVector) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM memory_vectors WHERE namespace = $1`, namespace)
	if err != nil {
		return fmt.Errorf("deleting namespace %s: %w", namespace, err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the caller.
func (p *PGVector) Close() error {
	return nil
}
