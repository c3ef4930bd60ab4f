package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// Chromem is an embedded index backed by chromem-go, one collection per
// namespace. With an empty path it lives in memory only.
type Chromem struct {
	db *chromem.DB
}

func NewChromem(path string) (*Chromem, error) {
	if path == "" {
		return &Chromem{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening chromem db at %s: %w", path, err)
	}
	return &Chromem{db: db}, nil
}

func collectionName(namespace string) string {
	return "memories_" + namespace
}

func (c *Chromem) collection(namespace string) (*chromem.Collection, error) {
	col, err := c.db.GetOrCreateCollection(collectionName(namespace), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("opening collection for %s: %w", namespace, err)
	}
	return col, nil
}

// Document content holds the metadata as JSON so it round-trips with its
// types; chromem's own metadata map only takes strings.
func toDocument(p Point) (chromem.Document, error) {
	raw, err := json.Marshal(p.Metadata)
	if err != nil {
		return chromem.Document{}, fmt.Errorf("encoding metadata for %s: %w", p.ID, err)
	}
	tags := make(map[string]string, len(p.Metadata))
	for k, v := range p.Metadata {
		tags[k] = fmt.Sprint(v)
	}
	return chromem.Document{
		ID:        p.ID,
		Content:   string(raw),
		Embedding: p.Vector,
		Metadata:  tags,
	}, nil
}

func (c *Chromem) Upsert(ctx context.Context, namespace string, points []Point) error {
	col, err := c.collection(namespace)
	if err != nil {
		return err
	}
	for _, p := range points {
		doc, err := toDocument(p)
		if err != nil {
			return err
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("adding %s: %w", p.ID, err)
		}
	}
	return nil
}

func (c *Chromem) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	col := c.db.GetCollection(collectionName(namespace), nil)
	if col == nil {
		return []Match{}, nil
	}
	// chromem rejects nResults larger than the collection.
	n := min(topK, col.Count())
	if n <= 0 {
		return []Match{}, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	out := make([]Match, 0, len(results))
	for _, r := range results {
		var meta map[string]any
		if err := json.Unmarshal([]byte(r.Content), &meta); err != nil {
			meta = map[string]any{}
		}
		out = append(out, Match{ID: r.ID, Score: float64(r.Similarity), Metadata: meta})
	}
	return out, nil
}

func (c *Chromem) UpdateMetadata(ctx context.Context, namespace, id string, fields map[string]any) error {
	col := c.db.GetCollection(collectionName(namespace), nil)
	if col == nil {
		return fmt.Errorf("no vectors for namespace %s", namespace)
	}
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("loading %s: %w", id, err)
	}

	meta := map[string]any{}
	if err := json.Unmarshal([]byte(doc.Content), &meta); err != nil {
		meta = map[string]any{}
	}
	for k, v := range fields {
		meta[k] = v
	}
	updated, err := toDocument(Point{ID: id, Vector: doc.Embedding, Metadata: meta})
	if err != nil {
		return err
	}
	return col.AddDocument(ctx, updated)
}

func (c *Chromem) Delete(ctx context.Context, namespace string, ids ...string) error {
	col := c.db.GetCollection(collectionName(namespace), nil)
	if col == nil || len(ids) == 0 {
		return nil
	}
	return col.Delete(ctx, nil, nil, ids...)
}

func (c *Chromem) DeleteNamespace(_ context.Context, namespace string) error {
	if c.db.GetCollection(collectionName(namespace), nil) == nil {
		return nil
	}
	return c.db.DeleteCollection(collectionName(namespace))
}

func (c *Chromem) Close() error {
	return nil
}
