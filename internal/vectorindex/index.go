// Package vectorindex stores memory embeddings in a namespaced similarity
// index. Backends implement Index; callers use Adapter, which runs every
// backend call on a bounded worker pool and never lets a write failure
// escape as anything but a logged error.
package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Point is a vector with its metadata, addressed by id within a namespace.
type Point struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Match is a query hit. Score is cosine similarity, higher is closer.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Index is a namespaced vector backend.
type Index interface {
	Upsert(ctx context.Context, namespace string, points []Point) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)
	UpdateMetadata(ctx context.Context, namespace, id string, fields map[string]any) error
	Delete(ctx context.Context, namespace string, ids ...string) error
	DeleteNamespace(ctx context.Context, namespace string) error
	Close() error
}

// Options configures an Adapter.
type Options struct {
	Dimension int
	Workers   int
	QueueSize int
	// Timeout bounds each backend call, measured once a worker picks it up.
	Timeout time.Duration
}

// Fit pads with zeros or truncates vec to dim.
func Fit(vec []float32, dim int) []float32 {
	if dim <= 0 || len(vec) == dim {
		return vec
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out
}

const maxContentLen = 1000

// sanitizeMetadata keeps scalar values and string lists as they are,
// encodes anything else as JSON text, drops nils, and caps content length.
func sanitizeMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if k == "content" && len(val) > maxContentLen {
				val = truncate(val, maxContentLen)
			}
			out[k] = val
		case bool, float64, float32, int, int32, int64, uint, uint32, uint64:
			out[k] = val
		case []string:
			out[k] = val
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(raw)
		}
	}
	return out
}

// simplifyMetadata keeps only the fields every backend accepts.
func simplifyMetadata(in map[string]any) map[string]any {
	out := map[string]any{}
	for _, k := range []string{"agent_id", "type", "importance", "created_at"} {
		if v, ok := in[k]; ok {
			out[k] = v
		}
	}
	if s, ok := in["content"].(string); ok {
		out["content_summary"] = truncate(s, 100)
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
