package memory

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no tier holds the requested memory.
	ErrNotFound = errors.New("memory not found")
	// ErrInvalidAgent is returned for agent ids that cannot form a key namespace.
	ErrInvalidAgent = errors.New("invalid agent id")
)

// Default memory type when the caller does not supply one.
const TypeInteraction = "interaction"

// Metadata is an open string-keyed map attached to a record.
type Metadata map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns a copy of m with updates applied; keys in updates overwrite.
func (m Metadata) Merge(updates Metadata) Metadata {
	out := m.Clone()
	for k, v := range updates {
		out[k] = v
	}
	return out
}

// Matches reports whether every key in filter is present in m with an equal
// value. Numbers compare by value regardless of their Go type.
func (m Metadata) Matches(filter Metadata) bool {
	for k, want := range filter {
		got, ok := m[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Record is a single memory owned by one agent.
type Record struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	Metadata   Metadata  `json:"metadata"`
	Importance float64   `json:"importance"`
	CreatedAt  int64     `json:"created_at"`
	Embedding  []float32 `json:"embedding,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
}

// clone copies the record so stores never share mutable state with callers.
func (r *Record) clone() *Record {
	c := *r
	c.Metadata = r.Metadata.Clone()
	if r.Embedding != nil {
		c.Embedding = append([]float32(nil), r.Embedding...)
	}
	return &c
}

// SearchResult is a record with the score it was ranked by.
type SearchResult struct {
	Record
	Similarity float64 `json:"similarity"`
	Source     string  `json:"source"`
}

const (
	SourceSemantic = "semantic"
	SourceKeyword  = "keyword"
)

// StoreRequest carries the inputs of Service.Store.
type StoreRequest struct {
	AgentID    string
	Content    string
	Type       string
	Metadata   Metadata
	Importance float64
	UserID     string
	// ExpiresIn overrides the importance-derived retention when positive.
	ExpiresIn int64
}

// RecentQuery filters a recency listing.
type RecentQuery struct {
	Limit    int
	Type     string
	Metadata Metadata
}

func (q RecentQuery) matches(r *Record) bool {
	if q.Type != "" && r.Type != q.Type {
		return false
	}
	return r.Metadata.Matches(q.Metadata)
}

// SearchQuery configures Service.Search.
type SearchQuery struct {
	Query         string
	Limit         int
	MinSimilarity float64
	Semantic      bool
}

// NewID returns a fresh memory id.
func NewID() string {
	return "memory_" + uuid.NewString()
}

// ClampImportance maps any float onto [0,1]. NaN becomes 0.
func ClampImportance(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// ValidateAgentID rejects ids that would break the key layout.
func ValidateAgentID(agentID string) error {
	if agentID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAgent)
	}
	if strings.ContainsRune(agentID, ':') || strings.IndexFunc(agentID, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidAgent, agentID)
	}
	return nil
}

// MergeUnique appends records from second whose id is not already present.
func MergeUnique(first, second []Record) []Record {
	seen := make(map[string]struct{}, len(first)+len(second))
	out := make([]Record, 0, len(first)+len(second))
	for _, r := range first {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	for _, r := range second {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// CreateMemoryRequest is the API body for storing a memory.
type CreateMemoryRequest struct {
	Content    string   `json:"content" validate:"required,min=1"`
	Type       string   `json:"type,omitempty"`
	Metadata   Metadata `json:"metadata,omitempty"`
	Importance *float64 `json:"importance,omitempty" validate:"omitempty,gte=0,lte=1"`
	UserID     string   `json:"user_id,omitempty"`
	ExpiresIn  int64    `json:"expires_in,omitempty" validate:"gte=0"`
}

// UpdateImportanceRequest is the API body for re-scoring a memory.
type UpdateImportanceRequest struct {
	Importance *float64 `json:"importance" validate:"required,gte=0,lte=1"`
	Metadata   Metadata `json:"metadata,omitempty"`
}

// InteractionRequest is the API body for recording a user/agent exchange.
type InteractionRequest struct {
	UserInput     string `json:"user_input" validate:"required"`
	AgentResponse string `json:"agent_response" validate:"required"`
	Context       string `json:"context,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}
