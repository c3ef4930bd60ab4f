package vectorindex

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upsertCall struct {
	namespace string
	point     Point
}

type fakeIndex struct {
	mu         sync.Mutex
	upserts    []upsertCall
	failUpsert int
	queryErr   error
	matches    []Match
	delay      time.Duration
	deleted    []string
	cleared    []string
	updated    map[string]map[string]any
	closed     bool
}

func (f *fakeIndex) Upsert(ctx context.Context, namespace string, points []Point) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range points {
		f.upserts = append(f.upserts, upsertCall{namespace, p})
	}
	if f.failUpsert > 0 {
		f.failUpsert--
		return errors.New("400 bad request: metadata too large")
	}
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *fakeIndex) UpdateMetadata(ctx context.Context, namespace, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updated == nil {
		f.updated = map[string]map[string]any{}
	}
	f.updated[namespace+"/"+id] = fields
	return nil
}

func (f *fakeIndex) Delete(ctx context.Context, namespace string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeIndex) DeleteNamespace(ctx context.Context, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, namespace)
	return nil
}

func (f *fakeIndex) Close() error {
	f.closed = true
	return nil
}

func newTestAdapter(t *testing.T, idx Index, dim int) *Adapter {
	t.Helper()
	a := NewAdapter(idx, Options{Dimension: dim, Workers: 2, QueueSize: 8, Timeout: time.Second}, nil)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAdapter_DisabledIsNoop(t *testing.T) {
	a := NewAdapter(nil, Options{}, nil)
	ctx := context.Background()

	assert.False(t, a.Enabled())
	assert.NoError(t, a.Upsert(ctx, "m1", []float32{1}, nil, "agent"))
	assert.NoError(t, a.UpdateMetadata(ctx, "m1", "agent", map[string]any{"importance": 0.5}))
	assert.NoError(t, a.Delete(ctx, "m1", "agent"))
	assert.NoError(t, a.DeleteNamespace(ctx, "agent"))

	matches, err := a.Query(ctx, []float32{1}, "agent", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NoError(t, a.Close())
}

func TestFit(t *testing.T) {
	assert.Equal(t, []float32{1, 2, 0, 0}, Fit([]float32{1, 2}, 4))
	assert.Equal(t, []float32{1, 2}, Fit([]float32{1, 2, 3}, 2))
	assert.Equal(t, []float32{1, 2}, Fit([]float32{1, 2}, 2))
}

func TestAdapter_UpsertFitsDimensionAndTruncatesContent(t *testing.T) {
	idx := &fakeIndex{}
	a := newTestAdapter(t, idx, 4)

	long := strings.Repeat("x", 1500)
	err := a.Upsert(context.Background(), "m1", []float32{0.1, 0.2}, map[string]any{
		"agent_id": "agent-1",
		"content":  long,
		"tags":     map[string]any{"a": 1},
		"missing":  nil,
	}, "agent-1")
	require.NoError(t, err)

	require.Len(t, idx.upserts, 1)
	got := idx.upserts[0]
	assert.Equal(t, "agent-1", got.namespace)
	assert.Equal(t, []float32{0.1, 0.2, 0, 0}, got.point.Vector)
	assert.Len(t, got.point.Metadata["content"], 1000)
	assert.Equal(t, `{"a":1}`, got.point.Metadata["tags"])
	assert.NotContains(t, got.point.Metadata, "missing")
}

func TestAdapter_UpsertRetriesWithSimplifiedMetadata(t *testing.T) {
	idx := &fakeIndex{failUpsert: 1}
	a := newTestAdapter(t, idx, 2)

	err := a.Upsert(context.Background(), "m1", []float32{1, 0}, map[string]any{
		"agent_id":   "agent-1",
		"content":    strings.Repeat("y", 300),
		"type":       "fact",
		"importance": 0.4,
		"created_at": int64(1700000000),
		"user_id":    "u-9",
		"extra":      "dropped",
	}, "agent-1")
	require.NoError(t, err)

	require.Len(t, idx.upserts, 2)
	retry := idx.upserts[1].point.Metadata
	assert.Equal(t, map[string]any{
		"agent_id":        "agent-1",
		"type":            "fact",
		"importance":      0.4,
		"created_at":      int64(1700000000),
		"content_summary": strings.Repeat("y", 100),
	}, retry)
}

func TestAdapter_UpsertReportsSecondFailure(t *testing.T) {
	idx := &fakeIndex{failUpsert: 2}
	a := newTestAdapter(t, idx, 2)

	err := a.Upsert(context.Background(), "m1", []float32{1, 0}, map[string]any{"content": "c"}, "ns")
	assert.Error(t, err)
	assert.Len(t, idx.upserts, 2)
}

func TestAdapter_EmptyVectorIsSkipped(t *testing.T) {
	idx := &fakeIndex{}
	a := newTestAdapter(t, idx, 2)

	require.NoError(t, a.Upsert(context.Background(), "m1", nil, nil, "ns"))
	assert.Empty(t, idx.upserts)
}

func TestAdapter_QueryPropagatesErrors(t *testing.T) {
	idx := &fakeIndex{queryErr: errors.New("index unavailable")}
	a := newTestAdapter(t, idx, 2)

	_, err := a.Query(context.Background(), []float32{1, 0}, "ns", 3)
	assert.EqualError(t, err, "index unavailable")
}

func TestAdapter_QueryReturnsMatches(t *testing.T) {
	idx := &fakeIndex{matches: []Match{{ID: "m1", Score: 0.9}}}
	a := newTestAdapter(t, idx, 2)

	matches, err := a.Query(context.Background(), []float32{1, 0}, "ns", 3)
	require.NoError(t, err)
	assert.Equal(t, []Match{{ID: "m1", Score: 0.9}}, matches)
}

func TestAdapter_SlowIndexTimesOut(t *testing.T) {
	idx := &fakeIndex{delay: time.Second}
	a := NewAdapter(idx, Options{Dimension: 2, Workers: 1, QueueSize: 1, Timeout: 20 * time.Millisecond}, nil)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := a.Upsert(ctx, "m1", []float32{1, 0}, nil, "ns")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestAdapter_ForwardsDeletesAndUpdates(t *testing.T) {
	idx := &fakeIndex{}
	a := newTestAdapter(t, idx, 2)
	ctx := context.Background()

	require.NoError(t, a.UpdateMetadata(ctx, "m1", "ns", map[string]any{"importance": 0.9}))
	require.NoError(t, a.Delete(ctx, "m1", "ns"))
	require.NoError(t, a.DeleteNamespace(ctx, "ns"))

	assert.Equal(t, map[string]any{"importance": 0.9}, idx.updated["ns/m1"])
	assert.Equal(t, []string{"m1"}, idx.deleted)
	assert.Equal(t, []string{"ns"}, idx.cleared)
}

func TestAdapter_CloseClosesIndex(t *testing.T) {
	idx := &fakeIndex{}
	a := NewAdapter(idx, Options{}, nil)
	require.NoError(t, a.Close())
	assert.True(t, idx.closed)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes each
	got := truncate(s, 5)
	assert.Equal(t, "éé", got)
}
