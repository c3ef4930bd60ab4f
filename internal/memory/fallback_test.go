package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(agent, id string, createdAt int64, importance float64) *Record {
	return &Record{
		ID:         id,
		AgentID:    agent,
		Content:    "content " + id,
		Type:       TypeInteraction,
		Metadata:   Metadata{},
		Importance: importance,
		CreatedAt:  createdAt,
	}
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestFallbackCache_PutGetReturnsCopies(t *testing.T) {
	c := NewFallbackCache()
	ctx := context.Background()

	r := rec("a1", "m1", 1, 0.5)
	r.Metadata["k"] = "v"
	require.NoError(t, c.Put(ctx, r, 0))

	r.Metadata["k"] = "changed"
	got, err := c.Get(ctx, "a1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Metadata["k"])

	got.Content = "mutated"
	again, _ := c.Get(ctx, "a1", "m1")
	assert.Equal(t, "content m1", again.Content)
}

func TestFallbackCache_AgentsAreIsolated(t *testing.T) {
	c := NewFallbackCache()
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, rec("a1", "m1", 1, 0.5), 0))

	_, err := c.Get(ctx, "a2", "m1")
	assert.ErrorIs(t, err, ErrNotFound)
	all, _ := c.ListAll(ctx, "a2")
	assert.Empty(t, all)
}

func TestFallbackCache_ListRecentBreaksTiesByInsertion(t *testing.T) {
	c := NewFallbackCache()
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, rec("a1", "old", 10, 0.5), 0))
	require.NoError(t, c.Put(ctx, rec("a1", "first", 20, 0.5), 0))
	require.NoError(t, c.Put(ctx, rec("a1", "second", 20, 0.5), 0))

	got, err := c.ListRecent(ctx, "a1", RecentQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first", "old"}, ids(got))

	got, _ = c.ListRecent(ctx, "a1", RecentQuery{Limit: 2})
	assert.Equal(t, []string{"second", "first"}, ids(got))
}

func TestFallbackCache_ListRecentFilters(t *testing.T) {
	c := NewFallbackCache()
	ctx := context.Background()
	a := rec("a1", "a", 1, 0.5)
	a.Type = "fact"
	a.Metadata["topic"] = "go"
	b := rec("a1", "b", 2, 0.5)
	b.Metadata["topic"] = "go"
	require.NoError(t, c.Put(ctx, a, 0))
	require.NoError(t, c.Put(ctx, b, 0))

	got, _ := c.ListRecent(ctx, "a1", RecentQuery{Limit: 10, Type: "fact"})
	assert.Equal(t, []string{"a"}, ids(got))

	got, _ = c.ListRecent(ctx, "a1", RecentQuery{Limit: 10, Metadata: Metadata{"topic": "go"}})
	assert.Equal(t, []string{"b", "a"}, ids(got))
}

func TestFallbackCache_ListImportant(t *testing.T) {
	c := NewFallbackCache()
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, rec("a1", "low", 1, 0.1), 0))
	require.NoError(t, c.Put(ctx, rec("a1", "high", 2, 0.9), 0))
	require.NoError(t, c.Put(ctx, rec("a1", "mid", 3, 0.5), 0))

	got, _ := c.ListImportant(ctx, "a1", 2)
	assert.Equal(t, []string{"high", "mid"}, ids(got))
}

func TestFallbackCache_UpdateImportanceMergesMetadata(t *testing.T) {
	c := NewFallbackCache()
	ctx := context.Background()
	r := rec("a1", "m1", 1, 0.2)
	r.Metadata["keep"] = 1
	require.NoError(t, c.Put(ctx, r, 0))

	updated, err := c.UpdateImportance(ctx, "a1", "m1", 0.8, Metadata{"reviewed": true})
	require.NoError(t, err)
	assert.Equal(t, 0.8, updated.Importance)
	assert.Equal(t, Metadata{"keep": 1, "reviewed": true}, updated.Metadata)

	_, err = c.UpdateImportance(ctx, "a1", "missing", 0.8, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFallbackCache_DeleteAndClear(t *testing.T) {
	c := NewFallbackCache()
	ctx := context.Background()
	for i := range 3 {
		require.NoError(t, c.Put(ctx, rec("a1", fmt.Sprintf("m%d", i), int64(i), 0.5), 0))
	}

	require.NoError(t, c.Delete(ctx, "a1", "m0"))
	assert.ErrorIs(t, c.Delete(ctx, "a1", "m0"), ErrNotFound)

	n, err := c.Clear(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, _ = c.Clear(ctx, "a1")
	assert.Zero(t, n)
}

func TestFallbackCache_ConcurrentPuts(t *testing.T) {
	c := NewFallbackCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_ = c.Put(ctx, rec("a1", fmt.Sprintf("w%d-%d", w, i), int64(i), 0.5), 0)
			}
		}()
	}
	wg.Wait()

	all, _ := c.ListAll(ctx, "a1")
	assert.Len(t, all, 400)
}

func TestFallbackCache_ExpiresAfterTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewFallbackCacheWithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, rec("a1", "short", 1, 0.1), time.Minute))
	require.NoError(t, c.Put(ctx, rec("a1", "long", 2, 0.9), time.Hour))
	require.NoError(t, c.Put(ctx, rec("a1", "forever", 3, 0.5), 0))

	now = now.Add(2 * time.Minute)

	_, err := c.Get(ctx, "a1", "short")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, "a1", "short"), ErrNotFound)
	_, err = c.UpdateImportance(ctx, "a1", "short", 1, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	recent, err := c.ListRecent(ctx, "a1", RecentQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"forever", "long"}, ids(recent))
	important, err := c.ListImportant(ctx, "a1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"long", "forever"}, ids(important))

	now = now.Add(time.Hour)
	n, err := c.Clear(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFallbackCache_UpdateKeepsDeadline(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewFallbackCacheWithClock(func() time.Time { return now })
	ctx := context.Background()

	r := rec("a1", "m1", 1, 0.1)
	require.NoError(t, c.Put(ctx, r, time.Minute))
	r.Importance = 0.9
	require.NoError(t, c.Put(ctx, r, 0))

	now = now.Add(2 * time.Minute)
	_, err := c.Get(ctx, "a1", "m1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFallbackCache_PutSweepsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewFallbackCacheWithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := range sweepEvery - 1 {
		require.NoError(t, c.Put(ctx, rec("a1", fmt.Sprintf("old-%d", i), int64(i), 0), time.Minute))
	}
	now = now.Add(2 * time.Minute)
	require.NoError(t, c.Put(ctx, rec("a1", "new", 1000, 0), time.Minute))

	b := c.bucket("a1", false)
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Len(t, b.records, 1)
}
