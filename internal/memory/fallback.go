package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// sweepEvery is how many puts into a bucket trigger a sweep of its expired
// entries.
const sweepEvery = 64

// FallbackCache is the in-process last-resort copy of every record.
// It satisfies Store so the coordinator can treat it as just another tier.
// Records expire after the ttl given to Put, like their Redis copies.
type FallbackCache struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	mu      sync.Mutex
	seq     uint64
	records map[string]*entry
}

// entry keeps insertion order to break created_at ties. A zero expiresAt
// never expires.
type entry struct {
	rec       *Record
	seq       uint64
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewFallbackCache creates an empty cache on the wall clock.
func NewFallbackCache() *FallbackCache {
	return NewFallbackCacheWithClock(time.Now)
}

// NewFallbackCacheWithClock creates an empty cache that reads the time from now.
func NewFallbackCacheWithClock(now func() time.Time) *FallbackCache {
	if now == nil {
		now = time.Now
	}
	return &FallbackCache{buckets: make(map[string]*bucket), now: now}
}

// live returns the entry for id, evicting it when it has expired.
// The caller holds b.mu.
func (b *bucket) live(id string, now time.Time) (*entry, bool) {
	e, ok := b.records[id]
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		delete(b.records, id)
		return nil, false
	}
	return e, true
}

// sweep evicts every expired entry. The caller holds b.mu.
func (b *bucket) sweep(now time.Time) {
	for id, e := range b.records {
		if e.expired(now) {
			delete(b.records, id)
		}
	}
}

func (c *FallbackCache) bucket(agentID string, create bool) *bucket {
	c.mu.RLock()
	b, ok := c.buckets[agentID]
	c.mu.RUnlock()
	if ok || !create {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.buckets[agentID]; ok {
		return b
	}
	b = &bucket{records: make(map[string]*entry)}
	c.buckets[agentID] = b
	return b
}

// Put stores a copy of rec that expires after ttl. A ttl <= 0 keeps the
// deadline of an existing entry and never expires a new one.
func (c *FallbackCache) Put(_ context.Context, rec *Record, ttl time.Duration) error {
	now := c.now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	b := c.bucket(rec.AgentID, true)
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.live(rec.ID, now); ok {
		e.rec = rec.clone()
		if ttl > 0 {
			e.expiresAt = expiresAt
		}
		return nil
	}
	b.seq++
	b.records[rec.ID] = &entry{rec: rec.clone(), seq: b.seq, expiresAt: expiresAt}
	if b.seq%sweepEvery == 0 {
		b.sweep(now)
	}
	return nil
}

func (c *FallbackCache) Get(_ context.Context, agentID, id string) (*Record, error) {
	b := c.bucket(agentID, false)
	if b == nil {
		return nil, ErrNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.live(id, c.now())
	if !ok {
		return nil, ErrNotFound
	}
	return e.rec.clone(), nil
}

func (c *FallbackCache) Delete(_ context.Context, agentID, id string) error {
	b := c.bucket(agentID, false)
	if b == nil {
		return ErrNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live(id, c.now()); !ok {
		return ErrNotFound
	}
	delete(b.records, id)
	return nil
}

// UpdateImportance sets importance and merges metadata updates in place.
func (c *FallbackCache) UpdateImportance(_ context.Context, agentID, id string, importance float64, updates Metadata) (*Record, error) {
	b := c.bucket(agentID, false)
	if b == nil {
		return nil, ErrNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.live(id, c.now())
	if !ok {
		return nil, ErrNotFound
	}
	e.rec.Importance = importance
	e.rec.Metadata = e.rec.Metadata.Merge(updates)
	return e.rec.clone(), nil
}

// ListAll returns every record of the agent, newest insert first.
func (c *FallbackCache) ListAll(_ context.Context, agentID string) ([]Record, error) {
	entries := c.snapshot(agentID)
	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = *e.rec
	}
	return out, nil
}

// snapshot copies the bucket's live entries ordered by descending insertion
// and evicts the expired ones.
func (c *FallbackCache) snapshot(agentID string) []entry {
	b := c.bucket(agentID, false)
	if b == nil {
		return nil
	}
	now := c.now()
	b.mu.Lock()
	b.sweep(now)
	out := make([]entry, 0, len(b.records))
	for _, e := range b.records {
		out = append(out, entry{rec: e.rec.clone(), seq: e.seq})
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
	return out
}

// ListRecent returns records newest first after applying the query filters.
func (c *FallbackCache) ListRecent(_ context.Context, agentID string, q RecentQuery) ([]Record, error) {
	entries := c.snapshot(agentID)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].rec.CreatedAt > entries[j].rec.CreatedAt
	})

	out := []Record{}
	for _, e := range entries {
		if len(out) >= q.Limit {
			break
		}
		if q.matches(e.rec) {
			out = append(out, *e.rec)
		}
	}
	return out, nil
}

// ListImportant returns records by descending importance.
func (c *FallbackCache) ListImportant(ctx context.Context, agentID string, limit int) ([]Record, error) {
	all, _ := c.ListAll(ctx, agentID)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Importance > all[j].Importance
	})
	if limit < 0 {
		limit = 0
	}
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Clear drops the agent's bucket and reports how many live records it held.
func (c *FallbackCache) Clear(_ context.Context, agentID string) (int, error) {
	c.mu.Lock()
	b, ok := c.buckets[agentID]
	delete(c.buckets, agentID)
	c.mu.Unlock()
	if !ok {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweep(c.now())
	return len(b.records), nil
}
