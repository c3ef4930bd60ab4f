package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is a tier that holds full records. RedisStore is the primary
// implementation and FallbackCache the in-process one.
type Store interface {
	Put(ctx context.Context, rec *Record, ttl time.Duration) error
	Get(ctx context.Context, agentID, id string) (*Record, error)
	Delete(ctx context.Context, agentID, id string) error
	UpdateImportance(ctx context.Context, agentID, id string, importance float64, updates Metadata) (*Record, error)
	ListRecent(ctx context.Context, agentID string, q RecentQuery) ([]Record, error)
	ListImportant(ctx context.Context, agentID string, limit int) ([]Record, error)
	ListAll(ctx context.Context, agentID string) ([]Record, error)
	Clear(ctx context.Context, agentID string) (int, error)
}

const (
	minScanBatch = 10
	mgetChunk    = 500
)

// RedisStore keeps records as JSON strings plus two sorted-set indices per
// agent: one scored by created_at and one by importance.
type RedisStore struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewRedisStore creates a new Redis-backed record store.
func NewRedisStore(client redis.UniversalClient, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		logger: logger.With(zap.String("component", "memory_redis_store")),
	}
}

func recordKey(agentID, id string) string {
	return fmt.Sprintf("memory:%s:%s", agentID, id)
}

func recencyKey(agentID string) string {
	return fmt.Sprintf("memory_index:%s", agentID)
}

func importanceKey(agentID string) string {
	return fmt.Sprintf("memory_importance:%s", agentID)
}

// Put writes the record and both index entries in one transaction, then
// applies ttl to the record key. A failed EXPIRE is logged only.
func (s *RedisStore) Put(ctx context.Context, rec *Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling memory: %w", err)
	}

	key := recordKey(rec.AgentID, rec.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.ZAdd(ctx, recencyKey(rec.AgentID), redis.Z{Score: float64(rec.CreatedAt), Member: rec.ID})
		pipe.ZAdd(ctx, importanceKey(rec.AgentID), redis.Z{Score: rec.Importance, Member: rec.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing memory %s: %w", key, err)
	}

	if ttl > 0 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			s.logger.Warn("setting memory ttl failed", zap.String("key", key), zap.Duration("ttl", ttl), zap.Error(err))
		}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, agentID, id string) (*Record, error) {
	key := recordKey(agentID, id)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", key, err)
	}
	return &rec, nil
}

// Delete removes the record and its index entries. It reports ErrNotFound
// when the record key did not exist, after still pruning the indices.
func (s *RedisStore) Delete(ctx context.Context, agentID, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, recordKey(agentID, id))
		pipe.ZRem(ctx, recencyKey(agentID), id)
		pipe.ZRem(ctx, importanceKey(agentID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting memory %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateImportance rewrites the record keeping its remaining TTL.
func (s *RedisStore) UpdateImportance(ctx context.Context, agentID, id string, importance float64, updates Metadata) (*Record, error) {
	rec, err := s.Get(ctx, agentID, id)
	if err != nil {
		return nil, err
	}
	rec.Importance = importance
	rec.Metadata = rec.Metadata.Merge(updates)

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling memory: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetArgs(ctx, recordKey(agentID, id), data, redis.SetArgs{KeepTTL: true})
		pipe.ZAdd(ctx, importanceKey(agentID), redis.Z{Score: importance, Member: id})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating memory %s: %w", id, err)
	}
	return rec, nil
}

func (s *RedisStore) ListRecent(ctx context.Context, agentID string, q RecentQuery) ([]Record, error) {
	return s.scan(ctx, agentID, recencyKey(agentID), q.Limit, q.matches)
}

func (s *RedisStore) ListImportant(ctx context.Context, agentID string, limit int) ([]Record, error) {
	return s.scan(ctx, agentID, importanceKey(agentID), limit, nil)
}

// scan walks an index from highest score down in batches of twice the
// limit, so client-side filtering rarely needs a second round trip.
func (s *RedisStore) scan(ctx context.Context, agentID, index string, limit int, match func(*Record) bool) ([]Record, error) {
	out := []Record{}
	if limit <= 0 {
		return out, nil
	}
	batch := int64(max(limit*2, minScanBatch))

	for start := int64(0); ; {
		ids, err := s.client.ZRevRange(ctx, index, start, start+batch-1).Result()
		if err != nil {
			return nil, fmt.Errorf("zrevrange %s: %w", index, err)
		}
		if len(ids) == 0 {
			return out, nil
		}

		records, pruned, err := s.fetch(ctx, agentID, ids)
		if err != nil {
			return nil, err
		}
		for i := range records {
			if match != nil && !match(&records[i]) {
				continue
			}
			out = append(out, records[i])
			if len(out) >= limit {
				return out, nil
			}
		}
		if int64(len(ids)) < batch {
			return out, nil
		}
		// Pruned ids left the index, so later members moved up by that many.
		start += int64(len(ids) - pruned)
	}
}

// fetch loads records with MGET in index order. Ids whose record has
// expired are dropped from both indices; pruned is how many were removed.
func (s *RedisStore) fetch(ctx context.Context, agentID string, ids []string) (records []Record, pruned int, err error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(agentID, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("mget memories: %w", err)
	}

	records = make([]Record, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.Warn("skipping undecodable memory", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	if len(stale) > 0 {
		_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, recencyKey(agentID), stale...)
			pipe.ZRem(ctx, importanceKey(agentID), stale...)
			return nil
		})
		if err != nil {
			s.logger.Debug("pruning expired index entries failed", zap.String("agent_id", agentID), zap.Error(err))
		} else {
			pruned = len(stale)
		}
	}
	return records, pruned, nil
}

// ListAll returns every live record of the agent, newest first.
func (s *RedisStore) ListAll(ctx context.Context, agentID string) ([]Record, error) {
	ids, err := s.client.ZRevRange(ctx, recencyKey(agentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", recencyKey(agentID), err)
	}

	out := make([]Record, 0, len(ids))
	for start := 0; start < len(ids); start += mgetChunk {
		end := min(start+mgetChunk, len(ids))
		records, _, err := s.fetch(ctx, agentID, ids[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// Clear deletes every record listed in either index plus the indices.
func (s *RedisStore) Clear(ctx context.Context, agentID string) (int, error) {
	recent, err := s.client.ZRange(ctx, recencyKey(agentID), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("zrange %s: %w", recencyKey(agentID), err)
	}
	important, err := s.client.ZRange(ctx, importanceKey(agentID), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("zrange %s: %w", importanceKey(agentID), err)
	}

	seen := make(map[string]struct{}, len(recent))
	keys := make([]string, 0, len(recent))
	for _, id := range append(recent, important...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, recordKey(agentID, id))
	}

	var deleted int64
	for start := 0; start < len(keys); start += mgetChunk {
		end := min(start+mgetChunk, len(keys))
		n, err := s.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return int(deleted), fmt.Errorf("deleting memories: %w", err)
		}
		deleted += n
	}
	if err := s.client.Del(ctx, recencyKey(agentID), importanceKey(agentID)).Err(); err != nil {
		return int(deleted), fmt.Errorf("deleting memory indices: %w", err)
	}
	return int(deleted), nil
}
