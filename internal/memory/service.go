package memory

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	inats "github.com/aiox-platform/agentmemory/internal/nats"
	"github.com/aiox-platform/agentmemory/internal/vectorindex"
)

var tracer = otel.Tracer("github.com/aiox-platform/agentmemory/internal/memory")

const defaultListLimit = 10

// Embedder turns text into a vector. It never fails; empty text yields nil.
type Embedder interface {
	GetOrCreate(ctx context.Context, text string) []float32
}

// VectorIndex is the similarity index the coordinator mirrors records into.
type VectorIndex interface {
	Enabled() bool
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any, namespace string) error
	Query(ctx context.Context, vector []float32, namespace string, topK int) ([]vectorindex.Match, error)
	UpdateMetadata(ctx context.Context, id, namespace string, fields map[string]any) error
	Delete(ctx context.Context, id, namespace string) error
	DeleteNamespace(ctx context.Context, namespace string) error
	Close() error
}

// EventPublisher receives memory lifecycle events.
type EventPublisher interface {
	PublishMemoryEvent(ctx context.Context, event inats.MemoryEvent) error
}

// Deps are the collaborators of a Service. Only Fallback is always present;
// NewService creates one when it is nil.
type Deps struct {
	Primary  Store
	Fallback *FallbackCache
	Embedder Embedder
	Vectors  VectorIndex
	Events   EventPublisher
	Tokens   TokenCounter
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service coordinates the memory tiers. Reads go to the primary store first
// and fall back to the in-process cache; writes land in both, and the vector
// index is kept in step on a best-effort basis.
type Service struct {
	primary  Store
	fallback *FallbackCache
	embedder Embedder
	vectors  VectorIndex
	events   EventPublisher
	tokens   TokenCounter
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a coordinator from deps.
func NewService(deps Deps, opts Options) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Fallback == nil {
		deps.Fallback = NewFallbackCacheWithClock(deps.Now)
	}
	if deps.Tokens == nil {
		deps.Tokens = EstimateCounter{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		primary:  deps.Primary,
		fallback: deps.Fallback,
		embedder: deps.Embedder,
		vectors:  deps.Vectors,
		events:   deps.Events,
		tokens:   deps.Tokens,
		opts:     opts.withDefaults(),
		logger:   deps.Logger.With(zap.String("component", "memory")),
		now:      deps.Now,
	}
}

func (s *Service) chain(op string, stop func(error) bool) chain {
	return chain{op: op, timeout: s.opts.Timeout, logger: s.logger, stop: stop}
}

func primaryTier[T any](s *Service, run func(context.Context, Store) (T, error)) tier[T] {
	t := tier[T]{name: tierRedis}
	if s.primary != nil {
		t.run = func(ctx context.Context) (T, error) { return run(ctx, s.primary) }
	}
	return t
}

func fallbackTier[T any](s *Service, run func(context.Context, Store) (T, error)) tier[T] {
	return tier[T]{name: tierFallback, run: func(ctx context.Context) (T, error) { return run(ctx, s.fallback) }}
}

func (s *Service) vectorsEnabled() bool {
	return s.vectors != nil && s.vectors.Enabled()
}

// Store records a memory and returns its id. Storage failures are absorbed
// by the fallback cache, so the only error is an invalid agent id.
func (s *Service) Store(ctx context.Context, req StoreRequest) (string, error) {
	if err := ValidateAgentID(req.AgentID); err != nil {
		return "", err
	}
	ctx, span := tracer.Start(ctx, "memory.store",
		trace.WithAttributes(attribute.String("agent_id", req.AgentID)))
	defer span.End()

	rec := &Record{
		ID:         NewID(),
		AgentID:    req.AgentID,
		Content:    req.Content,
		Type:       req.Type,
		Metadata:   req.Metadata.Clone(),
		Importance: ClampImportance(req.Importance),
		CreatedAt:  s.now().Unix(),
		UserID:     req.UserID,
	}
	if rec.Type == "" {
		rec.Type = TypeInteraction
	}
	if rec.Metadata == nil {
		rec.Metadata = Metadata{}
	}
	if s.embedder != nil {
		rec.Embedding = s.embedder.GetOrCreate(ctx, rec.Content)
	}

	ttl := RetentionTTL(rec.Importance)
	if req.ExpiresIn > 0 {
		ttl = time.Duration(req.ExpiresIn) * time.Second
	}

	put := func(ctx context.Context, st Store) (struct{}, error) {
		return struct{}{}, st.Put(ctx, rec, ttl)
	}
	_, from, err := firstSuccess(ctx, s.chain("store", nil), primaryTier(s, put), fallbackTier(s, put))
	if err != nil {
		// The fallback cache does not fail; keep the id contract regardless.
		s.logger.Error("storing memory failed on every tier", zap.String("agent_id", rec.AgentID), zap.Error(err))
	}
	if from == tierRedis {
		s.indexVector(ctx, rec)
		if err := s.fallback.Put(ctx, rec, ttl); err != nil {
			s.logger.Warn("mirroring memory into fallback cache failed", zap.Error(err))
		}
	}

	span.SetAttributes(attribute.String("memory.id", rec.ID), attribute.String("memory.tier", from))
	s.publish(ctx, inats.MemoryEvent{
		Kind:       inats.EventStored,
		AgentID:    rec.AgentID,
		MemoryID:   rec.ID,
		Type:       rec.Type,
		Importance: rec.Importance,
	})
	return rec.ID, nil
}

func (s *Service) indexVector(ctx context.Context, rec *Record) {
	if !s.vectorsEnabled() || len(rec.Embedding) == 0 {
		return
	}
	meta := map[string]any{
		"agent_id":   rec.AgentID,
		"content":    rec.Content,
		"type":       rec.Type,
		"importance": rec.Importance,
		"created_at": rec.CreatedAt,
		"user_id":    rec.UserID,
	}
	_, err := runTier(ctx, chain{op: "store"}, tier[struct{}]{name: tierVector, run: func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.vectors.Upsert(ctx, rec.ID, rec.Embedding, meta, rec.AgentID)
	}})
	if err != nil {
		s.logger.Warn("indexing memory vector failed",
			zap.String("agent_id", rec.AgentID), zap.String("id", rec.ID), zap.Error(err))
	}
}

// Get returns one memory, or ErrNotFound when no tier has it.
func (s *Service) Get(ctx context.Context, agentID, id string) (*Record, error) {
	if err := ValidateAgentID(agentID); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "memory.get",
		trace.WithAttributes(attribute.String("agent_id", agentID), attribute.String("memory.id", id)))
	defer span.End()

	get := func(ctx context.Context, st Store) (*Record, error) {
		return st.Get(ctx, agentID, id)
	}
	rec, _, err := firstSuccess(ctx, s.chain("get", nil), primaryTier(s, get), fallbackTier(s, get))
	if err != nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// RetrieveRecent lists the agent's memories newest first.
func (s *Service) RetrieveRecent(ctx context.Context, agentID string, q RecentQuery) ([]Record, error) {
	if err := ValidateAgentID(agentID); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	ctx, span := tracer.Start(ctx, "memory.retrieve_recent",
		trace.WithAttributes(attribute.String("agent_id", agentID), attribute.Int("limit", q.Limit)))
	defer span.End()

	list := func(ctx context.Context, st Store) ([]Record, error) {
		return st.ListRecent(ctx, agentID, q)
	}
	records, _, err := firstSuccess(ctx, s.chain("retrieve_recent", nil), primaryTier(s, list), fallbackTier(s, list))
	if err != nil {
		return []Record{}, nil
	}
	return records, nil
}

// RetrieveImportant lists the agent's memories by descending importance.
func (s *Service) RetrieveImportant(ctx context.Context, agentID string, limit int) ([]Record, error) {
	if err := ValidateAgentID(agentID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	ctx, span := tracer.Start(ctx, "memory.retrieve_important",
		trace.WithAttributes(attribute.String("agent_id", agentID), attribute.Int("limit", limit)))
	defer span.End()

	list := func(ctx context.Context, st Store) ([]Record, error) {
		return st.ListImportant(ctx, agentID, limit)
	}
	records, _, err := firstSuccess(ctx, s.chain("retrieve_important", nil), primaryTier(s, list), fallbackTier(s, list))
	if err != nil {
		return []Record{}, nil
	}
	return records, nil
}

// UpdateImportance re-scores a memory and merges metadata into it. A miss
// in the primary store is final; an unreachable primary store leaves the
// update to the fallback copy.
func (s *Service) UpdateImportance(ctx context.Context, agentID, id string, importance float64, updates Metadata) error {
	if err := ValidateAgentID(agentID); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "memory.update_importance",
		trace.WithAttributes(attribute.String("agent_id", agentID), attribute.String("memory.id", id)))
	defer span.End()

	importance = ClampImportance(importance)
	update := func(ctx context.Context, st Store) (*Record, error) {
		return st.UpdateImportance(ctx, agentID, id, importance, updates)
	}
	rec, from, err := firstSuccess(ctx, s.chain("update_importance", stopOnNotFound), primaryTier(s, update), fallbackTier(s, update))
	if err != nil {
		return ErrNotFound
	}

	if from == tierRedis {
		if s.vectorsEnabled() {
			fields := map[string]any{"importance": importance}
			for k, v := range updates {
				fields[k] = v
			}
			_, verr := runTier(ctx, chain{op: "update_importance"}, tier[struct{}]{name: tierVector, run: func(ctx context.Context) (struct{}, error) {
				return struct{}{}, s.vectors.UpdateMetadata(ctx, id, agentID, fields)
			}})
			if verr != nil {
				s.logger.Warn("updating vector metadata failed", zap.String("id", id), zap.Error(verr))
			}
		}
		if err := s.fallback.Put(ctx, rec, 0); err != nil {
			s.logger.Warn("mirroring memory into fallback cache failed", zap.Error(err))
		}
	}
	return nil
}

// Delete removes a memory from every tier. It reports ErrNotFound only when
// neither store held the record.
func (s *Service) Delete(ctx context.Context, agentID, id string) error {
	if err := ValidateAgentID(agentID); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "memory.delete",
		trace.WithAttributes(attribute.String("agent_id", agentID), attribute.String("memory.id", id)))
	defer span.End()

	del := func(ctx context.Context, st Store) (struct{}, error) {
		return struct{}{}, st.Delete(ctx, agentID, id)
	}
	vector := tier[struct{}]{name: tierVector}
	if s.vectorsEnabled() {
		vector.run = func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.vectors.Delete(ctx, id, agentID)
		}
	}

	found := false
	for _, o := range everyTier(ctx, s.chain("delete", nil), primaryTier(s, del), vector, fallbackTier(s, del)) {
		if o.tier != tierVector && o.err == nil {
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}

	s.publish(ctx, inats.MemoryEvent{Kind: inats.EventDeleted, AgentID: agentID, MemoryID: id})
	return nil
}

// Clear removes every memory of the agent and returns how many records the
// fullest store held.
func (s *Service) Clear(ctx context.Context, agentID string) (int, error) {
	if err := ValidateAgentID(agentID); err != nil {
		return 0, err
	}
	ctx, span := tracer.Start(ctx, "memory.clear",
		trace.WithAttributes(attribute.String("agent_id", agentID)))
	defer span.End()

	wipe := func(ctx context.Context, st Store) (int, error) {
		return st.Clear(ctx, agentID)
	}
	vector := tier[int]{name: tierVector}
	if s.vectorsEnabled() {
		vector.run = func(ctx context.Context) (int, error) {
			return 0, s.vectors.DeleteNamespace(ctx, agentID)
		}
	}

	count := 0
	for _, o := range everyTier(ctx, s.chain("clear", nil), primaryTier(s, wipe), vector, fallbackTier(s, wipe)) {
		if o.err == nil {
			count = max(count, o.value)
		}
	}

	span.SetAttributes(attribute.Int("memory.count", count))
	s.publish(ctx, inats.MemoryEvent{Kind: inats.EventCleared, AgentID: agentID, Count: count})
	return count, nil
}

func (s *Service) publish(ctx context.Context, event inats.MemoryEvent) {
	if s.events == nil {
		return
	}
	event.Timestamp = s.now().UTC()
	pctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if err := s.events.PublishMemoryEvent(pctx, event); err != nil {
		s.logger.Warn("publishing memory event failed",
			zap.String("event", event.Kind), zap.String("agent_id", event.AgentID), zap.Error(err))
	}
}

// Close releases the vector index and its worker pool.
func (s *Service) Close() error {
	var errs []error
	if s.vectors != nil {
		if err := s.vectors.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
