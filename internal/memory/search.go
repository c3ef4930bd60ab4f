package memory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aiox-platform/agentmemory/internal/vectorindex"
)

// Search finds memories relevant to q.Query. Semantic search is used when
// requested and a vector index is configured; if it fails, or is not used,
// a case-insensitive substring scan runs instead. Failures are never
// returned: exhausting every tier yields an empty result.
func (s *Service) Search(ctx context.Context, agentID string, q SearchQuery) ([]SearchResult, error) {
	if err := ValidateAgentID(agentID); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = s.opts.SearchLimit
	}
	ctx, span := tracer.Start(ctx, "memory.search",
		trace.WithAttributes(
			attribute.String("agent_id", agentID),
			attribute.Int("limit", q.Limit),
			attribute.Bool("semantic", q.Semantic),
		))
	defer span.End()

	semantic := tier[[]SearchResult]{name: tierSemantic}
	if q.Semantic && s.vectorsEnabled() && s.embedder != nil && q.Query != "" {
		semantic.run = func(ctx context.Context) ([]SearchResult, error) {
			return s.semanticSearch(ctx, agentID, q)
		}
	}
	keyword := tier[[]SearchResult]{name: tierKeyword, run: func(ctx context.Context) ([]SearchResult, error) {
		return s.keywordSearch(ctx, agentID, q)
	}}

	// Each step bounds its own calls, so the chain itself adds no timeout.
	results, from, err := firstSuccess(ctx, chain{op: "search", logger: s.logger}, semantic, keyword)
	if err != nil {
		return []SearchResult{}, nil
	}
	span.SetAttributes(attribute.String("memory.tier", from), attribute.Int("results", len(results)))
	return results, nil
}

func (s *Service) semanticSearch(ctx context.Context, agentID string, q SearchQuery) ([]SearchResult, error) {
	vec := s.embedder.GetOrCreate(ctx, q.Query)
	if len(vec) == 0 {
		return nil, errors.New("query produced no embedding")
	}
	matches, err := s.vectors.Query(ctx, vec, agentID, q.Limit)
	if err != nil {
		return nil, err
	}

	kept := make([]vectorindex.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= q.MinSimilarity {
			kept = append(kept, m)
		}
	}

	results := make([]SearchResult, len(kept))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range kept {
		g.Go(func() error {
			results[i] = SearchResult{
				Record:     s.hydrate(gctx, agentID, m),
				Similarity: m.Score,
				Source:     SourceSemantic,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// hydrate loads the full record behind a match, or rebuilds what it can
// from the match metadata when neither store has it.
func (s *Service) hydrate(ctx context.Context, agentID string, m vectorindex.Match) Record {
	get := func(ctx context.Context, st Store) (*Record, error) {
		return st.Get(ctx, agentID, m.ID)
	}
	metadata := tier[*Record]{name: "metadata", run: func(context.Context) (*Record, error) {
		return recordFromMatch(agentID, m), nil
	}}
	rec, _, err := firstSuccess(ctx, s.chain("hydrate", nil), primaryTier(s, get), fallbackTier(s, get), metadata)
	if err != nil {
		return *recordFromMatch(agentID, m)
	}
	return *rec
}

func recordFromMatch(agentID string, m vectorindex.Match) *Record {
	meta := Metadata(m.Metadata).Clone()
	rec := &Record{
		ID:         m.ID,
		AgentID:    agentID,
		Type:       "unknown",
		Metadata:   meta,
		Importance: 0.5,
	}
	if content, ok := meta["content"].(string); ok {
		rec.Content = content
	} else if summary, ok := meta["content_summary"].(string); ok {
		rec.Content = summary
	}
	if t, ok := meta["type"].(string); ok && t != "" {
		rec.Type = t
	}
	if v, ok := toFloat(meta["importance"]); ok {
		rec.Importance = v
	}
	if v, ok := toFloat(meta["created_at"]); ok {
		rec.CreatedAt = int64(v)
	}
	if u, ok := meta["user_id"].(string); ok {
		rec.UserID = u
	}
	return rec
}

func (s *Service) keywordSearch(ctx context.Context, agentID string, q SearchQuery) ([]SearchResult, error) {
	all := func(ctx context.Context, st Store) ([]Record, error) {
		return st.ListAll(ctx, agentID)
	}
	records, _, err := firstSuccess(ctx, s.chain("search_scan", nil), primaryTier(s, all), fallbackTier(s, all))
	if err != nil {
		return nil, err
	}
	return rankByKeyword(records, q.Query, q.Limit), nil
}

// rankByKeyword keeps records whose content contains query, ignoring case,
// ordered by importance and then recency.
func rankByKeyword(records []Record, query string, limit int) []SearchResult {
	needle := strings.ToLower(query)
	results := make([]SearchResult, 0, len(records))
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Content), needle) {
			results = append(results, SearchResult{Record: r, Source: SourceKeyword})
		}
	}

	slices.SortStableFunc(results, func(a, b SearchResult) int {
		if c := cmp.Compare(b.Importance, a.Importance); c != 0 {
			return c
		}
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
