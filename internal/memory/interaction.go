package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	interactionImportance = 0.7
	flaggedImportance     = 0.9
	positiveImportance    = 0.8
)

var (
	flagKeywords     = []string{"important", "critical", "urgent", "remember"}
	positiveKeywords = []string{"thanks", "thank you", "helpful", "great"}
)

// Interaction is one exchange between a user and an agent.
type Interaction struct {
	UserInput     string `json:"user_input"`
	AgentResponse string `json:"agent_response"`
	Context       string `json:"context"`
}

// RecordInteraction stores an exchange as an interaction memory, scoring it
// higher when the user flags it or reacts positively.
func (s *Service) RecordInteraction(ctx context.Context, agentID, userID string, in Interaction) (string, error) {
	content, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encoding interaction: %w", err)
	}

	importance, meta := scoreInteraction(in.UserInput)
	if userID != "" {
		meta["user_id"] = userID
	}
	return s.Store(ctx, StoreRequest{
		AgentID:    agentID,
		Content:    string(content),
		Type:       TypeInteraction,
		Metadata:   meta,
		Importance: importance,
		UserID:     userID,
	})
}

func scoreInteraction(userInput string) (float64, Metadata) {
	lower := strings.ToLower(userInput)
	meta := Metadata{}
	switch {
	case containsAny(lower, flagKeywords):
		meta["important"] = true
		return flaggedImportance, meta
	case containsAny(lower, positiveKeywords):
		meta["feedback"] = "positive"
		return positiveImportance, meta
	}
	return interactionImportance, meta
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Recall gathers what an agent should have in mind for query: its most
// recent and most important memories, then search hits not already seen.
func (s *Service) Recall(ctx context.Context, agentID, query string) ([]Record, error) {
	if err := ValidateAgentID(agentID); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "memory.recall",
		trace.WithAttributes(attribute.String("agent_id", agentID)))
	defer span.End()

	n := s.opts.RecallLimit
	recent, err := s.RetrieveRecent(ctx, agentID, RecentQuery{Limit: n})
	if err != nil {
		return nil, err
	}
	important, err := s.RetrieveImportant(ctx, agentID, n)
	if err != nil {
		return nil, err
	}
	merged := MergeUnique(recent, important)

	if query != "" {
		hits, err := s.Search(ctx, agentID, SearchQuery{
			Query:         query,
			Limit:         n,
			MinSimilarity: s.opts.MinSimilarity,
			Semantic:      true,
		})
		if err != nil {
			return nil, err
		}
		found := make([]Record, len(hits))
		for i, h := range hits {
			found[i] = h.Record
		}
		merged = MergeUnique(merged, found)
	}

	span.SetAttributes(attribute.Int("results", len(merged)))
	return merged, nil
}
