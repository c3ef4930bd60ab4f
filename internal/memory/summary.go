package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const emptySummary = "No significant memories available for this agent."

// TokenCounter bounds text by token count.
type TokenCounter interface {
	// Truncate returns the longest prefix of text within maxTokens tokens.
	Truncate(text string, maxTokens int) string
}

// TiktokenCounter counts cl100k_base tokens. The encoding is loaded on first
// use; if it cannot be loaded the counter falls back to EstimateCounter.
type TiktokenCounter struct {
	encoding string
	logger   *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

func NewTiktokenCounter(logger *zap.Logger) *TiktokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TiktokenCounter{encoding: "cl100k_base", logger: logger}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			t.logger.Warn("token encoding unavailable, estimating by length", zap.Error(t.initErr))
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenCounter) Truncate(text string, maxTokens int) string {
	if err := t.init(); err != nil {
		return EstimateCounter{}.Truncate(text, maxTokens)
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	// Byte-level tokens can end inside a multi-byte rune.
	return trimPartialRune(t.enc.Decode(tokens[:max(maxTokens, 0)]))
}

// trimPartialRune drops the bytes of an incomplete rune at the end of s.
func trimPartialRune(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

// EstimateCounter assumes four bytes per token.
type EstimateCounter struct{}

func (EstimateCounter) Truncate(text string, maxTokens int) string {
	limit := max(maxTokens, 0) * 4
	if len(text) <= limit {
		return text
	}
	// Back off to a rune boundary.
	for limit > 0 && text[limit]&0xC0 == 0x80 {
		limit--
	}
	return text[:limit]
}

// Summarize renders the agent's most important memories as numbered
// paragraphs, cut to maxTokens when maxTokens is positive.
func (s *Service) Summarize(ctx context.Context, agentID string, maxTokens int) (string, error) {
	ctx, span := tracer.Start(ctx, "memory.summarize",
		trace.WithAttributes(attribute.String("agent_id", agentID)))
	defer span.End()

	records, err := s.RetrieveImportant(ctx, agentID, s.opts.SummaryLimit)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return emptySummary, nil
	}

	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = fmt.Sprintf("Memory %d: %s", i+1, r.Content)
	}
	summary := strings.Join(parts, "\n\n")

	if maxTokens > 0 {
		summary = s.tokens.Truncate(summary, maxTokens)
	}
	return summary, nil
}
