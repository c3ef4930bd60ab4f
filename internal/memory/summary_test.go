package memory

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSummarize_NoMemories(t *testing.T) {
	h := setupService(t)
	got, err := h.svc.Summarize(context.Background(), "a1", 0)
	require.NoError(t, err)
	assert.Equal(t, emptySummary, got)
}

func TestSummarize_ListsByImportance(t *testing.T) {
	h := setupService(t)
	h.store(t, StoreRequest{AgentID: "a1", Content: "minor detail", Importance: 0.1})
	h.store(t, StoreRequest{AgentID: "a1", Content: "user is allergic to nuts", Importance: 0.95})

	got, err := h.svc.Summarize(context.Background(), "a1", 0)
	require.NoError(t, err)
	assert.Equal(t, "Memory 1: user is allergic to nuts\n\nMemory 2: minor detail", got)
}

func TestSummarize_TruncatesToTokens(t *testing.T) {
	h := setupService(t)
	h.store(t, StoreRequest{AgentID: "a1", Content: strings.Repeat("word ", 100), Importance: 0.5})

	got, err := h.svc.Summarize(context.Background(), "a1", 5)
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.True(t, strings.HasPrefix(got, "Memory 1: "))
}

func TestEstimateCounter_Truncate(t *testing.T) {
	var c EstimateCounter
	assert.Equal(t, "short", c.Truncate("short", 10))
	assert.Equal(t, "abcdefgh", c.Truncate("abcdefghijkl", 2))
	assert.Empty(t, c.Truncate("abc", 0))
	// "é" is two bytes; a cut at byte 4 would split the second one.
	assert.Equal(t, "aé", c.Truncate("aéé", 1))
}

func TestEstimateCounter_AlwaysValidUTF8(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		n := rapid.IntRange(0, 50).Draw(t, "tokens")

		got := EstimateCounter{}.Truncate(text, n)
		if !strings.HasPrefix(text, got) {
			t.Fatalf("%q is not a prefix of %q", got, text)
		}
		if len(got) > n*4 {
			t.Fatalf("len %d exceeds %d", len(got), n*4)
		}
		if utf8.ValidString(text) && !utf8.ValidString(got) {
			t.Fatalf("cut produced invalid UTF-8: %q", got)
		}
	})
}

func TestTrimPartialRune(t *testing.T) {
	euro := "€" // three bytes
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"ab" + euro[:1], "ab"},
		{"ab" + euro[:2], "ab"},
		{"ab" + euro, "ab" + euro},
		{"keep �", "keep �"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, trimPartialRune(tt.in), "%q", tt.in)
	}
}

func TestTrimPartialRune_AnyCutIsValidPrefix(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[a-zé€😀 ]{0,20}`).Draw(t, "text")
		cut := rapid.IntRange(0, len(text)).Draw(t, "cut")

		got := trimPartialRune(text[:cut])
		if !strings.HasPrefix(text, got) {
			t.Fatalf("%q is not a prefix of %q", got, text)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("invalid UTF-8 after trim: %q", got)
		}
		if cut-len(got) > 3 {
			t.Fatalf("dropped %d bytes, at most 3 belong to one rune", cut-len(got))
		}
	})
}
