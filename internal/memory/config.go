package memory

import (
	"time"

	"github.com/aiox-platform/agentmemory/internal/config"
)

// Options tunes the coordinator.
type Options struct {
	// Timeout bounds every call into a single tier.
	Timeout       time.Duration
	SummaryLimit  int
	SearchLimit   int
	MinSimilarity float64
	// RecallLimit is the per-source size used by Recall.
	RecallLimit int
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:       2 * time.Second,
		SummaryLimit:  10,
		SearchLimit:   5,
		MinSimilarity: 0.6,
		RecallLimit:   3,
	}
}

// OptionsFromConfig builds Options from the process config, keeping defaults
// for anything left unset.
func OptionsFromConfig(cfg config.MemoryConfig) Options {
	opts := DefaultOptions()
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	if cfg.SummaryLimit > 0 {
		opts.SummaryLimit = cfg.SummaryLimit
	}
	return opts
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.SummaryLimit <= 0 {
		o.SummaryLimit = d.SummaryLimit
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = d.SearchLimit
	}
	if o.MinSimilarity < 0 {
		o.MinSimilarity = d.MinSimilarity
	}
	if o.RecallLimit <= 0 {
		o.RecallLimit = d.RecallLimit
	}
	return o
}
