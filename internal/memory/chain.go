package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aiox-platform/agentmemory/internal/metrics"
)

var errNoTiers = errors.New("no storage tier available")

const (
	tierRedis    = "redis"
	tierFallback = "fallback"
	tierSemantic = "semantic"
	tierKeyword  = "keyword"
	tierVector   = "vector"
)

// tier is one step of a fallback chain. A nil run marks the tier as absent.
type tier[T any] struct {
	name string
	run  func(ctx context.Context) (T, error)
}

// chain describes how an operation walks its tiers.
type chain struct {
	op string
	// timeout bounds each tier; zero leaves the caller's deadline alone.
	timeout time.Duration
	logger  *zap.Logger
	// stop reports errors that end the chain instead of falling through.
	stop func(error) bool
}

func runTier[T any](ctx context.Context, c chain, t tier[T]) (T, error) {
	tctx, cancel := ctx, context.CancelFunc(func() {})
	if c.timeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	v, err := t.run(tctx)
	cancel()

	switch {
	case err == nil:
		metrics.MemoryOperationsTotal.WithLabelValues(c.op, t.name, "ok").Inc()
	case errors.Is(err, ErrNotFound):
		metrics.MemoryOperationsTotal.WithLabelValues(c.op, t.name, "not_found").Inc()
	default:
		metrics.MemoryOperationsTotal.WithLabelValues(c.op, t.name, "error").Inc()
	}
	return v, err
}

// firstSuccess runs tiers in order and returns the first result without
// error together with the tier that produced it. When every tier fails the
// errors are joined, so errors.Is still finds ErrNotFound.
func firstSuccess[T any](ctx context.Context, c chain, tiers ...tier[T]) (T, string, error) {
	var zero T
	var errs []error

	for i, t := range tiers {
		if t.run == nil {
			continue
		}

		v, err := runTier(ctx, c, t)
		if err == nil {
			return v, t.name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", t.name, err))

		if c.stop != nil && c.stop(err) {
			return zero, t.name, errors.Join(errs...)
		}
		if i < len(tiers)-1 {
			metrics.MemoryFallbacksTotal.WithLabelValues(c.op, t.name).Inc()
			if !errors.Is(err, ErrNotFound) && c.logger != nil {
				c.logger.Warn("memory tier failed, falling back",
					zap.String("op", c.op), zap.String("tier", t.name), zap.Error(err))
			}
		}
	}

	if len(errs) == 0 {
		return zero, "", errNoTiers
	}
	return zero, "", errors.Join(errs...)
}

// outcome is the result of one tier in everyTier.
type outcome[T any] struct {
	tier  string
	value T
	err   error
}

// everyTier runs all present tiers in order, whatever the earlier ones
// returned. Failures other than ErrNotFound are logged.
func everyTier[T any](ctx context.Context, c chain, tiers ...tier[T]) []outcome[T] {
	out := make([]outcome[T], 0, len(tiers))
	for _, t := range tiers {
		if t.run == nil {
			continue
		}
		v, err := runTier(ctx, c, t)
		if err != nil && !errors.Is(err, ErrNotFound) && c.logger != nil {
			c.logger.Warn("memory tier failed",
				zap.String("op", c.op), zap.String("tier", t.name), zap.Error(err))
		}
		out = append(out, outcome[T]{tier: t.name, value: v, err: err})
	}
	return out
}

// stopOnNotFound ends a chain when a tier authoritatively reports a miss.
func stopOnNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
