package vectorindex

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aiox-platform/agentmemory/internal/metrics"
	"github.com/aiox-platform/agentmemory/internal/worker"
)

// Adapter isolates callers from a possibly slow or failing Index. An
// Adapter without an Index is valid: writes are no-ops and queries are empty.
type Adapter struct {
	index  Index
	pool   *worker.Pool
	opts   Options
	logger *zap.Logger
}

// NewAdapter wraps index, which may be nil.
func NewAdapter(index Index, opts Options, logger *zap.Logger) *Adapter {
	if opts.Dimension <= 0 {
		opts.Dimension = 768
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Adapter{
		index:  index,
		opts:   opts,
		logger: logger.With(zap.String("component", "vector_index")),
	}
	if index != nil {
		a.pool = worker.NewPool(opts.Workers, opts.QueueSize)
	}
	return a
}

// Enabled reports whether a backend is configured.
func (a *Adapter) Enabled() bool {
	return a != nil && a.index != nil
}

// Dimension is the length every stored vector is fitted to.
func (a *Adapter) Dimension() int {
	return a.opts.Dimension
}

func (a *Adapter) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := a.pool.Do(ctx, func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
		return fn(tctx)
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.VectorIndexCallsTotal.WithLabelValues(op, outcome).Inc()
	return err
}

// Upsert stores vector under id. A backend error gets one more attempt with
// reduced metadata before the error is returned for logging.
func (a *Adapter) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any, namespace string) error {
	if !a.Enabled() || len(vector) == 0 {
		return nil
	}
	vec := Fit(vector, a.opts.Dimension)
	meta := sanitizeMetadata(metadata)

	err := a.call(ctx, "upsert", func(ctx context.Context) error {
		return a.index.Upsert(ctx, namespace, []Point{{ID: id, Vector: vec, Metadata: meta}})
	})
	if err == nil || !retryable(ctx, err) {
		return err
	}

	a.logger.Warn("vector upsert failed, retrying with simplified metadata",
		zap.String("id", id), zap.String("namespace", namespace), zap.Error(err))
	simple := simplifyMetadata(meta)
	return a.call(ctx, "upsert_retry", func(ctx context.Context) error {
		return a.index.Upsert(ctx, namespace, []Point{{ID: id, Vector: vec, Metadata: simple}})
	})
}

// Query returns up to topK nearest neighbours. Unlike writes it reports
// backend errors, so the caller can switch to another search strategy.
func (a *Adapter) Query(ctx context.Context, vector []float32, namespace string, topK int) ([]Match, error) {
	if !a.Enabled() || len(vector) == 0 || topK <= 0 {
		return []Match{}, nil
	}
	vec := Fit(vector, a.opts.Dimension)

	var matches []Match
	err := a.call(ctx, "query", func(ctx context.Context) error {
		var err error
		matches, err = a.index.Query(ctx, namespace, vec, topK)
		return err
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (a *Adapter) UpdateMetadata(ctx context.Context, id, namespace string, fields map[string]any) error {
	if !a.Enabled() {
		return nil
	}
	meta := sanitizeMetadata(fields)
	return a.call(ctx, "update_metadata", func(ctx context.Context) error {
		return a.index.UpdateMetadata(ctx, namespace, id, meta)
	})
}

func (a *Adapter) Delete(ctx context.Context, id, namespace string) error {
	if !a.Enabled() {
		return nil
	}
	return a.call(ctx, "delete", func(ctx context.Context) error {
		return a.index.Delete(ctx, namespace, id)
	})
}

func (a *Adapter) DeleteNamespace(ctx context.Context, namespace string) error {
	if !a.Enabled() {
		return nil
	}
	return a.call(ctx, "delete_namespace", func(ctx context.Context) error {
		return a.index.DeleteNamespace(ctx, namespace)
	})
}

// Close drains queued calls and closes the backend.
func (a *Adapter) Close() error {
	if !a.Enabled() {
		return nil
	}
	a.pool.Close()
	return a.index.Close()
}

// retryable excludes failures a second attempt cannot fix.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, worker.ErrPoolFull) && !errors.Is(err, worker.ErrPoolClosed)
}
