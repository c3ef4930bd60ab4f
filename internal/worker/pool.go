package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aiox-platform/agentmemory/internal/metrics"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrPoolFull   = errors.New("worker pool queue is full")
)

// Task is a unit of blocking work run on a pool goroutine.
type Task func(ctx context.Context) error

type job struct {
	ctx    context.Context
	task   Task
	result chan error
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Workers   int
	Queued    int
	Active    int32
	Completed int64
	Failed    int64
	Rejected  int64
}

// Pool runs blocking tasks on a fixed number of goroutines fed by a bounded
// queue. Submissions beyond the queue capacity are rejected immediately.
type Pool struct {
	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
	size   int

	active    atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewPool starts workers goroutines reading from a queue of queueSize tasks.
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		queue: make(chan job, queueSize),
		size:  workers,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Do queues task and waits for it to finish or for ctx to be done.
// A task whose ctx expires while queued is skipped by the worker.
func (p *Pool) Do(ctx context.Context, task Task) error {
	result := make(chan error, 1)

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	select {
	case p.queue <- job{ctx: ctx, task: task, result: result}:
		metrics.WorkerPoolQueueDepth.Set(float64(len(p.queue)))
	default:
		p.mu.RUnlock()
		p.rejected.Add(1)
		return ErrPoolFull
	}
	p.mu.RUnlock()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for j := range p.queue {
		metrics.WorkerPoolQueueDepth.Set(float64(len(p.queue)))
		if err := j.ctx.Err(); err != nil {
			p.failed.Add(1)
			j.result <- err
			continue
		}

		p.active.Add(1)
		err := p.execute(j)
		p.active.Add(-1)

		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
		j.result <- err
	}
}

func (p *Pool) execute(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker task panic: %v", r)
		}
	}()
	return j.task(j.ctx)
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.size,
		Queued:    len(p.queue),
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Close stops accepting tasks and waits for queued ones to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
