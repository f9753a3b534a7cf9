// Package worker runs the pool that verifies queued replay submissions.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/ovation/internal/adapters/mq/queue"
	"github.com/okian/ovation/pkg/clock"
	"github.com/okian/ovation/pkg/logger"
	"github.com/okian/ovation/pkg/metrics"
)

const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Job abstracts what workers read off the queue.
type Job = queue.Job

// Processor handles one job. Errors are logged and counted; the worker
// moves on to the next job.
type Processor interface {
	Process(ctx context.Context, j Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, j Job) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, j Job) error { return f(ctx, j) } //nolint:gocritic // hugeParam

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)
	// Shutdown stops the worker after the job in hand.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker over a Queue.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string
	clock     clock.Clock
	processed *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		name:      "worker",
		clock:     clock.Real(),
		processed: new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.GetOrNop().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j Job) { //nolint:gocritic // hugeParam
	start := w.clock.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(w.clock.Now().Sub(start).Microseconds()) / 1000)
	}()

	w.processed.Add(1)
	if err := w.processor.Process(ctx, j); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "process_error")
		w.logger.Error(ctx, "job failed",
			logger.String("submission_id", j.ID),
			logger.Error(err),
		)
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	processed *atomic.Int64
	clock     clock.Clock

	shutdown chan struct{}
	logger   logger.Logger
}

// NewPool creates a pool of workerCount workers; zero or less means one
// per CPU.
func NewPool(workerCount int, q Queue, p Processor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers:   make([]*InMemoryWorker, workerCount),
		queue:     q,
		processed: new(atomic.Int64),
		clock:     clock.Real(),
		shutdown:  make(chan struct{}),
		logger:    logger.GetOrNop().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, p, wopts...)
		w.processed = pool.processed
		pool.workers[i] = w
		pool.clock = w.clock
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of jobs taken so far.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.runMetrics(ctx)
}

func (p *Pool) runMetrics(ctx context.Context) {
	ticker := p.clock.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	last := p.clock.Now()
	var lastCount int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case now := <-ticker.Chan():
			count := p.processed.Load()
			if secs := now.Sub(last).Seconds(); secs > 0 {
				metrics.UpdateWorkerMessagesPerSecond(float64(count-lastCount) / secs)
			}
			last, lastCount = now, count
		}
	}
}

// Shutdown closes the queue when it can be closed, lets the workers drain
// it and waits for them until ctx or the pool timeout ends.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	select {
	case <-p.shutdown:
		return nil
	default:
		close(p.shutdown)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut > 0 {
		return fmt.Errorf("%d workers still running: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
