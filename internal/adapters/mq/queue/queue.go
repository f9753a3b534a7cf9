// Package queue is the bounded hand-off between replay intake and the
// verification workers.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Job is the payload flowing through the queue.
type Job = replay.Submission

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job without blocking. It fails with ErrFull when the
	// queue is at capacity and ErrClosed after Close.
	Enqueue(ctx context.Context, j Job) error
	// Dequeue returns a channel that receives jobs as they become available.
	// The channel is closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Job
	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int
	// Close stops intake. Queued jobs are still delivered.
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return fmt.Errorf("%d jobs queued: %w", q.capacity, ErrFull)
	}
}

// Dequeue returns a channel that receives jobs as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for j := range q.jobs {
			select {
			case out <- j:
				metrics.RecordQueueDequeue()
				q.observe()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	q.observe()
	return len(q.jobs)
}

func (q *InMemoryQueue) observe() {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close stops intake and lets consumers drain what is queued.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
