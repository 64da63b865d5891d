// Package queue holds pending rescore jobs between producers and workers.
package queue

import (
	"context"
	"sync"

	model "github.com/okian/readq/internal/domain/model"
	"github.com/okian/readq/pkg/metrics"
)

const defaultCapacity = 1024

// Job is the payload flowing through the queue.
type Job = model.RescoreJob

// Queue is a bounded FIFO of jobs.
type Queue interface {
	// Enqueue adds a job without blocking. It fails with ErrFull or ErrClosed.
	Enqueue(ctx context.Context, j Job) error
	// Dequeue blocks until a job is available. Once the queue is closed and
	// drained it returns ErrClosed.
	Dequeue(ctx context.Context) (Job, error)
	// Len returns the number of waiting jobs.
	Len() int
	// Close stops accepting jobs. Waiting jobs can still be dequeued.
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	q.publishSize()
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		return err
	}
	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		q.publishSize()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "full")
		return ErrFull
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case j, ok := <-q.jobs:
		if !ok {
			return Job{}, ErrClosed
		}
		metrics.RecordQueueDequeue()
		q.publishSize()
		return j, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Len implements Queue.
func (q *InMemoryQueue) Len() int {
	return len(q.jobs)
}

// Close implements Queue.
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

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) publishSize() {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
