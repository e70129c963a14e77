// Package memory provides the in-process job queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

// ErrClosed is returned by Enqueue after Close, and by Dequeue once the
// queue is closed and drained.
var ErrClosed = jobs.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch        chan *jobs.Job
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan *jobs.Job, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a job into the queue, blocking while it is full.
func (q *Queue) Enqueue(ctx context.Context, job *jobs.Job) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (*jobs.Job, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job := <-q.ch:
		return job, nil
	case <-q.done:
		select {
		case job := <-q.ch:
			return job, nil
		default:
			return nil, ErrClosed
		}
	}
}

// Len reports the number of queued jobs.
func (q *Queue) Len() int { return len(q.ch) }

// Close stops accepting jobs. Already queued jobs can still be dequeued.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
