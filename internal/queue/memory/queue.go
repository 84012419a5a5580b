// Package memory provides the in-process intake queue for acquisition jobs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

// Queue is a bounded in-memory queue with context-aware operations. Each item
// is received by exactly one Dequeue call.
type Queue struct {
	ch        chan cnr.QueueItem
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan cnr.QueueItem, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item cnr.QueueItem) error {
	select {
	case <-q.done:
		return cnr.ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return cnr.ErrQueueClosed
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation. Buffered items
// are still handed out after Close.
func (q *Queue) Dequeue(ctx context.Context) (cnr.QueueItem, error) {
	select {
	case item := <-q.ch:
		return item, nil
	default:
	}
	select {
	case <-ctx.Done():
		return cnr.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item := <-q.ch:
		return item, nil
	case <-q.done:
		return cnr.QueueItem{}, cnr.ErrQueueClosed
	}
}

// Len reports how many items are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops intake. Items already queued can still be dequeued.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
