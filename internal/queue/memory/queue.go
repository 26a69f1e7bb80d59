// Package memory provides the in-process task queue that drives a crawl.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
)

// Queue is an unbounded FIFO of crawl tasks that knows when a crawl is over.
//
// pending counts tasks that are queued or dequeued but not yet marked Done.
// Workers enqueue follow-up tasks before calling Done on the task that
// produced them, so pending only reaches zero when no further work can appear.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []crawler.Task
	pending int
	closed  bool
}

// NewQueue constructs a new queue. capacity pre-sizes the backing slice; it is
// not a limit.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	q := &Queue{items: make([]crawler.Task, 0, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a task. It never blocks.
func (q *Queue) Enqueue(ctx context.Context, task crawler.Task) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return crawler.ErrQueueClosed
	}
	q.items = append(q.items, task)
	q.pending++
	q.cond.Signal()
	return nil
}

// Dequeue pops the oldest task. It blocks while the queue is empty but other
// tasks are still in flight, and returns crawler.ErrQueueDrained once the
// queue is empty and nothing is in flight.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Task, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return crawler.Task{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		if len(q.items) > 0 {
			task := q.items[0]
			q.items[0] = crawler.Task{}
			q.items = q.items[1:]
			return task, nil
		}
		if q.closed {
			return crawler.Task{}, crawler.ErrQueueClosed
		}
		if q.pending == 0 {
			return crawler.Task{}, crawler.ErrQueueDrained
		}
		q.cond.Wait()
	}
}

// Done marks one dequeued task as finished.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending > 0 {
		q.pending--
	}
	if q.pending == 0 {
		q.cond.Broadcast()
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns queued plus in-flight tasks.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Close wakes all waiters and rejects further work.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}
