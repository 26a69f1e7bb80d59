// Package dispatcher fans queue work out to a pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
	"github.com/SkippTopp/reddit-scripts/internal/worker"
)

// Dispatcher runs a fixed set of workers, normally sharing one queue.
type Dispatcher struct {
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// Spawn builds a Dispatcher with n workers sharing handler. n below 1 is
// treated as 1.
func Spawn(queue crawler.Queue, handler crawler.TaskHandler, n int, logger *zap.Logger) *Dispatcher {
	if n < 1 {
		n = 1
	}
	workers := make([]*worker.Worker, 0, n)
	for i := range n {
		workers = append(workers, worker.New(i+1, queue, handler, logger))
	}
	return New(workers)
}

// Size reports the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts all workers and blocks until every one has exited, either
// because the queue drained or ctx was canceled. It returns the first
// non-drain error.
func (d *Dispatcher) Run(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			if err := wk.Run(ctx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	if firstErr != nil && !errors.Is(firstErr, crawler.ErrQueueDrained) {
		return firstErr
	}
	return nil
}
