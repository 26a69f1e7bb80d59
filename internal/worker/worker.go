// Package worker implements the task execution loop shared by the pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
	"github.com/SkippTopp/reddit-scripts/internal/metrics"
)

// Worker consumes tasks from the queue and hands them to a handler.
type Worker struct {
	id      int
	queue   crawler.Queue
	handler crawler.TaskHandler
	logger  *zap.Logger
}

// New constructs a Worker.
func New(id int, queue crawler.Queue, handler crawler.TaskHandler, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:      id,
		queue:   queue,
		handler: handler,
		logger:  logger.With(zap.Int("worker", id)),
	}
}

// Run processes tasks until the queue drains or ctx is canceled. A drained
// queue is a normal exit and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, crawler.ErrQueueDrained) {
				w.logger.Debug("queue drained")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("worker %d dequeue: %w", w.id, err)
		}
		w.process(ctx, task)
	}
}

// process runs one task. Handler failures stay local to the task: they are
// logged and counted, and the worker moves on.
func (w *Worker) process(ctx context.Context, task crawler.Task) {
	defer w.queue.Done()

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := time.Now()
	err := w.handle(ctx, task)
	status := "ok"
	if err != nil {
		status = "error"
		w.logger.Warn("task failed",
			zap.String("kind", string(task.Kind)),
			zap.String("url", task.URL),
			zap.Error(err),
		)
	} else {
		w.logger.Debug("task done",
			zap.String("kind", string(task.Kind)),
			zap.String("url", task.URL),
			zap.Duration("took", time.Since(start)),
		)
	}
	metrics.ObserveTask(string(task.Kind), status)
}

func (w *Worker) handle(ctx context.Context, task crawler.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler.Handle(ctx, task)
}
