package scrape

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
	"github.com/SkippTopp/reddit-scripts/internal/dispatcher"
	memqueue "github.com/SkippTopp/reddit-scripts/internal/queue/memory"
)

// Options configures a Crawl.
type Options struct {
	Workers  int
	Fetcher  crawler.Fetcher
	Logger   *zap.Logger
	Progress io.Writer
	// QueueHint pre-sizes the task queue.
	QueueHint int
}

// Progress is a point-in-time view of a running crawl.
type Progress struct {
	Posts       int   `json:"posts"`
	Comments    int   `json:"comments"`
	FailedTasks int64 `json:"failed_tasks"`
	Pending     int   `json:"pending_tasks"`
}

// Crawl is one crawl over a set of seed listings.
type Crawl struct {
	seeds  []string
	queue  *memqueue.Queue
	state  *State
	pool   *dispatcher.Dispatcher
	logger *zap.Logger
}

// New prepares a crawl. Nothing is fetched until Run.
func New(seeds []string, opts Options) *Crawl {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	queue := memqueue.NewQueue(opts.QueueHint)
	st := NewState(queue)
	handlers := NewHandlers(opts.Fetcher, logger, opts.Progress)
	return &Crawl{
		seeds:  seeds,
		queue:  queue,
		state:  st,
		pool:   dispatcher.Spawn(queue, handlers.Bind(st), opts.Workers, logger),
		logger: logger,
	}
}

// Run crawls until the queue drains or ctx ends, and returns whatever was
// collected. On cancellation the partial result comes back together with
// the context error.
func (c *Crawl) Run(ctx context.Context) (Result, error) {
	if err := c.state.Seed(ctx, c.seeds); err != nil {
		return Result{}, err
	}
	c.logger.Info("crawl started", zap.Int("seeds", len(c.seeds)), zap.Int("workers", c.pool.Size()))

	err := c.pool.Run(ctx)
	c.queue.Close()
	res := c.state.Snapshot()
	c.logger.Info("crawl finished",
		zap.Int("posts", len(res.Posts)),
		zap.Int("comments", len(res.Comments)),
		zap.Int64("failed_tasks", res.FailedTasks),
		zap.Error(err),
	)
	return res, err
}

// Progress reports current counters. Safe to call while Run is in flight.
func (c *Crawl) Progress() Progress {
	return Progress{
		Posts:       c.state.Posts(),
		Comments:    c.state.Comments(),
		FailedTasks: c.state.Failed(),
		Pending:     c.queue.Pending(),
	}
}

// Run is New followed by Crawl.Run.
func Run(ctx context.Context, seeds []string, opts Options) (Result, error) {
	return New(seeds, opts).Run(ctx)
}
