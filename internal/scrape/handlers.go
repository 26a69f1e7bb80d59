package scrape

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
	"github.com/SkippTopp/reddit-scripts/internal/extract"
)

// Handlers fetches pages and turns them into records and follow-up tasks.
type Handlers struct {
	fetcher crawler.Fetcher
	logger  *zap.Logger

	progressMu sync.Mutex
	progress   io.Writer
}

// NewHandlers builds Handlers. progress receives the running post count and
// may be nil.
func NewHandlers(fetcher crawler.Fetcher, logger *zap.Logger, progress io.Writer) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Handlers{
		fetcher:  fetcher,
		logger:   logger,
		progress: progress,
	}
}

// Bind returns a TaskHandler that routes tasks to the handler for their kind
// and counts failures on st.
func (h *Handlers) Bind(st *State) crawler.TaskHandler {
	return crawler.HandlerFunc(func(ctx context.Context, task crawler.Task) error {
		var err error
		switch task.Kind {
		case crawler.KindListing:
			err = h.Listing(ctx, st, task)
		case crawler.KindPostDetail:
			err = h.Post(ctx, st, task)
		case crawler.KindCommentPage:
			err = h.Comments(ctx, st, task)
		default:
			err = fmt.Errorf("unknown task kind %q", task.Kind)
		}
		if err != nil {
			st.markFailed()
		}
		return err
	})
}

// Listing enqueues a post task per listed post plus the next listing page.
func (h *Handlers) Listing(ctx context.Context, st *State, task crawler.Task) error {
	doc, err := h.fetch(ctx, task.URL)
	if err != nil {
		return err
	}
	tasks, err := listingTasks(doc)
	if err != nil {
		return &crawler.FetchError{URL: task.URL, Err: err}
	}
	for _, next := range tasks {
		if err := st.Enqueue(ctx, next); err != nil {
			return err
		}
	}
	h.logger.Debug("listing parsed", zap.String("url", task.URL), zap.Int("tasks", len(tasks)))
	return nil
}

// Post records the post and enqueues its comment page when it has comments.
func (h *Handlers) Post(ctx context.Context, st *State, task crawler.Task) error {
	doc, err := h.fetch(ctx, task.URL)
	if err != nil {
		return err
	}
	post, err := parsePost(doc)
	if err != nil {
		return fmt.Errorf("post %s: %w", task.URL, err)
	}
	st.AddPost(post)
	h.printf("%d posts loaded.\n", st.Posts())

	next, ok := commentTask(doc, post, task.URL)
	if !ok {
		return nil
	}
	return st.Enqueue(ctx, next)
}

// Comments records every well-formed comment on the page.
func (h *Handlers) Comments(ctx context.Context, st *State, task crawler.Task) error {
	doc, err := h.fetch(ctx, task.URL)
	if err != nil {
		return err
	}
	records, skipped, err := parseComments(doc, task)
	if err != nil {
		return &crawler.FetchError{URL: task.URL, Err: err}
	}
	for _, s := range skipped {
		h.logger.Debug("comment skipped",
			zap.String("url", task.URL),
			zap.Int("index", s.index),
			zap.Error(s.err),
		)
	}
	for _, rec := range records {
		st.AddComment(rec)
	}
	return nil
}

func (h *Handlers) fetch(ctx context.Context, url string) (*extract.Document, error) {
	resp, err := h.fetcher.Fetch(ctx, crawler.FetchRequest{URL: url})
	if err != nil {
		return nil, &crawler.FetchError{URL: url, Err: err}
	}
	base := resp.URL
	if base == "" {
		base = url
	}
	doc, err := extract.ParseBytes(resp.Body, base)
	if err != nil {
		return nil, &crawler.FetchError{URL: url, Err: err}
	}
	return doc, nil
}

func (h *Handlers) printf(format string, args ...any) {
	h.progressMu.Lock()
	defer h.progressMu.Unlock()
	_, _ = fmt.Fprintf(h.progress, format, args...)
}
