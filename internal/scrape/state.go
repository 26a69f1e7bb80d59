package scrape

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
	"github.com/SkippTopp/reddit-scripts/internal/metrics"
	"github.com/SkippTopp/reddit-scripts/internal/storage/memory"
)

// State is everything a crawl shares between workers. Handlers receive it
// explicitly; there is no package-level crawl.
type State struct {
	queue    crawler.Queue
	posts    *memory.RecordSet[crawler.PostKey, crawler.PostRecord]
	comments *memory.RecordSet[crawler.CommentKey, crawler.CommentRecord]
	failed   atomic.Int64
}

// Result is the drained contents of a State.
type Result struct {
	Posts       []crawler.PostRecord
	Comments    []crawler.CommentRecord
	FailedTasks int64
}

// NewState creates an empty State feeding queue.
func NewState(queue crawler.Queue) *State {
	return &State{
		queue:    queue,
		posts:    memory.NewRecordSet[crawler.PostKey, crawler.PostRecord](),
		comments: memory.NewRecordSet[crawler.CommentKey, crawler.CommentRecord](),
	}
}

// Seed enqueues one listing task per URL.
func (s *State) Seed(ctx context.Context, urls []string) error {
	for _, u := range urls {
		if err := s.Enqueue(ctx, crawler.Task{Kind: crawler.KindListing, URL: u}); err != nil {
			return fmt.Errorf("seed %s: %w", u, err)
		}
	}
	return nil
}

// Enqueue schedules a follow-up task.
func (s *State) Enqueue(ctx context.Context, task crawler.Task) error {
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s task: %w", task.Kind, err)
	}
	return nil
}

// AddPost stores rec unless a post with the same key is already stored.
func (s *State) AddPost(rec crawler.PostRecord) bool {
	stored := s.posts.InsertIfAbsent(rec.Key(), rec)
	metrics.ObserveRecord("post", stored)
	return stored
}

// AddComment stores rec unless a comment with the same key is already stored.
func (s *State) AddComment(rec crawler.CommentRecord) bool {
	stored := s.comments.InsertIfAbsent(rec.Key(), rec)
	metrics.ObserveRecord("comment", stored)
	return stored
}

// Posts returns the number of stored posts.
func (s *State) Posts() int { return s.posts.Len() }

// Comments returns the number of stored comments.
func (s *State) Comments() int { return s.comments.Len() }

// Failed returns the number of abandoned tasks.
func (s *State) Failed() int64 { return s.failed.Load() }

func (s *State) markFailed() { s.failed.Add(1) }

// Snapshot copies the stores. Call it after the queue drains.
func (s *State) Snapshot() Result {
	return Result{
		Posts:       s.posts.Snapshot(),
		Comments:    s.comments.Snapshot(),
		FailedTasks: s.failed.Load(),
	}
}
