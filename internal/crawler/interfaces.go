package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Queue holds pending tasks. Dequeue returns ErrQueueDrained once nothing is
// queued and every dequeued task has been marked Done.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
	Done()
}

// TaskHandler processes one dequeued task.
type TaskHandler interface {
	Handle(ctx context.Context, task Task) error
}

// HandlerFunc adapts a function to TaskHandler.
type HandlerFunc func(ctx context.Context, task Task) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// Exporter writes a header row plus record rows to a named tabular file and
// returns the written path.
type Exporter interface {
	Export(ctx context.Context, filename string, headers []string, rows [][]string) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RecordStore persists deduplicated records after a crawl.
type RecordStore interface {
	SavePosts(ctx context.Context, posts []PostRecord) error
	SaveComments(ctx context.Context, comments []CommentRecord) error
	Close()
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests of exported files.
type Hasher interface {
	HashFile(path string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
