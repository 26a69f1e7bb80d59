package crawler

import (
	"errors"
	"fmt"
)

// ErrQueueDrained is returned by Queue.Dequeue once the crawl has no queued
// and no in-flight work left.
var ErrQueueDrained = errors.New("queue drained")

// ErrQueueClosed is returned by queue operations after Close.
var ErrQueueClosed = errors.New("queue closed")

// FetchError reports a page that could not be fetched or parsed. The task that
// needed the page is abandoned; it is never retried.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
