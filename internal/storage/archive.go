// Package storage copies finished export files into a blob store.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
)

// XLSXContentType is the MIME type uploaded workbooks are tagged with.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Archiver uploads a run's export files under prefix/subreddit/runID/.
type Archiver struct {
	store  crawler.BlobStore
	prefix string
}

// NewArchiver builds an Archiver writing to store.
func NewArchiver(store crawler.BlobStore, prefix string) *Archiver {
	return &Archiver{store: store, prefix: strings.Trim(prefix, "/")}
}

// ObjectPath returns the object key for an exported file.
func ObjectPath(prefix, subreddit, runID, filename string) string {
	parts := make([]string, 0, 4)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, subreddit, runID, filename)
	return path.Join(parts...)
}

// Archive uploads every file and returns their URIs in the same order. It
// stops at the first failure.
func (a *Archiver) Archive(ctx context.Context, subreddit, runID string, files []string) ([]string, error) {
	uris := make([]string, 0, len(files))
	for _, file := range files {
		uri, err := a.put(ctx, subreddit, runID, file)
		if err != nil {
			return uris, err
		}
		uris = append(uris, uri)
	}
	return uris, nil
}

func (a *Archiver) put(ctx context.Context, subreddit, runID, file string) (string, error) {
	// #nosec G304 -- file is a path the exporter just wrote.
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file, err)
	}
	defer func() { _ = f.Close() }()

	key := ObjectPath(a.prefix, subreddit, runID, filepath.Base(file))
	uri, err := a.store.PutObject(ctx, key, XLSXContentType, f)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return uri, nil
}
