// Package fallback fetches pages with a plain HTTP fetcher and re-fetches
// them in a headless browser when the response turns out to be a client
// rendered shell.
package fallback

import (
	"context"

	"go.uber.org/zap"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
	"github.com/SkippTopp/reddit-scripts/internal/metrics"
)

// Fetcher tries primary first and promotes to secondary per Detector.
type Fetcher struct {
	primary   crawler.Fetcher
	secondary crawler.Fetcher
	detector  *Detector
	logger    *zap.Logger
}

// New builds a Fetcher. A nil detector uses NewDetector(0).
func New(primary, secondary crawler.Fetcher, detector *Detector, logger *zap.Logger) *Fetcher {
	if detector == nil {
		detector = NewDetector(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{primary: primary, secondary: secondary, detector: detector, logger: logger}
}

// Fetch returns the primary response unless it needs rendering. If the
// rendered fetch fails the primary response is returned as-is.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.primary.Fetch(ctx, request)
	if err != nil {
		return resp, err //nolint:wrapcheck
	}
	if !f.detector.ShouldPromote(resp) {
		return resp, nil
	}

	rendered, err := f.secondary.Fetch(ctx, request)
	if err != nil {
		metrics.ObservePromotion("error")
		f.logger.Warn("headless promotion failed; keeping plain response",
			zap.String("url", request.URL), zap.Error(err))
		return resp, nil
	}
	metrics.ObservePromotion("success")
	f.logger.Debug("page promoted to headless", zap.String("url", request.URL))
	return rendered, nil
}
