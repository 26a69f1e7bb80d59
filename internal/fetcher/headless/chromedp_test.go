package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
)

func TestNewValidatesParallelism(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxParallel: -1}, nil)
	require.Error(t, err)

	fetcher, err := New(Config{MaxParallel: 2}, nil)
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)
	assert.Equal(t, 2, cap(fetcher.slots))
	assert.Equal(t, defaultNavigationTimeout, fetcher.cfg.NavigationTimeout)
}

func TestNavTimeout(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	assert.Equal(t, defaultNavigationTimeout, fetcher.navTimeout())
	fetcher.cfg.NavigationTimeout = time.Second
	assert.Equal(t, time.Second, fetcher.navTimeout())
}

func TestRenderActionsSettleDelay(t *testing.T) {
	t.Parallel()

	var html, finalURL string
	req := crawler.FetchRequest{URL: "https://example.com/r/golang/"}

	immediate := &Fetcher{}
	assert.Len(t, immediate.renderActions(req, &html, &finalURL), 5)

	settled := &Fetcher{cfg: Config{SettleDelay: 500 * time.Millisecond}}
	assert.Len(t, settled.renderActions(req, &html, &finalURL), 6)
	assert.Equal(t, 500*time.Millisecond, settled.Config().SettleDelay)
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{slots: make(chan struct{}, 1)}
	require.NoError(t, fetcher.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fetcher.acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
}

func TestFetchStopsOnWaiterError(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")
	fetcher, err := New(Config{}, waiterFunc(func(context.Context, string) error { return boom }))
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	_, err = fetcher.Fetch(context.Background(), crawler.FetchRequest{URL: "https://old.reddit.com"})
	require.ErrorIs(t, err, boom)
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := toNetworkHeaders(http.Header{
		"X-Multi":  {"a", "b"},
		"X-Single": {"one"},
		"X-Empty":  {},
	})
	assert.Equal(t, []string{"a", "b"}, got["X-Multi"])
	assert.Equal(t, "one", got["X-Single"])
	assert.NotContains(t, got, "X-Empty")
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeImage,
		Response: &network.Response{
			Status: 404,
			URL:    "https://example.com/logo.png",
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  200,
			URL:     "https://example.com/r/golang",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "abc", headers.Get("X-Request-ID"))
	assert.Equal(t, "https://example.com/r/golang", url)

	meta = newResponseMeta()
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://final", url)

	_, _, url = meta.snapshotWithFallbacks("https://req", "")
	assert.Equal(t, "https://req", url)
}

type waiterFunc func(context.Context, string) error

func (f waiterFunc) Wait(ctx context.Context, rawURL string) error {
	return f(ctx, rawURL)
}
