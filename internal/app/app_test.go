package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SkippTopp/reddit-scripts/internal/clock/system"
	"github.com/SkippTopp/reddit-scripts/internal/config"
	"github.com/SkippTopp/reddit-scripts/internal/crawler"
	"github.com/SkippTopp/reddit-scripts/internal/export"
	collyfetcher "github.com/SkippTopp/reddit-scripts/internal/fetcher/colly"
	"github.com/SkippTopp/reddit-scripts/internal/fetcher/fallback"
	"github.com/SkippTopp/reddit-scripts/internal/fetcher/headless"
	pubmemory "github.com/SkippTopp/reddit-scripts/internal/publisher/memory"
	"github.com/SkippTopp/reddit-scripts/internal/storage"
	"github.com/SkippTopp/reddit-scripts/internal/storage/local"
	"github.com/SkippTopp/reddit-scripts/internal/storage/memory"
)

const (
	testSubreddit = "golang"
	testRunID     = "0192d7a4-5f00-7000-8000-000000000001"
)

// MockRecordStore mocks crawler.RecordStore.
type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) SavePosts(ctx context.Context, posts []crawler.PostRecord) error {
	return m.Called(ctx, posts).Error(0)
}

func (m *MockRecordStore) SaveComments(ctx context.Context, comments []crawler.CommentRecord) error {
	return m.Called(ctx, comments).Error(0)
}

func (m *MockRecordStore) Close() {
	m.Called()
}

type fixedID string

func (f fixedID) NewID() (string, error) { return string(f), nil }

type failingID struct{}

func (failingID) NewID() (string, error) { return "", errors.New("entropy exhausted") }

// pageFetcher serves canned pages keyed by request URI.
type pageFetcher map[string]string

func (p pageFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	body, ok := p[u.RequestURI()]
	if !ok {
		return crawler.FetchResponse{}, fmt.Errorf("status %d", http.StatusNotFound)
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

const (
	listingHTML = `<html><body><div id="siteTable"><div class="thing link"><div class="entry unvoted">` +
		`<ul class="flat-list buttons"><li class="first">` +
		`<a class="bylink comments may-blank" href="/r/golang/comments/1/">2 comments</a>` +
		`</li></ul></div></div></div></body></html>`
	postHTML = `<html><body><div id="siteTable"><div class="thing link">` +
		`<div class="midcol"><div class="score unvoted">42</div></div>` +
		`<div class="entry unvoted"><p class="title"><a class="title may-blank " href="/x">Generics landed</a></p>` +
		`<p class="tagline">submitted <time title="Tue Feb 1 10:00:00 2022 UTC">ago</time> by ` +
		`<a class="author may-blank">gopher</a></p>` +
		`<ul class="flat-list buttons"><li class="first"><a class="bylink comments may-blank" href="/x">2 comments</a></li></ul>` +
		`</div></div></div>` +
		`<div class="side"><div class="linkinfo"><div class="score">42 points (97% upvoted)</div></div></div>` +
		`<div class="commentarea"><div class="panestack-title"><a href="/r/golang/comments/1/?limit=500">all</a></div></div>` +
		`</body></html>`
	commentsHTML = `<html><body><div class="commentarea"><div class="sitetable nestedlisting">` +
		`<div class="thing comment" data-type="comment" data-author="rob"><div class="entry unvoted"><p class="tagline">` +
		`<span class="score unvoted">12 points</span> <time title="Tue Feb 1 11:00:00 2022 UTC">ago</time> ` +
		`<a class="numchildren">(1 child)</a></p></div></div>` +
		`<div class="thing comment" data-type="comment" data-author="ken"><div class="entry unvoted"><p class="tagline">` +
		`<time title="Tue Feb 1 12:00:00 2022 UTC">ago</time> <a class="numchildren">(0 children)</a></p></div></div>` +
		`</div></div></body></html>`
)

// forum serves the same single-post listing under every seed.
func forum(t *testing.T) pageFetcher {
	t.Helper()
	seeds, err := crawler.SeedURLs(crawler.DefaultBaseURL, testSubreddit)
	require.NoError(t, err)
	pages := pageFetcher{
		"/r/golang/comments/1/":           postHTML,
		"/r/golang/comments/1/?limit=500": commentsHTML,
	}
	for _, seed := range seeds {
		u, err := url.Parse(seed)
		require.NoError(t, err)
		pages[u.RequestURI()] = listingHTML
	}
	return pages
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Scraper.Subreddit = testSubreddit
	cfg.Scraper.BaseURL = crawler.DefaultBaseURL
	cfg.Scraper.Workers = 4
	cfg.Export.OutputDir = t.TempDir()
	cfg.Storage = config.StorageConfig{Provider: config.StorageNone, Prefix: "exports"}
	cfg.Database.DSN = ""
	cfg.PubSub = config.PubSubConfig{ProjectID: "demo", TopicID: "crawl-summaries"}
	cfg.Metrics.Addr = ""
	return cfg
}

func TestRunExportsAndDelivers(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	blobs := memory.NewBlobStore()
	records := &MockRecordStore{}
	records.On("SavePosts", mock.Anything, mock.MatchedBy(func(p []crawler.PostRecord) bool { return len(p) == 1 })).Return(nil)
	records.On("SaveComments", mock.Anything, mock.MatchedBy(func(c []crawler.CommentRecord) bool { return len(c) == 2 })).Return(nil)
	records.On("Close").Return()
	pub := pubmemory.New()

	a, err := New(context.Background(), cfg, zap.NewNop(),
		WithFetcher(forum(t)),
		WithBlobStore(blobs),
		WithRecordStore(records),
		WithPublisher(pub),
		WithClock(system.Fixed(started)),
		WithIDGenerator(fixedID(testRunID)),
	)
	require.NoError(t, err)

	var out bytes.Buffer
	summary, err := a.Run(context.Background(), &out)
	require.NoError(t, err)
	a.Close()

	assert.Equal(t, "Subreddit: golang\n", out.String()[:len("Subreddit: golang\n")])
	assert.Contains(t, out.String(), "1 posts loaded.\n")
	assert.Contains(t, out.String(), "DONE.\n1 posts loaded.\n2 comments.\nResults are saved.\n")

	assert.Equal(t, testRunID, summary.RunID)
	assert.Equal(t, testSubreddit, summary.Subreddit)
	assert.Equal(t, started, summary.StartedAt)
	assert.Equal(t, started, summary.FinishedAt)
	assert.Equal(t, 1, summary.Posts)
	assert.Equal(t, 2, summary.Comments)
	assert.Zero(t, summary.FailedTasks)
	assert.Equal(t, filepath.Join(cfg.Export.OutputDir, "golang_posts.xlsx"), summary.PostsFile)
	assert.Equal(t, filepath.Join(cfg.Export.OutputDir, "golang_comments.xlsx"), summary.CommentsFile)
	assert.Len(t, summary.PostsSHA256, 64)
	assert.Len(t, summary.CommentsSHA256, 64)

	posts, err := export.ReadRows(summary.PostsFile)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, crawler.PostHeaders, posts[0])
	assert.Equal(t, []string{"Generics landed", "Feb 1 10:00:00 2022 UTC", "gopher", "2", "42", "97%"}, posts[1])

	comments, err := export.ReadRows(summary.CommentsFile)
	require.NoError(t, err)
	require.Len(t, comments, 3)
	assert.Equal(t, crawler.CommentHeaders, comments[0])
	assert.ElementsMatch(t, [][]string{
		{"Generics landed", "gopher", "rob", "Feb 1 11:00:00 2022 UTC", "1", "12"},
		{"Generics landed", "gopher", "ken", "Feb 1 12:00:00 2022 UTC", "0", "1"},
	}, comments[1:])

	assert.Equal(t, []string{
		"exports/golang/" + testRunID + "/golang_comments.xlsx",
		"exports/golang/" + testRunID + "/golang_posts.xlsx",
	}, blobs.Paths())
	require.Len(t, summary.Uploaded, 2)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "crawl-summaries", msgs[0].Topic)
	published, ok := msgs[0].Payload.(crawler.Summary)
	require.True(t, ok)
	assert.Equal(t, summary, published)

	records.AssertExpectations(t)
}

func TestRunSinkFailuresAreNotFatal(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	blobs := &storage.MockBlobStore{}
	blobs.On("PutObject", mock.Anything, mock.Anything, storage.XLSXContentType, mock.Anything).
		Return("", errors.New("bucket gone"))
	records := &MockRecordStore{}
	records.On("SavePosts", mock.Anything, mock.Anything).Return(errors.New("db down"))
	records.On("Close").Return()
	pub := pubmemory.New()
	pub.FailWith(errors.New("topic missing"))

	a, err := New(context.Background(), cfg, nil,
		WithFetcher(forum(t)),
		WithBlobStore(blobs),
		WithRecordStore(records),
		WithPublisher(pub),
		WithIDGenerator(fixedID(testRunID)),
	)
	require.NoError(t, err)
	defer a.Close()

	var out bytes.Buffer
	summary, err := a.Run(context.Background(), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Results are saved.")
	assert.Empty(t, summary.Uploaded)
	assert.FileExists(t, summary.PostsFile)
	assert.Empty(t, pub.Messages())
	records.AssertNotCalled(t, "SaveComments", mock.Anything, mock.Anything)
}

func TestRunExportFailureIsFatal(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	cfg.Export.OutputDir = blocker
	pub := pubmemory.New()

	a, err := New(context.Background(), cfg, nil,
		WithFetcher(forum(t)),
		WithPublisher(pub),
	)
	require.NoError(t, err)
	defer a.Close()

	var out bytes.Buffer
	_, err = a.Run(context.Background(), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export posts")
	assert.Contains(t, out.String(), "DONE.")
	assert.NotContains(t, out.String(), "Results are saved.")
	assert.Empty(t, pub.Messages())
}

func TestRunCanceledStillExports(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	pub := pubmemory.New()
	a, err := New(context.Background(), cfg, nil,
		WithFetcher(forum(t)),
		WithPublisher(pub),
	)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	summary, err := a.Run(ctx, &out)
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, out.String(), "0 posts loaded.\n0 comments.\nResults are saved.\n")

	rows, err := export.ReadRows(summary.PostsFile)
	require.NoError(t, err)
	assert.Equal(t, [][]string{crawler.PostHeaders}, rows)
	assert.Len(t, pub.Messages(), 1)
}

func TestRunIDFailure(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t), nil,
		WithFetcher(forum(t)),
		WithPublisher(pubmemory.New()),
		WithIDGenerator(failingID{}),
	)
	require.NoError(t, err)
	defer a.Close()

	var out bytes.Buffer
	_, err = a.Run(context.Background(), &out)
	require.ErrorContains(t, err, "generate run id")
	assert.Empty(t, out.String())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Scraper.Workers = 0
	_, err := New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "scraper.workers")
}

func TestNewBuildsConfiguredServices(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.PubSub = config.PubSubConfig{}
	cfg.Storage.Provider = config.StorageLocal
	cfg.Storage.Local.BaseDir = t.TempDir()

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &collyfetcher.Fetcher{}, a.fetcher)
	assert.IsType(t, &local.BlobStore{}, a.blobs)
	assert.Nil(t, a.records)
	assert.Nil(t, a.publisher)
	assert.Equal(t, cfg, a.Config())
	assert.NotNil(t, a.Logger())
}

func TestNewHeadlessFetcher(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.PubSub = config.PubSubConfig{}
	cfg.Storage.Provider = config.StorageMemory
	cfg.Fetcher.Headless = true

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.IsType(t, &headless.Fetcher{}, a.fetcher)
	assert.IsType(t, &memory.BlobStore{}, a.blobs)
	require.Len(t, a.closers, 1)
	a.Close()
	assert.Empty(t, a.closers)
}

func TestNewHeadlessFetcherSettleDelay(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.PubSub = config.PubSubConfig{}
	cfg.Fetcher.Headless = true
	cfg.Fetcher.HeadlessSettleDelay = 750 * time.Millisecond

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	hf, ok := a.fetcher.(*headless.Fetcher)
	require.True(t, ok)
	assert.Equal(t, 750*time.Millisecond, hf.Config().SettleDelay)
	assert.Equal(t, cfg.Fetcher.HeadlessTimeout, hf.Config().NavigationTimeout)
}

func TestNewFetcherRespectsRobots(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /r/\n"))
			return
		}
		_, _ = w.Write([]byte(listingHTML))
	}))
	t.Cleanup(srv.Close)

	for _, respect := range []bool{true, false} {
		cfg := testConfig(t)
		cfg.PubSub = config.PubSubConfig{}
		cfg.Fetcher.RequestsPerSecond = 0
		cfg.Fetcher.RespectRobots = respect

		a, err := New(context.Background(), cfg, nil)
		require.NoError(t, err)
		_, err = a.fetcher.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/r/golang/new/"})
		a.Close()
		if respect {
			require.ErrorIs(t, err, colly.ErrRobotsTxtBlocked)
		} else {
			require.NoError(t, err)
		}
	}
}

func TestNewHeadlessFallbackFetcher(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.PubSub = config.PubSubConfig{}
	cfg.Fetcher.HeadlessFallback = true

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &fallback.Fetcher{}, a.fetcher)
	assert.Len(t, a.closers, 1)
}

func TestNewClosesInjectedRecordStore(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	records := &MockRecordStore{}
	records.On("Close").Return().Once()

	a, err := New(context.Background(), cfg, nil,
		WithRecordStore(records),
		WithPublisher(pubmemory.New()),
	)
	require.NoError(t, err)
	a.Close()
	a.Close()

	records.AssertExpectations(t)
}
