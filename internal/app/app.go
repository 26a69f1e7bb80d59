// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for one crawl run.
package app

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SkippTopp/reddit-scripts/internal/api"
	"github.com/SkippTopp/reddit-scripts/internal/clock/system"
	"github.com/SkippTopp/reddit-scripts/internal/config"
	"github.com/SkippTopp/reddit-scripts/internal/crawler"
	"github.com/SkippTopp/reddit-scripts/internal/export"
	collyfetcher "github.com/SkippTopp/reddit-scripts/internal/fetcher/colly"
	"github.com/SkippTopp/reddit-scripts/internal/fetcher/fallback"
	"github.com/SkippTopp/reddit-scripts/internal/fetcher/headless"
	"github.com/SkippTopp/reddit-scripts/internal/hash/sha256"
	"github.com/SkippTopp/reddit-scripts/internal/id/uuid"
	"github.com/SkippTopp/reddit-scripts/internal/metrics"
	"github.com/SkippTopp/reddit-scripts/internal/policy/ratelimit"
	"github.com/SkippTopp/reddit-scripts/internal/publisher/pubsub"
	"github.com/SkippTopp/reddit-scripts/internal/scrape"
	"github.com/SkippTopp/reddit-scripts/internal/storage"
	"github.com/SkippTopp/reddit-scripts/internal/storage/gcs"
	"github.com/SkippTopp/reddit-scripts/internal/storage/local"
	"github.com/SkippTopp/reddit-scripts/internal/storage/memory"
	"github.com/SkippTopp/reddit-scripts/internal/storage/postgres"
)

// sinkTimeout bounds post-crawl delivery, which runs even after the crawl
// context is canceled.
const sinkTimeout = 2 * time.Minute

// App holds all the shared, long-lived services for a crawl run: the page
// fetcher, the workbook exporter, and the optional archive, database and
// event sinks. It is built once at startup and closed by the CLI after the
// command finishes.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	fetcher   crawler.Fetcher
	exporter  crawler.Exporter
	blobs     crawler.BlobStore
	records   crawler.RecordStore
	publisher crawler.Publisher
	hasher    crawler.Hasher
	clock     crawler.Clock
	ids       crawler.IDGenerator

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// Option overrides a service New would otherwise build from configuration.
type Option func(*App)

// WithFetcher replaces the configured page fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithBlobStore replaces the configured archive store.
func WithBlobStore(b crawler.BlobStore) Option {
	return func(a *App) { a.blobs = b }
}

// WithRecordStore replaces the configured database sink.
func WithRecordStore(r crawler.RecordStore) Option {
	return func(a *App) { a.records = r }
}

// WithPublisher replaces the configured summary publisher.
func WithPublisher(p crawler.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithClock replaces the wall clock.
func WithClock(c crawler.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithIDGenerator replaces the run ID generator.
func WithIDGenerator(g crawler.IDGenerator) Option {
	return func(a *App) { a.ids = g }
}

// New creates the App from cfg. Services not supplied through opts are built
// from configuration; it fails fast if any configured sink cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		exporter: export.New(cfg.Export.OutputDir),
		hasher:   sha256.New(),
		clock:    system.New(),
		ids:      uuid.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	logger.Info("Initializing application services...")

	if err := a.initFetcher(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initBlobStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initRecordStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("Application services initialized successfully.")
	return a, nil
}

// Logger returns the logger the App was built with.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

func (a *App) initFetcher() error {
	if a.fetcher != nil {
		return nil
	}
	fc := a.cfg.Fetcher
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: fc.RequestsPerSecond, DefaultBurst: fc.Burst})
	plain := collyfetcher.New(collyfetcher.Config{
		UserAgent:     fc.UserAgent,
		RespectRobots: fc.RespectRobots,
		Timeout:       fc.Timeout,
	}, limiter)
	if !fc.Headless && !fc.HeadlessFallback {
		a.fetcher = plain
		return nil
	}
	hf, err := headless.New(headless.Config{
		MaxParallel:       fc.HeadlessMaxParallel,
		UserAgent:         fc.UserAgent,
		NavigationTimeout: fc.HeadlessTimeout,
		SettleDelay:       fc.HeadlessSettleDelay,
	}, limiter)
	if err != nil {
		return fmt.Errorf("failed to initialize headless fetcher: %w", err)
	}
	a.addCloser("headless browser", func() error {
		hf.Close()
		return nil
	})
	if fc.Headless {
		a.logger.Info("Using headless Chrome fetcher", zap.Int("max_parallel", fc.HeadlessMaxParallel))
		a.fetcher = hf
		return nil
	}
	a.logger.Info("Promoting script-only pages to headless Chrome", zap.Int("max_parallel", fc.HeadlessMaxParallel))
	a.fetcher = fallback.New(plain, hf, fallback.NewDetector(0), a.logger)
	return nil
}

func (a *App) initBlobStore(ctx context.Context) error {
	if a.blobs != nil {
		return nil
	}
	sc := a.cfg.Storage
	switch sc.Provider {
	case "", config.StorageNone:
		a.logger.Info("Export archive disabled.")
	case config.StorageMemory:
		a.logger.Info("Using in-memory export archive. Uploads are discarded on exit.")
		a.blobs = memory.NewBlobStore()
	case config.StorageLocal:
		store, err := local.New(local.Config{BaseDir: sc.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.logger.Info("Using local export archive", zap.String("base_dir", sc.Local.BaseDir))
		a.blobs = store
	case config.StorageGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: sc.GCS.Bucket})
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.logger.Info("Using GCS export archive", zap.String("bucket", sc.GCS.Bucket))
		a.blobs = store
		a.addCloser("gcs client", store.Close)
	default:
		return fmt.Errorf("unknown storage provider: %s", sc.Provider)
	}
	return nil
}

func (a *App) initRecordStore(ctx context.Context) error {
	if a.records != nil {
		a.addCloser("record store", closeRecords(a.records))
		return nil
	}
	dc := a.cfg.Database
	if dc.DSN == "" {
		a.logger.Info("Database sink disabled.")
		return nil
	}
	a.logger.Info("Connecting to PostgreSQL...")
	store, err := postgres.New(ctx, postgres.Config{
		DSN:           dc.DSN,
		PostsTable:    dc.PostsTable,
		CommentsTable: dc.CommentsTable,
		Subreddit:     a.cfg.Scraper.Subreddit,
		MaxConns:      dc.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return fmt.Errorf("failed to prepare database schema: %w", err)
	}
	a.records = store
	a.addCloser("record store", closeRecords(store))
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.publisher != nil {
		return nil
	}
	pc := a.cfg.PubSub
	if pc.TopicID == "" {
		a.logger.Info("Summary publishing disabled.")
		return nil
	}
	a.logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", pc.TopicID))
	p, err := pubsub.Open(ctx, pc.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to initialize publisher: %w", err)
	}
	a.publisher = p
	a.addCloser("pubsub client", p.Close)
	return nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func closeRecords(r crawler.RecordStore) func() error {
	return func() error {
		r.Close()
		return nil
	}
}

// Run crawls the configured subreddit, writes both workbooks and hands the
// results to the configured sinks. Console progress goes to out.
//
// Export failures are returned; sink failures are logged and counted but do
// not fail the run. When ctx is canceled mid-crawl the partial results are
// still exported and delivered, and the cancellation is returned afterwards.
func (a *App) Run(ctx context.Context, out io.Writer) (crawler.Summary, error) {
	if out == nil {
		out = io.Discard
	}
	subreddit := a.cfg.Scraper.Subreddit
	seeds, err := a.cfg.SeedURLs()
	if err != nil {
		return crawler.Summary{}, err
	}
	runID, err := a.ids.NewID()
	if err != nil {
		return crawler.Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := crawler.Summary{RunID: runID, Subreddit: subreddit, StartedAt: a.clock.Now()}
	logger := a.logger.With(zap.String("run_id", runID), zap.String("subreddit", subreddit))

	_, _ = fmt.Fprintf(out, "Subreddit: %s\n", subreddit)

	crawl := scrape.New(seeds, scrape.Options{
		Workers:   a.cfg.Scraper.Workers,
		Fetcher:   a.fetcher,
		Logger:    logger,
		Progress:  out,
		QueueHint: a.cfg.Scraper.QueueHint,
	})
	var finished atomic.Bool
	stopServer := a.startServer(ctx, logger, func() api.Status {
		p := crawl.Progress()
		return api.Status{
			RunID:       runID,
			Subreddit:   subreddit,
			StartedAt:   summary.StartedAt,
			Finished:    finished.Load(),
			Posts:       p.Posts,
			Comments:    p.Comments,
			FailedTasks: p.FailedTasks,
			Pending:     p.Pending,
		}
	})
	defer stopServer()

	res, crawlErr := crawl.Run(ctx)
	if crawlErr != nil {
		if ctx.Err() == nil {
			return summary, fmt.Errorf("crawl: %w", crawlErr)
		}
		logger.Warn("Crawl interrupted; saving partial results", zap.Error(crawlErr))
	}
	finished.Store(true)

	_, _ = fmt.Fprintln(out, "DONE.")
	_, _ = fmt.Fprintf(out, "%d posts loaded.\n", len(res.Posts))
	_, _ = fmt.Fprintf(out, "%d comments.\n", len(res.Comments))

	summary.Posts = len(res.Posts)
	summary.Comments = len(res.Comments)
	summary.FailedTasks = res.FailedTasks

	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if err := a.export(sinkCtx, logger, &summary, res); err != nil {
		return summary, err
	}
	_, _ = fmt.Fprintln(out, "Results are saved.")

	summary.FinishedAt = a.clock.Now()
	a.deliver(sinkCtx, logger, &summary, res)

	if crawlErr != nil {
		return summary, fmt.Errorf("crawl interrupted: %w", crawlErr)
	}
	return summary, nil
}

func (a *App) export(ctx context.Context, logger *zap.Logger, summary *crawler.Summary, res scrape.Result) error {
	postRows := make([][]string, 0, len(res.Posts))
	for _, p := range res.Posts {
		postRows = append(postRows, p.Row())
	}
	commentRows := make([][]string, 0, len(res.Comments))
	for _, c := range res.Comments {
		commentRows = append(commentRows, c.Row())
	}

	postsPath, err := a.exporter.Export(ctx, export.PostsFilename(summary.Subreddit), crawler.PostHeaders, postRows)
	if err != nil {
		metrics.ObserveSink("xlsx", "error")
		return fmt.Errorf("export posts: %w", err)
	}
	commentsPath, err := a.exporter.Export(ctx, export.CommentsFilename(summary.Subreddit), crawler.CommentHeaders, commentRows)
	if err != nil {
		metrics.ObserveSink("xlsx", "error")
		return fmt.Errorf("export comments: %w", err)
	}
	metrics.ObserveSink("xlsx", "success")
	summary.PostsFile = postsPath
	summary.CommentsFile = commentsPath

	if summary.PostsSHA256, err = a.hasher.HashFile(postsPath); err != nil {
		logger.Warn("Failed to checksum posts export", zap.String("path", postsPath), zap.Error(err))
	}
	if summary.CommentsSHA256, err = a.hasher.HashFile(commentsPath); err != nil {
		logger.Warn("Failed to checksum comments export", zap.String("path", commentsPath), zap.Error(err))
	}
	logger.Info("Exports written", zap.String("posts", postsPath), zap.String("comments", commentsPath))
	return nil
}

// deliver fans the results out to the archive and database in parallel, then
// publishes the summary so it can carry the uploaded URIs.
func (a *App) deliver(ctx context.Context, logger *zap.Logger, summary *crawler.Summary, res scrape.Result) {
	var g errgroup.Group

	if a.blobs != nil {
		g.Go(func() error {
			archiver := storage.NewArchiver(a.blobs, a.cfg.Storage.Prefix)
			uris, err := archiver.Archive(ctx, summary.Subreddit, summary.RunID,
				[]string{summary.PostsFile, summary.CommentsFile})
			summary.Uploaded = uris
			return observeSink(logger, "archive", err)
		})
	}
	if a.records != nil {
		g.Go(func() error {
			err := a.records.SavePosts(ctx, res.Posts)
			if err == nil {
				err = a.records.SaveComments(ctx, res.Comments)
			}
			return observeSink(logger, "database", err)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("Some result sinks failed; exports are still on disk", zap.Error(err))
	}

	if a.publisher == nil {
		return
	}
	id, err := a.publisher.Publish(ctx, a.cfg.PubSub.TopicID, *summary)
	if observeSink(logger, "pubsub", err) == nil {
		logger.Info("Published crawl summary", zap.String("message_id", id))
	}
}

func observeSink(logger *zap.Logger, sink string, err error) error {
	if err != nil {
		metrics.ObserveSink(sink, "error")
		logger.Warn("Result sink failed", zap.String("sink", sink), zap.Error(err))
		return fmt.Errorf("%s: %w", sink, err)
	}
	metrics.ObserveSink(sink, "success")
	return nil
}

// startServer runs the status server for the life of the run when
// metrics.addr is set. The returned func stops it.
func (a *App) startServer(ctx context.Context, logger *zap.Logger, status api.StatusFunc) func() {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return func() {}
	}
	srvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	srv := api.NewServer(status, logger)
	go func() {
		defer close(done)
		if err := srv.Serve(srvCtx, addr); err != nil {
			logger.Error("Status server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Close shuts down every service the App opened, in reverse order, and
// flushes the logger.
func (a *App) Close() {
	a.logger.Info("Shutting down application services...")
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("Error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	// Sync fails on terminals (ENOTTY); there is nowhere left to report it.
	_ = a.logger.Sync()
}
