package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	collyfetcher "github.com/SkippTopp/reddit-scripts/internal/fetcher/colly"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.Subreddit != DefaultSubreddit {
		t.Fatalf("expected default subreddit, got %q", cfg.Scraper.Subreddit)
	}
	if cfg.Scraper.Workers != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Scraper.Workers)
	}
	if cfg.Fetcher.UserAgent != collyfetcher.DefaultUserAgent {
		t.Fatalf("unexpected user agent %q", cfg.Fetcher.UserAgent)
	}
	if cfg.Fetcher.Timeout != 15*time.Second || cfg.Fetcher.HeadlessTimeout != 45*time.Second {
		t.Fatalf("unexpected timeouts: %v / %v", cfg.Fetcher.Timeout, cfg.Fetcher.HeadlessTimeout)
	}
	if cfg.Export.OutputDir != "." {
		t.Fatalf("expected output dir '.', got %q", cfg.Export.OutputDir)
	}
	if cfg.Storage.Provider != StorageNone {
		t.Fatalf("expected storage disabled, got %q", cfg.Storage.Provider)
	}
	if cfg.Database.PostsTable != "posts" || cfg.Database.CommentsTable != "comments" {
		t.Fatalf("unexpected table names: %+v", cfg.Database)
	}
	if cfg.Fetcher.RespectRobots || cfg.Fetcher.HeadlessSettleDelay != 0 {
		t.Fatalf("expected robots ignored and no settle delay, got %+v", cfg.Fetcher)
	}
	if !cfg.Logging.Development {
		t.Fatal("expected development logging by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
scraper:
  subreddit: golang
  workers: 3
fetcher:
  timeout: 5s
  requests_per_second: 0.5
  respect_robots: true
  headless: true
  headless_max_parallel: 1
  headless_settle_delay: 750ms
export:
  output_dir: /tmp/out
storage:
  provider: local
  prefix: runs
  local:
    base_dir: /tmp/archive
database:
  dsn: postgres://localhost/scraper
  max_conns: 2
pubsub:
  project_id: demo
  topic_id: crawls
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.Subreddit != "golang" || cfg.Scraper.Workers != 3 {
		t.Fatalf("expected scraper overrides, got %+v", cfg.Scraper)
	}
	if cfg.Fetcher.Timeout != 5*time.Second || cfg.Fetcher.RequestsPerSecond != 0.5 || !cfg.Fetcher.Headless {
		t.Fatalf("expected fetcher overrides, got %+v", cfg.Fetcher)
	}
	if !cfg.Fetcher.RespectRobots || cfg.Fetcher.HeadlessSettleDelay != 750*time.Millisecond {
		t.Fatalf("expected robots and settle delay overrides, got %+v", cfg.Fetcher)
	}
	if cfg.Storage.Provider != StorageLocal || cfg.Storage.Local.BaseDir != "/tmp/archive" || cfg.Storage.Prefix != "runs" {
		t.Fatalf("expected storage overrides, got %+v", cfg.Storage)
	}
	if cfg.Database.DSN == "" || cfg.Database.MaxConns != 2 {
		t.Fatalf("expected database overrides, got %+v", cfg.Database)
	}
	if cfg.PubSub.TopicID != "crawls" {
		t.Fatalf("expected pubsub topic, got %+v", cfg.PubSub)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SCRAPER_SCRAPER_SUBREDDIT", "/rust/")
	t.Setenv("SCRAPER_SCRAPER_WORKERS", "2")
	t.Setenv("SCRAPER_STORAGE_PROVIDER", "MEMORY")
	t.Setenv("SCRAPER_FETCHER_RESPECT_ROBOTS", "true")
	t.Setenv("SCRAPER_FETCHER_HEADLESS_SETTLE_DELAY", "2s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.Subreddit != "rust" {
		t.Fatalf("expected trimmed subreddit, got %q", cfg.Scraper.Subreddit)
	}
	if cfg.Scraper.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", cfg.Scraper.Workers)
	}
	if cfg.Storage.Provider != StorageMemory {
		t.Fatalf("expected memory storage, got %q", cfg.Storage.Provider)
	}
	if !cfg.Fetcher.RespectRobots || cfg.Fetcher.HeadlessSettleDelay != 2*time.Second {
		t.Fatalf("expected fetcher env overrides, got %+v", cfg.Fetcher)
	}
}

func TestFromViperExplicitValues(t *testing.T) {
	t.Parallel()

	v := viper.New()
	Prepare(v)
	v.Set("scraper.subreddit", "AskHistorians")
	v.Set("export.output_dir", "exports")

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper() error = %v", err)
	}
	seeds, err := cfg.SeedURLs()
	if err != nil {
		t.Fatalf("SeedURLs() error = %v", err)
	}
	if len(seeds) != 9 || seeds[0] != "https://www.reddit.com/r/AskHistorians/new/" {
		t.Fatalf("unexpected seeds: %v", seeds)
	}
	if cfg.Export.OutputDir != "exports" {
		t.Fatalf("expected output dir override, got %q", cfg.Export.OutputDir)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Scraper: ScraperConfig{Subreddit: "golang", Workers: 1},
		Fetcher: FetcherConfig{Timeout: time.Second},
		Export:  ExportConfig{OutputDir: "."},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing subreddit", func(c *Config) { c.Scraper.Subreddit = "" }, "scraper.subreddit"},
		{"prefixed subreddit", func(c *Config) { c.Scraper.Subreddit = "r/golang" }, "scraper.subreddit"},
		{"nested subreddit", func(c *Config) { c.Scraper.Subreddit = "golang/new" }, "scraper.subreddit"},
		{"no workers", func(c *Config) { c.Scraper.Workers = 0 }, "scraper.workers"},
		{"negative queue hint", func(c *Config) { c.Scraper.QueueHint = -1 }, "scraper.queue_hint"},
		{"zero timeout", func(c *Config) { c.Fetcher.Timeout = 0 }, "fetcher.timeout"},
		{"negative rate", func(c *Config) { c.Fetcher.RequestsPerSecond = -1 }, "fetcher.requests_per_second"},
		{
			"headless without parallelism",
			func(c *Config) { c.Fetcher.Headless = true },
			"fetcher.headless_max_parallel",
		},
		{
			"fallback without parallelism",
			func(c *Config) { c.Fetcher.HeadlessFallback = true },
			"fetcher.headless_max_parallel",
		},
		{
			"negative settle delay",
			func(c *Config) { c.Fetcher.HeadlessSettleDelay = -time.Second },
			"fetcher.headless_settle_delay",
		},
		{"no output dir", func(c *Config) { c.Export.OutputDir = "" }, "export.output_dir"},
		{"local without dir", func(c *Config) { c.Storage.Provider = StorageLocal }, "storage.local.base_dir"},
		{"gcs without bucket", func(c *Config) { c.Storage.Provider = StorageGCS }, "storage.gcs.bucket"},
		{"unknown storage", func(c *Config) { c.Storage.Provider = "s3" }, "storage.provider"},
		{"topic without project", func(c *Config) { c.PubSub.TopicID = "crawls" }, "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
