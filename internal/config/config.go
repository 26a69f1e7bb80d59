// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
	collyfetcher "github.com/SkippTopp/reddit-scripts/internal/fetcher/colly"
)

// EnvPrefix is prepended to every environment override, e.g.
// SCRAPER_SCRAPER_SUBREDDIT or SCRAPER_DATABASE_DSN.
const EnvPrefix = "SCRAPER"

// DefaultSubreddit is crawled when none is given.
const DefaultSubreddit = "MakingaMurderer"

// Storage providers accepted by storage.provider.
const (
	StorageNone   = "none"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Export   ExportConfig   `mapstructure:"export"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ScraperConfig selects what to crawl and how many workers crawl it.
type ScraperConfig struct {
	Subreddit string `mapstructure:"subreddit"`
	BaseURL   string `mapstructure:"base_url"`
	Workers   int    `mapstructure:"workers"`
	QueueHint int    `mapstructure:"queue_hint"`
}

// FetcherConfig configures page retrieval.
type FetcherConfig struct {
	UserAgent           string        `mapstructure:"user_agent"`
	Timeout             time.Duration `mapstructure:"timeout"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second"`
	Burst               int           `mapstructure:"burst"`
	RespectRobots       bool          `mapstructure:"respect_robots"`
	Headless            bool          `mapstructure:"headless"`
	HeadlessFallback    bool          `mapstructure:"headless_fallback"`
	HeadlessMaxParallel int           `mapstructure:"headless_max_parallel"`
	HeadlessTimeout     time.Duration `mapstructure:"headless_timeout"`
	HeadlessSettleDelay time.Duration `mapstructure:"headless_settle_delay"`
}

// ExportConfig controls where the workbooks are written.
type ExportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// StorageConfig selects where finished workbooks are archived.
type StorageConfig struct {
	Provider string             `mapstructure:"provider"`
	Prefix   string             `mapstructure:"prefix"`
	Local    LocalStorageConfig `mapstructure:"local"`
	GCS      GCSStorageConfig   `mapstructure:"gcs"`
}

// LocalStorageConfig configures the filesystem archive.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSStorageConfig configures the Cloud Storage archive.
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// DatabaseConfig controls the optional Postgres record sink. An empty DSN
// disables it.
type DatabaseConfig struct {
	DSN           string `mapstructure:"dsn"`
	PostsTable    string `mapstructure:"posts_table"`
	CommentsTable string `mapstructure:"comments_table"`
	MaxConns      int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds the crawl summary topic. An empty topic disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// MetricsConfig controls the status server. An empty address disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from an optional file plus the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	Prepare(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// Prepare installs defaults and environment binding on v.
func Prepare(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Scraper.Subreddit = strings.Trim(strings.TrimSpace(cfg.Scraper.Subreddit), "/")
	cfg.Storage.Provider = strings.ToLower(strings.TrimSpace(cfg.Storage.Provider))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers every key so environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("scraper.subreddit", DefaultSubreddit)
	v.SetDefault("scraper.base_url", crawler.DefaultBaseURL)
	v.SetDefault("scraper.workers", 8)
	v.SetDefault("scraper.queue_hint", 64)

	v.SetDefault("fetcher.user_agent", collyfetcher.DefaultUserAgent)
	v.SetDefault("fetcher.timeout", 15*time.Second)
	v.SetDefault("fetcher.requests_per_second", 2.0)
	v.SetDefault("fetcher.burst", 1)
	v.SetDefault("fetcher.respect_robots", false)
	v.SetDefault("fetcher.headless", false)
	v.SetDefault("fetcher.headless_fallback", false)
	v.SetDefault("fetcher.headless_max_parallel", 2)
	v.SetDefault("fetcher.headless_timeout", 45*time.Second)
	v.SetDefault("fetcher.headless_settle_delay", time.Duration(0))

	v.SetDefault("export.output_dir", ".")

	v.SetDefault("storage.provider", StorageNone)
	v.SetDefault("storage.prefix", "exports")
	v.SetDefault("storage.local.base_dir", "")
	v.SetDefault("storage.gcs.bucket", "")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.posts_table", "posts")
	v.SetDefault("database.comments_table", "comments")
	v.SetDefault("database.max_conns", 4)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_id", "")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scraper.Subreddit == "" {
		return fmt.Errorf("scraper.subreddit is required")
	}
	if strings.Contains(c.Scraper.Subreddit, "/") {
		return fmt.Errorf("scraper.subreddit %q must be a bare name without '/'", c.Scraper.Subreddit)
	}
	if c.Scraper.Workers <= 0 {
		return fmt.Errorf("scraper.workers must be > 0")
	}
	if c.Scraper.QueueHint < 0 {
		return fmt.Errorf("scraper.queue_hint must be >= 0")
	}
	if c.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be > 0")
	}
	if c.Fetcher.RequestsPerSecond < 0 {
		return fmt.Errorf("fetcher.requests_per_second must be >= 0")
	}
	if (c.Fetcher.Headless || c.Fetcher.HeadlessFallback) && c.Fetcher.HeadlessMaxParallel <= 0 {
		return fmt.Errorf("fetcher.headless_max_parallel must be > 0 when headless rendering is enabled")
	}
	if c.Fetcher.HeadlessSettleDelay < 0 {
		return fmt.Errorf("fetcher.headless_settle_delay must be >= 0")
	}
	if c.Export.OutputDir == "" {
		return fmt.Errorf("export.output_dir is required")
	}
	switch c.Storage.Provider {
	case "", StorageNone, StorageMemory:
	case StorageLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set when storage.provider is local")
		}
	case StorageGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	if c.Database.DSN != "" && c.Database.MaxConns < 0 {
		return fmt.Errorf("database.max_conns must be >= 0")
	}
	if c.PubSub.TopicID != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_id is set")
	}
	return nil
}

// SeedURLs returns the listing pages for the configured subreddit.
func (c Config) SeedURLs() ([]string, error) {
	return crawler.SeedURLs(c.Scraper.BaseURL, c.Scraper.Subreddit)
}
