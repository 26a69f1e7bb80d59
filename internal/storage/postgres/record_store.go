// Package postgres persists deduplicated crawl records in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and target tables.
type Config struct {
	DSN             string
	PostsTable      string
	CommentsTable   string
	Subreddit       string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RecordStore writes posts and comments. Rows already present are left
// untouched, so re-running a crawl only adds what is new.
type RecordStore struct {
	pool      pool
	posts     string
	comments  string
	subreddit string
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool.
func NewWithPool(p pool, cfg Config) (*RecordStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	posts := cfg.PostsTable
	if posts == "" {
		posts = "posts"
	}
	comments := cfg.CommentsTable
	if comments == "" {
		comments = "comments"
	}
	for _, table := range []string{posts, comments} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &RecordStore{
		pool:      p,
		posts:     posts,
		comments:  comments,
		subreddit: cfg.Subreddit,
	}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates both tables when they do not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	subreddit      text NOT NULL,
	title          text NOT NULL,
	posted_at      text NOT NULL,
	posted_by      text NOT NULL,
	num_comments   text NOT NULL,
	karma_points   text NOT NULL,
	upvote_percent text NOT NULL,
	scraped_at     timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (subreddit, title, posted_at, posted_by)
)`, s.posts),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	subreddit       text NOT NULL,
	post_title      text NOT NULL,
	original_poster text NOT NULL,
	commenter       text NOT NULL,
	commented_at    text NOT NULL,
	num_replies     text NOT NULL,
	karma_points    text NOT NULL,
	scraped_at      timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (subreddit, post_title, original_poster, commenter, commented_at)
)`, s.comments),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SavePosts inserts posts in one transaction.
func (s *RecordStore) SavePosts(ctx context.Context, posts []crawler.PostRecord) error {
	if len(posts) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (subreddit, title, posted_at, posted_by, num_comments, karma_points, upvote_percent)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT DO NOTHING`, s.posts)

	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, p := range posts {
			if _, err := tx.Exec(ctx, query,
				s.subreddit, p.Title, p.PostedAt, p.PostedBy, p.NumComments, p.KarmaPoints, p.UpvotePercent,
			); err != nil {
				return fmt.Errorf("insert post %q: %w", p.Title, err)
			}
		}
		return nil
	})
}

// SaveComments inserts comments in one transaction.
func (s *RecordStore) SaveComments(ctx context.Context, comments []crawler.CommentRecord) error {
	if len(comments) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (subreddit, post_title, original_poster, commenter, commented_at, num_replies, karma_points)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT DO NOTHING`, s.comments)

	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, c := range comments {
			if _, err := tx.Exec(ctx, query,
				s.subreddit, c.PostTitle, c.OriginalPoster, c.Commenter, c.CommentedAt, c.NumReplies, c.KarmaPoints,
			); err != nil {
				return fmt.Errorf("insert comment by %q: %w", c.Commenter, err)
			}
		}
		return nil
	})
}

func (s *RecordStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if s == nil || s.pool == nil {
		return errors.New("record store is not configured")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
