// Package cmd defines and implements the CLI commands for the subreddit-scraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	internalconfig "github.com/SkippTopp/reddit-scripts/internal/config"
)

// newCrawlCmd creates the 'crawl' subcommand. Its flags are bound into Viper
// so they override the config file and environment.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls a subreddit and saves its posts and comments",
		Long: `Seeds the crawl with the subreddit's new, top and controversial listings,
follows pagination, visits every post and its comment page with a pool of
workers, and writes the deduplicated posts and comments to two workbooks.`,
		Example: `  subreddit-scraper crawl --subreddit golang
  subreddit-scraper crawl -s AskHistorians --workers 4 --output-dir ./out`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}

	flags := cmd.Flags()
	flags.StringP("subreddit", "s", internalconfig.DefaultSubreddit, "subreddit to scrape")
	flags.Int("workers", 8, "number of concurrent crawl workers")
	flags.String("output-dir", ".", "directory the workbooks are written to")

	bind := map[string]string{
		"scraper.subreddit": "subreddit",
		"scraper.workers":   "workers",
		"export.output_dir": "output-dir",
	}
	for key, flag := range bind {
		// The flag exists, so BindPFlag cannot fail here.
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	summary, err := appInstance.Run(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		// PersistentPostRun is skipped when RunE fails.
		defer appInstance.Close()
		if errors.Is(err, context.Canceled) && summary.PostsFile != "" {
			logger.Warn("Crawl interrupted; partial results were saved",
				zap.String("posts_file", summary.PostsFile),
				zap.String("comments_file", summary.CommentsFile),
			)
		}
		return fmt.Errorf("crawl %s: %w", viper.GetString("scraper.subreddit"), err)
	}

	logger.Info("Crawl command finished.",
		zap.String("run_id", summary.RunID),
		zap.Int("posts", summary.Posts),
		zap.Int("comments", summary.Comments),
		zap.Int64("failed_tasks", summary.FailedTasks),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
