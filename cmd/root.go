package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SkippTopp/reddit-scripts/internal/app"
	internalconfig "github.com/SkippTopp/reddit-scripts/internal/config"
	"github.com/SkippTopp/reddit-scripts/internal/crawler"
	"github.com/SkippTopp/reddit-scripts/internal/logging"
	"github.com/SkippTopp/reddit-scripts/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use, so tests can
// inject a mock.
type App interface {
	Run(ctx context.Context, out io.Writer) (crawler.Summary, error)
	Logger() *zap.Logger
	Close()
}

// newApp is the application factory. It is a variable so tests can replace
// it with a mock factory.
var newApp = func(ctx context.Context, cfg internalconfig.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subreddit-scraper",
		Short: "Scrapes every post and comment of a subreddit into Excel workbooks.",
		Long: `subreddit-scraper walks the new, top and controversial listings of a
subreddit, visits every post and its comment page, and writes two workbooks:

  <subreddit>_posts.xlsx     Post Title | Post Date/Time | Posted By | # Comments | Karma Points | Upvote %
  <subreddit>_comments.xlsx  Post Title | Original Poster | Commenter | Comment Date/Time | # Replies | Karma Points`,
		SilenceUsage: true,

		// Runs after flags are parsed and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.InitConfig(cfgFile); err != nil {
				return err
			}
			cfg, err := internalconfig.FromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			logging.SetLogger(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./config.yaml, /etc/subreddit-scraper/ or $HOME/.subreddit-scraper/)")

	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the crawl; the
// partial results are still exported before the process exits.
func Execute() {
	logging.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}
