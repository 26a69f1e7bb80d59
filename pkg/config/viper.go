// Package config wires the process-wide Viper instance used by the CLI.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	internalconfig "github.com/SkippTopp/reddit-scripts/internal/config"
	"github.com/SkippTopp/reddit-scripts/internal/logging"
)

// InitConfig prepares the global Viper instance. An explicit cfgFile must
// exist; otherwise config.yaml is looked up in the working directory,
// /etc/subreddit-scraper and $HOME/.subreddit-scraper, and its absence is
// not an error.
func InitConfig(cfgFile string) error {
	v := viper.GetViper()
	internalconfig.Prepare(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		logging.L.Info("Using config file", zap.String("path", v.ConfigFileUsed()))
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/subreddit-scraper/")
	v.AddConfigPath("$HOME/.subreddit-scraper")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logging.L.Debug("No config file found; using defaults and environment")
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	logging.L.Info("Using config file", zap.String("path", v.ConfigFileUsed()))
	return nil
}
