package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/mediaforge-api/internal/config"
	"github.com/phrazzld/mediaforge-api/internal/platform/logger"
	"github.com/spf13/cobra"
)

// rootOptions are flags shared by every subcommand.
type rootOptions struct {
	configFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "mediaforge",
		Short: "Media processing task engine",
		Long: `mediaforge admits image and video processing tasks, dispatches them to
inference providers under a concurrency limit and reconciles their results
from status polling and provider webhooks.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a config file (default ./config.yaml)")

	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newQueueCommand(),
		newTokenCommand(opts),
	)
	return cmd
}

// loadConfig reads configuration and builds the process logger from it.
func (o *rootOptions) loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.Setup(logger.Config{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})
	return cfg, log, nil
}
