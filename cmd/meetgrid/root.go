package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/meetgrid/internal/config"
	"github.com/example/meetgrid/internal/logging"
)

// rootOptions holds global flags and the state loaded before any subcommand runs.
type rootOptions struct {
	ConfigPath string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "meetgrid",
		Short:         "Group availability scheduling server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.ConfigPath
			if path == "" {
				path = os.Getenv("MEETGRID_CONFIG")
			}
			cfg, err := config.LoadFrom(path, os.LookupEnv)
			if err != nil {
				return err
			}
			logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logger
			slog.SetDefault(logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file (overrides MEETGRID_CONFIG)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newRelayCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newPurgeCommand(opts))
	return cmd
}
