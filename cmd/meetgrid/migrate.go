package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/meetgrid/internal/persistence/sqlite"
)

type migrateOptions struct {
	*rootOptions
	Status bool
}

func newMigrateCommand(root *rootOptions) *cobra.Command {
	opts := &migrateOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply sqlite schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := sqlite.NewConnectionPool(ctx, sqlite.DefaultConfig(opts.cfg.SQLitePath))
			if err != nil {
				return fmt.Errorf("open sqlite: %w", err)
			}
			defer pool.Close()

			if !opts.Status {
				if err := sqlite.Migrate(ctx, pool, opts.logger); err != nil {
					return err
				}
			}
			status, err := sqlite.MigrationStatus(ctx, pool, opts.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "database: %s\n", opts.cfg.SQLitePath)
			fmt.Fprintf(out, "current version: %s\n", valueOr(status.CurrentVersion, "none"))
			for _, a := range status.Applied {
				fmt.Fprintf(out, "applied  %s  %s\n", a.Version, a.AppliedAt.UTC().Format("2006-01-02T15:04:05Z"))
			}
			for _, p := range status.Pending {
				fmt.Fprintf(out, "pending  %s  %s\n", p.Version, p.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Status, "status", false, "report migration state without applying")
	return cmd
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
