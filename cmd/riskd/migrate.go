package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peacemap/riskengine/pkg/observability"
	pgutil "github.com/peacemap/riskengine/pkg/postgres"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or with --down, roll back) the score store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is not configured")
			}
			logger := observability.NewLogger(logConfig(cfg))

			run, verb := pgutil.RunMigrations, "applied"
			if down {
				run, verb = pgutil.RunMigrationsDown, "rolled back"
			}
			res, err := run(cfg.Database.URL, cfg.Database.MigrationsDir, logger)
			if err != nil {
				return err
			}
			if !res.Applied() {
				fmt.Fprintf(cmd.OutOrStdout(), "schema already at version %d\n", res.To)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: version %d -> %d\n", verb, res.From, res.To)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration")
	return cmd
}
