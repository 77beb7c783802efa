package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/peacemap/riskengine/internal/infrastructure/config"
	"github.com/peacemap/riskengine/pkg/observability"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "riskd",
		Short:         "Multi-factor risk scoring and anomaly detection engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("RISKENGINE_CONFIG"),
		"path to a YAML config file (RISKENGINE_* environment variables override it)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newScoreCmd(opts),
		newGenCertsCmd(),
		newGenKeysCmd(),
		newTokenCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func logConfig(cfg *config.Config) observability.LogConfig {
	return observability.LogConfig{
		Output:      os.Stderr,
		Level:       cfg.Service.LogLevel,
		Format:      cfg.Service.LogFormat,
		Service:     cfg.Service.Name,
		Environment: cfg.Service.Environment,
	}
}
