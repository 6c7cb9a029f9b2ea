package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"salesforecast/internal/config"
	"salesforecast/internal/infrastructure"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "forecast",
		Short: "Train and apply sales forecasting models",
		Long: `forecast loads historical sales data, engineers time-series features,
trains and compares regression models and scores new data with a saved bundle.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = infrastructure.NewLogger(opts.logLevel, cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to config.yaml (searches ./config.yaml and ./configs/config.yaml when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn",
		"Log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newGenerateCmd(opts),
		newInfoCmd(opts),
		newRunCmd(opts),
		newPredictCmd(opts),
		newDatasetsCmd(opts),
	)
	return rootCmd
}

// loadConfig reads the configuration and applies the --log-level override.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Level = o.logLevel
	return cfg, nil
}

// commandContext returns the command's context, or Background when run
// outside Execute as tests do.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (o *rootOptions) log() *slog.Logger {
	if o.logger == nil {
		return infrastructure.GetLogger()
	}
	return o.logger
}
