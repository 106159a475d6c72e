// Package cmd defines the CLI commands for the job insights binary.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/topcv-job-insights/internal/app"
	"github.com/JakeFAU/topcv-job-insights/internal/config"
	"github.com/JakeFAU/topcv-job-insights/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests replace it to inject backends.
var newApp = app.New

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "jobinsights",
		Short: "Daily topcv.vn job listing crawler and analytics API.",
		Long: `jobinsights crawls the configured topcv.vn job categories once a day,
stores new listings without duplicates and serves aggregate analytics
over HTTP.`,
		SilenceUsage: true,

		// Builds the application once flags are parsed and before RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return nil
			}
			closeErr := a.Close(cmd.Context())
			_ = a.Logger.Sync() //nolint:errcheck // best-effort flush
			return closeErr
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newServeCmd(), newCrawlCmd(), newStatusCmd(), newCheckCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application not initialized")
	}
	return a, nil
}

// Execute runs the root command with a background context.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "jobinsights: %v\n", err)
		os.Exit(1)
	}
}
