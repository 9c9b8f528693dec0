package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/mri-check/internal/config"
	"github.com/example/mri-check/internal/logging"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "mri-check",
	Short: "Brain tumor MRI classification service",
	Long: `mri-check classifies brain MRI scans into four classes (glioma, meningioma,
pituitary tumor, no tumor), serves the upload page and can email the result.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}

		ctx := context.WithValue(cmd.Context(), appKey, &appContext{cfg: cfg, logger: logger})
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app, err := appFromContext(cmd.Context()); err == nil {
			_ = app.logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (default ./config.yaml if present)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type contextKey string

const appKey contextKey = "app"

type appContext struct {
	cfg    *config.Config
	logger *zap.Logger
}

func appFromContext(ctx context.Context) (*appContext, error) {
	app, ok := ctx.Value(appKey).(*appContext)
	if !ok || app == nil {
		return nil, fmt.Errorf("application context not initialised")
	}
	return app, nil
}
