package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fmueller/transkribera/internal/config"
	"github.com/fmueller/transkribera/internal/logging"
	"github.com/fmueller/transkribera/internal/metrics"
	"github.com/fmueller/transkribera/internal/server"
	"github.com/fmueller/transkribera/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewWebCmd is the root command of the transkribera-web binary.
func NewWebCmd() *cobra.Command {
	return newWebCmd(newAppState())
}

func newWebCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "transkribera-web",
		Short:         "Serve the Swedish transcription web application",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.resolveConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{Verbose: cfg.Log.Verbose, JSON: cfg.Log.JSON, File: cfg.Log.File})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			return serveWeb(cmd.Context(), cfg, logger)
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindConfigFlag(cmd, app)
	bindLoggingFlags(cmd, app)
	bindModelFlags(cmd, app)
	bindBackendFlags(cmd, app)
	bindLanguageAndSilenceFlags(cmd, app)
	cmd.Flags().StringVar(&app.addr, "addr", config.DefaultAddr, "Listen address")

	return cmd
}

// serveWeb starts the model load in the background and serves until SIGINT,
// SIGTERM or ctx cancellation.
func serveWeb(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := server.New(cfg, logger, metrics.New())
	logger.Info("starting transkribera web",
		zap.String("version", version.Resolve()),
		zap.String("addr", cfg.Server.Addr),
		zap.String("model", cfg.Model.Name),
		zap.String("backend", cfg.Model.Backend),
	)

	app.StartLoading(ctx, server.ModelLoader(cfg, logger))
	return app.Run(ctx)
}
