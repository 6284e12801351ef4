package cli

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/faultline/internal/control"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the telemetry collector",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Collector
	app, err := control.NewCollector(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize collector", "error", err)
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	slog.Info("Collector started", "config", cfgPath)
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Collector failed", "error", err)
		return err
	}
	slog.Info("Received signal, shutting down...")
	return nil
}
