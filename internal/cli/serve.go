package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/cohort/internal/api"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload form and the HTTP API",
		Args:  cobra.NoArgs,
		Run:   runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "Listen port (default: $COHORT_PORT)")
	cmd.Flags().String("data-dir", "", "Where uploads and run outputs are kept (default: <output dir>/jobs)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dataDir = filepath.Join(cfg.OutputDir, "jobs")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	proc, cleanup, err := newProcessor(ctx, cfg, logger)
	if err != nil {
		exitErr("setup", err)
	}
	defer cleanup()

	if cfg.APIToken == "" {
		logger.Warn("COHORT_API_TOKEN not set, API is unauthenticated")
	}
	srv := api.NewServer(cfg.Port, cfg.APIToken, proc, dataDir, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Info("cohort ready", "port", cfg.Port, "data_dir", dataDir)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			cleanup()
			exitErr("HTTP server", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}
	logger.Info("cohort stopped")
}
