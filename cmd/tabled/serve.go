package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabled/internal/core"
	"github.com/JonMunkholm/tabled/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API and the background maintenance loop.

The server shuts down gracefully on SIGINT or SIGTERM: running imports are
given SERVER_SHUTDOWN_TIMEOUT to finish before connections are closed.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, cfg.Database.AutoMigrate)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.service.StartMaintenance(ctx, a.sweeper, core.MaintenanceConfig{
		Interval:    cfg.Maintenance.Interval,
		WarmCatalog: cfg.Maintenance.WarmCatalog,
	})

	server := web.NewServer(a.service, cfg, a.metrics)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-errCh:
		return err
	}

	// Stop background work first
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	limiter := a.service.Limiter()
	if active := limiter.ActiveCount(); active > 0 {
		slog.Info("waiting for imports to finish", "active", active)
		if err := limiter.WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("imports did not complete in time", "active", limiter.ActiveCount(), "error", err)
		} else {
			slog.Info("all imports completed")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return err
	}

	slog.Info("server stopped")
	return nil
}
