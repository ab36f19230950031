package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/labelsync/internal/app"
	"github.com/JonMunkholm/labelsync/internal/config"
	"github.com/JonMunkholm/labelsync/internal/core"
	"github.com/JonMunkholm/labelsync/internal/jobs"
	"github.com/JonMunkholm/labelsync/internal/logging"
	"github.com/JonMunkholm/labelsync/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_driver", cfg.Store.Driver,
		"output_dir", cfg.Paths.OutputDir,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"schedule_interval", cfg.Jobs.ScheduleInterval.String(),
	)

	ctx := context.Background()
	application, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("failed to initialise application", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	for _, spec := range core.All() {
		slog.Debug("dataset registered", "kind", spec.Kind, "source", spec.SourceSubdir)
	}

	server := web.NewServer(application)

	// Background scheduler stops with jobCtx.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go application.Runner().StartScheduler(jobCtx, cfg.Jobs.ScheduleInterval, core.Kinds(), jobs.Options{
		Fetch: cfg.Jobs.ScheduleFetch,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if n := application.Runner().Active(); n > 0 {
			slog.Info("waiting for running tasks", "active", n)
			if err := application.Shutdown(shutdownCtx); err != nil {
				slog.Warn("tasks did not finish in time", "error", err)
			} else {
				slog.Info("all tasks finished")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		cancelJobs()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
