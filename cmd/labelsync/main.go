// Command labelsync downloads, consolidates and summarises Bandcamp
// mailing list and revenue exports from the command line.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/labelsync/internal/app"
	"github.com/JonMunkholm/labelsync/internal/config"
	"github.com/JonMunkholm/labelsync/internal/core"
	"github.com/JonMunkholm/labelsync/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "labelsync",
	Short: "Consolidate Bandcamp mailing lists and revenue reports",
	Long: `labelsync merges the per-artist CSV exports Bandcamp produces into one
deduplicated mailing list and one revenue report per month, each written
as a flat CSV, a relational store and a PDF summary.

Configuration comes from the environment (and a .env file if present).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	logLevel string
	envFile  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Read defaults from this dotenv file instead of ./.env")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", core.FormatUserError(err))
		slog.Debug("command failed", "error", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the application.
func setup(ctx context.Context) (*app.Application, error) {
	lookup := config.Lookup(os.LookupEnv)
	if envFile != "" {
		var err error
		if lookup, err = config.WithFile(lookup, envFile); err != nil {
			return nil, err
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.LoadFrom(lookup)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	return app.New(ctx, cfg, slog.Default())
}

// kindArg parses the single <kind> positional argument.
func kindArg(args []string) (core.DatasetKind, error) {
	return core.ParseKind(args[0])
}
