// Package app wires configuration to the stores, fetcher, pipeline,
// reporter and background runner shared by both binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/labelsync/internal/config"
	"github.com/JonMunkholm/labelsync/internal/core"
	"github.com/JonMunkholm/labelsync/internal/extract"
	"github.com/JonMunkholm/labelsync/internal/fetch"
	"github.com/JonMunkholm/labelsync/internal/jobs"
	"github.com/JonMunkholm/labelsync/internal/logging"
	"github.com/JonMunkholm/labelsync/internal/report"
	"github.com/JonMunkholm/labelsync/internal/store/postgres"
	"github.com/JonMunkholm/labelsync/internal/store/sqlite"
)

// Application holds the long-lived collaborators of one process.
type Application struct {
	cfg *config.Config
	log *slog.Logger

	opener   core.StoreOpener
	catalog  core.Catalog
	fetcher  *fetch.Fetcher
	reporter *report.Reporter
	runner   *jobs.Runner
	pool     *pgxpool.Pool
}

// New builds an Application for cfg. With the postgres driver it connects
// and migrates before returning.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Application, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &Application{cfg: cfg, log: log}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Store.URL, postgres.PoolConfig{
			MaxConns:        cfg.Store.MaxConns,
			MinConns:        cfg.Store.MinConns,
			MaxConnLifetime: cfg.Store.MaxConnLifetime,
			MaxConnIdleTime: cfg.Store.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		a.pool = pool
		a.opener = postgres.Opener{Pool: pool, Log: log.With("component", "store")}
		a.catalog = postgres.NewCatalog(pool)
	default:
		a.opener = sqlite.Opener{Debug: cfg.Store.DebugSQL, Log: log.With("component", "store")}
		a.catalog = sqlite.NewCatalog(cfg.Paths.ReportsDir(), cfg.Store.DebugSQL, log.With("component", "catalog"))
	}

	a.fetcher = fetch.New(cfg.Fetch, cfg.Paths.OutputDir, log.With("component", "fetch"))
	a.reporter = report.New(a.catalog, log.With("component", "report"))
	a.runner = jobs.NewRunner(a.Execute,
		jobs.WithRetention(cfg.Jobs.ResultRetention),
		jobs.WithTimeout(cfg.Jobs.Timeout),
		jobs.WithLogger(log.With("component", "jobs")),
	)
	return a, nil
}

// Close releases the database pool, if any.
func (a *Application) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// Config returns the loaded configuration.
func (a *Application) Config() *config.Config { return a.cfg }

// Catalog returns the read side of the configured store.
func (a *Application) Catalog() core.Catalog { return a.catalog }

// Runner returns the background task runner.
func (a *Application) Runner() *jobs.Runner { return a.runner }

// RunConfig builds the run configuration for opts.
func (a *Application) RunConfig(opts jobs.Options) core.RunConfig {
	return core.RunConfig{
		SourceDir: a.cfg.Paths.OutputDir,
		OutputDir: a.cfg.Paths.ReportsDir(),
		DateBegin: opts.Begin,
		DateEnd:   opts.End,
		Now:       time.Now,
	}.WithDefaults()
}

// Execute runs one job: an optional download, the consolidation and the
// PDF summary. It is the jobs.Work of the application's runner.
func (a *Application) Execute(ctx context.Context, req jobs.Request) (*core.RunReport, error) {
	cfg := a.RunConfig(req.Options)

	if req.Options.Fetch {
		if _, err := a.Fetch(ctx, req.Kind, req.Options.Force, cfg.DateBegin, cfg.DateEnd); err != nil {
			return nil, err
		}
	}

	return a.consolidate(ctx, req.ID, req.Kind, cfg, a.opener, req.Observe)
}

// Consolidate runs the pipeline in the foreground with an explicit run
// configuration. Without withStore only the flat file is written.
func (a *Application) Consolidate(ctx context.Context, kind core.DatasetKind, cfg core.RunConfig, withStore bool) (*core.RunReport, error) {
	var opener core.StoreOpener
	if withStore {
		opener = a.opener
	}
	return a.consolidate(ctx, uuid.New().String(), kind, cfg.WithDefaults(), opener, nil)
}

func (a *Application) consolidate(ctx context.Context, id string, kind core.DatasetKind, cfg core.RunConfig, opener core.StoreOpener, observe core.Observer) (*core.RunReport, error) {
	log := logging.ForRun(ctx, string(kind), id)
	opts := []core.Option{
		core.WithLogger(logging.FromContext(ctx)),
		core.WithObserver(observe),
	}
	if id != "" {
		opts = append(opts, core.WithRunID(func() string { return id }))
	}

	rep, err := core.NewPipeline(opener, opts...).Run(ctx, kind, cfg)
	if err != nil {
		return rep, err
	}

	if _, err := a.reporter.Generate(ctx, rep); err != nil {
		rep.Warnings++
		log.Warn("summary report failed", "error", err)
	}
	return rep, nil
}

// Report rewrites the PDF summary of kind's newest flat file from the
// stored data.
func (a *Application) Report(ctx context.Context, kind core.DatasetKind) (string, error) {
	spec, err := core.MustGet(kind)
	if err != nil {
		return "", err
	}
	flat, err := core.LatestOutput(a.cfg.Paths.ReportsDir(), spec)
	if err != nil {
		return "", err
	}
	return a.reporter.Regenerate(ctx, kind, flat)
}

// Fetch downloads kind's exports for the configured roster. With force the
// kind's previous downloads and outputs are cleared first.
func (a *Application) Fetch(ctx context.Context, kind core.DatasetKind, force bool, begin, end string) ([]fetch.Result, error) {
	roster, err := config.LoadArtists(a.cfg.Paths.ArtistsFile)
	if err != nil {
		return nil, err
	}

	if force {
		removed, err := fetch.ClearOutputs(a.cfg.Paths.OutputDir, a.cfg.Paths.ReportsDir(), kind)
		if err != nil {
			return nil, err
		}
		a.log.Info("cleared previous outputs", "kind", kind, "removed", len(removed))
	}

	results, err := a.fetcher.WithForce(force || a.cfg.Fetch.Force).FetchAll(ctx, kind, roster, begin, end)
	if err != nil {
		return results, err
	}

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	a.log.Info("fetch complete", "kind", kind, "artists", len(results), "failed", failed)
	return results, nil
}

// Extract unpacks downloaded album archives.
func (a *Application) Extract(ctx context.Context) ([]extract.Result, error) {
	return extract.ExtractAll(ctx, a.cfg.Paths.DownloadPath, a.cfg.Paths.ExtractionPath, a.log.With("component", "extract"))
}

// Albums lists extracted albums.
func (a *Application) Albums() ([]extract.ArtistAlbums, error) {
	return extract.ListAlbums(a.cfg.Paths.ExtractionPath)
}

// RunAll executes every kind concurrently in the foreground. Kinds write
// disjoint outputs, so they never contend for a store file.
func (a *Application) RunAll(ctx context.Context, opts jobs.Options) (map[core.DatasetKind]*core.RunReport, error) {
	kinds := core.Kinds()
	reports := make([]*core.RunReport, len(kinds))

	g, gCtx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			rep, err := a.Execute(gCtx, jobs.Request{ID: uuid.New().String(), Kind: kind, Options: opts})
			reports[i] = rep
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			return nil
		})
	}
	err := g.Wait()

	out := make(map[core.DatasetKind]*core.RunReport, len(kinds))
	for i, kind := range kinds {
		if reports[i] != nil {
			out[kind] = reports[i]
		}
	}
	return out, err
}

// Shutdown drains running tasks within ctx.
func (a *Application) Shutdown(ctx context.Context) error {
	return a.runner.Wait(ctx)
}
