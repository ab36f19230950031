package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Pipeline consolidates the source files of one dataset kind into a flat
// file and a relational store.
//
// A run is synchronous and single-threaded: each file is fully read and
// folded before the next is opened. Callers must not run two
// consolidations of the same kind at once; the flat file and store have no
// internal locking.
type Pipeline struct {
	opener   StoreOpener
	resolver *EncodingResolver
	observer Observer
	log      *slog.Logger
	newID    func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReadFile replaces the function used to load source files.
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(p *Pipeline) {
		p.resolver = NewEncodingResolver(fn)
	}
}

// WithObserver registers a progress callback.
func WithObserver(obs Observer) Option {
	return func(p *Pipeline) {
		p.observer = obs
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithRunID overrides run ID generation.
func WithRunID(fn func() string) Option {
	return func(p *Pipeline) {
		p.newID = fn
	}
}

// NewPipeline creates a pipeline writing relational rows through opener.
// A nil opener produces only the flat file.
func NewPipeline(opener StoreOpener, opts ...Option) *Pipeline {
	p := &Pipeline{
		opener:   opener,
		resolver: NewEncodingResolver(nil),
		log:      slog.Default(),
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunConsolidation runs the pipeline for kind with the default run
// configuration for the given directories.
func (p *Pipeline) RunConsolidation(ctx context.Context, kind DatasetKind, sourceDir, outputDir string) (*RunReport, error) {
	return p.Run(ctx, kind, NewRunConfig(sourceDir, outputDir))
}

// runState carries the per-run values threaded through the phases.
type runState struct {
	spec   DatasetSpec
	cfg    RunConfig
	report *RunReport
	log    *slog.Logger
	files  []SourceFile

	merger  *IdentityMerger
	revenue []RawRecord

	subscriberRows []SubscriberRow
	revenueRows    []RevenueRow
}

// Run executes one consolidation.
//
// Per-file failures (unreadable files, undecodable text, broken CSV) are
// logged and recorded in the report; the run continues with the next file.
// A run with no source files returns a NothingToDo report. The returned
// error is non-nil only when the outputs cannot be written, and the partial
// report is returned alongside it.
func (p *Pipeline) Run(ctx context.Context, kind DatasetKind, cfg RunConfig) (*RunReport, error) {
	spec, err := MustGet(kind)
	if err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := p.newID()
	st := &runState{
		spec: spec,
		cfg:  cfg,
		report: &RunReport{
			RunID:     runID,
			Kind:      kind,
			Totals:    make(map[string]float64),
			StartedAt: time.Now(),
		},
		log: p.log.With("run_id", runID, "kind", string(kind)),
	}

	defer func() {
		st.report.FinishedAt = time.Now()
		p.emit(st, Progress{Phase: PhaseIdle})
	}()

	p.emit(st, Progress{Phase: PhaseDiscovering})
	files, err := Discover(spec, cfg)
	if errors.Is(err, ErrNoSourceFiles) {
		st.report.NothingToDo = true
		st.log.Info("no source files found, nothing to do", "dir", cfg.SourceDirFor(spec))
		return st.report, nil
	}
	if err != nil {
		return st.report, err
	}
	st.files = files
	st.report.FilesDiscovered = len(files)
	st.log.Info("consolidation started", "files", len(files))

	if kind == KindMails {
		st.merger = NewIdentityMerger(cfg.Now, st.log)
	}

	for i, f := range files {
		p.readFile(st, i, f)
	}

	p.emit(st, Progress{Phase: PhaseMerging})
	flatRows := p.merge(st)

	p.emit(st, Progress{Phase: PhaseWritingFlat, Records: len(flatRows)})
	flatPath := cfg.FlatPath(spec)
	if err := WriteFlatFile(flatPath, spec.FlatHeader(), flatRows); err != nil {
		st.log.Error("failed to write flat file", "path", flatPath, "error", err)
		return st.report, err
	}
	st.report.OutputFlatPath = flatPath

	if p.opener != nil {
		p.emit(st, Progress{Phase: PhaseWritingStore})
		if err := p.writeStore(ctx, st); err != nil {
			st.log.Error("failed to write store", "error", err)
			return st.report, err
		}
	}

	p.emit(st, Progress{Phase: PhaseReporting})
	st.log.Info("consolidation complete",
		"files_discovered", st.report.FilesDiscovered,
		"files_processed", st.report.FilesProcessed,
		"failed_files", len(st.report.FailedFiles),
		"unique", st.report.UniqueIdentitiesOrRows,
		"store_rows", st.report.StoreRowsWritten,
		"rows_skipped", st.report.RowsSkipped,
		"flat", st.report.OutputFlatPath,
		"store", st.report.OutputStorePath,
	)
	return st.report, nil
}

// readFile decodes, parses and folds one source file. Failures are
// absorbed into the report.
func (p *Pipeline) readFile(st *runState, i int, f SourceFile) {
	p.emit(st, Progress{Phase: PhaseReading, File: f.Name(), FileIdx: i + 1})

	decoded, err := p.resolver.Resolve(f.Path)
	if err != nil {
		p.failFile(st, f, err)
		return
	}

	res, err := ReadRecords(decoded.Reader(), f, st.spec, st.log)
	if err != nil {
		p.failFile(st, f, err)
		return
	}

	st.report.FilesProcessed++
	st.report.Warnings += res.Warnings

	switch st.spec.Kind {
	case KindMails:
		st.merger.AddAll(res.Records)
	default:
		st.revenue = append(st.revenue, res.Records...)
	}

	st.log.Debug("file read",
		"file", f.Name(),
		"encoding", decoded.Encoding,
		"records", len(res.Records),
		"blank_rows", res.BlankRows,
	)
}

func (p *Pipeline) failFile(st *runState, f SourceFile, err error) {
	st.report.FailedFiles = append(st.report.FailedFiles, f.Name())
	st.report.Warnings++
	if errors.Is(err, ErrDecodeFailure) {
		st.log.Warn("skipping undecodable file", "file", f.Name(), "error", err)
		return
	}
	st.log.Error("skipping unreadable file", "file", f.Name(), "error", err)
}

// merge finalizes the in-memory dataset and returns the flat file rows.
func (p *Pipeline) merge(st *runState) [][]string {
	if st.spec.Kind == KindMails {
		merged := st.merger.Result()
		rows := make([][]string, len(merged))
		for i, m := range merged {
			rows[i] = m.FlatRow()
		}
		st.report.UniqueIdentitiesOrRows = len(merged)
		st.report.Totals["unique_emails"] = float64(len(merged))
		st.report.Totals["total_purchases"] = float64(st.merger.TotalPurchases())
		st.report.Warnings += st.merger.BadDates()
		if n := st.merger.SkippedEmpty(); n > 0 {
			st.log.Info("dropped records without email", "count", n)
		}
		st.subscriberRows = p.subscriberRows(st, merged)
		return rows
	}

	rows := make([][]string, len(st.revenue))
	for i, rec := range st.revenue {
		rows[i] = st.spec.FlatProject(rec.Fields)
	}
	st.report.UniqueIdentitiesOrRows = len(st.revenue)
	st.report.Totals["rows"] = float64(len(st.revenue))
	st.revenueRows = p.revenueRows(st)
	return rows
}

// writeStore opens the store, ensures its schema and writes the run's rows.
func (p *Pipeline) writeStore(ctx context.Context, st *runState) error {
	store, err := p.opener.Open(ctx, st.spec, st.cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	st.report.OutputStorePath = store.Location()

	if err := store.EnsureSchema(ctx, st.spec.Kind); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	var written int
	switch st.spec.Kind {
	case KindMails:
		written, err = store.UpsertSubscribers(ctx, st.subscriberRows)
	default:
		written, err = store.InsertRevenue(ctx, st.revenueRows)
	}
	if err != nil {
		return fmt.Errorf("write %s rows: %w", st.spec.Kind, err)
	}
	st.report.StoreRowsWritten = written
	return nil
}

// subscriberRows and revenueRows coerce the merged data into store rows.
// Rows that fail numeric coercion are skipped.
func (p *Pipeline) subscriberRows(st *runState, merged []MergedSubscriber) []SubscriberRow {
	sources := SourceList(st.files)

	rows := make([]SubscriberRow, 0, len(merged))
	for _, m := range merged {
		row, err := ToSubscriberRow(m, sources)
		if err != nil {
			p.skipRow(st, "email", m.Identity, err)
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func (p *Pipeline) revenueRows(st *runState) []RevenueRow {
	rows := make([]RevenueRow, 0, len(st.revenue))
	var gross, net, qty float64
	for _, rec := range st.revenue {
		row, err := ToRevenueRow(RevenueFromRaw(rec), st.cfg, rec.Source.Name())
		if err != nil {
			p.skipRow(st, "file", fmt.Sprintf("%s:%d", rec.Source.Name(), rec.Line), err)
			continue
		}
		gross += row.GrossRevenue
		net += row.NetRevenue
		qty += float64(row.Quantity)
		rows = append(rows, row)
	}
	st.report.Totals["gross_revenue"] = gross
	st.report.Totals["net_revenue"] = net
	st.report.Totals["quantity"] = qty
	return rows
}

func (p *Pipeline) skipRow(st *runState, key, value string, err error) {
	st.report.RowsSkipped++
	st.report.Warnings++
	st.log.Warn("skipping row with invalid number", key, value, "error", err)
}

func (p *Pipeline) emit(st *runState, pr Progress) {
	if p.observer == nil {
		return
	}
	pr.RunID = st.report.RunID
	pr.Kind = st.spec.Kind
	pr.FileN = len(st.files)
	p.observer(pr)
}
