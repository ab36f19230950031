package core

import (
	"fmt"
	"path/filepath"
	"time"
)

// RunConfig is the immutable configuration of one consolidation run. It is
// built once per invocation and passed by value to every stage.
type RunConfig struct {
	// SourceDir holds the per-kind download subdirectories (mails/, revenues/).
	SourceDir string
	// OutputDir receives the flat file and the embedded store file.
	OutputDir string

	// DateBegin and DateEnd are the declared revenue report range
	// (YYYY-MM-DD). They are recorded as provenance on revenue rows.
	DateBegin string
	DateEnd   string

	// Now is the run clock. It stamps month-scoped file names and stands in
	// for unparseable dates.
	Now func() time.Time
}

// NewRunConfig returns a RunConfig with the date range defaulted to the
// current calendar month.
func NewRunConfig(sourceDir, outputDir string) RunConfig {
	cfg := RunConfig{
		SourceDir: sourceDir,
		OutputDir: outputDir,
		Now:       time.Now,
	}
	return cfg.WithDefaults()
}

// WithDefaults fills any zero fields and returns the completed copy.
func (c RunConfig) WithDefaults() RunConfig {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.DateBegin == "" || c.DateEnd == "" {
		begin, end := MonthRange(c.Now())
		if c.DateBegin == "" {
			c.DateBegin = begin
		}
		if c.DateEnd == "" {
			c.DateEnd = end
		}
	}
	return c
}

// Validate checks the run configuration.
func (c RunConfig) Validate() error {
	if c.SourceDir == "" {
		return fmt.Errorf("run config: source directory is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("run config: output directory is required")
	}
	for _, d := range []string{c.DateBegin, c.DateEnd} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("run config: invalid date %q, want YYYY-MM-DD", d)
		}
	}
	return nil
}

// SourceDirFor returns the directory holding raw files for spec.
func (c RunConfig) SourceDirFor(spec DatasetSpec) string {
	return filepath.Join(c.SourceDir, spec.SourceSubdir)
}

// FlatPath returns the sanitized flat output path for spec.
func (c RunConfig) FlatPath(spec DatasetSpec) string {
	return SanitizePath(filepath.Join(c.OutputDir, spec.FlatFileName(c.Now())))
}

// StorePath returns the sanitized embedded store path for spec.
func (c RunConfig) StorePath(spec DatasetSpec) string {
	return SanitizePath(filepath.Join(c.OutputDir, spec.StoreFileName(c.Now())))
}

// MonthRange returns the first and last day of t's month as YYYY-MM-DD.
func MonthRange(t time.Time) (string, string) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1)
	return first.Format("2006-01-02"), last.Format("2006-01-02")
}
