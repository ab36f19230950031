package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Discover lists the source files for spec under cfg.SourceDir, skipping
// prior consolidated outputs. Files are returned sorted by name.
// ErrNoSourceFiles is returned when nothing matches, including when the
// kind's source directory does not exist.
func Discover(spec DatasetSpec, cfg RunConfig) ([]SourceFile, error) {
	dir := cfg.SourceDirFor(spec)

	matches, err := filepath.Glob(filepath.Join(dir, spec.SourcePattern))
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", spec.Kind, err)
	}

	now := time.Now()
	if cfg.Now != nil {
		now = cfg.Now()
	}

	files := make([]SourceFile, 0, len(matches))
	for _, m := range matches {
		if spec.IsOutputName(filepath.Base(m)) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, SourceFile{Path: m, Kind: spec.Kind, DiscoveredAt: now})
	}

	if len(files) == 0 {
		return nil, ErrNoSourceFiles
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// LatestOutput returns the most recently written consolidated flat file of
// spec in dir. The error wraps fs.ErrNotExist when there is none.
func LatestOutput(dir string, spec DatasetSpec) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var (
		newest string
		mod    time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !spec.IsOutputName(e.Name()) || filepath.Ext(e.Name()) != ".csv" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(mod) {
			newest, mod = filepath.Join(dir, e.Name()), info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no consolidated output for %s: %w", spec.Kind, fs.ErrNotExist)
	}
	return newest, nil
}
