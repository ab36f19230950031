package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/labelsync/internal/core"
)

// ClearOutputs prepares a fresh download for kind: the kind's download
// subdirectory under outputDir is emptied and any prior consolidated flat,
// store or PDF outputs of that kind in reportsDir are removed. Other kinds'
// files are left alone. It returns the removed report file names.
func ClearOutputs(outputDir, reportsDir string, kind core.DatasetKind) ([]string, error) {
	spec, err := core.MustGet(kind)
	if err != nil {
		return nil, err
	}

	sub := filepath.Join(outputDir, spec.SourceSubdir)
	if err := os.RemoveAll(sub); err != nil {
		return nil, fmt.Errorf("clear %s: %w", sub, err)
	}
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", sub, err)
	}

	entries, err := os.ReadDir(reportsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", reportsDir, err)
	}

	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if !spec.IsOutputName(name) && !strings.HasPrefix(name, spec.StorePrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(reportsDir, name)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}
