package core

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
)

// WriteFlatFile writes header and rows as UTF-8 CSV to path, replacing any
// existing file. The write is all-or-nothing: readers see either the old
// file or the complete new one.
func WriteFlatFile(path string, header []string, rows [][]string) error {
	return WriteAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	})
}

// WriteAtomic sanitizes path, creates its parent directories, and streams
// fill into a temp file in the same directory before renaming it over
// path. On any failure the temp file is removed and an *OutputWriteError
// is returned.
func WriteAtomic(path string, fill func(w io.Writer) error) (err error) {
	path = SanitizePath(path)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &OutputWriteError{Path: dir, Op: "mkdir", Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &OutputWriteError{Path: path, Op: "create", Err: err}
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		return &OutputWriteError{Path: path, Op: "write", Err: err}
	}
	if err := bw.Flush(); err != nil {
		return &OutputWriteError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &OutputWriteError{Path: path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &OutputWriteError{Path: path, Op: "close", Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &OutputWriteError{Path: path, Op: "chmod", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &OutputWriteError{Path: path, Op: "rename", Err: err}
	}
	return nil
}
