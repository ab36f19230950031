// Package extract unpacks downloaded album archives into
// <extraction>/<artist>/<album>/ and lists what has been extracted.
package extract

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JonMunkholm/labelsync/internal/core"
)

// ErrArchiveName is returned for archives not named "Artist - Album.zip".
var ErrArchiveName = errors.New("archive name must be \"Artist - Album.zip\"")

// CoverFile marks an album directory as complete.
const CoverFile = "cover.jpg"

// Result describes one archive.
type Result struct {
	Archive     string `json:"archive"`
	Destination string `json:"destination,omitempty"`
	Files       int    `json:"files"`
	Err         error  `json:"-"`
}

// ArtistAlbums lists one artist's extracted albums.
type ArtistAlbums struct {
	Artist string   `json:"artist"`
	Albums []string `json:"albums"`
}

// ExtractAll extracts every *.zip under downloadDir (recursively) and
// deletes each archive once it has been fully extracted. Per-archive
// failures are reported in the results; the error is for walk failures
// and cancellation.
func ExtractAll(ctx context.Context, downloadDir, extractionDir string, log *slog.Logger) ([]Result, error) {
	if log == nil {
		log = slog.Default()
	}

	var archives []string
	err := filepath.WalkDir(downloadDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".zip") {
			archives = append(archives, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", downloadDir, err)
	}

	results := make([]Result, 0, len(archives))
	for i, path := range archives {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := Result{Archive: path}
		dest, err := destination(extractionDir, filepath.Base(path))
		if err == nil {
			res.Destination = dest
			res.Files, err = extractZip(path, dest)
		}
		if err == nil {
			if rmErr := os.Remove(path); rmErr != nil {
				log.Warn("could not delete extracted archive", "archive", path, "error", rmErr)
			}
			log.Info("extracted archive", "index", i+1, "total", len(archives),
				"archive", path, "destination", dest, "files", res.Files)
		} else {
			res.Err = err
			log.Warn("extraction failed", "archive", path, "error", err)
		}
		results = append(results, res)
	}
	return results, nil
}

// destination maps "Artist - Album.zip" to extractionDir/Artist/Album.
func destination(extractionDir, name string) (string, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	artist, album, ok := strings.Cut(stem, " - ")
	artist, album = strings.TrimSpace(artist), strings.TrimSpace(album)
	if !ok || artist == "" || album == "" {
		return "", fmt.Errorf("%s: %w", name, ErrArchiveName)
	}

	dest := core.SanitizePath(filepath.Join(extractionDir, artist, album))
	if !within(extractionDir, dest) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	return dest, nil
}

// extractZip writes every entry of the archive at src under dest and
// returns the number of files written.
func extractZip(src, dest string) (int, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	n := 0
	for _, f := range zr.File {
		target := filepath.Join(dest, f.Name)
		if !within(dest, target) {
			return n, fmt.Errorf("illegal file path: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return n, err
			}
			continue
		}
		if err := writeEntry(f, target); err != nil {
			return n, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		n++
	}
	return n, nil
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// within reports whether path is strictly inside root.
func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ListAlbums returns the albums under extractionDir that have a cover
// image, grouped by artist and sorted by name. Artists without any such
// album are omitted.
func ListAlbums(extractionDir string) ([]ArtistAlbums, error) {
	artists, err := os.ReadDir(extractionDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", extractionDir, err)
	}

	var out []ArtistAlbums
	for _, a := range artists {
		if !a.IsDir() {
			continue
		}
		albums, err := os.ReadDir(filepath.Join(extractionDir, a.Name()))
		if err != nil {
			return nil, err
		}

		entry := ArtistAlbums{Artist: a.Name()}
		for _, al := range albums {
			if !al.IsDir() {
				continue
			}
			cover := filepath.Join(extractionDir, a.Name(), al.Name(), CoverFile)
			if _, err := os.Stat(cover); err == nil {
				entry.Albums = append(entry.Albums, al.Name())
			}
		}
		if len(entry.Albums) > 0 {
			sort.Strings(entry.Albums)
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Artist < out[j].Artist })
	return out, nil
}
