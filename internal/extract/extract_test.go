package extract

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// writeZip creates an archive at path holding files (name -> content).
func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractAll(t *testing.T) {
	downloads := t.TempDir()
	extracted := t.TempDir()

	good := filepath.Join(downloads, "Luna - Night Songs.zip")
	nested := filepath.Join(downloads, "batch", "Nox - Live - Deluxe.zip")
	badName := filepath.Join(downloads, "untitled.zip")
	writeZip(t, good, map[string]string{"01 Intro.flac": "a", "cover.jpg": "c", "extras/notes.txt": "n"})
	writeZip(t, nested, map[string]string{"cover.jpg": "c"})
	writeZip(t, badName, map[string]string{"x": "y"})

	results, err := ExtractAll(context.Background(), downloads, extracted, discard)
	if err != nil {
		t.Fatalf("ExtractAll() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}

	byArchive := map[string]Result{}
	for _, r := range results {
		byArchive[r.Archive] = r
	}

	if r := byArchive[good]; r.Err != nil || r.Files != 3 {
		t.Errorf("good archive = %+v, want 3 files and no error", r)
	}
	if _, err := os.Stat(filepath.Join(extracted, "Luna", "Night Songs", "extras", "notes.txt")); err != nil {
		t.Errorf("nested entry not extracted: %v", err)
	}
	if _, err := os.Stat(good); !os.IsNotExist(err) {
		t.Errorf("archive should be deleted after extraction, stat err = %v", err)
	}

	if r := byArchive[nested]; r.Destination != filepath.Join(extracted, "Nox", "Live - Deluxe") {
		t.Errorf("nested destination = %q", r.Destination)
	}

	if r := byArchive[badName]; !errors.Is(r.Err, ErrArchiveName) {
		t.Errorf("bad name err = %v, want ErrArchiveName", r.Err)
	}
	if _, err := os.Stat(badName); err != nil {
		t.Errorf("failed archive should be kept: %v", err)
	}
}

func TestExtractAll_ZipSlip(t *testing.T) {
	downloads := t.TempDir()
	extracted := t.TempDir()

	path := filepath.Join(downloads, "Evil - Album.zip")
	writeZip(t, path, map[string]string{"../../escape.txt": "x"})

	results, err := ExtractAll(context.Background(), downloads, extracted, discard)
	if err != nil {
		t.Fatalf("ExtractAll() error = %v", err)
	}
	if results[0].Err == nil {
		t.Fatal("expected illegal file path error")
	}
	if _, err := os.Stat(filepath.Join(extracted, "escape.txt")); !os.IsNotExist(err) {
		t.Errorf("entry escaped the destination, stat err = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("rejected archive should be kept: %v", err)
	}
}

func TestExtractAll_MissingDir(t *testing.T) {
	results, err := ExtractAll(context.Background(), filepath.Join(t.TempDir(), "none"), t.TempDir(), discard)
	if err != nil || len(results) != 0 {
		t.Errorf("ExtractAll() = %v, %v; want nothing", results, err)
	}
}

func TestDestination(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"Luna - Album.zip", filepath.Join("x", "Luna", "Album"), false},
		{"Luna -  Spaced .zip", filepath.Join("x", "Luna", "Spaced"), false},
		{"NoSeparator.zip", "", true},
		{" - Album.zip", "", true},
		{".. - ...zip", "", true},
	}
	for _, tt := range tests {
		got, err := destination("x", tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("destination(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("destination(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestListAlbums(t *testing.T) {
	root := t.TempDir()
	mk := func(parts ...string) {
		p := filepath.Join(append([]string{root}, parts...)...)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mk("Nox", "B Side", CoverFile)
	mk("Nox", "A Side", CoverFile)
	mk("Nox", "No Cover", "track.flac")
	mk("Luna", "Debut", CoverFile)
	mk("Empty", "Draft", "notes.txt")
	mk("stray.txt")

	got, err := ListAlbums(root)
	if err != nil {
		t.Fatalf("ListAlbums() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].Artist != "Luna" || got[1].Artist != "Nox" {
		t.Errorf("artists = %q, %q; want Luna, Nox", got[0].Artist, got[1].Artist)
	}
	if len(got[1].Albums) != 2 || got[1].Albums[0] != "A Side" {
		t.Errorf("Nox albums = %v, want [A Side B Side]", got[1].Albums)
	}
}
