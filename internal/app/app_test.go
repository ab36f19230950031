package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/labelsync/internal/config"
	"github.com/JonMunkholm/labelsync/internal/core"
	"github.com/JonMunkholm/labelsync/internal/fetch"
	"github.com/JonMunkholm/labelsync/internal/jobs"
	"github.com/JonMunkholm/labelsync/internal/report"
)

const lunaMailing = "email,fullname,firstname,lastname,date added,country,postal code,num purchases\n" +
	"a@x.com,Ann,Ann,A,2024-01-02,France,75001,2\n" +
	"b@x.com,Bob,Bob,B,2024-02-03,Japan,100-0001,1\n"

const noxMailing = "email,fullname,firstname,lastname,date added,country,postal code,num purchases\n" +
	"A@X.com,Ann,Ann,A,2023-06-01,France,75001,3\n"

func testApp(t *testing.T) *Application {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Paths: config.PathsConfig{
			OutputDir:      filepath.Join(root, "outputs"),
			ReportsSubdir:  "reports",
			ArtistsFile:    filepath.Join(root, "artists.yaml"),
			DownloadPath:   filepath.Join(root, "downloads"),
			ExtractionPath: filepath.Join(root, "extracted"),
		},
		Store: config.StoreConfig{Driver: config.DriverSQLite},
		Fetch: config.FetchConfig{MaxAttempts: 1, Timeout: 5 * time.Second},
		Jobs:  config.JobsConfig{ResultRetention: time.Minute, Timeout: time.Minute},
	}
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExecute_Mails(t *testing.T) {
	a := testApp(t)
	mails := filepath.Join(a.cfg.Paths.OutputDir, "mails")
	writeFile(t, filepath.Join(mails, core.ArtistSourceFile("luna")), lunaMailing)
	writeFile(t, filepath.Join(mails, core.ArtistSourceFile("nox")), noxMailing)

	rep, err := a.Execute(context.Background(), jobs.Request{ID: "run-1", Kind: core.KindMails})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if rep.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", rep.RunID)
	}
	if rep.UniqueIdentitiesOrRows != 2 {
		t.Errorf("UniqueIdentitiesOrRows = %d, want 2", rep.UniqueIdentitiesOrRows)
	}
	if rep.Totals["total_purchases"] != 6 {
		t.Errorf("total_purchases = %v, want 6", rep.Totals["total_purchases"])
	}
	if _, err := os.Stat(report.PathFor(rep.OutputFlatPath)); err != nil {
		t.Errorf("summary pdf missing: %v", err)
	}

	sum, err := a.Catalog().SubscriberSummary(context.Background())
	if err != nil {
		t.Fatalf("SubscriberSummary() error = %v", err)
	}
	if sum.Rows != 2 {
		t.Errorf("stored rows = %d, want 2", sum.Rows)
	}
}

func TestExecute_NothingToDo(t *testing.T) {
	a := testApp(t)
	rep, err := a.Execute(context.Background(), jobs.Request{Kind: core.KindRevenue})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !rep.NothingToDo {
		t.Error("NothingToDo = false, want true")
	}
}

func TestRunner_UsesExecute(t *testing.T) {
	a := testApp(t)
	writeFile(t, filepath.Join(a.cfg.Paths.OutputDir, "mails", core.ArtistSourceFile("luna")), lunaMailing)

	id, err := a.Runner().Start(core.KindMails, jobs.Options{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rep, err := a.Runner().Result(ctx, id)
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if rep.RunID != id {
		t.Errorf("RunID = %q, want task id %q", rep.RunID, id)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestRunAll(t *testing.T) {
	a := testApp(t)
	writeFile(t, filepath.Join(a.cfg.Paths.OutputDir, "mails", core.ArtistSourceFile("luna")), lunaMailing)

	reports, err := a.RunAll(context.Background(), jobs.Options{})
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(reports) != len(core.Kinds()) {
		t.Fatalf("len(reports) = %d, want %d", len(reports), len(core.Kinds()))
	}
	if reports[core.KindMails].UniqueIdentitiesOrRows != 2 {
		t.Errorf("mails unique = %d, want 2", reports[core.KindMails].UniqueIdentitiesOrRows)
	}
	if !reports[core.KindRevenue].NothingToDo {
		t.Error("revenue should have nothing to do")
	}
}

func TestExecute_FetchThenConsolidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''mailing_list.csv")
		_, _ = io.WriteString(w, lunaMailing)
	}))
	defer srv.Close()

	a := testApp(t)
	a.cfg.Fetch.Cookie = "identity=x"
	a.cfg.Fetch.BaseURL = srv.URL + "/{subdomain}"
	a.fetcher = fetch.New(a.cfg.Fetch, a.cfg.Paths.OutputDir, a.log)
	writeFile(t, a.cfg.Paths.ArtistsFile, "artists:\n  - {subdomain: luna, id: 1}\n")

	rep, err := a.Execute(context.Background(), jobs.Request{Kind: core.KindMails, Options: jobs.Options{Fetch: true}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if rep.FilesProcessed != 1 || rep.UniqueIdentitiesOrRows != 2 {
		t.Errorf("report = %+v, want 1 file and 2 identities", rep)
	}
}

func TestExecute_FetchWithoutRoster(t *testing.T) {
	a := testApp(t)
	_, err := a.Execute(context.Background(), jobs.Request{Kind: core.KindMails, Options: jobs.Options{Fetch: true}})
	if err == nil {
		t.Fatal("Execute() expected error when the artists file is missing")
	}
}

func TestConsolidate_FlatOnly(t *testing.T) {
	a := testApp(t)
	src := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(src, "mails", core.ArtistSourceFile("luna")), lunaMailing)

	rep, err := a.Consolidate(context.Background(), core.KindMails, core.RunConfig{SourceDir: src, OutputDir: out}, false)
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}
	if filepath.Dir(rep.OutputFlatPath) != out {
		t.Errorf("flat path = %q, want under %q", rep.OutputFlatPath, out)
	}
	if rep.OutputStorePath != "" || rep.StoreRowsWritten != 0 {
		t.Errorf("store written without a store: %q, %d rows", rep.OutputStorePath, rep.StoreRowsWritten)
	}
}

func TestReport_RegeneratesLatest(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	if _, err := a.Report(ctx, core.KindMails); err == nil {
		t.Fatal("Report() before any run error = nil")
	}

	writeFile(t, filepath.Join(a.cfg.Paths.OutputDir, "mails", core.ArtistSourceFile("luna")), lunaMailing)
	rep, err := a.Execute(ctx, jobs.Request{ID: "run-2", Kind: core.KindMails})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	pdf := report.PathFor(rep.OutputFlatPath)
	if err := os.Remove(pdf); err != nil {
		t.Fatal(err)
	}

	path, err := a.Report(ctx, core.KindMails)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if path != pdf {
		t.Errorf("Report() = %q, want %q", path, pdf)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("pdf missing: %v", err)
	}
}
