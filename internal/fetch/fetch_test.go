package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/labelsync/internal/config"
	"github.com/JonMunkholm/labelsync/internal/core"
)

const mailingCSV = "email,fullname,firstname,lastname,date added,country,postal code,num purchases\n" +
	"a@x.com,Ann,Ann,A,2024-01-02,France,75001,1\n"

func testFetcher(t *testing.T, srv *httptest.Server, mutate func(*config.FetchConfig)) (*Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.FetchConfig{
		Cookie:      "identity=test",
		BaseURL:     srv.URL + "/{subdomain}",
		MaxAttempts: 3,
		Timeout:     5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f := New(cfg, dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return f, dir
}

func csvHandler(name, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+name)
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, body)
	}
}

func TestFetchAll_Mails(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		mu.Unlock()
		if r.Header.Get("Cookie") != "identity=test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		csvHandler("mailing_list.csv", mailingCSV)(w, r)
	}))
	defer srv.Close()

	f, dir := testFetcher(t, srv, nil)
	roster := []config.Artist{{Subdomain: "luna", ID: "1"}, {Subdomain: "nox", ID: "2"}}

	results, err := f.FetchAll(context.Background(), core.KindMails, roster, "", "")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for i, want := range []string{"luna", "nox"} {
		r := results[i]
		if r.Artist != want || r.Status != StatusDownloaded || r.Attempts != 1 {
			t.Errorf("results[%d] = %+v, want downloaded %s in 1 attempt", i, r, want)
		}
		wantPath := filepath.Join(dir, "mails", "mailing_list-"+want+".csv")
		if r.Path != wantPath {
			t.Errorf("results[%d].Path = %q, want %q", i, r.Path, wantPath)
		}
		data, err := os.ReadFile(wantPath)
		if err != nil {
			t.Fatalf("read download: %v", err)
		}
		if string(data) != mailingCSV {
			t.Errorf("file content = %q, want %q", data, mailingCSV)
		}
	}

	if len(paths) != 2 || paths[0] != "/luna/mailing_list.csv?id=1" {
		t.Errorf("requests = %v", paths)
	}
}

func TestFetchAll_RevenueQuery(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path + "?" + r.URL.RawQuery
		csvHandler("net_revenue_report.csv", "Artist name\nLuna\n")(w, r)
	}))
	defer srv.Close()

	f, dir := testFetcher(t, srv, nil)
	results, err := f.FetchAll(context.Background(), core.KindRevenue,
		[]config.Artist{{Subdomain: "luna", ID: "7"}}, "2025-07-01", "2025-07-31")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	want := "/luna/net_revenue_report.csv?begin=2025-07-01&end=2025-07-31&id=7&items=&region=world"
	if got != want {
		t.Errorf("request = %q, want %q", got, want)
	}
	wantPath := filepath.Join(dir, "revenues", "net_revenue_report-luna.csv")
	if results[0].Path != wantPath {
		t.Errorf("Path = %q, want %q", results[0].Path, wantPath)
	}
}

func TestDownload_RetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		csvHandler("mailing_list.csv", mailingCSV)(w, r)
	}))
	defer srv.Close()

	f, _ := testFetcher(t, srv, nil)
	spec, _ := core.Get(core.KindMails)
	res := f.Download(context.Background(), spec, config.Artist{Subdomain: "luna", ID: "1"}, "", "")

	if res.Status != StatusDownloaded {
		t.Fatalf("Status = %q, want %q (err %v)", res.Status, StatusDownloaded, res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
}

func TestDownload_Exhausted(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f, dir := testFetcher(t, srv, nil)
	spec, _ := core.Get(core.KindMails)
	res := f.Download(context.Background(), spec, config.Artist{Subdomain: "luna", ID: "1"}, "", "")

	if res.Status != StatusExhausted {
		t.Errorf("Status = %q, want %q", res.Status, StatusExhausted)
	}
	if !errors.Is(res.Err, ErrDownloadExhausted) {
		t.Errorf("Err = %v, want ErrDownloadExhausted", res.Err)
	}
	if calls != 3 || res.Attempts != 3 {
		t.Errorf("calls = %d, attempts = %d, want 3", calls, res.Attempts)
	}
	if _, err := os.Stat(filepath.Join(dir, "mails")); !os.IsNotExist(err) {
		t.Errorf("mails dir should not exist after failed download, stat err = %v", err)
	}
	if got := core.MapError(res.Err).Code; got != "FETCH001" {
		t.Errorf("MapError code = %q, want FETCH001", got)
	}
}

func TestDownload_ClientErrorsFailImmediately(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"not found", http.StatusNotFound, nil},
		{"unauthorized", http.StatusUnauthorized, ErrSessionRejected},
		{"forbidden", http.StatusForbidden, ErrSessionRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			f, _ := testFetcher(t, srv, nil)
			spec, _ := core.Get(core.KindMails)
			res := f.Download(context.Background(), spec, config.Artist{Subdomain: "luna", ID: "1"}, "", "")

			if res.Status != StatusFailed {
				t.Errorf("Status = %q, want %q", res.Status, StatusFailed)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
		})
	}
}

func TestDownload_SkipsExisting(t *testing.T) {
	srv := httptest.NewServer(csvHandler("mailing_list.csv", mailingCSV))
	defer srv.Close()

	tests := []struct {
		name       string
		force      bool
		wantStatus Status
		wantBody   string
	}{
		{"keeps existing", false, StatusSkipped, "old"},
		{"force overwrites", true, StatusDownloaded, mailingCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, dir := testFetcher(t, srv, func(c *config.FetchConfig) { c.Force = tt.force })
			path := filepath.Join(dir, "mails", "mailing_list-luna.csv")
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
				t.Fatal(err)
			}

			spec, _ := core.Get(core.KindMails)
			res := f.Download(context.Background(), spec, config.Artist{Subdomain: "luna", ID: "1"}, "", "")
			if res.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", res.Status, tt.wantStatus)
			}
			data, _ := os.ReadFile(path)
			if string(data) != tt.wantBody {
				t.Errorf("content = %q, want %q", data, tt.wantBody)
			}
		})
	}
}

func TestFetchAll_NoCookie(t *testing.T) {
	srv := httptest.NewServer(csvHandler("mailing_list.csv", mailingCSV))
	defer srv.Close()

	f, _ := testFetcher(t, srv, func(c *config.FetchConfig) { c.Cookie = "" })
	_, err := f.FetchAll(context.Background(), core.KindMails, []config.Artist{{Subdomain: "luna", ID: "1"}}, "", "")
	if !errors.Is(err, ErrNoCookie) {
		t.Errorf("FetchAll() error = %v, want ErrNoCookie", err)
	}
}

func TestFetchAll_Cancelled(t *testing.T) {
	srv := httptest.NewServer(csvHandler("mailing_list.csv", mailingCSV))
	defer srv.Close()

	f, _ := testFetcher(t, srv, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := f.FetchAll(ctx, core.KindMails, []config.Artist{{Subdomain: "luna", ID: "1"}}, "", "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchAll() error = %v, want context.Canceled", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		disposition string
		url         string
		want        string
	}{
		{"attachment; filename*=UTF-8''mailing_list.csv", "", "mailing_list-luna.csv"},
		{"attachment; filename*=UTF-8''net%20revenue.csv", "", "net revenue-luna.csv"},
		{"attachment; filename*=UTF-8''report.2025.csv; size=10", "", "report.2025-luna.csv"},
		{"", "https://luna.bandcamp.com/mailing_list.csv?id=1", "mailing_list-luna.csv"},
		{"attachment; filename*=UTF-8''..%2F..%2Fetc.csv", "", "etc-luna.csv"},
	}
	for _, tt := range tests {
		if got := fileName(tt.disposition, tt.url, "luna"); got != tt.want {
			t.Errorf("fileName(%q, %q) = %q, want %q", tt.disposition, tt.url, got, tt.want)
		}
	}
}

func TestBackoff(t *testing.T) {
	base := time.Second
	max := 10 * time.Second

	if got := Backoff(0, base, max); got != 0 {
		t.Errorf("Backoff(0) = %v, want 0", got)
	}
	if got := Backoff(1, 0, max); got != 0 {
		t.Errorf("Backoff with zero base = %v, want 0", got)
	}

	tests := []struct {
		attempt int
		lo, hi  time.Duration
	}{
		{1, 750 * time.Millisecond, 1250 * time.Millisecond},
		{2, 1500 * time.Millisecond, 2500 * time.Millisecond},
		{3, 3 * time.Second, 5 * time.Second},
		{10, 7500 * time.Millisecond, max},
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			got := Backoff(tt.attempt, base, max)
			if got < tt.lo || got > tt.hi {
				t.Fatalf("Backoff(%d) = %v, want in [%v, %v]", tt.attempt, got, tt.lo, tt.hi)
			}
		}
	}
}

func TestClearOutputs(t *testing.T) {
	out := t.TempDir()
	reports := filepath.Join(out, "reports")

	files := map[string]string{
		"mails/mailing_list-luna.csv":                       "x",
		"revenues/net_revenue_report-luna.csv":              "x",
		"reports/consolidated_bandcamp_mailing_list.csv":    "x",
		"reports/consolidated_bandcamp_mailing_list.pdf":    "x",
		"reports/bandcamp_mailing_lists.db":                 "x",
		"reports/consolidated_bandcamp_reports_2025-07.csv": "x",
		"reports/notes.txt":                                 "x",
	}
	for name, body := range files {
		p := filepath.Join(out, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := ClearOutputs(out, reports, core.KindMails)
	if err != nil {
		t.Fatalf("ClearOutputs() error = %v", err)
	}
	sort.Strings(removed)
	want := []string{
		"bandcamp_mailing_lists.db",
		"consolidated_bandcamp_mailing_list.csv",
		"consolidated_bandcamp_mailing_list.pdf",
	}
	if strings.Join(removed, ",") != strings.Join(want, ",") {
		t.Errorf("removed = %v, want %v", removed, want)
	}

	entries, err := os.ReadDir(filepath.Join(out, "mails"))
	if err != nil {
		t.Fatalf("mails dir should be recreated: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("mails dir has %d entries, want 0", len(entries))
	}
	for _, keep := range []string{
		"revenues/net_revenue_report-luna.csv",
		"reports/consolidated_bandcamp_reports_2025-07.csv",
		"reports/notes.txt",
	} {
		if _, err := os.Stat(filepath.Join(out, filepath.FromSlash(keep))); err != nil {
			t.Errorf("%s should survive: %v", keep, err)
		}
	}
}

func TestClearOutputs_MissingDirs(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fresh")
	removed, err := ClearOutputs(out, filepath.Join(out, "reports"), core.KindRevenue)
	if err != nil {
		t.Fatalf("ClearOutputs() error = %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}
	if _, err := os.Stat(filepath.Join(out, "revenues")); err != nil {
		t.Errorf("revenues dir not created: %v", err)
	}
}
