// Package fetch downloads per-artist CSV exports from the storefront into
// the source directories the consolidation pipeline reads.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/JonMunkholm/labelsync/internal/config"
	"github.com/JonMunkholm/labelsync/internal/core"
)

var (
	// ErrDownloadExhausted is wrapped by results that used every attempt.
	ErrDownloadExhausted = errors.New("attempts exhausted")

	// ErrSessionRejected means the storefront answered 401 or 403.
	ErrSessionRejected = errors.New("session rejected")

	// ErrNoCookie is returned before any request when no cookie is set.
	ErrNoCookie = errors.New("no session cookie")
)

// Status is the outcome of one artist download.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
	StatusExhausted  Status = "exhausted"
	StatusFailed     Status = "failed"
)

// Result describes one artist download.
type Result struct {
	Artist   string `json:"artist"`
	Path     string `json:"path,omitempty"`
	Status   Status `json:"status"`
	Attempts int    `json:"attempts"`
	Err      error  `json:"-"`
}

const defaultBaseURL = "https://{subdomain}.bandcamp.com"

var filenamePattern = regexp.MustCompile(`filename\*=UTF-8''([^;]*)`)

// Fetcher downloads exports with bounded retries.
type Fetcher struct {
	httpClient *http.Client
	cfg        config.FetchConfig
	outputDir  string
	log        *slog.Logger

	// sleep waits between attempts; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher writing under outputDir/<kind subdir>.
func New(cfg config.FetchConfig, outputDir string, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		outputDir:  outputDir,
		log:        log,
		sleep:      sleepContext,
	}
}

// WithForce returns a copy of f with the overwrite setting replaced.
func (f *Fetcher) WithForce(force bool) *Fetcher {
	c := *f
	c.cfg.Force = force
	return &c
}

// FetchAll downloads kind's export for every artist in roster order. The
// returned error is reserved for problems that stop the whole batch; per
// artist failures are reported in the results.
func (f *Fetcher) FetchAll(ctx context.Context, kind core.DatasetKind, roster []config.Artist, begin, end string) ([]Result, error) {
	spec, err := core.MustGet(kind)
	if err != nil {
		return nil, err
	}
	if f.cfg.Cookie == "" {
		return nil, ErrNoCookie
	}
	if kind == core.KindRevenue && (begin == "" || end == "") {
		begin, end = core.MonthRange(time.Now())
	}

	results := make([]Result, 0, len(roster))
	for i, artist := range roster {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := f.Download(ctx, spec, artist, begin, end)
		results = append(results, res)

		if res.Status == StatusDownloaded && i < len(roster)-1 {
			if err := f.sleep(ctx, f.cfg.PostDownloadWait); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

// Download fetches one artist's export, retrying transport errors, 429 and
// 5xx responses up to MaxAttempts.
func (f *Fetcher) Download(ctx context.Context, spec core.DatasetSpec, artist config.Artist, begin, end string) Result {
	res := Result{Artist: artist.Subdomain}
	u := f.exportURL(spec.Kind, artist, begin, end)

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt

		path, status, err := f.try(ctx, spec, artist, u)
		if err == nil {
			res.Path, res.Status = path, status
			if status == StatusSkipped {
				f.log.Debug("skipping existing file", "artist", artist.Subdomain, "path", path)
			} else {
				f.log.Info("downloaded export", "artist", artist.Subdomain, "kind", spec.Kind, "path", path)
			}
			return res
		}

		var re *retryableError
		if !errors.As(err, &re) || ctx.Err() != nil {
			res.Status, res.Err = StatusFailed, fmt.Errorf("%s: %w", artist.Subdomain, err)
			f.log.Warn("download failed", "artist", artist.Subdomain, "kind", spec.Kind, "error", err)
			return res
		}
		lastErr = err

		if attempt < f.cfg.MaxAttempts {
			wait := Backoff(attempt, f.cfg.RetryWait, f.cfg.MaxBackoff)
			f.log.Warn("download attempt failed, retrying",
				"artist", artist.Subdomain, "attempt", attempt, "wait", wait, "error", err)
			if err := f.sleep(ctx, wait); err != nil {
				res.Status, res.Err = StatusFailed, fmt.Errorf("%s: %w", artist.Subdomain, err)
				return res
			}
		}
	}

	res.Status = StatusExhausted
	res.Err = fmt.Errorf("%s: %w after %d attempts: %v", artist.Subdomain, ErrDownloadExhausted, res.Attempts, lastErr)
	f.log.Error("download gave up", "artist", artist.Subdomain, "kind", spec.Kind, "attempts", res.Attempts, "error", lastErr)
	return res
}

// try performs a single request and saves the body.
func (f *Fetcher) try(ctx context.Context, spec core.DatasetSpec, artist config.Artist, u string) (string, Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Cookie", f.cfg.Cookie)
	req.Header.Set("Accept", "text/csv")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", "", &retryableError{err: fmt.Errorf("execute request: %w", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", "", fmt.Errorf("%w: status %d", ErrSessionRejected, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", "", &retryableError{err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return "", "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	name := fileName(resp.Header.Get("Content-Disposition"), u, artist.Subdomain)
	path := core.SanitizePath(filepath.Join(f.outputDir, spec.SourceSubdir, name))

	if _, err := os.Stat(path); err == nil && !f.cfg.Force {
		return path, StatusSkipped, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", &retryableError{err: fmt.Errorf("read body: %w", err)}
	}

	err = core.WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(body)
		return err
	})
	if err != nil {
		return "", "", err
	}
	return path, StatusDownloaded, nil
}

func (f *Fetcher) exportURL(kind core.DatasetKind, artist config.Artist, begin, end string) string {
	base := f.cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	base = strings.TrimRight(strings.ReplaceAll(base, "{subdomain}", artist.Subdomain), "/")

	params := url.Values{}
	params.Set("id", artist.ID)
	if kind == core.KindRevenue {
		params.Set("begin", begin)
		params.Set("end", end)
		params.Set("items", "")
		params.Set("region", "world")
		return fmt.Sprintf("%s/net_revenue_report.csv?%s", base, params.Encode())
	}
	return fmt.Sprintf("%s/mailing_list.csv?%s", base, params.Encode())
}

// fileName derives "<name>-<subdomain>.<ext>" from the Content-Disposition
// header, falling back to the request path's base name.
func fileName(disposition, rawURL, subdomain string) string {
	name := ""
	if m := filenamePattern.FindStringSubmatch(disposition); m != nil {
		if unq, err := url.PathUnescape(strings.Trim(m[1], `"`)); err == nil {
			name = unq
		}
	}
	if name == "" {
		if u, err := url.Parse(rawURL); err == nil {
			name = filepath.Base(u.Path)
		}
	}
	name = filepath.Base(name)

	stem, ext := name, "csv"
	if i := strings.LastIndex(name, "."); i > 0 {
		stem, ext = name[:i], name[i+1:]
	}
	return fmt.Sprintf("%s-%s.%s", stem, subdomain, ext)
}

// Backoff computes exponential backoff from base with +/-25% jitter, capped
// at max. attempt is 1-based.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}

	d := float64(base) * math.Pow(2, float64(attempt-1))
	if max > 0 && d > float64(max) {
		d = float64(max)
	}

	jitter := d * 0.25 * (2*rand.Float64() - 1) // +/-25%
	d += jitter

	if d < 0 {
		d = 0
	}
	if max > 0 && d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
