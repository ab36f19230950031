// Package config loads labelsync settings from environment variables with
// defaults, and validates them on startup so misconfiguration fails fast.
package config

import (
	"path/filepath"
	"strconv"
	"time"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Paths    PathsConfig
	Store    StoreConfig
	Fetch    FetchConfig
	Jobs     JobsConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is 0 by default so SSE progress streams stay open.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds the wait for running tasks on shutdown.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// PathsConfig locates downloads and outputs.
type PathsConfig struct {
	// OutputDir holds the per-kind download subdirectories (mails/,
	// revenues/) and the reports directory.
	OutputDir string `env:"LABELSYNC_OUTPUT_DIR" default:"outputs"`

	// ReportsSubdir receives flat files, store files and PDFs.
	ReportsSubdir string `env:"LABELSYNC_REPORTS_SUBDIR" default:"reports"`

	// ArtistsFile is the YAML roster of artist subdomains and IDs.
	ArtistsFile string `env:"ARTISTS_FILE" default:"artists.yaml"`

	// DownloadPath holds album zip archives waiting for extraction.
	DownloadPath string `env:"DOWNLOAD_PATH" default:"outputs/albums/downloads"`

	// ExtractionPath receives extracted albums as <artist>/<album>/.
	ExtractionPath string `env:"EXTRACTION_PATH" default:"outputs/albums/extracted"`
}

// ReportsDir returns the consolidated output directory.
func (p PathsConfig) ReportsDir() string {
	return filepath.Join(p.OutputDir, p.ReportsSubdir)
}

// StoreConfig selects and tunes the relational store.
type StoreConfig struct {
	// Driver is sqlite (one file per kind in the reports dir) or postgres.
	Driver string `env:"STORE_DRIVER" default:"sqlite"`

	// URL is the PostgreSQL connection string, required for postgres.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// DebugSQL logs every statement (sqlite only, via bundebug).
	DebugSQL bool `env:"STORE_DEBUG_SQL" default:"false"`
}

// FetchConfig controls downloads from the storefront.
type FetchConfig struct {
	// Cookie is the authenticated session Cookie header value.
	Cookie string `env:"BANDCAMP_COOKIE"`

	// BaseURL overrides https://{subdomain}.bandcamp.com; "{subdomain}" is
	// substituted when present.
	BaseURL string `env:"FETCH_BASE_URL"`

	MaxAttempts int           `env:"FETCH_MAX_ATTEMPTS" default:"5"`
	RetryWait   time.Duration `env:"FETCH_RETRY_WAIT" default:"5s"`
	MaxBackoff  time.Duration `env:"FETCH_MAX_BACKOFF" default:"1m"`

	// PostDownloadWait spaces requests between artists.
	PostDownloadWait time.Duration `env:"FETCH_POST_DOWNLOAD_WAIT" default:"1s"`

	// Force re-downloads files that already exist.
	Force bool `env:"FETCH_FORCE" default:"false"`

	Timeout time.Duration `env:"FETCH_TIMEOUT" default:"2m"`
}

// JobsConfig controls background runs.
type JobsConfig struct {
	// ScheduleInterval triggers periodic runs of every kind; 0 disables.
	ScheduleInterval time.Duration `env:"JOBS_SCHEDULE_INTERVAL" default:"0s"`

	// ScheduleFetch makes scheduled runs download before consolidating.
	ScheduleFetch bool `env:"JOBS_SCHEDULE_FETCH" default:"false"`

	// ResultRetention is how long finished tasks stay queryable.
	ResultRetention time.Duration `env:"JOBS_RESULT_RETENTION" default:"30m"`

	// Timeout bounds a single task.
	Timeout time.Duration `env:"JOBS_TIMEOUT" default:"30m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// RunLimit is requests per minute for run-trigger endpoints (default: 10)
	RunLimit int `env:"RATE_LIMIT_RUNS" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey guards /api with an X-API-Key header.
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys.
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
