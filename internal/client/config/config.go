package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/grabsmart/internal/logging"
)

// Backend kinds.
const (
	BackendHTTP = "http"
	BackendFake = "fake"
)

// Config holds runtime settings for the GrabSmart CLI.
//
// Fields:
//   - ServerURL: base URL of the REST API, including the /api prefix.
//   - Backend: "http" for the real API, "fake" for the in-memory backend.
//   - DatabasePath: SQLite file holding the persisted session.
//   - SessionCheckInterval: how often the session is re-read and its expiry checked.
//   - RequestTimeout: per-request timeout; zero means none.
//   - LogLevel, LogFile: logger settings; an empty LogFile logs to stderr only.
//   - LogFormat: "console" for human-readable lines, "json" for one object per record.
//   - AllowedEmailDomains: providers accepted at sign-up; empty means the built-in list.
type Config struct {
	ServerURL            string
	Backend              string
	DatabasePath         string
	SessionCheckInterval time.Duration
	RequestTimeout       time.Duration
	LogLevel             string
	LogFile              string
	LogFormat            string
	AllowedEmailDomains  []string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:3000/api"
	c.Backend = BackendHTTP
	c.DatabasePath = "grabsmart.db"
	c.SessionCheckInterval = time.Minute
	c.RequestTimeout = 0
	c.LogLevel = "info"
	c.LogFormat = logging.FormatConsole
}

// Validate reports settings the client cannot run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendHTTP:
		if c.ServerURL == "" {
			return fmt.Errorf("server url is required for the %q backend", c.Backend)
		}
	case BackendFake:
	default:
		return fmt.Errorf("unknown backend %q, want %q or %q", c.Backend, BackendHTTP, BackendFake)
	}
	if c.SessionCheckInterval <= 0 {
		return fmt.Errorf("session check interval must be positive, got %s", c.SessionCheckInterval)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout)
	}
	switch strings.ToLower(c.LogFormat) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
