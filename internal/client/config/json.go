package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/grabsmart/internal/flagx"
	"github.com/dmitrijs2005/grabsmart/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "60s" or as integer nanoseconds.
type JsonConfig struct {
	ServerURL            string         `json:"server_url"`
	Backend              string         `json:"backend"`
	DatabasePath         string         `json:"database_path"`
	SessionCheckInterval timex.Duration `json:"session_check_interval"`
	RequestTimeout       timex.Duration `json:"request_timeout"`
	LogLevel             string         `json:"log_level"`
	LogFile              string         `json:"log_file"`
	LogFormat            string         `json:"log_format"`
	AllowedEmailDomains  []string       `json:"allowed_email_domains"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Keys missing from the file leave the current values alone.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFile(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.Backend != "" {
		cfg.Backend = jc.Backend
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.SessionCheckInterval.Duration != 0 {
		cfg.SessionCheckInterval = jc.SessionCheckInterval.Duration
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
	if jc.LogFile != "" {
		cfg.LogFile = jc.LogFile
	}
	if jc.LogFormat != "" {
		cfg.LogFormat = jc.LogFormat
	}
	if len(jc.AllowedEmailDomains) > 0 {
		cfg.AllowedEmailDomains = jc.AllowedEmailDomains
	}
}
