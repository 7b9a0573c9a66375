package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/grabsmart/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the REST API
//	-b string   backend: http or fake
//	-d string   path of the local SQLite database
//	-i int      session check interval in seconds
//	-t int      request timeout in seconds, 0 for none
//	-l string   log level
//	-f string   log format: console or json
//
// Only these flags are taken from os.Args; -c and the rest are left to their
// own parsers.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], "a", "b", "d", "i", "t", "l", "f")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the API")
	fs.StringVar(&cfg.Backend, "b", cfg.Backend, "backend (http or fake)")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local database")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "log format (console or json)")
	checkInterval := fs.Int("i", int(cfg.SessionCheckInterval.Seconds()), "session check interval (in seconds)")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds, 0 for none)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SessionCheckInterval = time.Duration(*checkInterval) * time.Second
	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
