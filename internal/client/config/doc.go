// Package config loads runtime configuration for the GrabSmart CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the REST API
//	-b string   backend: http or fake
//	-d string   local database path
//	-i int      session check interval (seconds)
//	-t int      request timeout (seconds)
//	-l string   log level
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "60s" or integer nanoseconds:
//
//	{
//	  "server_url": "https://grabsmart.example/api",
//	  "backend": "http",
//	  "database_path": "grabsmart.db",
//	  "session_check_interval": "60s",
//	  "request_timeout": "30s",
//	  "log_level": "debug",
//	  "log_file": "grabsmart.log",
//	  "allowed_email_domains": ["gmail.com", "outlook.com"]
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
