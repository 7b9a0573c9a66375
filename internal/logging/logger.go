// Package logging defines the structured-logging interface used across the
// client, with slog and zerolog implementations.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
)

const (
	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
	logFileMaxAgeDays = 14
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "upload finished", "file_key", key, "bytes", size)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Log formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options selects the output of a logger built by New. An empty Console
// means stderr; a non-empty File adds a rotated log file.
type Options struct {
	Level   string
	Format  string
	File    string
	Console io.Writer
}

// New builds the client logger: zerolog console lines by default, slog JSON
// records for FormatJSON.
func New(opts Options) Logger {
	if strings.EqualFold(opts.Format, FormatJSON) {
		return NewJSONSlogLogger(opts)
	}
	return NewZerologLogger(opts)
}

func (o Options) console() io.Writer {
	if o.Console == nil {
		return os.Stderr
	}
	return o.Console
}

func rotated(file string) io.Writer {
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
		MaxAge:     logFileMaxAgeDays,
		Compress:   true,
	}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return NewZerologLogger(Options{Level: "disabled", Console: io.Discard})
}

func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return "info"
	}
	return level
}
