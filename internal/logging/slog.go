package logging

import (
	"context"
	"io"
	"log/slog"
)

// levelOff is above every level slog emits, so nothing passes it.
const levelOff = slog.Level(100)

// SlogLogger emits structured records through log/slog. It backs the JSON
// log format.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// NewJSONSlogLogger writes one JSON object per record to the console and, if
// opts.File is set, to a rotated file as well.
func NewJSONSlogLogger(opts Options) *SlogLogger {
	w := opts.console()
	if opts.File != "" {
		w = io.MultiWriter(w, rotated(opts.File))
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(opts.Level)})
	return NewSlogLogger(slog.New(h))
}

// slogLevel maps the zerolog level names used in configuration onto slog.
// Unknown names mean info.
func slogLevel(level string) slog.Level {
	switch normalizeLevel(level) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal", "panic":
		return slog.LevelError
	case "disabled", "off":
		return levelOff
	}
	return slog.LevelInfo
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.Log(ctx, slog.LevelDebug, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.Log(ctx, slog.LevelInfo, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.Log(ctx, slog.LevelWarn, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.Log(ctx, slog.LevelError, msg, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}
