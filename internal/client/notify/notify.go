// Package notify delivers short, transient messages to the person using the
// client (the terminal equivalent of a toast).
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notifier surfaces a message to the user. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, level Level, msg string)
}

// Success and Error are shorthands for Notify.
func Success(ctx context.Context, n Notifier, msg string) { n.Notify(ctx, LevelSuccess, msg) }
func Error(ctx context.Context, n Notifier, msg string)   { n.Notify(ctx, LevelError, msg) }

type nop struct{}

func (nop) Notify(context.Context, Level, string) {}

// Nop discards every notification.
func Nop() Notifier { return nop{} }

// Writer prints one line per notification.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (n *Writer) Notify(_ context.Context, level Level, msg string) {
	mark := "✔"
	if level == LevelError {
		mark = "✖"
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "%s %s\n", mark, msg)
}

// Message is a recorded notification.
type Message struct {
	Level Level
	Text  string
}

// Recorder keeps every notification in memory. Useful in tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Notify(_ context.Context, level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Level: level, Text: msg})
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Errors returns the texts of error-level notifications in order.
func (r *Recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.messages {
		if m.Level == LevelError {
			out = append(out, m.Text)
		}
	}
	return out
}
