package cli

import (
	"bufio"
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	name := a.currentName()
	if name == "" {
		return ""
	}
	return fmt.Sprintf("(%s) ", name)
}

func (a *App) currentName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userName
}

// Root greets the user and serves commands from a.reader until exit or EOF.
func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to GrabSmart CLI (type 'help' for commands)")
	if name := a.currentName(); name != "" {
		printlnFn("Logged in as " + name)
	}

	scanner := bufio.NewScanner(lineReader{a.reader})
	runREPL(ctx, a, a.getStatus, scanner)
}

// lineReader hands out at most one line per Read, so a bufio.Scanner on top
// of it never swallows input that a command prompt reads next.
type lineReader struct {
	r *bufio.Reader
}

func (l lineReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		b, err := l.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		p[n] = b
		n++
		if b == '\n' {
			break
		}
	}
	return n, nil
}
