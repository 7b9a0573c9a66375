package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Recover(ctx context.Context) error
	Logout(ctx context.Context) error
	Whoami(ctx context.Context) error
	Profile(ctx context.Context) error
	Rename(ctx context.Context, username string) error
	List(ctx context.Context) error
	Upload(ctx context.Context, path string) error
	Download(ctx context.Context, id, dest string) error
	Delete(ctx context.Context, id string) error
}

const (
	helpGuest    = "Available commands: register, login, recover, exit"
	helpLoggedIn = "Available commands: whoami, profile, rename <username>, (l)ist, upload <path>, download <id> [dest], delete <id>, logout, exit"
)

// runREPL starts a simple read–eval–print loop for the GrabSmart CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command and the rest as its arguments, and dispatches to methods on 'a'.
// The loop exits on scanner EOF or when the user types "exit" or "quit".
//
// Commands that need a session are refused while logged out. Errors returned
// by command handlers are ignored here; handlers and the services below them
// report their own failures.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("gs %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if needsSession(cmd) && !a.isLoggedIn() {
			printlnFn("Please log in first")
			continue
		}

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpGuest)
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "recover":
			_ = a.Recover(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "whoami":
			_ = a.Whoami(ctx)

		case "profile":
			_ = a.Profile(ctx)

		case "rename":
			if len(args) != 1 {
				printlnFn("Usage: rename <username>")
				continue
			}
			_ = a.Rename(ctx, args[0])

		case "l", "list", "ls":
			_ = a.List(ctx)

		case "upload":
			if len(args) == 0 {
				printlnFn("Usage: upload <path>")
				continue
			}
			_ = a.Upload(ctx, strings.Join(args, " "))

		case "download":
			if len(args) == 0 || len(args) > 2 {
				printlnFn("Usage: download <id> [dest]")
				continue
			}
			dest := ""
			if len(args) == 2 {
				dest = args[1]
			}
			_ = a.Download(ctx, args[0], dest)

		case "delete", "rm":
			if len(args) != 1 {
				printlnFn("Usage: delete <id>")
				continue
			}
			_ = a.Delete(ctx, args[0])

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func needsSession(cmd string) bool {
	switch cmd {
	case "logout", "whoami", "profile", "rename", "l", "list", "ls", "upload", "download", "delete", "rm":
		return true
	}
	return false
}
