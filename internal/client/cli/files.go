package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/dmitrijs2005/grabsmart/internal/client/services"
	"github.com/dmitrijs2005/grabsmart/internal/filex"
)

// onInterrupt calls fn on Ctrl-C until the returned stop func is called.
// It is a test seam.
var onInterrupt = func(fn func()) (stop func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	done := make(chan struct{})

	go func() {
		select {
		case <-sig:
			fn()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sig)
		close(done)
	}
}

func (a *App) List(ctx context.Context) error {
	files, err := a.files.List(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		printlnFn("No files yet")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tTYPE\tUPLOADED")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.ID, f.FileName, humanize.IBytes(uint64(f.FileSize)), f.MimeType, humanize.Time(f.CreatedAt))
	}
	return tw.Flush()
}

func (a *App) Profile(ctx context.Context) error {
	p, err := a.files.Profile(ctx)
	if err != nil {
		return err
	}

	u := services.UsageOf(p)
	printlnFn(fmt.Sprintf("%s <%s>", p.Username, p.Email))
	if !p.IsVerified {
		printlnFn("Email not verified")
	}
	limit := "unlimited"
	if u.Limit > 0 {
		limit = humanize.IBytes(uint64(u.Limit))
	}
	printlnFn(fmt.Sprintf("Storage: %s of %s used (%.1f%%), %d file(s)",
		humanize.IBytes(uint64(u.Used)), limit, u.Percent(), u.Files))
	return nil
}

func (a *App) Rename(ctx context.Context, username string) error {
	p, err := a.files.UpdateUsername(ctx, username)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.userName = p.Username
	a.mu.Unlock()
	return nil
}

// Upload sends the file at path, drawing progress on one line. Ctrl-C
// aborts the transfer.
func (a *App) Upload(ctx context.Context, path string) error {
	src, closer, err := services.OpenSource(path)
	if err != nil {
		printlnFn("Cannot read file:", err)
		return err
	}
	defer closer.Close()

	sess := a.uploads.NewSession(src)
	stop := onInterrupt(sess.Abort)
	defer stop()

	bar := &progressLine{out: a.out, name: src.Name}
	_, err = a.uploads.Upload(ctx, sess, bar.update)
	bar.finish()
	if err != nil {
		a.log.Debug(ctx, "upload failed", "path", path, "state", sess.State(), "reason", sess.Reason(), "error", err)
	}
	return err
}

// Download saves the file with the given id to dest. Without dest the file
// keeps its stored name in the current directory; a directory dest gets the
// stored name inside it.
func (a *App) Download(ctx context.Context, id, dest string) error {
	if dest == "" || isDir(dest) {
		name, err := a.fileName(ctx, id)
		if err != nil {
			return err
		}
		dest = filepath.Join(dest, name)
	}

	if _, err := os.Stat(dest); err == nil {
		ok, err := getConfirm(a.reader, dest+" exists. Overwrite?", a.out)
		if err != nil || !ok {
			return err
		}
	}

	f, err := filex.Create(dest)
	if err != nil {
		printlnFn("Cannot create file:", err)
		return err
	}

	n, err := a.files.Download(ctx, id, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return err
	}

	printlnFn(fmt.Sprintf("Saved %s to %s", humanize.IBytes(uint64(n)), dest))
	return nil
}

var errUnknownFile = errors.New("no such file")

func (a *App) fileName(ctx context.Context, id string) (string, error) {
	files, err := a.files.List(ctx)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if f.ID == id {
			return filepath.Base(f.FileName), nil
		}
	}
	printlnFn("No file with id", id)
	return "", errUnknownFile
}

func (a *App) Delete(ctx context.Context, id string) error {
	return a.files.Delete(ctx, id)
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// progressLine redraws "name: NN%" in place. update may be called from the
// transport goroutine.
type progressLine struct {
	mu    sync.Mutex
	out   io.Writer
	name  string
	drawn bool
}

func (p *progressLine) update(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\r%s: %3d%%", p.name, percent)
	p.drawn = true
}

func (p *progressLine) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.out)
	}
}
