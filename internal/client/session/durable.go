package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/grabsmart/internal/client/repositories/kv"
	"github.com/dmitrijs2005/grabsmart/internal/logging"
	"github.com/fsnotify/fsnotify"
)

type observed struct {
	value   string
	present bool
}

// DurableStorage keeps values in the local SQLite database. Every client
// process opened on the same file sees the same data; changes made by other
// processes are detected by watching the database files.
type DurableStorage struct {
	repo   kv.Repository
	dbPath string
	log    logging.Logger

	// mu serialises writes with change detection so a process never reports
	// its own write as foreign.
	mu   sync.Mutex
	last map[string]observed
}

func NewDurableStorage(repo kv.Repository, dbPath string, log logging.Logger) *DurableStorage {
	if log == nil {
		log = logging.Nop()
	}
	return &DurableStorage{
		repo:   repo,
		dbPath: dbPath,
		log:    log,
		last:   make(map[string]observed),
	}
}

func (s *DurableStorage) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	s.last[key] = observed{value: v, present: ok}
	return v, ok, nil
}

func (s *DurableStorage) Set(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Set(ctx, key, value); err != nil {
		return err
	}
	s.last[key] = observed{value: value, present: true}
	return nil
}

func (s *DurableStorage) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, key); err != nil {
		return err
	}
	s.last[key] = observed{}
	return nil
}

// Watch starts an fsnotify watcher on the directory holding the database.
// Any write to the database, its WAL or its journal triggers a rescan.
func (s *DurableStorage) Watch(ctx context.Context) (<-chan string, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create storage watcher: %w", err)
	}

	dir := filepath.Dir(s.dbPath)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	out := make(chan string, 16)
	base := filepath.Base(s.dbPath)

	go func() {
		defer close(out)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !strings.HasPrefix(filepath.Base(ev.Name), base) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
					continue
				}
				for _, key := range s.changed(ctx) {
					select {
					case out <- key:
					case <-ctx.Done():
						return
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn(ctx, "storage watcher error", "error", err)
			}
		}
	}()

	return out, nil
}

// changed re-reads every known key and returns those whose value differs
// from what this process last wrote or observed.
func (s *DurableStorage) changed(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[string]struct{}, len(s.last))
	for k := range s.last {
		keys[k] = struct{}{}
	}
	stored, err := s.repo.Keys(ctx)
	if err != nil {
		s.log.Warn(ctx, "failed to rescan storage", "error", err)
		return nil
	}
	for _, k := range stored {
		keys[k] = struct{}{}
	}

	var out []string
	for k := range keys {
		v, ok, err := s.repo.Get(ctx, k)
		if err != nil {
			s.log.Warn(ctx, "failed to rescan storage key", "key", k, "error", err)
			continue
		}
		cur := observed{value: v, present: ok}
		if prev, seen := s.last[k]; seen && prev == cur {
			continue
		}
		s.last[k] = cur
		out = append(out, k)
	}
	return out
}
