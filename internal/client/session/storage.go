package session

import (
	"context"
	"sync"
)

// Storage is durable key/value storage shared by every client context of the
// same user (several CLI processes on one database file, several handles on a
// SharedMemory).
//
// Watch yields the keys changed by another context. Writes made through the
// receiving handle are not reported back to it.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
	Watch(ctx context.Context) (<-chan string, error)
}

// SharedMemory is an in-process Storage backend. Each call to Context returns
// a handle that behaves like one browser tab on a shared localStorage.
type SharedMemory struct {
	mu       sync.Mutex
	data     map[string]string
	handles  map[*MemoryStorage]struct{}
	watchBuf int
}

func NewSharedMemory() *SharedMemory {
	return &SharedMemory{
		data:     make(map[string]string),
		handles:  make(map[*MemoryStorage]struct{}),
		watchBuf: 16,
	}
}

// Context returns a new handle on the shared data.
func (m *SharedMemory) Context() *MemoryStorage {
	h := &MemoryStorage{shared: m}
	m.mu.Lock()
	m.handles[h] = struct{}{}
	m.mu.Unlock()
	return h
}

// broadcast must be called with m.mu held.
func (m *SharedMemory) broadcast(from *MemoryStorage, key string) {
	for h := range m.handles {
		if h == from {
			continue
		}
		h.deliver(key)
	}
}

// MemoryStorage is one context's view of a SharedMemory.
type MemoryStorage struct {
	shared *SharedMemory

	wmu      sync.Mutex
	watchers []chan string
}

// NewMemoryStorage returns a standalone in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return NewSharedMemory().Context()
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	v, ok := s.shared.data[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(_ context.Context, key string, value string) error {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	s.shared.data[key] = value
	s.shared.broadcast(s, key)
	return nil
}

func (s *MemoryStorage) Remove(_ context.Context, key string) error {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	if _, ok := s.shared.data[key]; !ok {
		return nil
	}
	delete(s.shared.data, key)
	s.shared.broadcast(s, key)
	return nil
}

func (s *MemoryStorage) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, s.shared.watchBuf)

	s.wmu.Lock()
	s.watchers = append(s.watchers, ch)
	s.wmu.Unlock()

	go func() {
		<-ctx.Done()
		s.wmu.Lock()
		defer s.wmu.Unlock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// deliver never blocks the writer: a full watcher drops the event, and the
// periodic re-evaluation in Store.Run picks the change up instead.
func (s *MemoryStorage) deliver(key string) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for _, w := range s.watchers {
		select {
		case w <- key:
		default:
		}
	}
}
