// Package session holds the single authenticated identity of a client
// process: the raw access token, its decoded claims, and the storage that
// shares them with every other process of the same user.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/grabsmart/internal/client/token"
	"github.com/dmitrijs2005/grabsmart/internal/logging"
)

const (
	DefaultKey           = "auth_token"
	DefaultCheckInterval = time.Minute
)

type Option func(*Store)

// WithKey changes the storage key of the token.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithInterval sets how often Run re-evaluates the stored token.
func WithInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Store is safe for concurrent use. Storage and decoding failures never
// surface as errors from the read side: they are logged and the store
// degrades to unauthenticated.
type Store struct {
	storage  Storage
	key      string
	now      func() time.Time
	log      logging.Logger
	interval time.Duration

	mu     sync.RWMutex
	raw    string
	claims *token.Claims

	subMu  sync.Mutex
	subs   map[int]func(*token.Claims)
	nextID int
}

func NewStore(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage:  storage,
		key:      DefaultKey,
		now:      time.Now,
		log:      logging.Nop(),
		interval: DefaultCheckInterval,
		subs:     make(map[int]func(*token.Claims)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load reads the token from storage. A token that cannot be decoded or has
// expired is removed from storage and treated as absent.
func (s *Store) Load(ctx context.Context) *token.Claims {
	raw, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		s.log.Warn(ctx, "failed to read session token", "error", err)
		raw, ok = "", false
	}

	var claims *token.Claims
	if ok {
		c, valid := token.Decode(raw)
		switch {
		case !valid:
			s.log.Warn(ctx, "discarding malformed session token")
		case c.Expired(s.now()):
			s.log.Info(ctx, "discarding expired session token", "user_id", c.ID())
		default:
			claims = c
		}
		if claims == nil {
			raw = ""
			if err := s.storage.Remove(ctx, s.key); err != nil {
				s.log.Warn(ctx, "failed to remove session token", "error", err)
			}
		}
	}

	s.replace(raw, claims)
	return claims
}

// Set persists a freshly issued token and makes it the current session.
func (s *Store) Set(ctx context.Context, raw string) error {
	if err := s.storage.Set(ctx, s.key, raw); err != nil {
		return err
	}

	claims, ok := token.Decode(raw)
	if !ok {
		s.log.Warn(ctx, "stored token has an undecodable payload")
		claims = nil
	}
	s.replace(raw, claims)
	return nil
}

// Clear ends the session in this process and in storage.
func (s *Store) Clear(ctx context.Context) error {
	s.replace("", nil)
	return s.storage.Remove(ctx, s.key)
}

// CurrentUser returns the claims of the logged-in user, or nil. Expiry is
// checked against the clock on every call and an expired session is cleared.
func (s *Store) CurrentUser() *token.Claims {
	s.mu.RLock()
	claims := s.claims
	s.mu.RUnlock()

	if claims == nil {
		return nil
	}
	if claims.Expired(s.now()) {
		ctx := context.Background()
		s.log.Info(ctx, "session expired", "user_id", claims.ID())
		if err := s.Clear(ctx); err != nil {
			s.log.Warn(ctx, "failed to remove session token", "error", err)
		}
		return nil
	}
	return claims
}

// Token returns the raw bearer token, or "" when logged out. A token whose
// payload cannot be decoded is still handed out; only decoded claims that
// have expired withhold it.
func (s *Store) Token() string {
	s.mu.RLock()
	raw, claims := s.raw, s.claims
	s.mu.RUnlock()

	if claims != nil && s.CurrentUser() == nil {
		return ""
	}
	return raw
}

// IsAuthenticated reports whether a usable token is held.
func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// Subscribe registers fn to be called with the new claims (nil when logged
// out) every time the session changes. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(*token.Claims)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Run keeps the session in sync with storage until ctx is done: it reloads
// the token whenever another process changes it, and on every tick so that
// expiry is noticed even when nothing is written.
func (s *Store) Run(ctx context.Context) error {
	events, err := s.storage.Watch(ctx)
	if err != nil {
		s.log.Warn(ctx, "storage change notifications unavailable, polling only", "error", err)
		events = nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case key, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// an empty key means the whole storage was cleared
			if key == s.key || key == "" {
				s.Load(ctx)
			}
		case <-ticker.C:
			s.Load(ctx)
		}
	}
}

func (s *Store) replace(raw string, claims *token.Claims) {
	s.mu.Lock()
	changed := s.raw != raw || (s.claims == nil) != (claims == nil)
	s.raw = raw
	s.claims = claims
	s.mu.Unlock()

	if changed {
		s.publish(claims)
	}
}

func (s *Store) publish(claims *token.Claims) {
	s.subMu.Lock()
	fns := make([]func(*token.Claims), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(claims)
	}
}
