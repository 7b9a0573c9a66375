package fake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/grabsmart/internal/shared"
)

const maxFormField = 64 << 10

type object struct {
	data        []byte
	contentType string
}

type grant struct {
	maxSize int64
}

type link struct {
	key     string
	expires time.Time
}

// ObjectStore is an in-memory stand-in for the object storage bucket. It
// accepts presigned-POST uploads for keys granted by the Backend and serves
// temporary download links.
type ObjectStore struct {
	mu      sync.Mutex
	baseURL string
	now     func() time.Time
	grants  map[string]grant
	objects map[string]object
	links   map[string]link
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		now:     time.Now,
		grants:  make(map[string]grant),
		objects: make(map[string]object),
		links:   make(map[string]link),
	}
}

// SetBaseURL tells the store the address it is reachable at.
func (s *ObjectStore) SetBaseURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = strings.TrimRight(u, "/")
}

func (s *ObjectStore) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// Serve listens on addr (e.g. "127.0.0.1:0") until ctx is done and sets the
// base URL accordingly.
func (s *ObjectStore) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("object store listen: %w", err)
	}
	s.SetBaseURL("http://" + ln.Addr().String())

	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() { _ = srv.Serve(ln) }()
	return nil
}

func (s *ObjectStore) grant(key string, maxSize int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[key] = grant{maxSize: maxSize}
}

func (s *ObjectStore) size(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[key]
	return int64(len(o.data)), ok
}

func (s *ObjectStore) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.grants, key)
}

// Has reports whether an object is stored under key.
func (s *ObjectStore) Has(key string) bool {
	_, ok := s.size(key)
	return ok
}

func (s *ObjectStore) signGet(key string, ttl time.Duration) (string, error) {
	id, err := shared.MakeRandHexString(16)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[id] = link{key: key, expires: s.now().Add(ttl)}
	return s.baseURL + "/objects/" + id + "?key=" + url.QueryEscape(key), nil
}

func (s *ObjectStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && (r.URL.Path == "/" || r.URL.Path == ""):
		s.upload(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/objects/"):
		s.download(w, r)
	default:
		http.Error(w, "<Error><Code>MethodNotAllowed</Code></Error>", http.StatusMethodNotAllowed)
	}
}

var errFieldAfterFile = errors.New("file must be the last form field")

func (s *ObjectStore) upload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "<Error><Code>MalformedPOSTRequest</Code></Error>", http.StatusBadRequest)
		return
	}

	fields := map[string]string{}
	var data []byte
	var contentType string
	seenFile := false

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			http.Error(w, "<Error><Code>MalformedPOSTRequest</Code></Error>", http.StatusBadRequest)
			return
		}
		if seenFile {
			http.Error(w, "<Error><Code>InvalidArgument</Code><Message>"+errFieldAfterFile.Error()+"</Message></Error>", http.StatusBadRequest)
			return
		}

		if p.FormName() != "file" {
			b, err := io.ReadAll(io.LimitReader(p, maxFormField))
			if err != nil {
				http.Error(w, "<Error><Code>MalformedPOSTRequest</Code></Error>", http.StatusBadRequest)
				return
			}
			fields[p.FormName()] = string(b)
			continue
		}

		seenFile = true
		key := fields["key"]
		s.mu.Lock()
		g, ok := s.grants[key]
		s.mu.Unlock()
		if !ok {
			http.Error(w, "<Error><Code>AccessDenied</Code></Error>", http.StatusForbidden)
			return
		}

		data, err = io.ReadAll(io.LimitReader(p, g.maxSize+1))
		if err != nil {
			http.Error(w, "<Error><Code>IncompleteBody</Code></Error>", http.StatusBadRequest)
			return
		}
		if int64(len(data)) > g.maxSize {
			http.Error(w, "<Error><Code>EntityTooLarge</Code></Error>", http.StatusBadRequest)
			return
		}
		contentType = p.Header.Get("Content-Type")
	}

	if !seenFile {
		http.Error(w, "<Error><Code>InvalidArgument</Code><Message>missing file</Message></Error>", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.objects[fields["key"]] = object{data: data, contentType: contentType}
	s.mu.Unlock()

	status := http.StatusNoContent
	if fields["success_action_status"] == "201" {
		status = http.StatusCreated
	}
	w.WriteHeader(status)
}

func (s *ObjectStore) download(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/objects/")

	s.mu.Lock()
	l, ok := s.links[id]
	var o object
	var found bool
	if ok && s.now().Before(l.expires) {
		o, found = s.objects[l.key]
	}
	s.mu.Unlock()

	if !ok || !found {
		http.Error(w, "<Error><Code>AccessDenied</Code></Error>", http.StatusForbidden)
		return
	}

	if o.contentType != "" {
		w.Header().Set("Content-Type", o.contentType)
	}
	w.Header().Set("Content-Length", fmt.Sprint(len(o.data)))
	_, _ = w.Write(o.data)
}
