package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/grabsmart/internal/client/fake"
	"github.com/dmitrijs2005/grabsmart/internal/client/models"
	"github.com/dmitrijs2005/grabsmart/internal/client/notify"
	"github.com/dmitrijs2005/grabsmart/internal/client/services"
	"github.com/dmitrijs2005/grabsmart/internal/client/session"
	"github.com/dmitrijs2005/grabsmart/internal/logging"
)

// ---- output capture ----

type printed struct {
	mu    sync.Mutex
	lines []string
}

func (p *printed) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.lines, "\n")
}

func capturePrintln(t *testing.T) *printed {
	t.Helper()
	p := &printed{}
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.lines = append(p.lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return p
}

// ---- scripted prompts ----

// script answers prompts in order. An answer is either a string or a
// func() string evaluated when the prompt is reached. Running out of answers
// reads as EOF.
type script struct {
	mu      sync.Mutex
	answers []any
	prompts []string
}

func (s *script) next(prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		return "", io.EOF
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	if fn, ok := a.(func() string); ok {
		return fn(), nil
	}
	return a.(string), nil
}

func stubScript(t *testing.T, answers ...any) *script {
	t.Helper()
	s := &script{answers: answers}
	origST, origGP, origGC := getSimpleText, getPassword, getConfirm
	getSimpleText = func(_ *bufio.Reader, prompt string, _ io.Writer) (string, error) { return s.next(prompt) }
	getPassword = func(_ *bufio.Reader, prompt string, _ io.Writer) ([]byte, error) {
		v, err := s.next(prompt)
		return []byte(v), err
	}
	getConfirm = func(_ *bufio.Reader, prompt string, _ io.Writer) (bool, error) {
		v, err := s.next(prompt)
		return v == "y", err
	}
	t.Cleanup(func() {
		getSimpleText, getPassword, getConfirm = origST, origGP, origGC
	})
	return s
}

// ---- app on the in-memory backend ----

type testApp struct {
	*App
	backend *fake.Backend
	notes   *notify.Recorder
	buf     *bytes.Buffer
}

func newTestApp(t *testing.T, input string, opts ...fake.Option) *testApp {
	t.Helper()
	objects := fake.NewObjectStore()
	ts := httptest.NewServer(objects)
	t.Cleanup(ts.Close)
	objects.SetBaseURL(ts.URL)

	store := session.NewStore(session.NewMemoryStorage())
	notes := &notify.Recorder{}
	opts = append([]fake.Option{
		fake.WithTokenSource(store),
		fake.WithNotifier(notes),
		fake.WithObjectStore(objects),
		fake.WithBcryptCost(bcrypt.MinCost),
	}, opts...)
	backend := fake.New(opts...)

	deps := services.Deps{Client: backend, Store: store, Notifier: notes}
	out := &bytes.Buffer{}
	app := &App{
		store:   store,
		auth:    services.NewAuthService(deps),
		uploads: services.NewUploadService(deps),
		files:   services.NewFileService(deps),
		log:     logging.Nop(),
		reader:  bufio.NewReader(strings.NewReader(input)),
		out:     out,
	}
	store.Subscribe(app.sessionChanged)
	return &testApp{App: app, backend: backend, notes: notes, buf: out}
}

func (a *testApp) signup(t *testing.T, username, email, password string) {
	t.Helper()
	ctx := context.Background()
	_, err := a.backend.SendRegisterCode(ctx, models.RegisterRequest{Username: username, Email: email, Password: password})
	require.NoError(t, err)
	_, err = a.backend.ConfirmRegister(ctx, email, a.backend.LastCode(email))
	require.NoError(t, err)
}

func (a *testApp) loggedIn(t *testing.T) {
	t.Helper()
	a.signup(t, "alice", "alice@gmail.com", "Secret123!")
	_, err := a.auth.Login(context.Background(), "alice@gmail.com", "Secret123!")
	require.NoError(t, err)
	a.setUser(a.store.CurrentUser())
}
