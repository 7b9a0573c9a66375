package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/grabsmart/internal/client/client"
	"github.com/dmitrijs2005/grabsmart/internal/client/config"
	"github.com/dmitrijs2005/grabsmart/internal/client/fake"
	"github.com/dmitrijs2005/grabsmart/internal/client/notify"
	"github.com/dmitrijs2005/grabsmart/internal/client/repositories/kv"
	"github.com/dmitrijs2005/grabsmart/internal/client/services"
	"github.com/dmitrijs2005/grabsmart/internal/client/session"
	"github.com/dmitrijs2005/grabsmart/internal/client/token"
	"github.com/dmitrijs2005/grabsmart/internal/client/validation"
	"github.com/dmitrijs2005/grabsmart/internal/httpx"
	"github.com/dmitrijs2005/grabsmart/internal/logging"
)

type App struct {
	config  *config.Config
	store   *session.Store
	auth    services.AuthService
	uploads services.UploadService
	files   services.FileService
	log     logging.Logger
	reader  *bufio.Reader
	out     io.Writer
	db      *sql.DB

	mu       sync.Mutex
	userName string
}

// NewApp wires storage, the backend and the services. ctx bounds background
// servers started for the fake backend.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.New(logging.Options{Level: c.LogLevel, Format: c.LogFormat, File: c.LogFile, Console: os.Stderr})
	notifier := notify.NewWriter(os.Stdout)

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		log.Error(ctx, "error initializing database", "path", c.DatabasePath, "error", err)
		return nil, err
	}

	storage := session.NewDurableStorage(kv.NewSQLiteRepository(db), c.DatabasePath, log)
	store := session.NewStore(storage,
		session.WithLogger(log),
		session.WithInterval(c.SessionCheckInterval),
	)

	backend, err := newBackend(ctx, c, store, notifier, log, os.Stdout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	deps := services.Deps{
		Client:    backend,
		Store:     store,
		Validator: validation.New(c.AllowedEmailDomains),
		Notifier:  notifier,
		Logger:    log,
		Transfer:  &http.Client{},
	}

	return &App{
		config:  c,
		store:   store,
		auth:    services.NewAuthService(deps),
		uploads: services.NewUploadService(deps),
		files:   services.NewFileService(deps),
		log:     log,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		db:      db,
	}, nil
}

// newBackend returns the REST client or, for the fake backend, an in-memory
// backend whose object store listens on a loopback port. Codes the fake
// backend would mail are printed to out.
func newBackend(ctx context.Context, c *config.Config, store *session.Store, n notify.Notifier, log logging.Logger, out io.Writer) (client.Client, error) {
	switch c.Backend {
	case config.BackendFake:
		objects := fake.NewObjectStore()
		if err := objects.Serve(ctx, "127.0.0.1:0"); err != nil {
			return nil, err
		}
		log.Info(ctx, "using in-memory backend", "object_store", objects.URL())
		return fake.New(
			fake.WithTokenSource(store),
			fake.WithNotifier(n),
			fake.WithObjectStore(objects),
			fake.WithMailer(func(email, code string) {
				fmt.Fprintf(out, "[mail to %s] your code is %s\n", email, code)
			}),
		), nil
	case config.BackendHTTP:
		hc := httpx.New(c.ServerURL,
			httpx.WithInterceptor(httpx.BearerToken(store)),
			httpx.WithNotifier(n),
			httpx.WithLogger(log),
			httpx.WithTimeout(c.RequestTimeout),
		)
		return client.NewHTTPClient(hc), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// Run restores the persisted session and serves the REPL until the user
// exits. The session is kept in sync with other processes in the background.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.setUser(a.store.Load(ctx))
	unsubscribe := a.store.Subscribe(a.sessionChanged)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.store.Run(gctx) })

	a.Root(ctx)
	cancel()

	return g.Wait()
}

func (a *App) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) isLoggedIn() bool {
	return a.store.IsAuthenticated()
}

func (a *App) setUser(c *token.Claims) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userName = ""
	if c != nil {
		a.userName = displayName(c)
	}
}

// sessionChanged reports a session that ended without a logout from this
// process: expiry, a 401 or a logout elsewhere.
func (a *App) sessionChanged(c *token.Claims) {
	if c == nil && a.store.IsAuthenticated() {
		return
	}
	had := a.currentName() != ""
	a.setUser(c)
	if c == nil && had {
		printlnFn("Your session has ended. Please log in again.")
	}
}

func displayName(c *token.Claims) string {
	if c.Username != "" {
		return c.Username
	}
	if c.Email != "" {
		return c.Email
	}
	return c.ID()
}
