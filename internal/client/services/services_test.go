package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/grabsmart/internal/client/client"
	"github.com/dmitrijs2005/grabsmart/internal/client/fake"
	"github.com/dmitrijs2005/grabsmart/internal/client/models"
	"github.com/dmitrijs2005/grabsmart/internal/client/notify"
	"github.com/dmitrijs2005/grabsmart/internal/client/session"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ---- helpers ----

func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	b, err := json.Marshal(claims)
	require.NoError(t, err)
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString(b) + ".sig"
}

func userToken(t *testing.T, id string) string {
	return makeToken(t, map[string]any{
		"userId": id, "email": id + "@gmail.com", "username": id,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

type testEnv struct {
	deps    Deps
	store   *session.Store
	storage *session.MemoryStorage
	notes   *notify.Recorder
}

func newTestEnv(c client.Client) *testEnv {
	storage := session.NewMemoryStorage()
	store := session.NewStore(storage)
	notes := &notify.Recorder{}
	return &testEnv{
		deps:    Deps{Client: c, Store: store, Notifier: notes},
		store:   store,
		storage: storage,
		notes:   notes,
	}
}

// newFakeEnv wires the services to the in-memory backend, with the object
// store served over HTTP.
func newFakeEnv(t *testing.T, opts ...fake.Option) (*testEnv, *fake.Backend) {
	t.Helper()
	objects := fake.NewObjectStore()
	ts := httptest.NewServer(objects)
	t.Cleanup(ts.Close)
	objects.SetBaseURL(ts.URL)

	env := newTestEnv(nil)
	opts = append([]fake.Option{
		fake.WithTokenSource(env.store),
		fake.WithNotifier(env.notes),
		fake.WithObjectStore(objects),
		fake.WithBcryptCost(bcrypt.MinCost),
	}, opts...)
	backend := fake.New(opts...)
	env.deps.Client = backend
	return env, backend
}

func signup(t *testing.T, b *fake.Backend, username, email, password string) {
	t.Helper()
	ctx := context.Background()
	_, err := b.SendRegisterCode(ctx, models.RegisterRequest{Username: username, Email: email, Password: password})
	require.NoError(t, err)
	_, err = b.ConfirmRegister(ctx, email, b.LastCode(email))
	require.NoError(t, err)
}

// ---- fake client ----

// fakeClient implements client.Client for unit tests.
type fakeClient struct {
	mu    sync.Mutex
	calls []string

	LoginRet *models.LoginResponse
	LoginErr error

	SendRegisterErr    error
	ConfirmRegisterErr error
	SendRecoveryErr    error
	ConfirmRecoveryErr error

	MeRet         *models.UserProfile
	MeErr         error
	UpdateUserErr error

	UploadTarget   *models.UploadTarget
	UploadURLErr   error
	CompleteErr    error
	ListRet        []models.FileRecord
	ListErr        error
	DownloadURLRet string
	DeleteErr      error

	LastLoginEmail    string
	LastRegister      models.RegisterRequest
	LastConfirmCode   string
	LastRecovery      models.RecoveryConfirm
	LastUpdateID      string
	LastUpdate        models.ProfileUpdate
	LastUploadRequest models.UploadURLRequest
	LastComplete      models.CompleteUploadRequest
}

var _ client.Client = (*fakeClient)(nil)

func (f *fakeClient) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	f.record("Login")
	f.LastLoginEmail = email
	return f.LoginRet, f.LoginErr
}

func (f *fakeClient) SendRegisterCode(ctx context.Context, req models.RegisterRequest) (*models.MessageResponse, error) {
	f.record("SendRegisterCode")
	f.LastRegister = req
	if f.SendRegisterErr != nil {
		return nil, f.SendRegisterErr
	}
	return &models.MessageResponse{Success: true}, nil
}

func (f *fakeClient) ConfirmRegister(ctx context.Context, email, code string) (*models.MessageResponse, error) {
	f.record("ConfirmRegister")
	f.LastConfirmCode = code
	if f.ConfirmRegisterErr != nil {
		return nil, f.ConfirmRegisterErr
	}
	return &models.MessageResponse{Success: true}, nil
}

func (f *fakeClient) SendRecoveryCode(ctx context.Context, email string) (*models.MessageResponse, error) {
	f.record("SendRecoveryCode")
	if f.SendRecoveryErr != nil {
		return nil, f.SendRecoveryErr
	}
	return &models.MessageResponse{Success: true}, nil
}

func (f *fakeClient) ConfirmRecovery(ctx context.Context, email, code, newPassword string) (*models.MessageResponse, error) {
	f.record("ConfirmRecovery")
	f.LastRecovery = models.RecoveryConfirm{Email: email, Code: code, NewPassword: newPassword}
	if f.ConfirmRecoveryErr != nil {
		return nil, f.ConfirmRecoveryErr
	}
	return &models.MessageResponse{Success: true}, nil
}

func (f *fakeClient) Me(ctx context.Context) (*models.UserProfile, error) {
	f.record("Me")
	return f.MeRet, f.MeErr
}

func (f *fakeClient) UpdateUser(ctx context.Context, id string, upd models.ProfileUpdate) (*models.UserProfile, error) {
	f.record("UpdateUser")
	f.LastUpdateID = id
	f.LastUpdate = upd
	if f.UpdateUserErr != nil {
		return nil, f.UpdateUserErr
	}
	return &models.UserProfile{ID: id, Username: *upd.Username}, nil
}

func (f *fakeClient) RequestUploadURL(ctx context.Context, req models.UploadURLRequest) (*models.UploadTarget, error) {
	f.record("RequestUploadURL")
	f.LastUploadRequest = req
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.UploadTarget, f.UploadURLErr
}

func (f *fakeClient) CompleteUpload(ctx context.Context, req models.CompleteUploadRequest) (*models.FileRecord, error) {
	f.record("CompleteUpload")
	f.LastComplete = req
	if f.CompleteErr != nil {
		return nil, f.CompleteErr
	}
	return &models.FileRecord{ID: "f1", FileKey: req.FileKey, FileName: req.FileName, FileSize: req.FileSize, MimeType: req.MimeType}, nil
}

func (f *fakeClient) ListFiles(ctx context.Context) ([]models.FileRecord, error) {
	f.record("ListFiles")
	return f.ListRet, f.ListErr
}

func (f *fakeClient) DownloadURL(ctx context.Context, id string) (string, error) {
	f.record("DownloadURL")
	return f.DownloadURLRet, nil
}

func (f *fakeClient) DeleteFile(ctx context.Context, id string) error {
	f.record("DeleteFile")
	return f.DeleteErr
}
