package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/grabsmart/internal/client/client"
	"github.com/dmitrijs2005/grabsmart/internal/client/fake"
	"github.com/dmitrijs2005/grabsmart/internal/client/models"
	"github.com/dmitrijs2005/grabsmart/internal/client/session"
	"github.com/dmitrijs2005/grabsmart/internal/httpx"
	"github.com/dmitrijs2005/grabsmart/internal/netx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggedIn(t *testing.T, env *testEnv, b *fake.Backend) {
	t.Helper()
	signup(t, b, "alice", "alice@gmail.com", "Secret123!")
	_, err := NewAuthService(env.deps).Login(context.Background(), "alice@gmail.com", "Secret123!")
	require.NoError(t, err)
}

func source(data []byte) netx.FileSource {
	return netx.FileSource{Name: "data.bin", MimeType: "application/octet-stream", Size: int64(len(data)), Reader: bytes.NewReader(data)}
}

// progressLog collects progress callbacks, which may run on the transport's
// goroutine.
type progressLog struct {
	mu   sync.Mutex
	seen []int
}

func (l *progressLog) add(p int) {
	l.mu.Lock()
	l.seen = append(l.seen, p)
	l.mu.Unlock()
}

func (l *progressLog) values() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.seen...)
}

func TestUpload_ProgressIsMonotonicAndEndsAt100(t *testing.T) {
	env, backend := newFakeEnv(t)
	loggedIn(t, env, backend)
	svc := NewUploadService(env.deps)

	data := bytes.Repeat([]byte("0123456789abcdef"), 64<<10) // 1 MiB
	sess := svc.NewSession(source(data))
	assert.Equal(t, UploadIdle, sess.State())

	var progress progressLog
	rec, err := svc.Upload(context.Background(), sess, func(p int) {
		assert.Equal(t, UploadUploading, sess.State())
		progress.add(p)
	})
	require.NoError(t, err)

	seen := progress.values()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100, seen[len(seen)-1])
	assert.Equal(t, 100, sess.Progress())
	assert.Equal(t, UploadSuccess, sess.State())
	assert.Equal(t, ReasonNone, sess.Reason())
	assert.Same(t, rec, sess.File())
	assert.Equal(t, int64(len(data)), rec.FileSize)
	assert.Equal(t, rec.FileKey, sess.FileKey())

	files, err := NewFileService(env.deps).List(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, rec.ID, files[0].ID)
}

func TestUpload_InsufficientStorageSurfacesBackendMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/upload-url", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Insufficient storage space"}`)
	}))
	defer ts.Close()

	env := newTestEnv(nil)
	env.deps.Client = client.NewHTTPClient(httpx.New(ts.URL+"/api", httpx.WithNotifier(env.notes)))
	svc := NewUploadService(env.deps)

	sess := svc.NewSession(source([]byte("hello")))
	_, err := svc.Upload(context.Background(), sess, nil)
	require.Error(t, err)

	var apiErr *httpx.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, UploadError, sess.State())
	assert.Equal(t, ReasonFailed, sess.Reason())
	assert.Equal(t, "Insufficient storage space", sess.Message())
	assert.Equal(t, []string{"Insufficient storage space"}, env.notes.Errors())
	assert.Equal(t, 0, sess.Progress())
}

func TestUpload_EmptyTargetIsNotified(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer ts.Close()

	env := newTestEnv(nil)
	env.deps.Client = client.NewHTTPClient(httpx.New(ts.URL+"/api", httpx.WithNotifier(env.notes)))
	svc := NewUploadService(env.deps)

	sess := svc.NewSession(source([]byte("hello")))
	_, err := svc.Upload(context.Background(), sess, nil)
	require.Error(t, err)
	assert.Equal(t, UploadError, sess.State())
	require.Len(t, env.notes.Errors(), 1)
	assert.Equal(t, "Upload failed: "+err.Error(), env.notes.Errors()[0])
}

func TestUpload_QuotaOnFakeBackend(t *testing.T) {
	env, backend := newFakeEnv(t, fake.WithQuota(4))
	loggedIn(t, env, backend)
	svc := NewUploadService(env.deps)

	sess := svc.NewSession(source([]byte("hello")))
	_, err := svc.Upload(context.Background(), sess, nil)
	require.Error(t, err)
	assert.Equal(t, fake.MsgInsufficientStorage, sess.Message())
	assert.Equal(t, []string{fake.MsgInsufficientStorage}, env.notes.Errors())
}

func TestUpload_TransportFailureSkipsConfirmation(t *testing.T) {
	bucket := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "<Error><Code>AccessDenied</Code></Error>")
	}))
	defer bucket.Close()

	fc := &fakeClient{UploadTarget: &models.UploadTarget{
		PresignedPost: models.PresignedPost{URL: bucket.URL, Fields: models.FormFields{{Name: "key", Value: "k1"}}},
		FileKey:       "k1",
	}}
	env := newTestEnv(fc)
	svc := NewUploadService(env.deps)

	sess := svc.NewSession(source([]byte("hello")))
	_, err := svc.Upload(context.Background(), sess, nil)

	var se *netx.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Status)
	assert.Equal(t, UploadError, sess.State())
	assert.Equal(t, ReasonFailed, sess.Reason())
	assert.Equal(t, []string{"RequestUploadURL"}, fc.Calls())
	require.Len(t, env.notes.Errors(), 1)
	assert.Contains(t, env.notes.Errors()[0], "Upload failed")
}

func TestUpload_AbortDuringTransfer(t *testing.T) {
	bucket := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer bucket.Close()

	fc := &fakeClient{UploadTarget: &models.UploadTarget{
		PresignedPost: models.PresignedPost{URL: bucket.URL},
		FileKey:       "k1",
	}}
	env := newTestEnv(fc)
	svc := NewUploadService(env.deps)

	data := bytes.Repeat([]byte{1}, 4<<20)
	sess := svc.NewSession(source(data))
	_, err := svc.Upload(context.Background(), sess, func(int) { sess.Abort() })

	require.ErrorIs(t, err, ErrUploadAborted)
	assert.Equal(t, UploadError, sess.State())
	assert.Equal(t, ReasonAborted, sess.Reason())
	assert.Less(t, sess.Progress(), 100)
	assert.Equal(t, []string{"RequestUploadURL"}, fc.Calls())
	assert.Equal(t, []string{"Upload cancelled"}, env.notes.Errors())
}

func TestUpload_AbortBeforeStart(t *testing.T) {
	fc := &fakeClient{}
	env := newTestEnv(fc)
	svc := NewUploadService(env.deps)

	sess := svc.NewSession(source([]byte("x")))
	sess.Abort()
	sess.Abort()

	_, err := svc.Upload(context.Background(), sess, nil)
	require.ErrorIs(t, err, ErrUploadAborted)
	assert.Equal(t, ReasonAborted, sess.Reason())
	assert.Empty(t, fc.Calls())
}

func TestUpload_SessionIsSingleUse(t *testing.T) {
	env, backend := newFakeEnv(t)
	loggedIn(t, env, backend)
	svc := NewUploadService(env.deps)

	sess := svc.NewSession(source([]byte("x")))
	_, err := svc.Upload(context.Background(), sess, nil)
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), sess, nil)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, UploadSuccess, sess.State())
}

func TestUpload_UnauthorizedEndsSession(t *testing.T) {
	fc := &fakeClient{UploadURLErr: &httpx.APIError{Status: http.StatusUnauthorized, Message: "Unauthorized"}}
	env := newTestEnv(fc)
	require.NoError(t, env.store.Set(context.Background(), userToken(t, "u1")))

	sess := NewUploadService(env.deps).NewSession(source([]byte("x")))
	_, err := NewUploadService(env.deps).Upload(context.Background(), sess, nil)
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Nil(t, env.store.CurrentUser())

	_, ok, _ := env.storage.Get(context.Background(), session.DefaultKey)
	assert.False(t, ok)
}

func TestUploadFile_EmptyFileAndMIME(t *testing.T) {
	env, backend := newFakeEnv(t)
	loggedIn(t, env, backend)
	svc := NewUploadService(env.deps)

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	var progress progressLog
	rec, err := svc.UploadFile(context.Background(), path, progress.add)
	require.NoError(t, err)
	assert.Equal(t, []int{100}, progress.values())
	assert.Equal(t, "empty.json", rec.FileName)
	assert.Equal(t, int64(0), rec.FileSize)
	assert.Equal(t, "application/json", rec.MimeType)
}

func TestUploadFile_Missing(t *testing.T) {
	env := newTestEnv(&fakeClient{})
	_, err := NewUploadService(env.deps).UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Len(t, env.notes.Errors(), 1)
}

func TestOpenSource_SniffsWithoutExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7\n..."), 0o600))

	src, closer, err := OpenSource(path)
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, "application/pdf", src.MimeType)
	assert.Equal(t, "report", src.Name)
	assert.Equal(t, int64(12), src.Size)

	b, err := io.ReadAll(src.Reader)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7\n...", string(b), "sniffing must not consume the content")
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, percent(0, 10))
	assert.Equal(t, 50, percent(5, 10))
	assert.Equal(t, 67, percent(2, 3))
	assert.Equal(t, 100, percent(10, 10))
	assert.Equal(t, 100, percent(0, 0))
}
