package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/grabsmart/internal/client/models"
	"github.com/dmitrijs2005/grabsmart/internal/client/notify"
	"github.com/dmitrijs2005/grabsmart/internal/netx"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrUploadAborted is the error of a session stopped by Abort or by
// cancellation of its context.
var ErrUploadAborted = errors.New("upload aborted")

type UploadState string

const (
	UploadIdle             UploadState = "idle"
	UploadRequestingTarget UploadState = "requesting_target"
	UploadUploading        UploadState = "uploading"
	UploadConfirming       UploadState = "confirming"
	UploadSuccess          UploadState = "success"
	UploadError            UploadState = "error"
)

// FailureReason tells an aborted upload from a failed one.
type FailureReason string

const (
	ReasonNone    FailureReason = ""
	ReasonAborted FailureReason = "aborted"
	ReasonFailed  FailureReason = "failed"
)

// UploadSession is the state of one upload. It is used once.
type UploadSession struct {
	ID     string
	Source netx.FileSource

	mu       sync.Mutex
	state    UploadState
	progress int
	fileKey  string
	file     *models.FileRecord
	err      error
	reason   FailureReason
	aborted  bool
	cancel   context.CancelFunc
}

func (s *UploadSession) State() UploadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress is the percentage of file bytes sent, 0 to 100.
func (s *UploadSession) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// FileKey is the storage key assigned by the backend, once known.
func (s *UploadSession) FileKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileKey
}

// File is the catalog record created on success.
func (s *UploadSession) File() *models.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file
}

func (s *UploadSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *UploadSession) Reason() FailureReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Message is the user-facing text of the failure, if any.
func (s *UploadSession) Message() string {
	return Message(s.Err())
}

// Abort stops the upload. It is safe to call at any time and more than once;
// a session aborted before Upload starts fails immediately.
func (s *UploadSession) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *UploadSession) start(cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != UploadIdle {
		return ErrInvalidState
	}
	s.cancel = cancel
	s.state = UploadRequestingTarget
	return nil
}

func (s *UploadSession) enter(state UploadState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// advance raises the progress and reports whether it changed.
func (s *UploadSession) advance(p int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p <= s.progress || s.state != UploadUploading {
		return false
	}
	s.progress = p
	return true
}

func (s *UploadSession) succeed(rec *models.FileRecord) (raised bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raised = s.progress < 100
	s.progress = 100
	s.file = rec
	s.state = UploadSuccess
	s.cancel = nil
	return raised
}

// fail moves the session to error and returns the error callers should see.
func (s *UploadSession) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aborted || errors.Is(err, context.Canceled) {
		s.reason = ReasonAborted
		err = ErrUploadAborted
	} else {
		s.reason = ReasonFailed
	}
	s.err = err
	s.state = UploadError
	s.cancel = nil
	return err
}

func (s *UploadSession) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// UploadService defines the upload operations for the CLI.
//
// Contract:
//   - NewSession: prepare an upload of src.
//   - Upload: request a target, send the bytes, confirm with the backend.
//   - UploadFile: Upload for a file on disk.
type UploadService interface {
	NewSession(src netx.FileSource) *UploadSession
	Upload(ctx context.Context, s *UploadSession, onProgress func(percent int)) (*models.FileRecord, error)
	UploadFile(ctx context.Context, path string, onProgress func(percent int)) (*models.FileRecord, error)
}

type uploadService struct {
	Deps
}

func NewUploadService(deps Deps) UploadService {
	return &uploadService{Deps: deps.withDefaults()}
}

func (u *uploadService) NewSession(src netx.FileSource) *UploadSession {
	return &UploadSession{ID: uuid.NewString(), Source: src, state: UploadIdle}
}

// Upload runs the session through requesting_target, uploading, confirming and
// success. Every step waits for the previous one. Progress is reported only
// when it grows and ends at exactly 100.
func (u *uploadService) Upload(ctx context.Context, s *UploadSession, onProgress func(percent int)) (*models.FileRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.start(cancel); err != nil {
		return nil, u.refuse(ctx, err)
	}
	log := u.Logger.With("upload_id", s.ID, "file_name", s.Source.Name)

	if s.isAborted() {
		return nil, u.failed(ctx, s, context.Canceled)
	}

	target, err := u.Client.RequestUploadURL(ctx, models.UploadURLRequest{
		FileName: s.Source.Name,
		FileSize: s.Source.Size,
		MimeType: s.Source.MimeType,
	})
	if err != nil {
		log.Warn(ctx, "upload target request failed", "error", err)
		return nil, u.failed(ctx, s, u.expire(ctx, err))
	}

	s.mu.Lock()
	s.fileKey = target.FileKey
	s.mu.Unlock()
	s.enter(UploadUploading)

	report := func(sent, total int64) {
		p := percent(sent, total)
		if s.advance(p) && onProgress != nil {
			onProgress(p)
		}
	}
	err = netx.PostForm(ctx, u.Transfer, target.PresignedPost.URL, target.PresignedPost.Fields, s.Source, report)
	if err != nil {
		log.Warn(ctx, "upload transfer failed", "error", err)
		return nil, u.failed(ctx, s, err)
	}

	s.enter(UploadConfirming)
	rec, err := u.Client.CompleteUpload(ctx, models.CompleteUploadRequest{
		FileKey:  target.FileKey,
		FileName: s.Source.Name,
		FileSize: s.Source.Size,
		MimeType: s.Source.MimeType,
	})
	if err != nil {
		log.Warn(ctx, "upload confirmation failed", "error", err)
		return nil, u.failed(ctx, s, u.expire(ctx, err))
	}

	if s.succeed(rec) && onProgress != nil {
		onProgress(100)
	}
	log.Info(ctx, "upload finished", "file_key", rec.FileKey, "bytes", rec.FileSize)
	notify.Success(ctx, u.Notifier, fmt.Sprintf("%s uploaded", s.Source.Name))
	return rec, nil
}

// failed ends the session and notifies the error, unless the HTTP client
// already did.
func (u *uploadService) failed(ctx context.Context, s *UploadSession, err error) error {
	err = s.fail(err)
	switch {
	case errors.Is(err, ErrUploadAborted):
		notify.Error(ctx, u.Notifier, "Upload cancelled")
	case !notifiedByTransport(err):
		notify.Error(ctx, u.Notifier, "Upload failed: "+err.Error())
	}
	return err
}

func percent(sent, total int64) int {
	if total <= 0 {
		return 100
	}
	p := int(math.Round(float64(sent) * 100 / float64(total)))
	return min(max(p, 0), 100)
}

// UploadFile uploads the file at path. The MIME type comes from the extension,
// falling back to content sniffing.
func (u *uploadService) UploadFile(ctx context.Context, path string, onProgress func(percent int)) (*models.FileRecord, error) {
	src, closer, err := OpenSource(path)
	if err != nil {
		return nil, u.refuse(ctx, err)
	}
	defer closer.Close()

	return u.Upload(ctx, u.NewSession(src), onProgress)
}

// OpenSource opens path for upload. The caller closes the returned Closer.
func OpenSource(path string) (netx.FileSource, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return netx.FileSource{}, nil, fmt.Errorf("open file: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return netx.FileSource{}, nil, fmt.Errorf("stat file: %w", err)
	}
	if st.IsDir() {
		f.Close()
		return netx.FileSource{}, nil, fmt.Errorf("%s is a directory", path)
	}

	mimeType, err := detectMIME(f)
	if err != nil {
		f.Close()
		return netx.FileSource{}, nil, fmt.Errorf("detect type: %w", err)
	}

	return netx.FileSource{
		Name:     filepath.Base(path),
		MimeType: mimeType,
		Size:     st.Size(),
		Reader:   f,
	}, f, nil
}

func detectMIME(f *os.File) (string, error) {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name()))); t != "" {
		return stripParams(t), nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if n == 0 {
		return "application/octet-stream", nil
	}
	return stripParams(mimetype.Detect(head[:n]).String()), nil
}

// sniffLen matches the read limit of mimetype.Detect.
const sniffLen = 3072

func stripParams(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.TrimSpace(t)
}
