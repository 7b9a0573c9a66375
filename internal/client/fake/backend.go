// Package fake is an in-memory GrabSmart backend. It implements client.Client
// with the same rules and messages as the real service so the CLI and the
// flow controllers can run without a network.
package fake

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/grabsmart/internal/client/client"
	"github.com/dmitrijs2005/grabsmart/internal/client/models"
	"github.com/dmitrijs2005/grabsmart/internal/client/notify"
	"github.com/dmitrijs2005/grabsmart/internal/httpx"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultQuota    = 100 << 20
	DefaultTokenTTL = 24 * time.Hour
	linkTTL         = 15 * time.Minute
	codeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Messages returned by the backend.
const (
	MsgInvalidCredentials  = "Invalid email or password"
	MsgEmailTaken          = "Email is already registered"
	MsgUsernameTaken       = "Username is already taken"
	MsgInvalidVerification = "Verification code is invalid or expired"
	MsgInvalidRecovery     = "Invalid or expired recovery code."
	MsgUnauthorized        = "Unauthorized"
	MsgForbidden           = "You can only update your own profile"
	MsgInsufficientStorage = "Insufficient storage space"
	MsgNotUploaded         = "File was not uploaded"
	MsgFileNotFound        = "File not found"
)

type account struct {
	ID        string
	Username  string
	Email     string
	Hash      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

type pendingAccount struct {
	account
	code string
}

type pendingUpload struct {
	ownerID string
}

type Option func(*Backend)

// WithTokenSource tells the backend where to read the caller's bearer token.
func WithTokenSource(src httpx.TokenSource) Option {
	return func(b *Backend) { b.tokens = src }
}

func WithNotifier(n notify.Notifier) Option {
	return func(b *Backend) { b.notifier = n }
}

func WithObjectStore(s *ObjectStore) Option {
	return func(b *Backend) { b.objects = s }
}

// WithMailer receives every code the backend would send by email.
func WithMailer(fn func(email, code string)) Option {
	return func(b *Backend) { b.mailer = fn }
}

func WithQuota(bytes int64) Option {
	return func(b *Backend) { b.quota = bytes }
}

func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

func WithTokenTTL(d time.Duration) Option {
	return func(b *Backend) { b.ttl = d }
}

// WithBcryptCost lowers the hashing cost, mostly for tests.
func WithBcryptCost(cost int) Option {
	return func(b *Backend) { b.cost = cost }
}

type Backend struct {
	mu       sync.Mutex
	secret   []byte
	ttl      time.Duration
	cost     int
	quota    int64
	now      func() time.Time
	tokens   httpx.TokenSource
	notifier notify.Notifier
	objects  *ObjectStore
	mailer   func(email, code string)

	accounts map[string]*account // by lower-cased email
	pending  map[string]*pendingAccount
	recovery map[string]string
	files    map[string]*models.FileRecord
	uploads  map[string]pendingUpload // by file key
	lastCode map[string]string
}

var _ client.Client = (*Backend)(nil)

type noToken struct{}

func (noToken) Token() string { return "" }

func New(opts ...Option) *Backend {
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)

	b := &Backend{
		secret:   secret,
		ttl:      DefaultTokenTTL,
		cost:     bcrypt.DefaultCost,
		quota:    DefaultQuota,
		now:      time.Now,
		tokens:   noToken{},
		notifier: notify.Nop(),
		objects:  NewObjectStore(),
		accounts: make(map[string]*account),
		pending:  make(map[string]*pendingAccount),
		recovery: make(map[string]string),
		files:    make(map[string]*models.FileRecord),
		uploads:  make(map[string]pendingUpload),
		lastCode: make(map[string]string),
	}
	for _, o := range opts {
		o(b)
	}
	b.objects.now = b.now
	return b
}

// Objects returns the object store backing uploads and downloads.
func (b *Backend) Objects() *ObjectStore { return b.objects }

// LastCode returns the most recent verification or recovery code sent to email.
func (b *Backend) LastCode(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastCode[strings.ToLower(email)]
}

func (b *Backend) fail(ctx context.Context, status int, msg string) error {
	notify.Error(ctx, b.notifier, msg)
	return &httpx.APIError{Status: status, Message: msg}
}

func (b *Backend) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	b.mu.Lock()
	acc, ok := b.accounts[strings.ToLower(email)]
	b.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.Hash, []byte(password)) != nil {
		return nil, b.fail(ctx, http.StatusUnauthorized, MsgInvalidCredentials)
	}

	tok, err := generateToken(acc, b.secret, b.now(), b.ttl)
	if err != nil {
		return nil, b.fail(ctx, http.StatusInternalServerError, httpx.FallbackMessage)
	}

	return &models.LoginResponse{
		Success:     true,
		AccessToken: tok,
		User:        models.User{ID: acc.ID, Email: acc.Email, Username: acc.Username},
	}, nil
}

func (b *Backend) SendRegisterCode(ctx context.Context, req models.RegisterRequest) (*models.MessageResponse, error) {
	email := strings.ToLower(req.Email)

	b.mu.Lock()
	_, emailTaken := b.accounts[email]
	nameTaken := b.usernameTakenLocked(req.Username, "", email)
	b.mu.Unlock()

	if emailTaken {
		return nil, b.fail(ctx, http.StatusConflict, MsgEmailTaken)
	}
	if nameTaken {
		return nil, b.fail(ctx, http.StatusConflict, MsgUsernameTaken)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), b.cost)
	if err != nil {
		return nil, b.fail(ctx, http.StatusBadRequest, err.Error())
	}
	code, err := newCode()
	if err != nil {
		return nil, b.fail(ctx, http.StatusInternalServerError, httpx.FallbackMessage)
	}

	b.mu.Lock()
	b.pending[email] = &pendingAccount{
		account: account{Username: req.Username, Email: req.Email, Hash: hash},
		code:    code,
	}
	b.lastCode[email] = code
	b.mu.Unlock()

	b.send(req.Email, code)
	return &models.MessageResponse{Success: true, Message: "Verification code sent"}, nil
}

func (b *Backend) ConfirmRegister(ctx context.Context, email, code string) (*models.MessageResponse, error) {
	key := strings.ToLower(email)

	b.mu.Lock()
	p, ok := b.pending[key]
	if !ok || !strings.EqualFold(p.code, code) {
		b.mu.Unlock()
		return nil, b.fail(ctx, http.StatusBadRequest, MsgInvalidVerification)
	}
	if _, taken := b.accounts[key]; taken {
		b.mu.Unlock()
		return nil, b.fail(ctx, http.StatusConflict, MsgEmailTaken)
	}

	now := b.now()
	acc := p.account
	acc.ID = uuid.NewString()
	acc.CreatedAt, acc.UpdatedAt = now, now
	b.accounts[key] = &acc
	delete(b.pending, key)
	b.mu.Unlock()

	return &models.MessageResponse{Success: true, Message: "Account confirmed"}, nil
}

// SendRecoveryCode answers the same way whether or not the email is known.
func (b *Backend) SendRecoveryCode(ctx context.Context, email string) (*models.MessageResponse, error) {
	key := strings.ToLower(email)

	b.mu.Lock()
	_, known := b.accounts[key]
	b.mu.Unlock()

	if known {
		code, err := newCode()
		if err != nil {
			return nil, b.fail(ctx, http.StatusInternalServerError, httpx.FallbackMessage)
		}
		b.mu.Lock()
		b.recovery[key] = code
		b.lastCode[key] = code
		b.mu.Unlock()
		b.send(email, code)
	}

	return &models.MessageResponse{Success: true, Message: "If the email is registered, a recovery code was sent"}, nil
}

// ConfirmRecovery consumes the code only when it matches.
func (b *Backend) ConfirmRecovery(ctx context.Context, email, code, newPassword string) (*models.MessageResponse, error) {
	key := strings.ToLower(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), b.cost)
	if err != nil {
		return nil, b.fail(ctx, http.StatusBadRequest, err.Error())
	}

	b.mu.Lock()
	want, ok := b.recovery[key]
	acc, known := b.accounts[key]
	if !ok || !known || !strings.EqualFold(want, code) {
		b.mu.Unlock()
		return nil, b.fail(ctx, http.StatusBadRequest, MsgInvalidRecovery)
	}
	acc.Hash = hash
	acc.UpdatedAt = b.now()
	delete(b.recovery, key)
	b.mu.Unlock()

	return &models.MessageResponse{Success: true, Message: "Password updated"}, nil
}

// caller resolves the bearer token to an account.
func (b *Backend) caller(ctx context.Context) (*account, error) {
	raw := b.tokens.Token()
	if raw == "" {
		return nil, b.fail(ctx, http.StatusUnauthorized, MsgUnauthorized)
	}
	id, err := userIDFromToken(raw, b.secret, b.now)
	if err != nil {
		return nil, b.fail(ctx, http.StatusUnauthorized, MsgUnauthorized)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, acc := range b.accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return nil, b.fail(ctx, http.StatusUnauthorized, MsgUnauthorized)
}

func (b *Backend) Me(ctx context.Context) (*models.UserProfile, error) {
	acc, err := b.caller(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profileLocked(acc), nil
}

func (b *Backend) UpdateUser(ctx context.Context, id string, upd models.ProfileUpdate) (*models.UserProfile, error) {
	acc, err := b.caller(ctx)
	if err != nil {
		return nil, err
	}
	if acc.ID != id {
		return nil, b.fail(ctx, http.StatusForbidden, MsgForbidden)
	}

	b.mu.Lock()
	if upd.Username != nil && *upd.Username != acc.Username {
		if b.usernameTakenLocked(*upd.Username, acc.ID, "") {
			b.mu.Unlock()
			return nil, b.fail(ctx, http.StatusConflict, MsgUsernameTaken)
		}
		acc.Username = *upd.Username
		acc.UpdatedAt = b.now()
	}
	p := b.profileLocked(acc)
	b.mu.Unlock()

	return p, nil
}

func (b *Backend) RequestUploadURL(ctx context.Context, req models.UploadURLRequest) (*models.UploadTarget, error) {
	acc, err := b.caller(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	used := b.usedLocked(acc.ID)
	b.mu.Unlock()
	if req.FileSize < 0 || used+req.FileSize > b.quota {
		return nil, b.fail(ctx, http.StatusBadRequest, MsgInsufficientStorage)
	}

	key := fmt.Sprintf("%s/%s/%s", acc.ID, uuid.NewString(), req.FileName)
	policy, signature := b.policy(key, req.FileSize)

	b.mu.Lock()
	b.uploads[key] = pendingUpload{ownerID: acc.ID}
	b.mu.Unlock()
	b.objects.grant(key, req.FileSize)

	return &models.UploadTarget{
		PresignedPost: models.PresignedPost{
			URL: b.objects.URL(),
			Fields: models.FormFields{
				{Name: "key", Value: key},
				{Name: "Content-Type", Value: req.MimeType},
				{Name: "success_action_status", Value: "201"},
				{Name: "Policy", Value: policy},
				{Name: "X-Amz-Signature", Value: signature},
			},
		},
		FileKey: key,
	}, nil
}

func (b *Backend) CompleteUpload(ctx context.Context, req models.CompleteUploadRequest) (*models.FileRecord, error) {
	acc, err := b.caller(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	up, ok := b.uploads[req.FileKey]
	b.mu.Unlock()
	if !ok || up.ownerID != acc.ID {
		return nil, b.fail(ctx, http.StatusNotFound, MsgFileNotFound)
	}

	size, stored := b.objects.size(req.FileKey)
	if !stored {
		return nil, b.fail(ctx, http.StatusBadRequest, MsgNotUploaded)
	}

	now := b.now()
	rec := &models.FileRecord{
		ID:        uuid.NewString(),
		OwnerID:   acc.ID,
		FileName:  req.FileName,
		FileKey:   req.FileKey,
		FileSize:  size,
		MimeType:  req.MimeType,
		CreatedAt: now,
		UpdatedAt: now,
	}

	b.mu.Lock()
	b.files[rec.ID] = rec
	delete(b.uploads, req.FileKey)
	b.mu.Unlock()

	out := *rec
	return &out, nil
}

// ListFiles returns the caller's files, newest first.
func (b *Backend) ListFiles(ctx context.Context) ([]models.FileRecord, error) {
	acc, err := b.caller(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	out := make([]models.FileRecord, 0)
	for _, f := range b.files {
		if f.OwnerID == acc.ID {
			out = append(out, *f)
		}
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].FileName < out[j].FileName
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (b *Backend) DownloadURL(ctx context.Context, id string) (string, error) {
	f, err := b.ownedFile(ctx, id)
	if err != nil {
		return "", err
	}

	u, err := b.objects.signGet(f.FileKey, linkTTL)
	if err != nil {
		return "", b.fail(ctx, http.StatusInternalServerError, httpx.FallbackMessage)
	}
	return u, nil
}

func (b *Backend) DeleteFile(ctx context.Context, id string) error {
	f, err := b.ownedFile(ctx, id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.files, id)
	b.mu.Unlock()
	b.objects.remove(f.FileKey)
	return nil
}

func (b *Backend) ownedFile(ctx context.Context, id string) (*models.FileRecord, error) {
	acc, err := b.caller(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	f, ok := b.files[id]
	b.mu.Unlock()
	if !ok || f.OwnerID != acc.ID {
		return nil, b.fail(ctx, http.StatusNotFound, MsgFileNotFound)
	}
	return f, nil
}

func (b *Backend) profileLocked(acc *account) *models.UserProfile {
	var count int
	var used int64
	for _, f := range b.files {
		if f.OwnerID == acc.ID {
			count++
			used += f.FileSize
		}
	}

	return &models.UserProfile{
		ID:       acc.ID,
		Username: acc.Username,
		Email:    acc.Email,
		Bucket: models.BucketInfo{
			HasBucket:     true,
			BucketName:    acc.Username,
			ObjectsAmount: count,
			BucketSize:    float64(used),
		},
		StorageLimit: b.quota / 1024,
		IsVerified:   true,
		CreatedAt:    acc.CreatedAt,
		UpdatedAt:    acc.UpdatedAt,
	}
}

func (b *Backend) usedLocked(ownerID string) int64 {
	var used int64
	for _, f := range b.files {
		if f.OwnerID == ownerID {
			used += f.FileSize
		}
	}
	return used
}

// usernameTakenLocked ignores the account exceptID and a pending sign-up for
// exceptEmail, so a user can rename to their own name or ask for a new code.
func (b *Backend) usernameTakenLocked(name, exceptID, exceptEmail string) bool {
	for _, acc := range b.accounts {
		if acc.Username == name && acc.ID != exceptID {
			return true
		}
	}
	for email, p := range b.pending {
		if p.Username == name && email != exceptEmail {
			return true
		}
	}
	return false
}

// policy builds a presigned-POST style policy document and its signature.
func (b *Backend) policy(key string, size int64) (string, string) {
	doc, _ := json.Marshal(map[string]any{
		"expiration": b.now().Add(linkTTL).UTC().Format(time.RFC3339),
		"conditions": []any{
			map[string]string{"key": key},
			[]any{"content-length-range", 0, size},
		},
	})
	policy := base64.StdEncoding.EncodeToString(doc)
	sum := sha256.Sum256(append(append([]byte(nil), b.secret...), policy...))
	return policy, hex.EncodeToString(sum[:])
}

func (b *Backend) send(email, code string) {
	if b.mailer != nil {
		b.mailer(email, code)
	}
}

func newCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf), nil
}
