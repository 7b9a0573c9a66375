package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/dmitrijs2005/grabsmart/internal/client/models"
	"github.com/dmitrijs2005/grabsmart/internal/httpx"
)

var errEmptyUploadTarget = errors.New("backend returned no upload target")

// HTTPClient talks to the REST backend.
type HTTPClient struct {
	http *httpx.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient wraps an httpx.Client configured with the backend base URL
// and, for protected endpoints, a bearer-token interceptor.
func NewHTTPClient(c *httpx.Client) *HTTPClient {
	return &HTTPClient{http: c}
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	if err := c.http.Post(ctx, "/auth/login", models.Credentials{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) SendRegisterCode(ctx context.Context, req models.RegisterRequest) (*models.MessageResponse, error) {
	return c.message(ctx, "/users/register/send-code", req)
}

func (c *HTTPClient) ConfirmRegister(ctx context.Context, email, code string) (*models.MessageResponse, error) {
	return c.message(ctx, "/users/register/confirm", models.EmailCode{Email: email, Code: code})
}

func (c *HTTPClient) SendRecoveryCode(ctx context.Context, email string) (*models.MessageResponse, error) {
	return c.message(ctx, "/users/recovery/send-code", models.RecoveryRequest{Email: email})
}

func (c *HTTPClient) ConfirmRecovery(ctx context.Context, email, code, newPassword string) (*models.MessageResponse, error) {
	return c.message(ctx, "/users/recovery/confirm", models.RecoveryConfirm{Email: email, Code: code, NewPassword: newPassword})
}

func (c *HTTPClient) message(ctx context.Context, path string, body any) (*models.MessageResponse, error) {
	var out models.MessageResponse
	if err := c.http.Post(ctx, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Me(ctx context.Context) (*models.UserProfile, error) {
	var out models.UserProfile
	if err := c.http.Get(ctx, "/users/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) UpdateUser(ctx context.Context, id string, upd models.ProfileUpdate) (*models.UserProfile, error) {
	var out models.UserProfile
	if err := c.http.Patch(ctx, "/users/"+url.PathEscape(id), upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) RequestUploadURL(ctx context.Context, req models.UploadURLRequest) (*models.UploadTarget, error) {
	var out models.UploadTarget
	if err := c.http.Post(ctx, "/files/upload-url", req, &out); err != nil {
		return nil, err
	}
	if out.PresignedPost.URL == "" {
		return nil, errEmptyUploadTarget
	}
	return &out, nil
}

func (c *HTTPClient) CompleteUpload(ctx context.Context, req models.CompleteUploadRequest) (*models.FileRecord, error) {
	var out models.CompleteUploadResponse
	if err := c.http.Post(ctx, "/files/upload-complete", req, &out); err != nil {
		return nil, err
	}
	if out.File == nil {
		// older backends only acknowledge; rebuild the record from the request
		return &models.FileRecord{FileKey: req.FileKey, FileName: req.FileName, FileSize: req.FileSize, MimeType: req.MimeType}, nil
	}
	return out.File, nil
}

// ListFiles returns the caller's files. An empty reply means no files.
func (c *HTTPClient) ListFiles(ctx context.Context) ([]models.FileRecord, error) {
	var raw json.RawMessage
	if err := c.http.Get(ctx, "/files", &raw); err != nil {
		return nil, err
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("{}")) {
		return []models.FileRecord{}, nil
	}

	var out []models.FileRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode file list: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) DownloadURL(ctx context.Context, id string) (string, error) {
	var out models.DownloadURL
	if err := c.http.Get(ctx, "/files/"+url.PathEscape(id)+"/download-url", &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *HTTPClient) DeleteFile(ctx context.Context, id string) error {
	return c.http.Delete(ctx, "/files/"+url.PathEscape(id), nil)
}
