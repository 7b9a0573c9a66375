// Package httpx is a small JSON-over-HTTP client: base URL joining, request
// interceptors, uniform error decoding and user-facing error notification.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/grabsmart/internal/client/notify"
	"github.com/dmitrijs2005/grabsmart/internal/logging"
)

const (
	FallbackMessage    = "An unexpected error occurred"
	UnreachableMessage = "Cannot reach the server"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Message string
	Status  int
	Errors  map[string][]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// Is lets a 401 match ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Interceptor mutates every outgoing request before it is sent.
type Interceptor func(*http.Request) error

// TokenSource yields the current bearer token, or "" when there is none.
type TokenSource interface {
	Token() string
}

// BearerToken attaches the token from src to every request that has one.
func BearerToken(src TokenSource) Interceptor {
	return func(r *http.Request) error {
		if t := src.Token(); t != "" {
			r.Header.Set("Authorization", "Bearer "+t)
		}
		return nil
	}
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithInterceptor(i Interceptor) Option {
	return func(c *Client) { c.interceptors = append(c.interceptors, i) }
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithTimeout bounds every request. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

type Client struct {
	baseURL      string
	http         *http.Client
	interceptors []Interceptor
	notifier     notify.Notifier
	log          logging.Logger
	timeout      time.Duration
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		notifier: notify.Nop(),
		log:      logging.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type callOptions struct {
	silent  bool
	headers http.Header
}

type RequestOption func(*callOptions)

// SkipErrorNotification keeps failures of this call out of the notifier.
// The error is still returned.
func SkipErrorNotification() RequestOption {
	return func(o *callOptions) { o.silent = true }
}

func WithHeader(key, value string) RequestOption {
	return func(o *callOptions) { o.headers.Set(key, value) }
}

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, path, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do sends one request. A nil body sends no payload; a nil out discards the
// response. Empty or non-JSON response bodies decode as an empty object.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	co := callOptions{headers: http.Header{}}
	for _, o := range opts {
		o(&co)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range co.headers {
		req.Header[k] = vs
	}
	for _, i := range c.interceptors {
		if err := i(req); err != nil {
			return err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.log.Warn(ctx, "request failed", "method", method, "path", path, "error", err)
		c.notify(ctx, co, UnreachableMessage)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.notify(ctx, co, UnreachableMessage)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	raw = normalize(raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, raw)
		c.log.Debug(ctx, "request rejected", "method", method, "path", path, "status", apiErr.Status, "message", apiErr.Message)
		c.notify(ctx, co, apiErr.Message)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) notify(ctx context.Context, co callOptions, msg string) {
	if co.silent {
		return
	}
	notify.Error(ctx, c.notifier, msg)
}

func normalize(raw []byte) []byte {
	if len(bytes.TrimSpace(raw)) == 0 || !json.Valid(raw) {
		return []byte("{}")
	}
	return raw
}

func decodeError(status int, raw []byte) *APIError {
	var body struct {
		Message any                 `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}
	_ = json.Unmarshal(raw, &body)

	e := &APIError{Status: status, Message: FallbackMessage, Errors: body.Errors}
	switch m := body.Message.(type) {
	case string:
		if m != "" {
			e.Message = m
		}
	case []any:
		// validation pipes answer with a list of messages
		parts := make([]string, 0, len(m))
		for _, p := range m {
			if s, ok := p.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			e.Message = strings.Join(parts, "; ")
		}
	}
	return e
}
