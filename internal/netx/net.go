// Package netx moves file bytes directly between the client and object
// storage using the presigned links handed out by the backend.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/dmitrijs2005/grabsmart/internal/client/models"
)

const maxErrorBody = 1024

// StatusError is a non-2xx answer from object storage.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("transfer failed: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("transfer failed: %d %s; body: %s", e.Status, http.StatusText(e.Status), e.Body)
}

// FileSource is the payload of an upload. Size must be exact: it is used for
// the request Content-Length and for progress.
type FileSource struct {
	Name     string
	MimeType string
	Size     int64
	Reader   io.Reader
}

// Progress receives the number of file bytes handed to the transport so far.
type Progress func(sent, total int64)

type countingReader struct {
	r          io.Reader
	sent       int64
	total      int64
	onProgress Progress
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.sent += int64(n)
		if c.onProgress != nil {
			c.onProgress(c.sent, c.total)
		}
	}
	return n, err
}

// PostForm performs a presigned POST: every field in fields, in order, then
// the file itself as the "file" part. The body is streamed, never buffered.
func PostForm(ctx context.Context, hc *http.Client, url string, fields models.FormFields, file FileSource, onProgress Progress) error {
	if hc == nil {
		hc = http.DefaultClient
	}

	var head bytes.Buffer
	mw := multipart.NewWriter(&head)
	for _, f := range fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.Name)))
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	if _, err := mw.CreatePart(h); err != nil {
		return err
	}
	prefix := append([]byte(nil), head.Bytes()...)

	head.Reset()
	if err := mw.Close(); err != nil {
		return err
	}
	suffix := append([]byte(nil), head.Bytes()...)

	body := io.MultiReader(
		bytes.NewReader(prefix),
		&countingReader{r: io.LimitReader(file.Reader, file.Size), total: file.Size, onProgress: onProgress},
		bytes.NewReader(suffix),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(prefix)) + file.Size + int64(len(suffix))
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Download streams the object at url into w and returns the bytes written.
func Download(ctx context.Context, hc *http.Client, url string, w io.Writer) (int64, error) {
	if hc == nil {
		hc = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, statusError(resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
		return n, fmt.Errorf("download failed: %w", err)
	}
	return n, nil
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
