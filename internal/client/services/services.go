// Package services contains the application services of the GrabSmart
// client: authentication flows, uploads and file management. They sit
// between the CLI and the backend client, keep the session store current and
// report outcomes through a notify.Notifier.
package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/grabsmart/internal/client/client"
	"github.com/dmitrijs2005/grabsmart/internal/client/notify"
	"github.com/dmitrijs2005/grabsmart/internal/client/session"
	"github.com/dmitrijs2005/grabsmart/internal/client/validation"
	"github.com/dmitrijs2005/grabsmart/internal/httpx"
	"github.com/dmitrijs2005/grabsmart/internal/logging"
)

// ErrInvalidState is returned when a flow step is called out of order.
var ErrInvalidState = errors.New("this step is not available right now")

// ErrNotLoggedIn is returned by operations that need a session when there is none.
var ErrNotLoggedIn = errors.New("you are not logged in")

// Deps are the collaborators shared by all services. Only Client and Store
// are required.
type Deps struct {
	Client    client.Client
	Store     *session.Store
	Validator *validation.Validator
	Notifier  notify.Notifier
	Logger    logging.Logger
	// Transfer moves file bytes to and from object storage.
	Transfer *http.Client
}

func (d Deps) withDefaults() Deps {
	if d.Validator == nil {
		d.Validator = validation.New(nil)
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop()
	}
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Transfer == nil {
		d.Transfer = http.DefaultClient
	}
	return d
}

// check validates form and notifies the first problem.
func (d Deps) check(ctx context.Context, form any) error {
	err := d.Validator.Struct(form)
	if err == nil {
		return nil
	}

	var verr *validation.Error
	if errors.As(err, &verr) {
		notify.Error(ctx, d.Notifier, verr.First())
	} else {
		notify.Error(ctx, d.Notifier, err.Error())
	}
	return err
}

// refuse notifies a locally detected problem and returns it.
func (d Deps) refuse(ctx context.Context, err error) error {
	notify.Error(ctx, d.Notifier, err.Error())
	return err
}

// expire ends the session when the backend no longer accepts the token.
func (d Deps) expire(ctx context.Context, err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		d.Logger.Info(ctx, "backend rejected the session, logging out")
		if cerr := d.Store.Clear(ctx); cerr != nil {
			d.Logger.Warn(ctx, "failed to clear session", "error", cerr)
		}
	}
	return err
}

// notifiedByTransport reports errors the HTTP client has already shown:
// backend rejections and an unreachable server.
func notifiedByTransport(err error) bool {
	var apiErr *httpx.APIError
	return errors.As(err, &apiErr) || errors.Is(err, httpx.ErrUnavailable)
}

// Message returns the text a user should see for err: the backend message
// for API errors, the error text otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *httpx.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var verr *validation.Error
	if errors.As(err, &verr) {
		return verr.First()
	}
	return err.Error()
}
