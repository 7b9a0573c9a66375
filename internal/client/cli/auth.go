package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/grabsmart/internal/client/services"
	"github.com/dmitrijs2005/grabsmart/internal/client/validation"
	"github.com/dmitrijs2005/grabsmart/internal/shared"
)

// getSimpleText, getPassword and getConfirm are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getConfirm    = GetConfirm
)

// Register collects the sign-up form, asks the backend to mail a code and
// then prompts for that code until it is accepted. An empty code cancels,
// "resend" requests a new one.
//
// Both passwords are wiped before returning. Validation and backend failures
// are reported by the services; I/O errors are returned unchanged.
func (a *App) Register(ctx context.Context) error {
	username, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.reader, "Enter password", a.out)
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(password)

	confirm, err := getPassword(a.reader, "Confirm password", a.out)
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(confirm)

	terms, err := getConfirm(a.reader, "Do you accept the terms of service?", a.out)
	if err != nil {
		return err
	}

	form := services.RegistrationForm{
		Username:        username,
		Email:           email,
		Password:        string(password),
		ConfirmPassword: string(confirm),
		AcceptTerms:     terms,
	}

	flow := a.auth.NewRegistration()
	if err := flow.SendCode(ctx, form); err != nil {
		return err
	}

	for flow.State() != services.RegistrationConfirmed {
		code, err := getSimpleText(a.reader, "Enter the code sent to "+flow.Email()+" ('resend' for a new one, empty to cancel)", a.out)
		if err != nil {
			return err
		}

		switch code {
		case "":
			printlnFn("Registration cancelled")
			return nil
		case "resend":
			_ = flow.SendCode(ctx, form)
		default:
			_ = flow.Confirm(ctx, code)
		}
	}
	return nil
}

// Login prompts for credentials and starts a session. Failures are reported
// by the services and leave any current session untouched.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.reader, "Enter password", a.out)
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(password)

	user, err := a.auth.Login(ctx, email, string(password))
	if err != nil {
		a.log.Debug(ctx, "login failed", "error", err)
		return err
	}
	if c := a.store.CurrentUser(); c != nil {
		a.setUser(c)
		return nil
	}
	// opaque token: fall back to what the login response said
	a.mu.Lock()
	a.userName = user.Username
	if a.userName == "" {
		a.userName = user.Email
	}
	a.mu.Unlock()
	return nil
}

// Recover resets a forgotten password: email, then the mailed code, then the
// new password twice. A new password the backend rejects (wrong or used
// code) ends the command; run it again for a fresh code.
func (a *App) Recover(ctx context.Context) error {
	flow := a.auth.NewRecovery()

	email, err := getSimpleText(a.reader, "Enter your account email", a.out)
	if err != nil {
		return err
	}
	if err := flow.SendCode(ctx, email); err != nil {
		return err
	}

	for flow.State() == services.RecoveryCodeSent {
		code, err := getSimpleText(a.reader, "Enter the recovery code (empty to cancel)", a.out)
		if err != nil {
			return err
		}
		if code == "" {
			printlnFn("Recovery cancelled")
			return nil
		}
		_ = flow.VerifyCode(ctx, code)
	}

	for {
		password, err := getPassword(a.reader, "Enter new password", a.out)
		if err != nil {
			return err
		}
		confirm, err := getPassword(a.reader, "Confirm new password", a.out)
		if err != nil {
			shared.WipeByteArray(password)
			return err
		}

		err = flow.Complete(ctx, string(password), string(confirm))
		shared.WipeByteArray(password)
		shared.WipeByteArray(confirm)

		var verr *validation.Error
		if err == nil || !errors.As(err, &verr) {
			return err
		}
	}
}

// Logout ends the session in this and every other process of the user.
func (a *App) Logout(ctx context.Context) error {
	a.setUser(nil)
	return a.auth.Logout(ctx)
}

// Whoami prints the identity carried by the session token.
func (a *App) Whoami(ctx context.Context) error {
	c := a.store.CurrentUser()
	if c == nil {
		if !a.store.IsAuthenticated() {
			return services.ErrNotLoggedIn
		}
		printlnFn(fmt.Sprintf("%s (the session token carries no readable claims)", a.currentName()))
		return nil
	}
	printlnFn(fmt.Sprintf("%s <%s> (id %s)", displayName(c), c.Email, c.ID()))
	if c.ExpiresAt != nil {
		printlnFn("Session expires at " + c.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
