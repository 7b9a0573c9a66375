package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dmitrijs2005/grabsmart/internal/client/models"
	"github.com/dmitrijs2005/grabsmart/internal/client/notify"
)

// ErrNoToken is returned when the backend reports success without a token.
var ErrNoToken = errors.New("login response did not contain an access token")

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Login: exchange credentials for a token and store it in the session.
//   - Logout: end the session in this process and in durable storage.
//   - NewRegistration: start an email-verified sign-up.
//   - NewRecovery: start a password reset.
//
// Backend failures are notified by the transport and returned unchanged;
// local validation failures are notified here.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*models.User, error)
	Logout(ctx context.Context) error
	NewRegistration() *RegistrationFlow
	NewRecovery() *RecoveryFlow
}

type authService struct {
	Deps
}

// NewAuthService constructs an AuthService bound to the backend client and
// session store in deps.
func NewAuthService(deps Deps) AuthService {
	return &authService{Deps: deps.withDefaults()}
}

type loginForm struct {
	Email    string `json:"email" rule:"required,email"`
	Password string `json:"password" rule:"required"`
}

// Login leaves the session untouched unless the backend accepts the
// credentials.
func (a *authService) Login(ctx context.Context, email, password string) (*models.User, error) {
	form := loginForm{Email: strings.TrimSpace(email), Password: password}
	if err := a.check(ctx, form); err != nil {
		return nil, err
	}

	res, err := a.Client.Login(ctx, form.Email, form.Password)
	if err != nil {
		return nil, err
	}
	if res.AccessToken == "" {
		return nil, a.refuse(ctx, ErrNoToken)
	}

	if err := a.Store.Set(ctx, res.AccessToken); err != nil {
		a.Logger.Error(ctx, "failed to persist session", "error", err)
		return nil, a.refuse(ctx, errors.New("could not save the session"))
	}

	a.Logger.Info(ctx, "logged in", "user_id", res.User.ID)
	notify.Success(ctx, a.Notifier, "Welcome, "+displayName(res.User))
	user := res.User
	return &user, nil
}

func (a *authService) Logout(ctx context.Context) error {
	if err := a.Store.Clear(ctx); err != nil {
		a.Logger.Warn(ctx, "failed to remove stored session", "error", err)
		return err
	}
	notify.Success(ctx, a.Notifier, "Logged out")
	return nil
}

func displayName(u models.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

func (a *authService) NewRegistration() *RegistrationFlow {
	return &RegistrationFlow{deps: a.Deps, state: RegistrationUnsubmitted}
}

func (a *authService) NewRecovery() *RecoveryFlow {
	return &RecoveryFlow{deps: a.Deps, state: RecoveryUnsubmitted}
}

type RegistrationState string

const (
	RegistrationUnsubmitted RegistrationState = "unsubmitted"
	RegistrationCodeSent    RegistrationState = "code_sent"
	RegistrationConfirmed   RegistrationState = "confirmed"
)

// RegistrationForm is what the user fills in to sign up.
type RegistrationForm struct {
	Username        string `json:"username" rule:"required,username"`
	Email           string `json:"email" rule:"required,allowed_domain"`
	Password        string `json:"password" rule:"required,strong_password"`
	ConfirmPassword string `json:"confirmPassword" rule:"eqfield=Password"`
	AcceptTerms     bool   `json:"acceptTerms" rule:"eq=true"`
}

// RegistrationFlow walks one sign-up through
// unsubmitted -> code_sent -> confirmed. A failed step keeps the state.
type RegistrationFlow struct {
	deps  Deps
	mu    sync.Mutex
	state RegistrationState
	email string
}

func (f *RegistrationFlow) State() RegistrationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Email is the address the verification code was sent to.
func (f *RegistrationFlow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// SendCode validates form and asks the backend to mail a verification code.
// Calling it again from code_sent sends a new code.
func (f *RegistrationFlow) SendCode(ctx context.Context, form RegistrationForm) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == RegistrationConfirmed {
		return f.deps.refuse(ctx, ErrInvalidState)
	}

	form.Email = strings.TrimSpace(form.Email)
	if err := f.deps.check(ctx, form); err != nil {
		return err
	}

	res, err := f.deps.Client.SendRegisterCode(ctx, models.RegisterRequest{
		Username: form.Username,
		Email:    form.Email,
		Password: form.Password,
	})
	if err != nil {
		return err
	}

	f.email = form.Email
	f.state = RegistrationCodeSent
	notify.Success(ctx, f.deps.Notifier, messageOr(res, "Verification code sent to "+form.Email))
	return nil
}

type codeForm struct {
	Code string `json:"code" rule:"required,recovery_code"`
}

// Confirm submits the code received by email.
func (f *RegistrationFlow) Confirm(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != RegistrationCodeSent {
		return f.deps.refuse(ctx, ErrInvalidState)
	}

	form := codeForm{Code: strings.TrimSpace(code)}
	if err := f.deps.check(ctx, form); err != nil {
		return err
	}

	res, err := f.deps.Client.ConfirmRegister(ctx, f.email, form.Code)
	if err != nil {
		return err
	}

	f.state = RegistrationConfirmed
	notify.Success(ctx, f.deps.Notifier, messageOr(res, "Account confirmed, you can log in now"))
	return nil
}

type RecoveryState string

const (
	RecoveryUnsubmitted  RecoveryState = "unsubmitted"
	RecoveryCodeSent     RecoveryState = "code_sent"
	RecoveryCodeVerified RecoveryState = "code_verified"
	RecoveryCompleted    RecoveryState = "completed"
)

// RecoveryFlow walks one password reset through
// unsubmitted -> code_sent -> code_verified -> completed. A failed step keeps
// the state.
type RecoveryFlow struct {
	deps  Deps
	mu    sync.Mutex
	state RecoveryState
	email string
	code  string
}

func (f *RecoveryFlow) State() RecoveryState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *RecoveryFlow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

type recoveryEmailForm struct {
	Email string `json:"email" rule:"required,email"`
}

// SendCode asks the backend to mail a recovery code. It may be repeated until
// the flow completes; a new code replaces the held one.
func (f *RecoveryFlow) SendCode(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == RecoveryCompleted {
		return f.deps.refuse(ctx, ErrInvalidState)
	}

	form := recoveryEmailForm{Email: strings.TrimSpace(email)}
	if err := f.deps.check(ctx, form); err != nil {
		return err
	}

	res, err := f.deps.Client.SendRecoveryCode(ctx, form.Email)
	if err != nil {
		return err
	}

	f.email = form.Email
	f.code = ""
	f.state = RecoveryCodeSent
	notify.Success(ctx, f.deps.Notifier, messageOr(res, "Recovery code sent to "+form.Email))
	return nil
}

// VerifyCode checks the shape of the code locally and holds it for Complete.
// The backend only judges the code in Complete.
func (f *RecoveryFlow) VerifyCode(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != RecoveryCodeSent && f.state != RecoveryCodeVerified {
		return f.deps.refuse(ctx, ErrInvalidState)
	}

	form := codeForm{Code: strings.TrimSpace(code)}
	if err := f.deps.check(ctx, form); err != nil {
		return err
	}

	f.code = form.Code
	f.state = RecoveryCodeVerified
	return nil
}

type newPasswordForm struct {
	NewPassword     string `json:"newPassword" rule:"required,strong_password"`
	ConfirmPassword string `json:"confirmPassword" rule:"eqfield=NewPassword"`
}

// Complete sets the new password using the held email and code.
func (f *RecoveryFlow) Complete(ctx context.Context, newPassword, confirm string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != RecoveryCodeVerified {
		return f.deps.refuse(ctx, ErrInvalidState)
	}

	form := newPasswordForm{NewPassword: newPassword, ConfirmPassword: confirm}
	if err := f.deps.check(ctx, form); err != nil {
		return err
	}

	res, err := f.deps.Client.ConfirmRecovery(ctx, f.email, f.code, form.NewPassword)
	if err != nil {
		return err
	}

	f.state = RecoveryCompleted
	notify.Success(ctx, f.deps.Notifier, messageOr(res, "Password updated, you can log in now"))
	return nil
}

func messageOr(res *models.MessageResponse, fallback string) string {
	if res != nil && res.Message != "" {
		return res.Message
	}
	return fallback
}
