package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/grabsmart/internal/client/client"
	"github.com/dmitrijs2005/grabsmart/internal/client/fake"
	"github.com/dmitrijs2005/grabsmart/internal/client/models"
	"github.com/dmitrijs2005/grabsmart/internal/client/notify"
	"github.com/dmitrijs2005/grabsmart/internal/client/session"
	"github.com/dmitrijs2005/grabsmart/internal/client/validation"
	"github.com/dmitrijs2005/grabsmart/internal/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func validForm() RegistrationForm {
	return RegistrationForm{
		Username:        "alice",
		Email:           "alice@gmail.com",
		Password:        "Secret123!",
		ConfirmPassword: "Secret123!",
		AcceptTerms:     true,
	}
}

func TestLogin_StubBackendStoresToken(t *testing.T) {
	var got models.Credentials
	var listAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			assert.Empty(t, r.Header.Get("Authorization"))
			b, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(b, &got))
			_, _ = io.WriteString(w, `{"success":true,"access_token":"tok1","user":{"id":"u1","email":"a@gmail.com","username":"a"}}`)
		case "/api/files":
			listAuth = r.Header.Get("Authorization")
			_, _ = io.WriteString(w, `[]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	storage := session.NewMemoryStorage()
	store := session.NewStore(storage)
	notes := &notify.Recorder{}
	api := client.NewHTTPClient(httpx.New(ts.URL+"/api", httpx.WithNotifier(notes), httpx.WithInterceptor(httpx.BearerToken(store))))
	svc := NewAuthService(Deps{Client: api, Store: store, Notifier: notes})

	user, err := svc.Login(context.Background(), "a@gmail.com", "Secret123!")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, models.Credentials{Email: "a@gmail.com", Password: "Secret123!"}, got)

	raw, ok, err := storage.Get(context.Background(), session.DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok1", raw)
	assert.Empty(t, notes.Errors())

	// tok1 has no readable claims but is still the bearer token
	assert.Nil(t, store.CurrentUser())
	assert.True(t, store.IsAuthenticated())
	_, err = NewFileService(Deps{Client: api, Store: store, Notifier: notes}).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok1", listAuth)
}

func TestLogin_DecodableTokenBecomesCurrentUser(t *testing.T) {
	tok := makeToken(t, map[string]any{"userId": "u1", "email": "a@gmail.com", "username": "a", "exp": time.Now().Add(time.Hour).Unix()})
	fc := &fakeClient{LoginRet: &models.LoginResponse{Success: true, AccessToken: tok, User: models.User{ID: "u1", Username: "a"}}}
	env := newTestEnv(fc)
	svc := NewAuthService(env.deps)

	_, err := svc.Login(context.Background(), " a@gmail.com ", "Secret123!")
	require.NoError(t, err)
	assert.Equal(t, "a@gmail.com", fc.LastLoginEmail)

	u := env.store.CurrentUser()
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID())
	assert.Equal(t, "a@gmail.com", u.Email)
	assert.Equal(t, tok, env.store.Token())
	assert.Equal(t, []notify.Message{{Level: notify.LevelSuccess, Text: "Welcome, a"}}, env.notes.Messages())
}

func TestLogin_FailureLeavesSessionAlone(t *testing.T) {
	fc := &fakeClient{LoginErr: &httpx.APIError{Status: http.StatusUnauthorized, Message: "Invalid email or password"}}
	env := newTestEnv(fc)
	prev := userToken(t, "u0")
	require.NoError(t, env.store.Set(context.Background(), prev))

	_, err := NewAuthService(env.deps).Login(context.Background(), "a@gmail.com", "wrong")
	require.Error(t, err)

	var apiErr *httpx.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, prev, env.store.Token())
	// the transport notifies API errors, not the service
	assert.Empty(t, env.notes.Errors())
}

func TestLogin_MissingTokenIsAnError(t *testing.T) {
	fc := &fakeClient{LoginRet: &models.LoginResponse{Success: true}}
	env := newTestEnv(fc)

	_, err := NewAuthService(env.deps).Login(context.Background(), "a@gmail.com", "x")
	require.ErrorIs(t, err, ErrNoToken)
	assert.False(t, env.store.IsAuthenticated())
}

func TestLogin_InvalidEmailNeverReachesBackend(t *testing.T) {
	fc := &fakeClient{}
	env := newTestEnv(fc)

	_, err := NewAuthService(env.deps).Login(context.Background(), "not-an-email", "x")
	var verr *validation.Error
	require.True(t, errors.As(err, &verr))
	assert.Empty(t, fc.Calls())
	assert.Equal(t, []string{"email is invalid"}, env.notes.Errors())
}

func TestLogout_ClearsSession(t *testing.T) {
	env := newTestEnv(&fakeClient{})
	require.NoError(t, env.store.Set(context.Background(), userToken(t, "u1")))

	require.NoError(t, NewAuthService(env.deps).Logout(context.Background()))
	assert.Nil(t, env.store.CurrentUser())
	_, ok, _ := env.storage.Get(context.Background(), session.DefaultKey)
	assert.False(t, ok)
}

func TestRegistration_LocalRulesBlockBackendCalls(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*RegistrationForm)
		field string
	}{
		{"uppercase username", func(f *RegistrationForm) { f.Username = "Alice" }, "Username may contain only lowercase letters (a-z)"},
		{"digit in username", func(f *RegistrationForm) { f.Username = "alice1" }, "Username may contain only lowercase letters (a-z)"},
		{"domain not allowed", func(f *RegistrationForm) { f.Email = "alice@corp.io" }, "Use an email from a supported provider"},
		{"weak password", func(f *RegistrationForm) { f.Password, f.ConfirmPassword = "password", "password" }, "Password must be at least 8 characters"},
		{"mismatch", func(f *RegistrationForm) { f.ConfirmPassword = "Other123!" }, "Passwords do not match"},
		{"terms", func(f *RegistrationForm) { f.AcceptTerms = false }, "You must accept the terms and conditions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClient{}
			env := newTestEnv(fc)
			flow := NewAuthService(env.deps).NewRegistration()

			form := validForm()
			tt.edit(&form)
			err := flow.SendCode(context.Background(), form)

			var verr *validation.Error
			require.True(t, errors.As(err, &verr))
			assert.Empty(t, fc.Calls())
			assert.Equal(t, RegistrationUnsubmitted, flow.State())
			require.Len(t, env.notes.Errors(), 1)
			assert.Contains(t, env.notes.Errors()[0], tt.field)
		})
	}
}

func TestRegistration_HappyPath(t *testing.T) {
	fc := &fakeClient{}
	env := newTestEnv(fc)
	flow := NewAuthService(env.deps).NewRegistration()
	ctx := context.Background()

	require.ErrorIs(t, flow.Confirm(ctx, "ABC123"), ErrInvalidState)

	require.NoError(t, flow.SendCode(ctx, validForm()))
	assert.Equal(t, RegistrationCodeSent, flow.State())
	assert.Equal(t, "alice@gmail.com", flow.Email())
	assert.Equal(t, models.RegisterRequest{Username: "alice", Email: "alice@gmail.com", Password: "Secret123!"}, fc.LastRegister)

	require.Error(t, flow.Confirm(ctx, "12"))
	assert.Equal(t, RegistrationCodeSent, flow.State())

	require.NoError(t, flow.Confirm(ctx, " ABC123 "))
	assert.Equal(t, "ABC123", fc.LastConfirmCode)
	assert.Equal(t, RegistrationConfirmed, flow.State())

	require.ErrorIs(t, flow.SendCode(ctx, validForm()), ErrInvalidState)
	assert.Equal(t, []string{"SendRegisterCode", "ConfirmRegister"}, fc.Calls())
}

func TestRegistration_BackendFailureKeepsState(t *testing.T) {
	apiErr := &httpx.APIError{Status: http.StatusBadRequest, Message: "Verification code is invalid or expired"}
	fc := &fakeClient{ConfirmRegisterErr: apiErr}
	env := newTestEnv(fc)
	flow := NewAuthService(env.deps).NewRegistration()
	ctx := context.Background()

	require.NoError(t, flow.SendCode(ctx, validForm()))
	err := flow.Confirm(ctx, "ABC123")
	require.Same(t, apiErr, err)
	assert.Equal(t, RegistrationCodeSent, flow.State())
}

func TestRegistration_AgainstFakeBackend(t *testing.T) {
	env, backend := newFakeEnv(t)
	svc := NewAuthService(env.deps)
	ctx := context.Background()

	flow := svc.NewRegistration()
	require.NoError(t, flow.SendCode(ctx, validForm()))
	require.NoError(t, flow.Confirm(ctx, backend.LastCode("alice@gmail.com")))

	user, err := svc.Login(ctx, "alice@gmail.com", "Secret123!")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	require.NotNil(t, env.store.CurrentUser())
	assert.Equal(t, user.ID, env.store.CurrentUser().ID())
}

func TestRecovery_StepOrder(t *testing.T) {
	fc := &fakeClient{}
	env := newTestEnv(fc)
	flow := NewAuthService(env.deps).NewRecovery()
	ctx := context.Background()

	require.ErrorIs(t, flow.VerifyCode(ctx, "ABC123"), ErrInvalidState)
	require.ErrorIs(t, flow.Complete(ctx, "Newpass1!", "Newpass1!"), ErrInvalidState)

	require.NoError(t, flow.SendCode(ctx, "alice@gmail.com"))
	assert.Equal(t, RecoveryCodeSent, flow.State())

	require.Error(t, flow.VerifyCode(ctx, "AB-12"))
	assert.Equal(t, RecoveryCodeSent, flow.State())

	require.NoError(t, flow.VerifyCode(ctx, "ABC123"))
	require.NoError(t, flow.VerifyCode(ctx, "XYZ789"), "verification may be repeated")
	assert.Equal(t, RecoveryCodeVerified, flow.State())

	require.Error(t, flow.Complete(ctx, "Newpass1!", "Newpass2!"))
	assert.Equal(t, RecoveryCodeVerified, flow.State())

	require.NoError(t, flow.Complete(ctx, "Newpass1!", "Newpass1!"))
	assert.Equal(t, RecoveryCompleted, flow.State())
	assert.Equal(t, models.RecoveryConfirm{Email: "alice@gmail.com", Code: "XYZ789", NewPassword: "Newpass1!"}, fc.LastRecovery)

	require.ErrorIs(t, flow.SendCode(ctx, "alice@gmail.com"), ErrInvalidState)
	assert.Equal(t, []string{"SendRecoveryCode", "ConfirmRecovery"}, fc.Calls())
}

func TestRecovery_RightAndWrongCodeRace(t *testing.T) {
	for i := 0; i < 10; i++ {
		env, backend := newFakeEnv(t)
		signup(t, backend, "alice", "alice@gmail.com", "Secret123!")
		svc := NewAuthService(env.deps)
		ctx := context.Background()

		right, wrong := svc.NewRecovery(), svc.NewRecovery()
		require.NoError(t, right.SendCode(ctx, "alice@gmail.com"))
		require.NoError(t, wrong.SendCode(ctx, "alice@gmail.com"))

		code := backend.LastCode("alice@gmail.com")
		require.NoError(t, right.VerifyCode(ctx, code))
		require.NoError(t, wrong.VerifyCode(ctx, "ZZZZZ1"))

		var g errgroup.Group
		var rightErr, wrongErr error
		g.Go(func() error { rightErr = right.Complete(ctx, "Newpass1!", "Newpass1!"); return nil })
		g.Go(func() error { wrongErr = wrong.Complete(ctx, "Other123!", "Other123!"); return nil })
		require.NoError(t, g.Wait())

		require.NoError(t, rightErr)
		require.Error(t, wrongErr)
		assert.Equal(t, RecoveryCompleted, right.State())
		assert.Equal(t, RecoveryCodeVerified, wrong.State())
		assert.Equal(t, fake.MsgInvalidRecovery, Message(wrongErr))

		_, err := svc.Login(ctx, "alice@gmail.com", "Newpass1!")
		require.NoError(t, err)
	}
}
