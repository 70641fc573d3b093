package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/auth-demo/internal/apperror"
	"github.com/sakif/auth-demo/internal/domaincheck"
	"github.com/sakif/auth-demo/internal/identity"
	"github.com/sakif/auth-demo/internal/model"
)

// =========================================================================
// FAKES
// =========================================================================

// fakeProvider is an in-memory identity.Provider that records calls.
//
// HOW IT WORKS:
// Each method returns the canned value set on the struct and bumps a
// counter. A test sets up the answer, calls the service, then checks both
// the result and whether the provider was reached at all.
type fakeProvider struct {
	notifier identity.Notifier

	signInResp *identity.AuthResponse
	signInErr  error
	signUpResp *identity.AuthResponse
	signUpErr  error
	signOutErr error
	session    *identity.Session
	sessionErr error

	signInCalls  int
	signUpCalls  int
	signOutCalls int
}

func (f *fakeProvider) SignInWithPassword(_ context.Context, _, _ string) (*identity.AuthResponse, error) {
	f.signInCalls++
	return f.signInResp, f.signInErr
}

func (f *fakeProvider) SignUp(_ context.Context, _, _ string) (*identity.AuthResponse, error) {
	f.signUpCalls++
	return f.signUpResp, f.signUpErr
}

func (f *fakeProvider) SignOut(_ context.Context) error {
	f.signOutCalls++
	return f.signOutErr
}

func (f *fakeProvider) GetSession(_ context.Context) (*identity.Session, error) {
	return f.session, f.sessionErr
}

func (f *fakeProvider) OnAuthStateChange(listener identity.Listener) func() {
	return f.notifier.Subscribe(listener)
}

// fakeDomains answers with a fixed result and counts calls.
type fakeDomains struct {
	result *domaincheck.Result
	err    error
	calls  int
}

func (f *fakeDomains) ValidateEmailDomain(_ context.Context, _ string) (*domaincheck.Result, error) {
	f.calls++
	return f.result, f.err
}

var created = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func okResponse() *identity.AuthResponse {
	user := identity.User{ID: "u1", Email: "a@demo.com", CreatedAt: created}
	return &identity.AuthResponse{User: &user, Session: &identity.Session{User: user}}
}

func newTestAuthService(p *fakeProvider, d *fakeDomains) *AuthService {
	if d == nil {
		d = &fakeDomains{result: &domaincheck.Result{Success: true}}
	}
	return NewAuthService(p, d, slog.New(slog.DiscardHandler))
}

// assertAppError checks err wraps sentinel and carries message.
func assertAppError(t *testing.T, err error, sentinel error, message string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel), "error %v does not wrap %v", err, sentinel)
	assert.Equal(t, message, err.Error())
}

// =========================================================================
// Login
// =========================================================================

func TestLogin_Validation(t *testing.T) {
	tests := []struct {
		name  string
		creds model.LoginCredentials
	}{
		{"both empty", model.LoginCredentials{}},
		{"no password", model.LoginCredentials{Email: "a@demo.com"}},
		{"no email", model.LoginCredentials{Password: "secret1"}},
		{"whitespace email", model.LoginCredentials{Email: "   ", Password: "secret1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{}
			_, err := newTestAuthService(p, nil).Login(context.Background(), tt.creds)

			assertAppError(t, err, apperror.ErrValidation, MsgLoginRequired)
			assert.Zero(t, p.signInCalls, "validation failures must not reach the provider")
		})
	}
}

func TestLogin_Success(t *testing.T) {
	p := &fakeProvider{signInResp: okResponse()}

	result, err := newTestAuthService(p, nil).Login(context.Background(),
		model.LoginCredentials{Email: " a@demo.com ", Password: "secret1"})
	require.NoError(t, err)

	assert.Equal(t, &model.User{ID: "u1", Email: "a@demo.com", CreatedAt: created}, result.User)
	assert.True(t, result.SessionActive)
	assert.Equal(t, 1, p.signInCalls)
}

func TestLogin_ProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		resp    *identity.AuthResponse
		err     error
		message string
	}{
		{"rejection passed through", nil, identity.Rejected(400, "invalid_credentials", "Invalid login credentials"), "Invalid login credentials"},
		{"no user", &identity.AuthResponse{}, nil, MsgNoUserData},
		{"transport", nil, errors.New("dial tcp: connection refused"), MsgProviderUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{signInResp: tt.resp, signInErr: tt.err}
			_, err := newTestAuthService(p, nil).Login(context.Background(),
				model.LoginCredentials{Email: "a@demo.com", Password: "secret1"})

			assertAppError(t, err, apperror.ErrProvider, tt.message)
		})
	}
}

// =========================================================================
// Signup
// =========================================================================

func TestSignup_ValidationOrder(t *testing.T) {
	tests := []struct {
		name    string
		creds   model.SignupCredentials
		message string
	}{
		{"all empty", model.SignupCredentials{}, MsgSignupRequired},
		{"missing confirm", model.SignupCredentials{Email: "a@demo.com", Password: "secret1"}, MsgSignupRequired},
		{"missing email with mismatch", model.SignupCredentials{Password: "abc", ConfirmPassword: "xyz"}, MsgSignupRequired},
		{"mismatch beats short", model.SignupCredentials{Email: "bad", Password: "abc", ConfirmPassword: "abd"}, MsgPasswordMismatch},
		{"mismatch", model.SignupCredentials{Email: "a@demo.com", Password: "secret1", ConfirmPassword: "secret2"}, MsgPasswordMismatch},
		{"short beats bad email", model.SignupCredentials{Email: "bad", Password: "abc", ConfirmPassword: "abc"}, MsgPasswordTooShort},
		{"short", model.SignupCredentials{Email: "a@demo.com", Password: "abc", ConfirmPassword: "abc"}, MsgPasswordTooShort},
		{"bad email", model.SignupCredentials{Email: "a@demo", Password: "secret1", ConfirmPassword: "secret1"}, MsgInvalidEmail},
		{"email with space", model.SignupCredentials{Email: "a b@demo.com", Password: "secret1", ConfirmPassword: "secret1"}, MsgInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{}
			d := &fakeDomains{result: &domaincheck.Result{Success: true}}

			_, err := newTestAuthService(p, d).Signup(context.Background(), tt.creds)

			assertAppError(t, err, apperror.ErrValidation, tt.message)
			assert.Zero(t, d.calls, "no domain check before local validation passes")
			assert.Zero(t, p.signUpCalls)
		})
	}
}

// The length rule counts UTF-16 units the way a browser's password.length
// does, so an emoji counts twice and an accented letter once.
func TestSignup_PasswordLengthInUTF16Units(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantOK   bool
	}{
		{"three emoji are six units", "😀😀😀", true},
		{"two emoji are four units", "😀😀", false},
		{"five accented letters", "ééééé", false},
		{"six accented letters", "éééééé", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{signUpResp: okResponse()}
			_, err := newTestAuthService(p, nil).Signup(context.Background(), model.SignupCredentials{
				Email: "a@demo.com", Password: tt.password, ConfirmPassword: tt.password,
			})

			if tt.wantOK {
				require.NoError(t, err)
				assert.Equal(t, 1, p.signUpCalls)
				return
			}
			assertAppError(t, err, apperror.ErrValidation, MsgPasswordTooShort)
		})
	}
}

func TestUTF16Len(t *testing.T) {
	assert.Equal(t, 0, utf16Len(""))
	assert.Equal(t, 6, utf16Len("secret"))
	assert.Equal(t, 6, utf16Len("😀😀😀"))
	assert.Equal(t, 3, utf16Len("日本語"))
}

var validSignup = model.SignupCredentials{Email: "a@demo.com", Password: "secret1", ConfirmPassword: "secret1"}

func TestSignup_DomainRejected(t *testing.T) {
	p := &fakeProvider{signUpResp: okResponse()}
	d := &fakeDomains{result: &domaincheck.Result{Success: false, Message: "M"}}

	_, err := newTestAuthService(p, d).Signup(context.Background(), validSignup)

	assertAppError(t, err, apperror.ErrDomainRejected, "M")
	assert.Equal(t, 1, d.calls)
	assert.Zero(t, p.signUpCalls, "a rejected domain must never reach provider signup")
}

func TestSignup_DomainRejectedWithoutMessage(t *testing.T) {
	d := &fakeDomains{result: &domaincheck.Result{Success: false}}
	_, err := newTestAuthService(&fakeProvider{}, d).Signup(context.Background(), validSignup)
	assertAppError(t, err, apperror.ErrDomainRejected, msgDomainRejected)
}

func TestSignup_DomainUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"already classified", apperror.ServiceUnavailable(domaincheck.UnavailableMessage, errors.New("503"))},
		{"raw error", errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{}
			_, err := newTestAuthService(p, &fakeDomains{err: tt.err}).Signup(context.Background(), validSignup)

			assertAppError(t, err, apperror.ErrServiceUnavailable, domaincheck.UnavailableMessage)
			assert.Zero(t, p.signUpCalls)
		})
	}
}

func TestSignup_Success(t *testing.T) {
	p := &fakeProvider{signUpResp: okResponse()}

	result, err := newTestAuthService(p, nil).Signup(context.Background(), validSignup)
	require.NoError(t, err)
	assert.Equal(t, "u1", result.User.ID)
	assert.True(t, result.SessionActive)
}

func TestSignup_ConfirmationPending(t *testing.T) {
	user := identity.User{ID: "u2", Email: "b@demo.com"}
	p := &fakeProvider{signUpResp: &identity.AuthResponse{User: &user}}
	svc := newTestAuthService(p, nil)
	svc.now = func() time.Time { return created }

	result, err := svc.Signup(context.Background(), validSignup)
	require.NoError(t, err)
	assert.False(t, result.SessionActive)
	assert.Equal(t, created, result.User.CreatedAt, "missing created_at falls back to now")
}

func TestSignup_ProviderRejected(t *testing.T) {
	p := &fakeProvider{signUpErr: identity.Rejected(422, "user_already_exists", "User already registered")}
	_, err := newTestAuthService(p, nil).Signup(context.Background(), validSignup)
	assertAppError(t, err, apperror.ErrProvider, "User already registered")
}

// =========================================================================
// Logout, CurrentUser, OnAuthStateChange
// =========================================================================

func TestLogout(t *testing.T) {
	p := &fakeProvider{}
	require.NoError(t, newTestAuthService(p, nil).Logout(context.Background()))
	assert.Equal(t, 1, p.signOutCalls)

	p.signOutErr = errors.New("network down")
	err := newTestAuthService(p, nil).Logout(context.Background())
	assertAppError(t, err, apperror.ErrProvider, MsgProviderUnreachable)
}

func TestCurrentUser(t *testing.T) {
	p := &fakeProvider{}
	svc := newTestAuthService(p, nil)

	user, err := svc.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)

	p.session = &identity.Session{User: identity.User{ID: "u1"}}
	svc.now = func() time.Time { return created }
	user, err = svc.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &model.User{ID: "u1", Email: "", CreatedAt: created}, user)

	p.sessionErr = errors.New("redis: connection refused")
	_, err = svc.CurrentUser(context.Background())
	assert.True(t, errors.Is(err, apperror.ErrProvider))
}

func TestOnAuthStateChange(t *testing.T) {
	p := &fakeProvider{}
	svc := newTestAuthService(p, nil)

	var got []*model.User
	unsubscribe := svc.OnAuthStateChange(func(u *model.User) { got = append(got, u) })

	p.notifier.Notify(identity.EventSignedIn, &identity.Session{User: identity.User{ID: "u1", Email: "a@demo.com", CreatedAt: created}})
	p.notifier.Notify(identity.EventSignedOut, nil)

	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].ID)
	assert.Nil(t, got[1])

	unsubscribe()
	unsubscribe()
	assert.Zero(t, p.notifier.Len())
}
