package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/auth-demo/internal/apperror"
	"github.com/sakif/auth-demo/internal/model"
)

// fakeClient is an AuthClient whose calls optionally fire the change
// notification synchronously, the way the real providers do.
type fakeClient struct {
	mu        sync.Mutex
	listeners map[int]func(*model.User)
	nextID    int

	loginResult  *model.AuthResult
	loginErr     error
	signupResult *model.AuthResult
	signupErr    error
	logoutErr    error
	current      *model.User
	currentErr   error
	lookups      int

	// notify makes successful calls push a notification before returning.
	notify bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{listeners: make(map[int]func(*model.User)), notify: true}
}

func (f *fakeClient) Login(_ context.Context, _ model.LoginCredentials) (*model.AuthResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	if f.notify {
		f.push(f.loginResult.User)
	}
	return f.loginResult, nil
}

func (f *fakeClient) Signup(_ context.Context, _ model.SignupCredentials) (*model.AuthResult, error) {
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	if f.notify && f.signupResult.SessionActive {
		f.push(f.signupResult.User)
	}
	return f.signupResult, nil
}

func (f *fakeClient) Logout(_ context.Context) error {
	if f.logoutErr != nil {
		return f.logoutErr
	}
	if f.notify {
		f.push(nil)
	}
	return nil
}

func (f *fakeClient) CurrentUser(_ context.Context) (*model.User, error) {
	f.mu.Lock()
	f.lookups++
	f.mu.Unlock()
	return f.current, f.currentErr
}

func (f *fakeClient) OnAuthStateChange(fn func(*model.User)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeClient) push(u *model.User) {
	f.mu.Lock()
	fns := make([]func(*model.User), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

func (f *fakeClient) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

var (
	alice = &model.User{ID: "u1", Email: "a@demo.com", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	bob   = &model.User{ID: "u2", Email: "b@demo.com"}
)

func newTestStore(t *testing.T, client *fakeClient, opts Options) *Store {
	t.Helper()
	s := New(client, slog.New(slog.DiscardHandler), opts)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func TestNew_InitialState(t *testing.T) {
	s := New(newFakeClient(), slog.New(slog.DiscardHandler), Options{})
	assert.Equal(t, model.AuthState{Loading: true}, s.State())
}

func TestStart(t *testing.T) {
	client := newFakeClient()
	client.current = alice

	s := newTestStore(t, client, Options{})
	assert.Equal(t, model.AuthState{User: alice}, s.State())
	assert.Equal(t, 1, client.subscribers())

	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, 1, client.subscribers(), "a second Start must not subscribe again")
}

func TestStart_NoSession(t *testing.T) {
	s := newTestStore(t, newFakeClient(), Options{})
	assert.Equal(t, model.AuthState{}, s.State())
}

func TestStart_LookupFails(t *testing.T) {
	client := newFakeClient()
	client.currentErr = apperror.Provider("Session lookup failed", nil)

	s := New(client, slog.New(slog.DiscardHandler), Options{})
	defer s.Close()

	require.Error(t, s.Start(context.Background()))
	assert.Equal(t, model.AuthState{Error: "Session lookup failed"}, s.State())
}

func TestLogin_ProviderRejects(t *testing.T) {
	client := newFakeClient()
	client.loginErr = apperror.Provider("Invalid login credentials", nil)
	s := newTestStore(t, client, Options{SettleTimeout: time.Second})

	err := s.Login(context.Background(), model.LoginCredentials{Email: "a@demo.com", Password: "short"})
	require.Error(t, err)

	assert.Equal(t, model.AuthState{Error: "Invalid login credentials"}, s.State())
}

func TestLogin_NonAppErrorUsesFallback(t *testing.T) {
	client := newFakeClient()
	client.loginErr = errors.New("context deadline exceeded")
	s := newTestStore(t, client, Options{})

	_ = s.Login(context.Background(), model.LoginCredentials{})
	assert.Equal(t, MsgLoginFailed, s.State().Error)
}

func TestLogin_UserComesFromNotification(t *testing.T) {
	client := newFakeClient()
	// The direct result and the notification disagree on purpose: the
	// notification must win.
	client.loginResult = &model.AuthResult{User: bob, SessionActive: true}
	client.notify = false
	s := newTestStore(t, client, Options{})

	require.NoError(t, s.Login(context.Background(), model.LoginCredentials{Email: "a@demo.com", Password: "secret1"}))

	// Pure push mode: nothing happens until the notification arrives.
	assert.Equal(t, model.AuthState{Loading: true}, s.State())

	client.push(alice)
	assert.Equal(t, model.AuthState{User: alice}, s.State())
}

func TestLogin_SettlesOnNotification(t *testing.T) {
	client := newFakeClient()
	client.loginResult = &model.AuthResult{User: alice, SessionActive: true}
	s := newTestStore(t, client, Options{SettleTimeout: time.Hour})

	done := make(chan error, 1)
	go func() {
		done <- s.Login(context.Background(), model.LoginCredentials{Email: "a@demo.com", Password: "secret1"})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Login did not return after the notification fired")
	}
	assert.Equal(t, model.AuthState{User: alice}, s.State())
}

func TestLogin_FallsBackWithoutNotification(t *testing.T) {
	client := newFakeClient()
	client.loginResult = &model.AuthResult{User: alice, SessionActive: true}
	client.notify = false
	s := newTestStore(t, client, Options{SettleTimeout: 10 * time.Millisecond})

	require.NoError(t, s.Login(context.Background(), model.LoginCredentials{Email: "a@demo.com", Password: "secret1"}))
	assert.Equal(t, model.AuthState{User: alice}, s.State())
}

func TestLogin_CancelledWaitLeavesState(t *testing.T) {
	client := newFakeClient()
	client.loginResult = &model.AuthResult{User: alice, SessionActive: true}
	client.notify = false
	s := newTestStore(t, client, Options{SettleTimeout: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.Login(ctx, model.LoginCredentials{Email: "a@demo.com", Password: "secret1"}))
	assert.Equal(t, model.AuthState{Loading: true}, s.State())
}

func TestLogin_ClearsPreviousError(t *testing.T) {
	client := newFakeClient()
	client.loginErr = apperror.Provider("first", nil)
	s := newTestStore(t, client, Options{})

	_ = s.Login(context.Background(), model.LoginCredentials{})
	require.Equal(t, "first", s.State().Error)

	client.loginErr = nil
	client.loginResult = &model.AuthResult{User: alice, SessionActive: true}
	require.NoError(t, s.Login(context.Background(), model.LoginCredentials{}))
	assert.Equal(t, model.AuthState{User: alice}, s.State())
}

func TestSignup(t *testing.T) {
	tests := []struct {
		name      string
		result    *model.AuthResult
		err       error
		wantState model.AuthState
	}{
		{
			name:      "signed in",
			result:    &model.AuthResult{User: alice, SessionActive: true},
			wantState: model.AuthState{User: alice},
		},
		{
			name:      "confirmation pending",
			result:    &model.AuthResult{User: alice, SessionActive: false},
			wantState: model.AuthState{},
		},
		{
			name:      "domain rejected",
			err:       apperror.DomainRejected("M"),
			wantState: model.AuthState{Error: "M"},
		},
		{
			name:      "plain error",
			err:       errors.New("boom"),
			wantState: model.AuthState{Error: MsgSignupFailed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			client.signupResult = tt.result
			client.signupErr = tt.err
			s := newTestStore(t, client, Options{SettleTimeout: time.Second})

			err := s.Signup(context.Background(), model.SignupCredentials{})
			if tt.err != nil {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantState, s.State())
		})
	}
}

func TestLogout(t *testing.T) {
	client := newFakeClient()
	client.current = alice
	s := newTestStore(t, client, Options{SettleTimeout: time.Second})

	require.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, model.AuthState{}, s.State())
}

func TestLogout_Failure(t *testing.T) {
	client := newFakeClient()
	client.current = alice
	client.logoutErr = errors.New("network down")
	s := newTestStore(t, client, Options{})

	require.Error(t, s.Logout(context.Background()))
	assert.Equal(t, model.AuthState{User: alice, Error: MsgLogoutFailed}, s.State())
}

func TestLogout_FallsBackWithoutNotification(t *testing.T) {
	client := newFakeClient()
	client.current = alice
	client.notify = false
	s := newTestStore(t, client, Options{SettleTimeout: 10 * time.Millisecond})

	require.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, model.AuthState{}, s.State())
}

func TestNotification_OverwritesUserRegardlessOfAction(t *testing.T) {
	client := newFakeClient()
	s := newTestStore(t, client, Options{})

	s.Dispatch(SetLoading{Loading: true})
	client.push(bob)
	assert.Equal(t, model.AuthState{User: bob}, s.State())

	client.push(nil)
	assert.Equal(t, model.AuthState{}, s.State())
}

func TestClose_ReleasesSubscriptionOnce(t *testing.T) {
	client := newFakeClient()
	s := New(client, slog.New(slog.DiscardHandler), Options{})
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, 1, client.subscribers())

	s.Close()
	s.Close()
	assert.Zero(t, client.subscribers())

	// No dangling callback: a later push must not reach the closed store.
	client.push(alice)
	assert.Nil(t, s.State().User)
}

func TestClose_BeforeStart(t *testing.T) {
	client := newFakeClient()
	s := New(client, slog.New(slog.DiscardHandler), Options{})
	assert.NotPanics(t, s.Close)

	// A closed store never subscribes, so nothing is left to leak.
	assert.ErrorIs(t, s.Start(context.Background()), ErrClosed)
	assert.Zero(t, client.subscribers())
	assert.Zero(t, client.lookups)
}

func TestRestore_RetriesFailedLookup(t *testing.T) {
	client := newFakeClient()
	client.currentErr = apperror.Provider("Session lookup failed", nil)

	s := New(client, slog.New(slog.DiscardHandler), Options{})
	defer s.Close()
	require.Error(t, s.Start(context.Background()))

	client.currentErr = nil
	client.current = alice
	require.NoError(t, s.Restore(context.Background()))
	assert.Equal(t, model.AuthState{User: alice}, s.State())
	assert.Equal(t, 2, client.lookups)

	// Once the session is known there is nothing to retry.
	require.NoError(t, s.Restore(context.Background()))
	assert.Equal(t, 2, client.lookups)
}

func TestRestore_SkippedAfterNotification(t *testing.T) {
	client := newFakeClient()
	client.currentErr = errors.New("storage down")

	s := New(client, slog.New(slog.DiscardHandler), Options{})
	defer s.Close()
	require.Error(t, s.Start(context.Background()))

	client.push(bob)
	require.NoError(t, s.Restore(context.Background()))
	assert.Equal(t, 1, client.lookups)
	assert.Equal(t, model.AuthState{User: bob}, s.State())
}

func TestRestore_NoopBeforeStartAndAfterClose(t *testing.T) {
	client := newFakeClient()
	client.currentErr = errors.New("storage down")
	s := New(client, slog.New(slog.DiscardHandler), Options{})

	require.NoError(t, s.Restore(context.Background()))
	assert.Zero(t, client.lookups)

	require.Error(t, s.Start(context.Background()))
	s.Close()
	require.NoError(t, s.Restore(context.Background()))
	assert.Equal(t, 1, client.lookups)
}

func TestConcurrentDispatch(t *testing.T) {
	client := newFakeClient()
	s := newTestStore(t, client, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Dispatch(SetLoading{Loading: true})
		}()
		go func() {
			defer wg.Done()
			client.push(alice)
		}()
	}
	wg.Wait()

	client.push(alice)
	assert.Equal(t, model.AuthState{User: alice}, s.State())
}
