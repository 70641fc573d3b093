// Package store holds the authentication state of one browser session.
//
// A Store mirrors the identity provider's session into a model.AuthState.
// Login, Signup and Logout only start the work: the user field is written by
// the provider's change notification, which the Store subscribes to in Start.
// Every state change goes through Reduce under the Store's mutex.
//
// Because the notification is the source of truth, a provider that never
// sends one would leave Loading set forever. Options.SettleTimeout bounds
// that wait; when it expires the Store applies the direct result of the call
// instead.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/auth-demo/internal/apperror"
	"github.com/sakif/auth-demo/internal/model"
)

// Fallback messages for errors that carry no user-facing message.
const (
	MsgLoginFailed   = "Login failed"
	MsgSignupFailed  = "Signup failed"
	MsgLogoutFailed  = "Logout failed"
	MsgSessionFailed = "Failed to load session"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("store: already started")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("store: closed")
)

// AuthClient is what the Store needs from the auth service.
// service.AuthService implements it.
type AuthClient interface {
	Login(ctx context.Context, creds model.LoginCredentials) (*model.AuthResult, error)
	Signup(ctx context.Context, creds model.SignupCredentials) (*model.AuthResult, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*model.User, error)
	OnAuthStateChange(fn func(*model.User)) (unsubscribe func())
}

// Options tune a Store.
type Options struct {
	// SettleTimeout is how long Login, Signup and Logout wait for the change
	// notification after a successful call before applying the call's own
	// result. Zero disables both the wait and the fallback.
	SettleTimeout time.Duration
}

// Store is safe for concurrent use.
type Store struct {
	client AuthClient
	logger *slog.Logger
	opts   Options

	mu           sync.Mutex
	state        model.AuthState
	started      bool
	closed       bool
	lookupFailed bool          // the last session lookup errored
	notified     chan struct{} // closed and replaced on every change notification

	unsubscribe func()
	closeOnce   sync.Once
}

// New returns a Store in the initial state: no user, loading, no error.
func New(client AuthClient, logger *slog.Logger, opts Options) *Store {
	return &Store{
		client:   client,
		logger:   logger,
		opts:     opts,
		state:    model.AuthState{Loading: true},
		notified: make(chan struct{}),
	}
}

// Start subscribes to change notifications and then loads the current
// session once. Subscribing first means a notification racing the lookup is
// not lost; whichever lands last wins, and both describe the same session.
//
// A failed lookup is recorded in the state and also returned; Restore
// retries it. Start after Close returns ErrClosed and subscribes nothing.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.started:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	unsubscribe := s.client.OnAuthStateChange(s.onChange)
	s.mu.Lock()
	if s.closed {
		// Close ran while we were subscribing.
		s.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	return s.lookup(ctx)
}

// Restore repeats the session lookup if the previous one failed, so a
// transient storage or network error does not leave a signed-in browser
// looking signed out for as long as the store lives. It does nothing when
// the last lookup succeeded, before Start and after Close.
func (s *Store) Restore(ctx context.Context) error {
	s.mu.Lock()
	retry := s.started && !s.closed && s.lookupFailed
	s.mu.Unlock()

	if !retry {
		return nil
	}
	return s.lookup(ctx)
}

func (s *Store) lookup(ctx context.Context) error {
	user, err := s.client.CurrentUser(ctx)

	s.mu.Lock()
	s.lookupFailed = err != nil
	s.mu.Unlock()

	if err != nil {
		s.Dispatch(SetError{Message: apperror.Message(err, MsgSessionFailed)})
		return err
	}
	s.Dispatch(SetUser{User: user})
	return nil
}

// Close releases the change subscription. It is safe to call more than once
// and before Start.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		unsubscribe := s.unsubscribe
		s.unsubscribe = nil
		s.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
	})
}

// State returns a snapshot. The User it points to is never modified.
func (s *Store) State() model.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a to the state atomically.
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	s.mu.Unlock()

	s.logger.Debug("auth action", slog.String("action", actionName(a)))
}

// Login signs in. The returned error is the one recorded in State().Error.
func (s *Store) Login(ctx context.Context, creds model.LoginCredentials) error {
	s.Dispatch(SetLoading{Loading: true})
	s.Dispatch(ClearError{})

	wait := s.nextNotification()
	result, err := s.client.Login(ctx, creds)
	if err != nil {
		s.Dispatch(SetError{Message: apperror.Message(err, MsgLoginFailed)})
		return err
	}

	s.settle(ctx, "login", wait, SetUser{User: result.User})
	return nil
}

// Signup registers and, when the provider issues a session right away,
// signs in. Without a session (confirmation pending) no notification will
// come, so loading is ended directly and the user stays signed out.
func (s *Store) Signup(ctx context.Context, creds model.SignupCredentials) error {
	s.Dispatch(SetLoading{Loading: true})
	s.Dispatch(ClearError{})

	wait := s.nextNotification()
	result, err := s.client.Signup(ctx, creds)
	if err != nil {
		s.Dispatch(SetError{Message: apperror.Message(err, MsgSignupFailed)})
		return err
	}

	if !result.SessionActive {
		s.Dispatch(SetLoading{Loading: false})
		return nil
	}

	s.settle(ctx, "signup", wait, SetUser{User: result.User})
	return nil
}

// Logout signs out. The user is cleared by the notification.
func (s *Store) Logout(ctx context.Context) error {
	s.Dispatch(SetLoading{Loading: true})

	wait := s.nextNotification()
	if err := s.client.Logout(ctx); err != nil {
		s.Dispatch(SetError{Message: apperror.Message(err, MsgLogoutFailed)})
		return err
	}

	s.settle(ctx, "logout", wait, SetUser{User: nil})
	return nil
}

// onChange is the change-notification callback: it always overwrites the
// user, whichever action (or none) caused the change.
func (s *Store) onChange(user *model.User) {
	s.Dispatch(SetUser{User: user})

	s.mu.Lock()
	s.lookupFailed = false // the provider just told us the session
	close(s.notified)
	s.notified = make(chan struct{})
	s.mu.Unlock()
}

// nextNotification returns a channel closed by the next change notification.
// Call it before the remote call so a notification delivered during the
// call is not missed.
//
// BROADCAST BY CLOSING:
// A closed channel is readable by any number of waiters at once. onChange
// closes the current channel and installs a fresh one, so every action
// waiting on "the next notification" wakes together:
//
//	wait := s.nextNotification()   // grab the current channel
//	s.client.Login(...)            // provider notifies → onChange closes it
//	<-wait                         // returns immediately
func (s *Store) nextNotification() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notified
}

func (s *Store) settle(ctx context.Context, op string, wait <-chan struct{}, fallback Action) {
	if s.opts.SettleTimeout <= 0 {
		return
	}

	timer := time.NewTimer(s.opts.SettleTimeout)
	defer timer.Stop()

	select {
	case <-wait:
	case <-timer.C:
		s.logger.Warn("no auth state notification, applying direct result",
			slog.String("op", op),
			slog.Duration("timeout", s.opts.SettleTimeout),
		)
		s.Dispatch(fallback)
	case <-ctx.Done():
	}
}
