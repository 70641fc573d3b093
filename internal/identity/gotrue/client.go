package gotrue

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/supabase-community/gotrue-go/types"

	"github.com/sakif/auth-demo/internal/identity"
)

// Client is one browser session's view of the hosted provider.
type Client struct {
	backend  *Backend
	storage  *identity.SessionStore
	notifier identity.Notifier

	mu      sync.Mutex
	session *identity.Session
	loaded  bool // storage has been read once
}

var _ identity.Provider = (*Client)(nil)

// NewClient binds a Client to the session persisted in storage.
func (b *Backend) NewClient(storage *identity.SessionStore) *Client {
	return &Client{backend: b, storage: storage}
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*identity.AuthResponse, error) {
	api, done := c.backend.apiFor(ctx, "")
	defer done()

	resp, err := api.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, translateError("sign in", err)
	}

	result := toAuthResponse(resp.Session, resp.Session.User, c.backend.now())
	if result.Session != nil {
		c.setSession(ctx, result.Session, identity.EventSignedIn)
	}
	return result, nil
}

// SignUp registers a new user. When the project auto-confirms emails the
// user is signed in as well; otherwise the response carries no session.
func (c *Client) SignUp(ctx context.Context, email, password string) (*identity.AuthResponse, error) {
	api, done := c.backend.apiFor(ctx, "")
	defer done()

	resp, err := api.Signup(types.SignupRequest{Email: email, Password: password})
	if err != nil {
		return nil, translateError("sign up", err)
	}

	result := toAuthResponse(resp.Session, resp.User, c.backend.now())
	if result.Session != nil {
		c.setSession(ctx, result.Session, identity.EventSignedIn)
	}
	return result, nil
}

// SignOut revokes the session at the provider and forgets it locally.
//
// A 401, 403 or 404 from the provider means the session is already gone
// there, which is the outcome we want; any other failure leaves the local
// session in place and is returned.
func (c *Client) SignOut(ctx context.Context) error {
	session, err := c.GetSession(ctx)
	if err != nil {
		return err
	}

	if session != nil {
		api, done := c.backend.apiFor(ctx, session.Token.AccessToken)
		err := api.Logout()
		done()
		if err != nil {
			if err = translateError("sign out", err); !alreadySignedOut(err) {
				return err
			}
		}
	}

	c.mu.Lock()
	c.session = nil
	c.loaded = true
	c.mu.Unlock()

	if err := c.storage.Clear(ctx); err != nil {
		c.backend.logger.Warn("clearing persisted session",
			slog.String("key", c.storage.Key()),
			slog.String("error", err.Error()),
		)
	}

	c.notifier.Notify(identity.EventSignedOut, nil)
	return nil
}

// GetSession returns the current session, reading persisted state on first
// use. Expired sessions are discarded and reported as nil.
func (c *Client) GetSession(ctx context.Context) (*identity.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		session, err := c.storage.Load(ctx)
		if err != nil {
			return nil, err
		}
		c.session = session
		c.loaded = true
	}

	if c.session != nil && !c.session.Active() {
		c.session = nil
		if err := c.storage.Clear(ctx); err != nil {
			return nil, err
		}
	}

	return c.session, nil
}

// OnAuthStateChange subscribes listener to this client's session changes.
func (c *Client) OnAuthStateChange(listener identity.Listener) func() {
	return c.notifier.Subscribe(listener)
}

// Listeners reports active subscriptions.
func (c *Client) Listeners() int {
	return c.notifier.Len()
}

func (c *Client) setSession(ctx context.Context, session *identity.Session, event identity.Event) {
	c.mu.Lock()
	c.session = session
	c.loaded = true
	c.mu.Unlock()

	// The session is live in memory even if persisting fails; it just will not
	// survive a restart.
	if err := c.storage.Save(ctx, session); err != nil {
		c.backend.logger.Warn("persisting session",
			slog.String("key", c.storage.Key()),
			slog.String("error", err.Error()),
		)
	}

	c.notifier.Notify(event, session)
}

func alreadySignedOut(err error) bool {
	var idErr *identity.Error
	if !errors.As(err, &idErr) {
		return false
	}
	switch idErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
