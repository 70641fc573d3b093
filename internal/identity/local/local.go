// Package local is an identity.Provider that keeps accounts in the app's own
// database. It mirrors the hosted provider's contract closely enough that the
// rest of the app cannot tell the two apart, so the demo runs without a
// Supabase project.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/sakif/auth-demo/internal/apperror"
	"github.com/sakif/auth-demo/internal/auth"
	"github.com/sakif/auth-demo/internal/identity"
	"github.com/sakif/auth-demo/internal/model"
	"github.com/sakif/auth-demo/internal/repository"
)

// Rejection messages, worded as the hosted provider words them.
const (
	msgInvalidCredentials = "Invalid login credentials"
	msgAlreadyRegistered  = "User already registered"
)

// Backend is shared by all browser sessions.
type Backend struct {
	accounts  repository.AccountRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	logger    *slog.Logger
}

func New(accounts repository.AccountRepository, passwords *auth.PasswordService, tokens *auth.TokenService, logger *slog.Logger) *Backend {
	return &Backend{
		accounts:  accounts,
		passwords: passwords,
		tokens:    tokens,
		logger:    logger,
	}
}

// NewClient binds a Client to the session persisted in storage.
func (b *Backend) NewClient(storage *identity.SessionStore) *Client {
	return &Client{backend: b, storage: storage}
}

// Client is one browser session's view of the local provider.
type Client struct {
	backend  *Backend
	storage  *identity.SessionStore
	notifier identity.Notifier

	mu      sync.Mutex
	session *identity.Session
	loaded  bool
}

var _ identity.Provider = (*Client)(nil)

// SignInWithPassword checks the password against the stored bcrypt hash.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*identity.AuthResponse, error) {
	account, err := c.backend.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, identity.Rejected(http.StatusBadRequest, "invalid_credentials", msgInvalidCredentials)
		}
		return nil, fmt.Errorf("local: looking up account: %w", err)
	}

	if err := c.backend.passwords.Verify(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return nil, identity.Rejected(http.StatusBadRequest, "invalid_credentials", msgInvalidCredentials)
		}
		return nil, fmt.Errorf("local: verifying password: %w", err)
	}

	return c.signIn(ctx, account)
}

// SignUp creates an account and signs it in. Local accounts are confirmed
// immediately; there is no email to click.
func (c *Client) SignUp(ctx context.Context, email, password string) (*identity.AuthResponse, error) {
	hash, err := c.backend.passwords.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, identity.Rejected(http.StatusUnprocessableEntity, "weak_password", "Password must be 72 bytes or fewer")
	}
	if err != nil {
		return nil, fmt.Errorf("local: hashing password: %w", err)
	}

	account := &model.Account{Email: strings.TrimSpace(email), PasswordHash: hash}
	if err := c.backend.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, identity.Rejected(http.StatusUnprocessableEntity, "user_already_exists", msgAlreadyRegistered)
		}
		return nil, fmt.Errorf("local: creating account: %w", err)
	}

	c.backend.logger.Info("local account created",
		slog.String("account_id", account.ID),
	)

	return c.signIn(ctx, account)
}

// SignOut forgets the session. Local access tokens are stateless, so there is
// nothing to revoke; the token simply stops being presented.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.session = nil
	c.loaded = true
	c.mu.Unlock()

	if err := c.storage.Clear(ctx); err != nil {
		return err
	}

	c.notifier.Notify(identity.EventSignedOut, nil)
	return nil
}

// GetSession returns the current session after checking that its access
// token still validates and its account still exists.
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
	if c.session == nil {
		return nil, nil
	}

	account, err := c.verify(ctx, c.session)
	if err != nil {
		return nil, err
	}
	if account == nil {
		c.session = nil
		if err := c.storage.Clear(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	c.session.User = toIdentityUser(account)
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

// verify returns the session's account, or nil when the session is no longer
// usable. Errors are storage failures only.
func (c *Client) verify(ctx context.Context, session *identity.Session) (*model.Account, error) {
	if !session.Active() {
		return nil, nil
	}

	accountID, err := c.backend.tokens.Validate(session.Token.AccessToken)
	if err != nil {
		c.backend.logger.Debug("dropping local session with invalid token",
			slog.String("key", c.storage.Key()),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	account, err := c.backend.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("local: loading account %s: %w", accountID, err)
	}
	return account, nil
}

func (c *Client) signIn(ctx context.Context, account *model.Account) (*identity.AuthResponse, error) {
	accessToken, expiresAt, err := c.backend.tokens.GenerateWithExpiry(account.ID)
	if err != nil {
		return nil, fmt.Errorf("local: issuing access token: %w", err)
	}

	user := toIdentityUser(account)
	session := &identity.Session{
		Token: &oauth2.Token{
			AccessToken: accessToken,
			TokenType:   "bearer",
			Expiry:      expiresAt,
		},
		User: user,
	}

	c.mu.Lock()
	c.session = session
	c.loaded = true
	c.mu.Unlock()

	if err := c.storage.Save(ctx, session); err != nil {
		c.backend.logger.Warn("persisting session",
			slog.String("key", c.storage.Key()),
			slog.String("error", err.Error()),
		)
	}

	c.notifier.Notify(identity.EventSignedIn, session)

	return &identity.AuthResponse{User: &user, Session: session}, nil
}

func toIdentityUser(account *model.Account) identity.User {
	return identity.User{
		ID:        account.ID,
		Email:     account.Email,
		CreatedAt: account.CreatedAt,
	}
}
