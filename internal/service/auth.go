// Package service holds the authentication business rules.
//
// AuthService sits between the AuthStateStore and the outside world:
//
//	store.Store → AuthService → identity.Provider     (sign in/up/out, session)
//	                          ↘ domaincheck.Validator (signup only)
//
// It keeps no state of its own. Everything it returns is either a mapped
// model.User or an *apperror.AppError whose Message can be shown as is.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/auth-demo/internal/apperror"
	"github.com/sakif/auth-demo/internal/domaincheck"
	"github.com/sakif/auth-demo/internal/identity"
	"github.com/sakif/auth-demo/internal/model"
)

// Messages for failures the provider did not word itself.
const (
	MsgNoUserData          = "no user data returned"
	MsgProviderUnreachable = "Unable to reach the authentication service. Please try again later."
	msgDomainRejected      = "Email domain is not allowed"
)

// AuthService is bound to one browser session's identity.Provider.
type AuthService struct {
	provider identity.Provider
	domains  domaincheck.Validator
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService creates an AuthService. Construct one per provider client;
// it is cheap.
func NewAuthService(provider identity.Provider, domains domaincheck.Validator, logger *slog.Logger) *AuthService {
	return &AuthService{
		provider: provider,
		domains:  domains,
		logger:   logger,
		now:      time.Now,
	}
}

// Login validates creds locally and signs in with the provider.
//
// Errors:
//   - apperror.ErrValidation when email (after trimming) or password is empty.
//     No network call is made.
//   - apperror.ErrProvider with the provider's own message on rejection, or
//     MsgNoUserData when it accepted but sent no user.
func (s *AuthService) Login(ctx context.Context, creds model.LoginCredentials) (*model.AuthResult, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := credentialValidator().Struct(creds); err != nil {
		return nil, apperror.ValidationFailed("", MsgLoginRequired)
	}

	resp, err := s.provider.SignInWithPassword(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, s.providerError("sign in", err)
	}

	return s.authResult(resp)
}

// Signup validates creds, asks the domain validator, and only then signs up
// with the provider.
//
// Local checks run in a fixed order (see signupRules) and all of them happen
// before any network call. A domain rejection carries the validator's
// message; a validator that cannot be reached yields
// apperror.ErrServiceUnavailable. Provider errors map as in Login.
func (s *AuthService) Signup(ctx context.Context, creds model.SignupCredentials) (*model.AuthResult, error) {
	if err := credentialValidator().Struct(creds); err != nil {
		return nil, signupError(err)
	}

	verdict, err := s.domains.ValidateEmailDomain(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrServiceUnavailable) {
			return nil, err
		}
		return nil, apperror.ServiceUnavailable(domaincheck.UnavailableMessage, err)
	}
	if !verdict.Success {
		message := verdict.Message
		if message == "" {
			message = msgDomainRejected
		}
		s.logger.Info("signup rejected by domain validation",
			slog.String("message", message),
		)
		return nil, apperror.DomainRejected(message)
	}

	resp, err := s.provider.SignUp(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, s.providerError("sign up", err)
	}

	return s.authResult(resp)
}

// Logout signs out at the provider. Every failure is reported as
// apperror.ErrProvider; a flaky network and a refusal look the same.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		return s.providerError("sign out", err)
	}
	return nil
}

// CurrentUser returns the signed-in user, or nil when there is no session.
func (s *AuthService) CurrentUser(ctx context.Context) (*model.User, error) {
	session, err := s.provider.GetSession(ctx)
	if err != nil {
		return nil, s.providerError("get session", err)
	}
	if session == nil {
		return nil, nil
	}
	return s.mapUser(&session.User), nil
}

// OnAuthStateChange calls fn with the mapped user on every provider session
// change, or with nil when the session is gone. The returned function
// unsubscribes; calling it more than once is harmless.
func (s *AuthService) OnAuthStateChange(fn func(*model.User)) (unsubscribe func()) {
	return s.provider.OnAuthStateChange(func(event identity.Event, session *identity.Session) {
		s.logger.Debug("auth state changed", slog.String("event", string(event)))
		if session == nil {
			fn(nil)
			return
		}
		fn(s.mapUser(&session.User))
	})
}

func (s *AuthService) authResult(resp *identity.AuthResponse) (*model.AuthResult, error) {
	if resp == nil || resp.User == nil {
		return nil, apperror.Provider(MsgNoUserData, nil)
	}
	return &model.AuthResult{
		User:          s.mapUser(resp.User),
		SessionActive: resp.Session != nil,
	}, nil
}

// providerError keeps the provider's wording for rejections. Anything else is
// a transport or storage failure: it is logged and replaced with a generic
// message.
func (s *AuthService) providerError(op string, err error) error {
	var rejected *identity.Error
	if errors.As(err, &rejected) {
		return apperror.Provider(rejected.Message, err)
	}

	s.logger.Error("identity provider call failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return apperror.Provider(MsgProviderUnreachable, err)
}

// mapUser builds the local User. Missing email becomes "", missing creation
// time becomes now.
func (s *AuthService) mapUser(u *identity.User) *model.User {
	created := u.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	return &model.User{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: created,
	}
}
