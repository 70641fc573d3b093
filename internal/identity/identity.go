// Package identity defines the contract between the app and an identity
// provider: the service that checks passwords, issues sessions and pushes
// session changes to subscribers.
//
// Two implementations exist:
//   - identity/gotrue talks to a hosted GoTrue (Supabase Auth) API
//   - identity/local  runs the same contract against the local account table
//
// A Provider value is bound to one browser session: it remembers that
// session's tokens, exactly like a browser-side client library would.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Event names the kind of session change being pushed to listeners.
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// User is the provider's view of an account. Only ID is guaranteed; Email and
// CreatedAt may be zero when the provider omits them.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Session is an authenticated session: the provider's tokens plus the user
// they belong to.
type Session struct {
	Token *oauth2.Token `json:"token"`
	User  User          `json:"user"`
}

// Active reports whether the session still has a usable access token.
// oauth2.Token.Valid treats a token within 10 seconds of expiry as expired.
func (s *Session) Active() bool {
	return s != nil && s.Token.Valid()
}

// AuthResponse is the result of a successful sign-in or sign-up. Session is
// nil when the provider created the user without signing them in.
type AuthResponse struct {
	User    *User
	Session *Session
}

// Listener receives session changes. session is nil after sign-out.
type Listener func(event Event, session *Session)

// Provider is implemented by gotrue.Client and local.Client.
//
// SignInWithPassword, SignUp and SignOut return *Error when the provider
// rejects the request; any other error is a transport or storage failure.
// Successful SignInWithPassword/SignUp calls that produce a session, and
// successful SignOut calls, notify listeners before returning.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error)
	SignUp(ctx context.Context, email, password string) (*AuthResponse, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*Session, error)
	OnAuthStateChange(listener Listener) (unsubscribe func())
}

// Error is a rejection reported by the provider. Message is meant for users
// and is shown verbatim.
type Error struct {
	Status  int    // HTTP status, or the status the local provider would use
	Code    string // machine-readable code when the provider sends one
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity: %s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("identity: %s (%d)", e.Message, e.Status)
}

// Rejected builds an Error, filling Message from the status text when the
// provider sent none.
func Rejected(status int, code, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Status: status, Code: code, Message: message}
}
