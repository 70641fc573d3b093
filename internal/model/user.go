// Package model holds the plain data types shared by the store, the service
// layer and the handlers. Nothing in here talks to the network or storage.
package model

import "time"

// User is the local view of an authenticated identity.
//
// It is built from whatever the identity provider returns and replaced
// wholesale on every auth event, so nothing in the app mutates a User after
// it has been mapped. The JSON names match the provider's wire format
// (snake_case created_at), which keeps the /api/auth/state payload identical
// to what a browser client of the hosted provider would see.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthState mirrors the externally managed session for rendering.
//
// Error is the empty string when there is no error. At most one of Loading
// and Error is meaningful at a time: every transition that sets Error also
// clears Loading.
type AuthState struct {
	User    *User  `json:"user"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// AuthResult is returned by a successful login or signup.
//
// SessionActive is false when the provider created the account but did not
// issue a session yet (for example when email confirmation is pending). In
// that case no change notification will follow.
type AuthResult struct {
	User          *User
	SessionActive bool
}
