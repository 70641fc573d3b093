// Package auth contains the credential primitives the app issues itself:
// signed tokens (jwt.go), password hashes (password.go) and the browser
// session cookie (middleware.go).
//
// Two TokenService instances exist at runtime, told apart by issuer:
//   - "auth-demo-session": the browser session cookie, subject = session ID
//   - "auth-demo-local":   access tokens of the local identity provider,
//     subject = account ID
//
// A token minted by one is rejected by the other because Validate pins the
// issuer, even when both share the same secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SessionIssuer = "auth-demo-session"
	LocalIssuer   = "auth-demo-local"
)

// TokenService signs and validates HS256 tokens for one issuer.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenService creates a TokenService.
//
// The secret must be at least 16 characters; HS256 with a shorter key is
// trivially brute-forced.
func NewTokenService(secret, issuer string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if issuer == "" {
		return nil, errors.New("auth: JWT issuer must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token lifetime must be positive")
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// TTL is the lifetime of tokens from Generate.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

type claims struct {
	jwt.RegisteredClaims
}

// Generate issues a token for subject that expires after TTL.
func (s *TokenService) Generate(subject string) (string, error) {
	token, _, err := s.GenerateWithExpiry(subject)
	return token, err
}

// GenerateWithExpiry is Generate that also returns the expiry it encoded, so
// callers can mirror it elsewhere (the local provider copies it into
// oauth2.Token.Expiry).
func (s *TokenService) GenerateWithExpiry(subject string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}

	// NumericDate truncates to whole seconds; report what the token says.
	return signed, c.ExpiresAt.Time, nil
}

// Validate checks signature, algorithm, issuer and expiry, and returns the
// subject.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			// Reject "alg: none" and RSA/HMAC confusion.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}

// ErrTokenExpired is returned by Validate for a well-formed but expired token.
var ErrTokenExpired = errors.New("auth: token expired")
