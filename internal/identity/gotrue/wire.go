package gotrue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go/types"
	"golang.org/x/oauth2"

	"github.com/sakif/auth-demo/internal/identity"
)

func toIdentityUser(u types.User) *identity.User {
	if u.ID == uuid.Nil {
		return nil
	}
	// A zero CreatedAt is replaced with "now" further up.
	return &identity.User{ID: u.ID.String(), Email: u.Email, CreatedAt: u.CreatedAt}
}

// toIdentitySession maps a token grant. It returns nil when the response
// carries no access token or no user.
func toIdentitySession(s types.Session, now time.Time) *identity.Session {
	user := toIdentityUser(s.User)
	if s.AccessToken == "" || user == nil {
		return nil
	}

	token := &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    s.TokenType,
		RefreshToken: s.RefreshToken,
	}
	switch {
	case s.ExpiresAt > 0:
		token.Expiry = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		token.Expiry = now.Add(time.Duration(s.ExpiresIn) * time.Second)
	}

	return &identity.Session{Token: token, User: *user}
}

// toAuthResponse covers both signup shapes: a session when the project
// auto-confirms, a bare user when email confirmation is pending. A response
// without a user yields an empty AuthResponse; the caller decides what that
// means.
func toAuthResponse(session types.Session, user types.User, now time.Time) *identity.AuthResponse {
	if s := toIdentitySession(session, now); s != nil {
		u := s.User
		return &identity.AuthResponse{User: &u, Session: s}
	}
	if session.AccessToken != "" {
		return &identity.AuthResponse{}
	}
	return &identity.AuthResponse{User: toIdentityUser(user)}
}

// statusPrefix starts every non-2xx error gotrue-go returns:
//
//	response status code 400: {"error":"invalid_grant",...}
const statusPrefix = "response status code "

// translateError turns a gotrue-go error back into an *identity.Error when it
// reports a non-2xx response. Anything else is a transport or decoding
// failure and is wrapped with op.
func translateError(op string, err error) error {
	rest, ok := strings.CutPrefix(err.Error(), statusPrefix)
	if !ok {
		return fmt.Errorf("gotrue: %s: %w", op, err)
	}

	code, body, _ := strings.Cut(rest, ": ")
	status, convErr := strconv.Atoi(code)
	if convErr != nil {
		return fmt.Errorf("gotrue: %s: %w", op, err)
	}
	return decodeError(status, []byte(body))
}

// errorResponse collects the several error shapes GoTrue has used over time:
//
//	{"error":"invalid_grant","error_description":"Invalid login credentials"}
//	{"code":400,"msg":"User already registered"}
//	{"code":"weak_password","message":"Password should be at least 6 characters"}
type errorResponse struct {
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	ErrorDescription string          `json:"error_description"`
	Error            string          `json:"error"`
	ErrorCode        string          `json:"error_code"`
	Code             json.RawMessage `json:"code"`
}

func decodeError(status int, raw []byte) *identity.Error {
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return identity.Rejected(status, "", "")
	}

	message := firstNonEmpty(body.Msg, body.Message, body.ErrorDescription, body.Error)

	code := body.ErrorCode
	if code == "" && body.ErrorDescription != "" {
		code = body.Error
	}
	if code == "" && len(body.Code) > 0 {
		// "code" is a number in older releases and a string in newer ones.
		if s, err := strconv.Unquote(string(body.Code)); err == nil {
			code = s
		}
	}

	return identity.Rejected(status, code, message)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
