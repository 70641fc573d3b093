package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"
)

// SessionCookie is the name of the browser session cookie.
const SessionCookie = "auth_demo_session"

type contextKey string

const (
	sessionIDKey       contextKey = "sessionID"
	sessionRecorderKey contextKey = "sessionRecorder"
)

// BrowserSession makes sure every request carries a browser session ID.
//
// The cookie holds a signed token whose subject is an xid. When the cookie is
// missing, tampered with, or expired a fresh ID is minted and the cookie is
// (re)issued; the request continues either way. The ID says nothing about who
// is signed in: that is the job of the AuthStateStore keyed by it.
func BrowserSession(tokens *TokenService, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, err := sessionIDFromCookie(r, tokens)
			if err != nil {
				sessionID = xid.New().String()

				token, err := tokens.Generate(sessionID)
				if err != nil {
					logger.Error("issuing session cookie", slog.String("error", err.Error()))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}

				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    token,
					Path:     "/",
					MaxAge:   int(tokens.TTL().Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			if dst, ok := r.Context().Value(sessionRecorderKey).(*string); ok {
				*dst = sessionID
			}

			ctx := WithSessionID(r.Context(), sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithSessionID stores a browser session ID in ctx. Tests use it to skip the
// cookie round trip.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithSessionRecorder asks BrowserSession to write the resolved session ID
// into dst. Middleware running outside BrowserSession uses it to log the ID.
func WithSessionRecorder(ctx context.Context, dst *string) context.Context {
	return context.WithValue(ctx, sessionRecorderKey, dst)
}

// SessionIDFromContext returns the browser session ID set by BrowserSession.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

func sessionIDFromCookie(r *http.Request, tokens *TokenService) (string, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", err
	}

	return tokens.Validate(cookie.Value)
}
