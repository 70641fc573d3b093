package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sakif/auth-demo/internal/apperror"
	"github.com/sakif/auth-demo/internal/auth"
	"github.com/sakif/auth-demo/internal/model"
	"github.com/sakif/auth-demo/internal/observability"
	"github.com/sakif/auth-demo/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 16 << 10

// Sessions resolves a browser session ID to its AuthStateStore.
// session.Manager implements it.
type Sessions interface {
	Get(ctx context.Context, sessionID string) (*store.Store, error)
}

// AuthHandler serves login, signup and logout, both as HTML form posts and
// as a JSON API.
//
// Each request acts on the AuthStateStore of its browser session (see
// auth.BrowserSession). The store performs the action and records the
// outcome; the handler only translates it to HTTP:
//   - form posts redirect: to /dashboard once a user is present, back to the
//     form otherwise (the page shows the store's error)
//   - JSON calls answer with the resulting AuthState, or an ErrorResponse
type AuthHandler struct {
	sessions Sessions
	metrics  *observability.Metrics
	logger   *slog.Logger
}

func NewAuthHandler(sessions Sessions, metrics *observability.Metrics, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleLoginForm handles POST /auth/login.
func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	creds := model.LoginCredentials{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	err := st.Login(r.Context(), creds)
	h.record("login", err)

	h.redirectAfter(w, r, st, "/")
}

// HandleSignupForm handles POST /auth/signup.
func (h *AuthHandler) HandleSignupForm(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	creds := model.SignupCredentials{
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	}
	err := st.Signup(r.Context(), creds)
	h.record("signup", err)

	back := "/?mode=signup"
	if err == nil {
		// Confirmation pending: the account exists, signing in is next.
		back = "/?" + url.Values{"notice": {"confirm"}}.Encode()
	}
	h.redirectAfter(w, r, st, back)
}

// HandleLogoutForm handles POST /auth/logout.
func (h *AuthHandler) HandleLogoutForm(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	err := st.Logout(r.Context())
	h.record("logout", err)
	if err != nil {
		// Still signed in; the dashboard shows the error.
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogin handles POST /api/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	var creds model.LoginCredentials
	if !decodeJSON(w, r, &creds) {
		return
	}

	err := st.Login(r.Context(), creds)
	h.record("login", err)
	h.respond(w, st, err)
}

// HandleSignup handles POST /api/auth/signup.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	var creds model.SignupCredentials
	if !decodeJSON(w, r, &creds) {
		return
	}

	err := st.Signup(r.Context(), creds)
	h.record("signup", err)
	h.respond(w, st, err)
}

// HandleLogout handles POST /api/auth/logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	err := st.Logout(r.Context())
	h.record("logout", err)
	h.respond(w, st, err)
}

// HandleState handles GET /api/auth/state.
func (h *AuthHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, st.State())
}

// SessionInfo is the debug view served at /api/session.
type SessionInfo struct {
	SessionID string          `json:"session_id"`
	State     model.AuthState `json:"state"`
}

// HandleSession handles GET /api/session: which browser session this is and
// what the store holds for it.
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}
	id, _ := auth.SessionIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, SessionInfo{SessionID: id, State: st.State()})
}

// storeFor writes an error response and returns false when the request has
// no usable store.
func (h *AuthHandler) storeFor(w http.ResponseWriter, r *http.Request) (*store.Store, bool) {
	return storeFor(w, r, h.sessions, h.logger)
}

func storeFor(w http.ResponseWriter, r *http.Request, sessions Sessions, logger *slog.Logger) (*store.Store, bool) {
	id, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		// BrowserSession middleware is missing from the route.
		logger.Error("request without browser session", slog.String("path", r.URL.Path))
		writeError(w, errors.New("no browser session"))
		return nil, false
	}

	st, err := sessions.Get(r.Context(), id)
	if err != nil {
		logger.Error("loading session store",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return nil, false
	}
	return st, true
}

func (h *AuthHandler) respond(w http.ResponseWriter, st *store.Store, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st.State())
}

func (h *AuthHandler) redirectAfter(w http.ResponseWriter, r *http.Request, st *store.Store, otherwise string) {
	if st.State().User != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, otherwise, http.StatusSeeOther)
}

func (h *AuthHandler) record(action string, err error) {
	h.metrics.RecordAuthAction(action, outcome(err))
	if err != nil {
		h.logger.Info("auth action failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, apperror.ErrValidation),
		errors.Is(err, apperror.ErrDomainRejected),
		errors.Is(err, apperror.ErrProvider):
		return observability.OutcomeRejected
	}
	return observability.OutcomeError
}

// decodeJSON reads a JSON body into dst, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, apperror.ValidationFailed("body", "Invalid request body"))
		return false
	}
	return true
}
