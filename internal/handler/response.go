package handler

// RESPONSE HELPERS:
// Every JSON error from the API has the same shape:
//   {"error": "provider_error", "message": "Invalid login credentials"}
//
// "message" is the text the AuthStateStore records in AuthState.error, so a
// JSON client and the server-rendered page show the same words.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/auth-demo/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "validation_error")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps an error to its HTTP status and machine-readable type.
//
// ERROR MAPPING:
// The switch runs top to bottom and the first match wins. An error wraps a
// single sentinel, so the order only matters for readability here.
//
// errors.Is walks the chain, so wrapped AppErrors map the same as bare ones:
//
//	fmt.Errorf("...: %w", apperror.Provider(...)) → 401 provider_error
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrDomainRejected):
		return http.StatusUnprocessableEntity, "domain_rejected"
	case errors.Is(err, apperror.ErrProvider):
		return http.StatusUnauthorized, "provider_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// Only *apperror.AppError messages reach the client. Anything else becomes a
// generic 500: raw errors can carry SQL, file paths or upstream URLs.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, errorType := errorStatus(err)
		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
