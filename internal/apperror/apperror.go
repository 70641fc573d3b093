// Package apperror defines the error taxonomy shared by every layer.
//
// Each constructor returns an *AppError wrapping one sentinel, so callers can
// classify with errors.Is and still show Message to the user verbatim:
//
//	ValidationFailed   → ErrValidation          (local, before any network call)
//	ServiceUnavailable → ErrServiceUnavailable  (domain validation transport failure)
//	DomainRejected     → ErrDomainRejected      (domain validation said no)
//	Provider           → ErrProvider            (identity provider rejection)
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("Validation Error")
	ErrConflict           = errors.New("conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrDomainRejected     = errors.New("domain rejected")
	ErrProvider           = errors.New("identity provider error")
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure, for logs only
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Unauthorized means there is no signed-in user for the request.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// ServiceUnavailable reports that a remote dependency could not be reached or
// answered with a non-2xx status. cause is kept for logging; Message is what
// the user sees.
func ServiceUnavailable(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrServiceUnavailable,
		Message: message,
		Cause:   cause,
	}
}

// DomainRejected carries the domain-validation endpoint's own message.
func DomainRejected(message string) *AppError {
	return &AppError{
		Err:     ErrDomainRejected,
		Message: message,
		Field:   "email",
	}
}

// Provider carries the identity provider's message verbatim.
func Provider(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrProvider,
		Message: message,
		Cause:   cause,
	}
}

// Message returns the user-facing message of err, or fallback when err is
// not an *AppError.
func Message(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}
