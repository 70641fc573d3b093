// Package domaincheck decides whether an email's domain may sign up.
//
// The decision lives outside the identity provider, in a small HTTP function
// (POST /functions/v1/validate-email-domain). Client calls a remote one;
// AllowList answers in-process and Handler serves AllowList over the same
// contract, so this server can stand in for the remote function.
package domaincheck

import (
	"context"
	"strings"
)

// Path is where the validation function is served, relative to its base URL.
const Path = "/functions/v1/validate-email-domain"

// UnavailableMessage is shown when the function cannot give an answer.
const UnavailableMessage = "Unable to validate email domain. Please try again later."

// Result is the function's answer. Message explains a rejection and is shown
// to the user verbatim.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Validator is implemented by Client and AllowList.
type Validator interface {
	ValidateEmailDomain(ctx context.Context, email string) (*Result, error)
}

type request struct {
	Email string `json:"email"`
}

// domainOf returns the lower-cased part after the last "@", or "" if there is
// none.
func domainOf(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}
