package domaincheck

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// AllowList approves emails whose domain is in a fixed set. An empty list
// approves everything.
type AllowList struct {
	domains []string
}

var _ Validator = (*AllowList)(nil)

// NewAllowList normalizes domains (trimmed, lower-cased, leading "@"
// removed) and drops empty entries.
func NewAllowList(domains []string) *AllowList {
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d != "" && !slices.Contains(normalized, d) {
			normalized = append(normalized, d)
		}
	}
	return &AllowList{domains: normalized}
}

// Domains returns the normalized list.
func (a *AllowList) Domains() []string {
	return slices.Clone(a.domains)
}

func (a *AllowList) ValidateEmailDomain(_ context.Context, email string) (*Result, error) {
	if len(a.domains) == 0 {
		return &Result{Success: true, Message: "Email domain is allowed"}, nil
	}

	domain := domainOf(email)
	if domain == "" {
		return &Result{Success: false, Message: "Please enter a valid email address"}, nil
	}
	if !slices.Contains(a.domains, domain) {
		return &Result{Success: false, Message: fmt.Sprintf("Email domain %q is not allowed", domain)}, nil
	}
	return &Result{Success: true, Message: "Email domain is allowed"}, nil
}
