// Package gotrue is an identity.Provider backed by a hosted GoTrue API, the
// auth server behind Supabase, through the supabase-community/gotrue-go
// client.
//
// Only the endpoints the app needs are used:
//
//	POST /auth/v1/token?grant_type=password   sign in
//	POST /auth/v1/signup                      sign up
//	POST /auth/v1/logout                      sign out
//
// Token refresh is left to the hosted service: an expired session is simply
// dropped and the user signs in again.
package gotrue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gotrueapi "github.com/supabase-community/gotrue-go"
)

// Config locates the hosted project.
type Config struct {
	BaseURL    string // e.g. https://xyzcompany.supabase.co
	AnonKey    string
	HTTPClient *http.Client // nil uses a client with a 10s timeout
}

// Backend holds what every browser session's Client shares: the API client,
// the key and the HTTP connection pool.
type Backend struct {
	api     gotrueapi.Client
	anonKey string
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// New validates cfg and returns a Backend.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gotrue: base URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("gotrue: anon key is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gotrue: parsing base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("gotrue: base URL must be http or https, got %q", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	// The project reference only builds the default *.supabase.co URL, which
	// the custom URL replaces.
	api := gotrueapi.New("", cfg.AnonKey).WithCustomGoTrueURL(base.JoinPath("auth", "v1").String())

	return &Backend{
		api:     api,
		anonKey: cfg.AnonKey,
		http:    client,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// apiFor returns an API client whose requests carry ctx and authenticate
// with bearer, or with the anon key when bearer is empty. Call done once the
// API call has returned.
//
// gotrue-go methods take no context, so ctx rides on a per-call transport.
// The configured client timeout becomes a deadline on that context: the
// transport replaces the request's own context, which is where
// http.Client.Timeout would otherwise live.
func (b *Backend) apiFor(ctx context.Context, bearer string) (api gotrueapi.Client, done context.CancelFunc) {
	if bearer == "" {
		bearer = b.anonKey
	}

	if b.http.Timeout > 0 {
		ctx, done = context.WithTimeout(ctx, b.http.Timeout)
	} else {
		ctx, done = context.WithCancel(ctx)
	}

	base := b.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := http.Client{
		Transport:     contextTransport{ctx: ctx, base: base},
		CheckRedirect: b.http.CheckRedirect,
		Jar:           b.http.Jar,
	}
	return b.api.WithClient(hc).WithToken(bearer), done
}

type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
