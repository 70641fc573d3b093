package domaincheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/auth-demo/internal/apperror"
)

// Client calls a remote validation function.
type Client struct {
	endpoint string
	key      string
	http     *http.Client
	logger   *slog.Logger
}

var _ Validator = (*Client)(nil)

// NewClient targets {baseURL}/functions/v1/validate-email-domain and
// authenticates with key. A nil httpClient uses one with a 10s timeout.
func NewClient(baseURL, key string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("domaincheck: base URL is required")
	}
	if key == "" {
		return nil, errors.New("domaincheck: key is required")
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("domaincheck: parsing base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		endpoint: base.JoinPath(Path).String(),
		key:      key,
		http:     httpClient,
		logger:   logger,
	}, nil
}

// ValidateEmailDomain asks the function about email.
//
// Any failure to get a well-formed answer (transport error, non-2xx status,
// undecodable body) is reported as apperror.ErrServiceUnavailable with
// UnavailableMessage. A rejection is not an error: it comes back as a Result
// with Success false.
func (c *Client) ValidateEmailDomain(ctx context.Context, email string) (*Result, error) {
	payload, err := json.Marshal(request{Email: email})
	if err != nil {
		return nil, c.unavailable(fmt.Errorf("encoding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, c.unavailable(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("apikey", c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, c.unavailable(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var result Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&result); err != nil {
		return nil, c.unavailable(fmt.Errorf("decoding response: %w", err))
	}

	return &result, nil
}

func (c *Client) unavailable(cause error) error {
	c.logger.Warn("email domain validation failed",
		slog.String("endpoint", c.endpoint),
		slog.String("error", cause.Error()),
	)
	return apperror.ServiceUnavailable(UnavailableMessage, fmt.Errorf("domaincheck: %w", cause))
}
