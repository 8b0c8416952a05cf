// Package api is the HTTP client for the hosted Jovian service.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"

	"github.com/jovian-ai/jovian-cli/internal/logging"
)

const (
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries = 3
	// RetryInitialInterval is the first backoff delay.
	RetryInitialInterval = 500 * time.Millisecond
	// RetryMaxInterval caps a single backoff delay.
	RetryMaxInterval = 8 * time.Second

	defaultTimeout = 60 * time.Second
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes onto ErrNotFound and ErrUnauthorized.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Auth identifies the caller to the API.
type Auth struct {
	APIKey   string
	GuestKey string
	OrgID    string
}

// Client talks to the Jovian API.
type Client struct {
	baseURL         string
	auth            Auth
	httpClient      *http.Client
	userAgent       string
	maxRetries      uint64
	initialInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRetry overrides the retry policy.
func WithRetry(maxRetries uint64, initialInterval time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialInterval = initialInterval
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, auth Auth, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		auth:            auth,
		httpClient:      &http.Client{Timeout: defaultTimeout},
		userAgent:       "jovian-cli",
		maxRetries:      MaxRetries,
		initialInterval: RetryInitialInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasAPIKey reports whether requests are authenticated with an API key.
func (c *Client) HasAPIKey() bool {
	return c.auth.APIKey != ""
}

func (c *Client) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = RetryMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}

// get performs a GET with retries and returns the response body.
func (c *Client) get(ctx context.Context, rawURL string, authenticated bool) ([]byte, error) {
	var body []byte
	attempt := 0

	op := func() error {
		attempt++
		data, err := c.do(ctx, rawURL, authenticated)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.retryable() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		body = data
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logging.Warn().Err(err).Str("url", rawURL).Int("attempt", attempt).Dur("wait", wait).Msg("retrying request")
	}

	if err := backoff.RetryNotify(op, c.newBackoff(ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, rawURL string, authenticated bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("invalid request: %w", err))
	}

	requestID := ulid.Make().String()
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", requestID)
	if authenticated {
		req.Header.Set("Accept", "application/json")
		req.Header.Set("x-jovian-source", "cli")
		if c.auth.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.auth.APIKey)
		}
		if c.auth.GuestKey != "" {
			req.Header.Set("x-jovian-guest", c.auth.GuestKey)
		}
		if c.auth.OrgID != "" {
			req.Header.Set("x-jovian-org", c.auth.OrgID)
		}
	}

	logging.Debug().Str("url", rawURL).Str("request_id", requestID).Msg("api request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	logging.Debug().Str("request_id", requestID).Int("status", resp.StatusCode).Int("bytes", len(data)).Msg("api response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// getData fetches an API path and returns its "data" member.
func (c *Client) getData(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	body, err := c.get(ctx, u, true)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON response from %s", path)
	}
	return gjson.GetBytes(body, "data"), nil
}

// Download fetches a raw file. Credentials are not sent with the request.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	return c.get(ctx, rawURL, false)
}

// maxErrorBodyRunes bounds how much of a non-JSON error body is reported.
const maxErrorBodyRunes = 200

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		msg := strings.TrimSpace(string(body))
		return truncate(msg, maxErrorBodyRunes)
	}
	for _, path := range []string{"errors.message", "message", "error"} {
		if msg := gjson.GetBytes(body, path); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
	}
	return ""
}
