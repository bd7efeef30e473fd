// Package api is the HTTP client for the expense backend: authentication,
// slip upload, transaction updates and the read-only aggregate endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"slipdash/internal/log"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRetries    = 3
	maxResponseBytes  = 10 << 20
	defaultRetryStart = 250 * time.Millisecond
)

// ErrMalformedResponse wraps any response body that cannot be decoded.
var ErrMalformedResponse = errors.New("malformed response from backend")

// ErrBackendUnavailable wraps transport failures: the backend could not be
// reached or the connection broke before a full answer arrived.
var ErrBackendUnavailable = errors.New("expense backend is unreachable, please try again")

// APIError is a non-2xx answer from the backend. Message is already the
// user-facing text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Temporary reports whether retrying the same request could succeed.
func (e *APIError) Temporary() bool { return e.Status >= 500 }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client talks to the backend rooted at a base URL.
type Client struct {
	base       *url.URL
	http       *http.Client
	logger     *log.Logger
	retries    uint64
	retryStart time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentAPI) }
}

// WithRetries sets how many times a failed GET is retried and the first
// backoff interval.
func WithRetries(n uint64, initial time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		c.retryStart = initial
	}
}

// WithTimeout replaces the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// New returns a client for baseURL, which must be absolute.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute http(s)", baseURL)
	}
	c := &Client{
		base:       u,
		http:       &http.Client{Timeout: defaultTimeout},
		logger:     log.Discard(),
		retries:    defaultRetries,
		retryStart: defaultRetryStart,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL is the backend root without a trailing slash.
func (c *Client) BaseURL() string { return c.base.String() }

// AbsoluteURL resolves a path returned by the backend (a slip QR link, for
// example) against the base URL. Absolute http(s) links are kept.
func (c *Client) AbsoluteURL(p string) string {
	switch {
	case p == "":
		return ""
	case strings.HasPrefix(p, "http://"), strings.HasPrefix(p, "https://"):
		return p
	case strings.HasPrefix(p, "/"):
		return c.BaseURL() + p
	default:
		return c.BaseURL() + "/" + p
	}
}

type request struct {
	method      string
	path        string
	query       url.Values
	token       string
	body        []byte
	contentType string
}

// do sends req and decodes a JSON body into out when out is non-nil. Only GETs
// are retried; mutations get exactly one attempt.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var body []byte
	var err error
	if req.method == http.MethodGet && c.retries > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = c.retryStart
		policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.retries), ctx)
		op := func() error {
			b, err := c.once(ctx, req)
			if err != nil && !retryable(ctx, err) {
				return backoff.Permanent(err)
			}
			body = b
			return err
		}
		notify := func(err error, wait time.Duration) {
			c.logger.WarnContext(ctx, "Backend request failed, retrying",
				log.FieldPath, req.path, log.FieldError, err.Error(), "wait", wait.String())
		}
		err = backoff.RetryNotify(op, policy, notify)
	} else {
		body, err = c.once(ctx, req)
	}
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) once(ctx context.Context, r request) ([]byte, error) {
	u := *c.base
	u.Path = c.base.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var rd io.Reader
	if r.body != nil {
		rd = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, r, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(ctx, r, "read body: ", err)
	}
	c.logger.DebugContext(ctx, "Backend request",
		log.FieldMethod, r.method, log.FieldPath, r.path,
		log.FieldStatusCode, resp.StatusCode, log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	}
	return body, nil
}

// transportError marks err as ErrBackendUnavailable unless the caller gave
// up first; cancellations and deadlines keep their own identity.
func transportError(ctx context.Context, r request, stage string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %s%w", r.method, r.path, stage, err)
	}
	return fmt.Errorf("%w: %s %s: %s%w", ErrBackendUnavailable, r.method, r.path, stage, err)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// errorMessage prefers the JSON detail or message field, then the raw body,
// then a bare status line.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		var detail string
		if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detail) == nil && detail != "" {
			return detail
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

func bearerRequired(token string) error {
	if strings.TrimSpace(token) == "" {
		return errNoToken
	}
	return nil
}
