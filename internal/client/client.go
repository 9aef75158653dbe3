package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/devilmonastery/gatekeeper/internal/pkg/metrics"
	"github.com/devilmonastery/gatekeeper/internal/pkg/urlutil"
	"github.com/devilmonastery/gatekeeper/internal/tokens"
)

const (
	// DefaultTimeout applies when Options.Timeout is zero
	DefaultTimeout = 10 * time.Second

	// DefaultCSRFCookieName is the cookie the CSRF header value is read from
	DefaultCSRFCookieName = "XSRF-TOKEN"

	// maxResponseBytes bounds how much of a response body is read
	maxResponseBytes = 4 << 20
)

// Options configures a Client
type Options struct {
	// BaseURL is the API root, e.g. http://localhost:8000/api
	BaseURL string

	// Timeout is the per-request timeout
	Timeout time.Duration

	// CookieAuth enables the CSRF header for cookie-based deployments
	CookieAuth bool

	// CSRFHeaderName is the header the CSRF cookie value is sent in; empty disables CSRF
	CSRFHeaderName string

	// CSRFCookieName defaults to XSRF-TOKEN
	CSRFCookieName string

	// Jar holds server-set cookies; a public-suffix-aware jar is created when nil
	Jar http.CookieJar

	// Transport is the base transport; http.DefaultTransport when nil
	Transport http.RoundTripper

	// Events receives logout-required signals; a new list is created when nil
	Events *Events

	// UserAgent is sent on every request
	UserAgent string

	// Now is the clock used for error timestamps
	Now func() time.Time
}

// Client talks to the auth API. Every failure is returned as *APIError.
// It never retries; overlapping calls are independent.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	store     tokens.Store
	events    *Events
	jar       http.CookieJar
	userAgent string
	now       func() time.Time
	log       *slog.Logger
}

// NewCookieJar creates the cookie jar the client and a cookie-mode token
// store share.
func NewCookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

// New creates a client. store may be nil for unauthenticated use.
func New(opts Options, store tokens.Store) (*Client, error) {
	base, err := urlutil.ParseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CSRFCookieName == "" {
		opts.CSRFCookieName = DefaultCSRFCookieName
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "gatekeeper-client"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Events == nil {
		opts.Events = NewEvents()
	}
	jar := opts.Jar
	if jar == nil {
		jar, err = NewCookieJar()
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Jar:       jar,
			Transport: newTransport(opts.Transport, store, jar, opts, base.Path),
		},
		store:     store,
		events:    opts.Events,
		jar:       jar,
		userAgent: opts.UserAgent,
		now:       opts.Now,
		log:       slog.Default().With(slog.String("component", "api-client")),
	}, nil
}

// Events returns the logout-required observer list
func (c *Client) Events() *Events {
	return c.events
}

// Store returns the token store the client reads from
func (c *Client) Store() tokens.Store {
	return c.store
}

// Jar returns the client's cookie jar
func (c *Client) Jar() http.CookieJar {
	return c.jar
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// envelope is the success wrapper every endpoint responds with
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Do sends a JSON request to path (relative to the base URL) and decodes the
// envelope's data into out when out is non-nil.
//
// Failures go through the response stage: a 401 clears the token store and
// publishes exactly one LogoutEvent before Do returns, and every failure is
// returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}

	c.log.Debug("api request", slog.String("method", method), slog.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(method, path, 0, nil, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.fail(method, path, resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(method, path, resp.StatusCode, body, nil)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return c.invalidResponse(resp.StatusCode, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return c.invalidResponse(resp.StatusCode, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlutil.Endpoint(c.baseURL, path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// fail is the response stage for unsuccessful exchanges
func (c *Client) fail(method, path string, status int, body []byte, cause error) error {
	if status == http.StatusUnauthorized {
		if c.store != nil {
			if err := c.store.Clear(); err != nil {
				c.log.Error("failed to clear tokens after 401",
					slog.String("error", err.Error()))
			}
		}
		c.events.Publish(LogoutEvent{Method: method, Path: path, At: c.now()})
	}

	apiErr := normalizeError(status, body, cause, c.now())
	kind := apiErr.Kind()

	route := urlutil.Route("", path)
	metrics.APIErrors.WithLabelValues(route, string(kind)).Inc()
	if kind == KindTransport {
		c.log.Warn("api request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("class", metrics.ClassifyTransportError(cause)),
			slog.String("error", cause.Error()))
	} else {
		c.log.Debug("api request rejected",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.String("code", apiErr.Code))
	}
	return apiErr
}

func (c *Client) invalidResponse(status int, err error) error {
	return &APIError{
		Status:    status,
		Code:      "invalid_response",
		Message:   "The server returned a response that could not be decoded",
		Timestamp: c.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		cause:     err,
	}
}
