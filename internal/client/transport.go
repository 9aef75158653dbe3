package client

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/devilmonastery/gatekeeper/internal/pkg/logger"
	"github.com/devilmonastery/gatekeeper/internal/pkg/metrics"
	"github.com/devilmonastery/gatekeeper/internal/pkg/urlutil"
	"github.com/devilmonastery/gatekeeper/internal/tokens"
)

// RequestIDHeader carries a per-request id so API logs can be correlated
const RequestIDHeader = "X-Request-ID"

// requestIDTransport stamps every request with an X-Request-ID
type requestIDTransport struct {
	next http.RoundTripper
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(RequestIDHeader) != "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set(RequestIDHeader, uuid.NewString())
	return t.next.RoundTrip(req)
}

// authTransport is the request stage: it attaches the bearer token when one
// is stored and, for cookie-based deployments, the CSRF header.
type authTransport struct {
	next           http.RoundTripper
	store          tokens.Store
	jar            http.CookieJar
	cookieAuth     bool
	csrfHeaderName string
	csrfCookieName string
	log            *slog.Logger
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())

	if t.store != nil {
		pair, err := t.store.Load()
		if err != nil {
			// An unreadable store is treated like an empty one; the API decides
			t.log.Warn("failed to load token, sending request without it",
				slog.String("error", err.Error()))
		} else if pair != nil && !pair.ServerManaged && pair.AccessToken != "" {
			pair.OAuth2().SetAuthHeader(req)
			t.log.Debug("attached bearer token",
				slog.String("path", req.URL.Path),
				slog.String("preview", logger.TokenPreview(pair.AccessToken)))
		}
	}

	if t.cookieAuth && t.csrfHeaderName != "" && t.jar != nil {
		for _, c := range t.jar.Cookies(req.URL) {
			if c.Name == t.csrfCookieName {
				req.Header.Set(t.csrfHeaderName, c.Value)
				break
			}
		}
	}

	return t.next.RoundTrip(req)
}

// metricsTransport records per-route API metrics
type metricsTransport struct {
	next     http.RoundTripper
	basePath string
}

func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start)

	route := t.route(req.URL.Path)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	metrics.APIRequests.WithLabelValues(req.Method, route, strconv.Itoa(statusCode)).Inc()
	metrics.APIDuration.WithLabelValues(req.Method, route).Observe(float64(duration.Milliseconds()))

	return resp, err
}

// route strips the API base path so metrics read /auth/login, not /api/v1/auth/login
func (t *metricsTransport) route(path string) string {
	return urlutil.Route(t.basePath, path)
}

// newTransport assembles the request pipeline, outermost first:
// request id, auth headers, metrics, then the base transport.
func newTransport(base http.RoundTripper, store tokens.Store, jar http.CookieJar, opts Options, basePath string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}

	var rt http.RoundTripper = &metricsTransport{next: base, basePath: basePath}
	rt = &authTransport{
		next:           rt,
		store:          store,
		jar:            jar,
		cookieAuth:     opts.CookieAuth,
		csrfHeaderName: opts.CSRFHeaderName,
		csrfCookieName: opts.CSRFCookieName,
		log:            slog.Default().With(slog.String("component", "auth-transport")),
	}
	rt = &requestIDTransport{next: rt}
	return rt
}
