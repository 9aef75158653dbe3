package client

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devilmonastery/gatekeeper/internal/storage"
	"github.com/devilmonastery/gatekeeper/internal/tokens"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func capture(seen **http.Request) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		*seen = req
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusNoContent)
		return rec.Result(), nil
	})
}

func TestRequestIDTransport_KeepsCallerID(t *testing.T) {
	var seen *http.Request
	rt := &requestIDTransport{next: capture(&seen)}

	req := httptest.NewRequest(http.MethodGet, "http://api.test/api/users/me", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, "caller-id", seen.Header.Get(RequestIDHeader))
}

func TestAuthTransport_DoesNotMutateCallerRequest(t *testing.T) {
	store := tokens.NewDurableStore(storage.NewMemory())
	require.NoError(t, store.Save(tokens.Pair{AccessToken: "abc"}))

	var seen *http.Request
	rt := newTransport(capture(&seen), store, nil, Options{}, "/api")

	req := httptest.NewRequest(http.MethodGet, "http://api.test/api/users/me", nil)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, "Bearer abc", seen.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestAuthTransport_CSRFOnlyInCookieMode(t *testing.T) {
	jar, err := NewCookieJar()
	require.NoError(t, err)
	u, _ := url.Parse("http://api.test/api")
	jar.SetCookies(u, []*http.Cookie{{Name: DefaultCSRFCookieName, Value: "csrf-123", Path: "/"}})

	tests := []struct {
		name       string
		cookieAuth bool
		header     string
		want       string
	}{
		{"cookie mode", true, "X-XSRF-TOKEN", "csrf-123"},
		{"header mode", false, "X-XSRF-TOKEN", ""},
		{"no header name", true, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *http.Request
			rt := &authTransport{
				next:           capture(&seen),
				jar:            jar,
				cookieAuth:     tt.cookieAuth,
				csrfHeaderName: tt.header,
				csrfCookieName: DefaultCSRFCookieName,
			}
			_, err := rt.RoundTrip(httptest.NewRequest(http.MethodPost, "http://api.test/api/auth/logout", nil))
			require.NoError(t, err)
			if tt.header != "" {
				assert.Equal(t, tt.want, seen.Header.Get(tt.header))
			}
		})
	}
}

func TestMetricsTransport_Route(t *testing.T) {
	rt := &metricsTransport{basePath: "/api/v1"}
	assert.Equal(t, "/auth/login", rt.route("/api/v1/auth/login"))
	assert.Equal(t, "/", rt.route("/api/v1"))

	rt = &metricsTransport{}
	assert.Equal(t, "/users/me", rt.route("/users/me"))
}
