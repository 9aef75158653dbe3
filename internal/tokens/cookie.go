package tokens

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultSessionCookie is the HttpOnly cookie the API sets at login
	DefaultSessionCookie = "auth_session"

	// serverManagedPlaceholder stands in for a token the client cannot read
	serverManagedPlaceholder = "httponlycookie"
)

// CookieStore represents a session held in a server-managed HttpOnly cookie.
// The token value is never visible to the client: Save is a no-op because the
// API sets the cookie itself, and Load only reports whether the cookie exists.
//
// IsExpired cannot inspect an expiry it cannot read, so a present cookie is
// reported as expired (fail-closed) and callers should rely on the API
// answering 401 instead.
type CookieStore struct {
	jar        http.CookieJar
	baseURL    *url.URL
	cookieName string
	now        Clock
	log        *slog.Logger
}

// NewCookieStore creates a store reading cookieName from jar for baseURL
func NewCookieStore(jar http.CookieJar, baseURL, cookieName string, opts ...Option) (*CookieStore, error) {
	if jar == nil {
		return nil, fmt.Errorf("cookie store requires a cookie jar")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}

	s := &CookieStore{
		jar:        jar,
		baseURL:    u,
		cookieName: cookieName,
		now:        time.Now,
		log:        slog.Default().With(slog.String("component", "token-store")),
	}
	for _, opt := range opts {
		opt.apply(&storeOptions{now: &s.now})
	}
	return s, nil
}

// Mode implements Store
func (s *CookieStore) Mode() Mode {
	return ModeCookie
}

// Save implements Store. The API already set the cookie in its response.
func (s *CookieStore) Save(pair Pair) error {
	s.log.Debug("cookie mode: token pair left to the server-managed cookie")
	return nil
}

// Load implements Store
func (s *CookieStore) Load() (*Pair, error) {
	if s.cookie() == nil {
		return nil, nil
	}
	return &Pair{AccessToken: serverManagedPlaceholder, ServerManaged: true}, nil
}

// Clear implements Store. Only the local copy of the cookie can be dropped;
// the server-side session ends with the logout call.
func (s *CookieStore) Clear() error {
	if s.cookie() == nil {
		return nil
	}
	// The jar does not expose the cookie path, so expire the likely ones
	expired := []*http.Cookie{{Name: s.cookieName, Path: "/", MaxAge: -1}}
	if p := s.baseURL.Path; p != "" && p != "/" {
		expired = append(expired, &http.Cookie{Name: s.cookieName, Path: p, MaxAge: -1})
	}
	s.jar.SetCookies(s.baseURL, expired)
	return nil
}

// IsExpired implements Store
func (s *CookieStore) IsExpired() bool {
	pair, _ := s.Load()
	return expiredAt(pair, s.now())
}

func (s *CookieStore) cookie() *http.Cookie {
	for _, c := range s.jar.Cookies(s.baseURL) {
		if c.Name == s.cookieName {
			return c
		}
	}
	return nil
}

var _ Store = (*CookieStore)(nil)
