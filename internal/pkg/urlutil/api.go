package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseBaseURL parses an API root such as https://auth.example.com/api.
// Only http and https with a host are accepted; a trailing slash is dropped.
func ParseBaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL has no host: %q", raw)
	}
	return u, nil
}

// Endpoint joins an API path onto base.
// Returns a URL like: {base}/auth/login
func Endpoint(base *url.URL, path string) string {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	return u.String()
}

// Route strips basePath from a request path so that /api/v1/auth/login
// reports as /auth/login. The result always starts with a slash.
func Route(basePath, path string) string {
	route := strings.TrimPrefix(path, strings.TrimRight(basePath, "/"))
	if route == "" || route[0] != '/' {
		route = "/" + route
	}
	return route
}
