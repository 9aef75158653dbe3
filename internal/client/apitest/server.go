// Package apitest runs an in-process fake of the auth API for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"github.com/devilmonastery/gatekeeper/internal/storage"
	"github.com/devilmonastery/gatekeeper/internal/tokens"
)

const (
	// BasePath is where the fake mounts the API
	BasePath = "/api"

	SessionCookie  = "auth_session"
	CSRFCookie     = "XSRF-TOKEN"
	CSRFHeader     = "X-XSRF-TOKEN"
	signingSecret  = "apitest-secret"
	cookieSecret   = "apitest-cookie-secret-32-bytes!!"
	defaultTokenTL = time.Hour
)

// Options configures the fake
type Options struct {
	// CookieMode issues the session as an HttpOnly cookie and enforces CSRF
	CookieMode bool

	// TokenTTL is the lifetime of issued access tokens
	TokenTTL time.Duration
}

// RecordedRequest is a request the fake received
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

type account struct {
	User     map[string]any
	Password string
}

type cannedResponse struct {
	status int
	body   any
}

// Server is a fake auth API
type Server struct {
	*httptest.Server

	opts    Options
	cookies *sessions.CookieStore

	mu       sync.Mutex
	accounts map[string]*account // by email
	sessions map[string]string   // access token -> email
	refresh  map[string]string   // refresh token -> email
	canned   map[string][]cannedResponse
	requests []RecordedRequest
}

// NewServer starts a fake API and closes it when the test ends
func NewServer(t testing.TB, opts Options) *Server {
	t.Helper()
	if opts.TokenTTL == 0 {
		opts.TokenTTL = defaultTokenTL
	}

	s := &Server{
		opts:     opts,
		cookies:  storage.NewSessionStore([]byte(cookieSecret), false),
		accounts: make(map[string]*account),
		sessions: make(map[string]string),
		refresh:  make(map[string]string),
		canned:   make(map[string][]cannedResponse),
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns the API root to configure clients with
func (s *Server) BaseURL() string {
	return s.URL + BasePath
}

// AddUser registers an account directly
func (s *Server) AddUser(email, password, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addUserLocked(email, password, displayName)
}

func (s *Server) addUserLocked(email, password, displayName string) map[string]any {
	now := time.Now().UTC().Format(time.RFC3339)
	user := map[string]any{
		"id":          uuid.NewString(),
		"email":       email,
		"displayName": displayName,
		"roles":       []string{"user"},
		"createdAt":   now,
		"updatedAt":   now,
	}
	s.accounts[email] = &account{User: user, Password: password}
	return user
}

// Respond makes the next request to method+path answer with status and body
// instead of the normal handler. Calls queue up.
func (s *Server) Respond(method, path string, status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.canned[key] = append(s.canned[key], cannedResponse{status: status, body: body})
}

// RevokeAll invalidates every issued access token
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]string)
}

// Requests returns the requests received so far
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent request to path
func (s *Server) LastRequest(path string) (RecordedRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Path == path {
			return s.requests[i], true
		}
	}
	return RecordedRequest{}, false
}

// Password returns the stored password for email
func (s *Server) Password(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[email]; ok {
		return a.Password
	}
	return ""
}

// IssueToken signs an access token for subject expiring at exp
func IssueToken(subject string, exp time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	})
	signed, _ := token.SignedString([]byte(signingSecret))
	return signed
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.record, s.cannedResponses)

	api := r.PathPrefix(BasePath).Subrouter()
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/password-reset-request", s.handleResetRequest).Methods(http.MethodPost)
	api.HandleFunc("/auth/password-reset-confirm", s.handleResetConfirm).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.requireAuth)
	authed.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	authed.HandleFunc("/auth/change-password", s.handleChangePassword).Methods(http.MethodPost)
	authed.HandleFunc("/users/me", s.handleGetProfile).Methods(http.MethodGet)
	authed.HandleFunc("/users/me", s.handleUpdateProfile).Methods(http.MethodPatch)

	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil && r.ContentLength != 0 {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   strings.TrimPrefix(r.URL.Path, BasePath),
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		r = r.WithContext(withBody(r.Context(), body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cannedResponses(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, BasePath)
		s.mu.Lock()
		queue := s.canned[key]
		var canned *cannedResponse
		if len(queue) > 0 {
			canned = &queue[0]
			s.canned[key] = queue[1:]
		}
		s.mu.Unlock()

		if canned == nil {
			next.ServeHTTP(w, r)
			return
		}
		if raw, ok := canned.body.(string); ok {
			w.WriteHeader(canned.status)
			fmt.Fprint(w, raw)
			return
		}
		writeJSON(w, canned.status, canned.body)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.opts.CookieMode {
			pair, err := s.cookieSession(w, r).Load()
			if err != nil || pair == nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required", nil)
				return
			}
			token = pair.AccessToken
			if r.Method != http.MethodGet {
				csrf, err := r.Cookie(CSRFCookie)
				if err != nil || r.Header.Get(CSRFHeader) != csrf.Value {
					writeError(w, http.StatusForbidden, "csrf_mismatch", "CSRF token missing or invalid", nil)
					return
				}
			}
		}

		s.mu.Lock()
		email, ok := s.sessions[token]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(withEmail(r.Context(), email)))
	})
}

// cookieSession keeps the issued pair in the signed auth_session cookie
func (s *Server) cookieSession(w http.ResponseWriter, r *http.Request) tokens.Store {
	return tokens.NewDurableStore(storage.NewSession(s.cookies, SessionCookie, r, w))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any, message string) {
	body := map[string]any{
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	body := map[string]any{
		"code":      code,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if details != nil {
		body["details"] = details
	}
	writeJSON(w, status, body)
}
