package storage

import (
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/devilmonastery/gatekeeper/internal/pkg/metrics"
)

// DefaultSessionName is the cookie name used by NewSessionStore sessions
const DefaultSessionName = "gatekeeper_session"

// NewSessionStore creates an encrypted cookie store for Session media.
// secretKey should be 32 bytes for AES-256.
func NewSessionStore(secretKey []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(secretKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60, // 30 days
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Session is a medium bound to a single HTTP request/response pair. It lets a
// handler keep a token store in the caller's encrypted session cookie, so it
// must be created per request.
type Session struct {
	store sessions.Store
	name  string
	r     *http.Request
	w     http.ResponseWriter
}

// NewSession binds a session medium to r and w
func NewSession(store sessions.Store, name string, r *http.Request, w http.ResponseWriter) *Session {
	if name == "" {
		name = DefaultSessionName
	}
	return &Session{store: store, name: name, r: r, w: w}
}

func (s *Session) session() (*sessions.Session, error) {
	session, err := s.store.Get(s.r, s.name)
	if err != nil {
		// Undecodable cookie (rotated key, tampering): start over with a fresh session
		session, err = s.store.New(s.r, s.name)
		if session == nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	}
	return session, nil
}

func (s *Session) Get(key string) (string, bool, error) {
	session, err := s.session()
	metrics.RecordStorageOperation(BackendSession, "get", err)
	if err != nil {
		return "", false, err
	}
	v, ok := session.Values[key].(string)
	return v, ok, nil
}

func (s *Session) Set(key, value string) error {
	session, err := s.session()
	if err != nil {
		metrics.RecordStorageOperation(BackendSession, "set", err)
		return err
	}
	session.Values[key] = value
	err = session.Save(s.r, s.w)
	metrics.RecordStorageOperation(BackendSession, "set", err)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Session) Delete(keys ...string) error {
	session, err := s.session()
	if err != nil {
		metrics.RecordStorageOperation(BackendSession, "delete", err)
		return err
	}
	for _, k := range keys {
		delete(session.Values, k)
	}
	if len(session.Values) == 0 {
		// MaxAge -1 deletes the cookie on the client
		session.Options.MaxAge = -1
	}
	err = session.Save(s.r, s.w)
	metrics.RecordStorageOperation(BackendSession, "delete", err)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
