// Package session is the explicit session context shared by the shell: who
// is signed in, the last error, and the actions that change them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/devilmonastery/gatekeeper/internal/client"
	"github.com/devilmonastery/gatekeeper/internal/notify"
	"github.com/devilmonastery/gatekeeper/internal/pkg/metrics"
	"github.com/devilmonastery/gatekeeper/internal/tokens"
	"github.com/devilmonastery/gatekeeper/internal/validation"
)

var (
	// ErrNotAuthenticated is returned by actions that need a stored token
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNothingToUpdate is returned by UpdateProfile for an empty update
	ErrNothingToUpdate = errors.New("nothing to update")
)

// State is a snapshot of the session
type State struct {
	Authenticated bool
	User          *client.User
	LastError     string
}

// Session ties the API client, its token store and the notification list
// together. It is safe for concurrent use.
type Session struct {
	api    *client.Client
	store  tokens.Store
	notes  *notify.Center
	cancel func()
	log    *slog.Logger

	mu      sync.Mutex
	state   State
	watches map[int]func(State)
	nextID  int
}

// New creates a session over api, which must have a token store. notes may
// be nil.
func New(api *client.Client, notes *notify.Center) (*Session, error) {
	if api.Store() == nil {
		return nil, fmt.Errorf("session requires a client with a token store")
	}
	if notes == nil {
		notes = notify.NewCenter()
	}
	s := &Session{
		api:     api,
		store:   api.Store(),
		notes:   notes,
		log:     slog.Default().With(slog.String("component", "session")),
		watches: make(map[int]func(State)),
	}
	s.cancel = api.Events().Subscribe(func(ev client.LogoutEvent) {
		s.log.Info("session ended by server", slog.String("path", ev.Path))
		s.reset("server_logout")
	})
	return s, nil
}

// Close stops listening for logout events
func (s *Session) Close() {
	s.cancel()
}

// State returns a copy of the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.User != nil {
		u := *st.User
		st.User = &u
	}
	return st
}

// Notifications returns the session's notification list
func (s *Session) Notifications() *notify.Center {
	return s.notes
}

// Client returns the underlying API client
func (s *Session) Client() *client.Client {
	return s.api
}

// OnChange calls fn with a snapshot whenever the session signs in or out.
// The returned function stops the calls.
func (s *Session) OnChange(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.watches[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watches, id)
	}
}

func (s *Session) changed() {
	st := s.State()
	s.mu.Lock()
	fns := make([]func(State), 0, len(s.watches))
	for _, fn := range s.watches {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// ClearError forgets the last error
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastError = ""
}

func (s *Session) setAuthenticated(user *client.User, cause string) {
	s.mu.Lock()
	was := s.state.Authenticated
	s.state.Authenticated = true
	if user != nil {
		s.state.User = user
	}
	s.state.LastError = ""
	s.mu.Unlock()

	if !was {
		metrics.SessionTransitions.WithLabelValues("authenticated", cause).Inc()
		s.changed()
	}
}

func (s *Session) reset(cause string) {
	s.mu.Lock()
	was := s.state.Authenticated
	s.state.Authenticated = false
	s.state.User = nil
	s.mu.Unlock()

	if was {
		metrics.SessionTransitions.WithLabelValues("unauthenticated", cause).Inc()
		s.changed()
	}
}

// fail records err as the last error. Validation problems are left to the
// caller to show next to the fields; everything else posts a notification.
func (s *Session) fail(action string, err error) error {
	msg := err.Error()
	validationFailure := false

	var fe validation.FieldErrors
	if errors.As(err, &fe) {
		validationFailure = true
	} else if apiErr, ok := client.AsAPIError(err); ok {
		msg = apiErr.Message
		validationFailure = apiErr.Kind() == client.KindValidation
	}

	s.mu.Lock()
	s.state.LastError = msg
	s.mu.Unlock()

	if !validationFailure {
		s.notes.Error(msg)
	}
	s.log.Debug("action failed", slog.String("action", action), slog.String("error", err.Error()))
	return fmt.Errorf("%s: %w", action, err)
}

// Restore picks up a stored session: when a token is present the profile is
// fetched, and a 401 leaves the session signed out.
func (s *Session) Restore(ctx context.Context) error {
	pair, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}
	if pair == nil {
		s.reset("restore")
		return nil
	}

	user, err := s.api.GetProfile(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			return nil
		}
		return fmt.Errorf("failed to fetch profile: %w", err)
	}
	s.setAuthenticated(user, "restore")
	return nil
}

// Login signs in and stores the issued tokens
func (s *Session) Login(ctx context.Context, email, password string, rememberMe bool) error {
	req := client.LoginRequest{Email: email, Password: password, RememberMe: rememberMe}
	if err := validation.Validate(req); err != nil {
		return s.fail("login", err)
	}

	resp, err := s.api.Login(ctx, req)
	if err != nil {
		return s.fail("login", err)
	}
	if err := s.store.Save(resp.Tokens); err != nil {
		return s.fail("login", fmt.Errorf("failed to save tokens: %w", err))
	}

	user := &resp.User
	fresh, err := s.api.GetProfile(ctx)
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		// the pipeline already cleared the store and signed the session out
		return s.fail("login", err)
	case err != nil:
		s.log.Warn("failed to refetch profile after login", slog.String("error", err.Error()))
	default:
		user = fresh
	}

	s.setAuthenticated(user, "login")
	s.notes.Success(fmt.Sprintf("Signed in as %s", user.Email))
	s.log.Info("logged in", slog.String("email", user.Email))
	return nil
}

// Register creates an account. It does not sign in.
func (s *Session) Register(ctx context.Context, req client.RegisterRequest) (*client.RegisterResponse, error) {
	if err := validation.Validate(req); err != nil {
		return nil, s.fail("register", err)
	}
	resp, err := s.api.Register(ctx, req)
	if err != nil {
		return nil, s.fail("register", err)
	}
	s.notes.Success("Registration complete. You can now sign in.")
	return resp, nil
}

// Logout ends the session on the server. Local tokens and state are dropped
// even when the call fails; the API error is still returned.
func (s *Session) Logout(ctx context.Context) error {
	apiErr := s.api.Logout(ctx)

	if err := s.store.Clear(); err != nil {
		s.log.Error("failed to clear tokens", slog.String("error", err.Error()))
	}
	s.reset("logout")

	if apiErr != nil {
		s.log.Warn("logout call failed, local session cleared anyway",
			slog.String("error", apiErr.Error()))
		return fmt.Errorf("logout: %w", apiErr)
	}
	s.notes.Info("Signed out")
	return nil
}

// Refresh exchanges the stored refresh token for a new access token and
// saves it alongside the existing refresh token.
func (s *Session) Refresh(ctx context.Context) error {
	pair, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}
	if pair == nil {
		return ErrNotAuthenticated
	}

	refreshToken := ""
	if !pair.ServerManaged {
		refreshToken = pair.RefreshToken
	}
	resp, err := s.api.Refresh(ctx, refreshToken)
	if err != nil {
		return s.fail("refresh", err)
	}

	next := tokens.Pair{
		AccessToken:  resp.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
	}
	if err := s.store.Save(next); err != nil {
		return s.fail("refresh", fmt.Errorf("failed to save tokens: %w", err))
	}
	s.log.Debug("token refreshed", slog.Time("expires_at", next.Expiry()))
	return nil
}

// RequestPasswordReset asks the API to email a reset link
func (s *Session) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if err := validation.Validate(client.PasswordResetRequest{Email: email}); err != nil {
		return "", s.fail("password reset request", err)
	}
	resp, err := s.api.RequestPasswordReset(ctx, email)
	if err != nil {
		return "", s.fail("password reset request", err)
	}
	s.notes.Success(resp.Message)
	return resp.Message, nil
}

// ConfirmPasswordReset sets a new password using a reset token
func (s *Session) ConfirmPasswordReset(ctx context.Context, req client.PasswordResetConfirm) (string, error) {
	if err := validation.Validate(req); err != nil {
		return "", s.fail("password reset", err)
	}
	resp, err := s.api.ConfirmPasswordReset(ctx, req)
	if err != nil {
		return "", s.fail("password reset", err)
	}
	s.notes.Success(resp.Message)
	return resp.Message, nil
}

// ChangePassword changes the signed-in user's password
func (s *Session) ChangePassword(ctx context.Context, req client.ChangePasswordRequest) error {
	if err := validation.Validate(req); err != nil {
		return s.fail("change password", err)
	}
	if err := s.api.ChangePassword(ctx, req); err != nil {
		return s.fail("change password", err)
	}
	s.notes.Success("Password changed")
	return nil
}

// UpdateProfile applies update and refetches the profile
func (s *Session) UpdateProfile(ctx context.Context, update client.ProfileUpdate) (*client.User, error) {
	if update.Empty() {
		return nil, ErrNothingToUpdate
	}
	if err := validation.Validate(update); err != nil {
		return nil, s.fail("update profile", err)
	}

	user, err := s.api.UpdateProfile(ctx, update)
	if err != nil {
		return nil, s.fail("update profile", err)
	}
	fresh, err := s.api.GetProfile(ctx)
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		return nil, s.fail("update profile", err)
	case err != nil:
		s.log.Warn("failed to refetch profile after update", slog.String("error", err.Error()))
	default:
		user = fresh
	}

	s.setAuthenticated(user, "profile")
	s.notes.Success("Profile updated")
	return user, nil
}

// Watcher reports changes to the medium backing the token store
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// WatchStore signs the session out when another process removes the stored
// tokens, and restores it when tokens appear. It returns once the watch is
// established; watching stops when ctx is done.
func (s *Session) WatchStore(ctx context.Context, w Watcher) error {
	return w.Watch(ctx, func() {
		pair, err := s.store.Load()
		if err != nil {
			s.log.Warn("failed to reload token after change", slog.String("error", err.Error()))
			return
		}
		authenticated := s.State().Authenticated
		switch {
		case pair == nil && authenticated:
			s.log.Info("stored tokens removed externally")
			s.reset("external")
		case pair != nil && !authenticated:
			if err := s.Restore(ctx); err != nil {
				s.log.Warn("failed to restore session after change", slog.String("error", err.Error()))
			}
		}
	})
}
