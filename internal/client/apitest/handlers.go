package apitest

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/devilmonastery/gatekeeper/internal/tokens"
)

type ctxKey string

const (
	bodyKey  ctxKey = "body"
	emailKey ctxKey = "email"
)

func withBody(ctx context.Context, body map[string]any) context.Context {
	return context.WithValue(ctx, bodyKey, body)
}

func withEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey, email)
}

func bodyString(r *http.Request, field string) string {
	body, _ := r.Context().Value(bodyKey).(map[string]any)
	v, _ := body[field].(string)
	return v
}

func emailFrom(r *http.Request) string {
	email, _ := r.Context().Value(emailKey).(string)
	return email
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, email string) (map[string]any, error) {
	exp := time.Now().Add(s.opts.TokenTTL)
	access := IssueToken(email, exp)
	refresh := uuid.NewString()

	s.sessions[access] = email
	s.refresh[refresh] = email

	if s.opts.CookieMode {
		pair := tokens.Pair{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp.UnixMilli()}
		if err := s.cookieSession(w, r).Save(pair); err != nil {
			return nil, err
		}
		http.SetCookie(w, &http.Cookie{Name: CSRFCookie, Value: uuid.NewString(), Path: "/"})
	}

	return map[string]any{
		"accessToken":  access,
		"refreshToken": refresh,
		"expiresAt":    exp.UnixMilli(),
	}, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email, password := bodyString(r, "email"), bodyString(r, "password")

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[email]
	if !ok || acct.Password != password {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", nil)
		return
	}
	issued, err := s.issueSession(w, r, email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session_error", err.Error(), nil)
		return
	}
	writeData(w, map[string]any{
		"tokens": issued,
		"user":   acct.User,
	}, "")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	email := bodyString(r, "email")
	password := bodyString(r, "password")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[email]; exists {
		writeError(w, http.StatusConflict, "email_taken", "Email is already registered",
			map[string]string{"email": "already registered"})
		return
	}
	if len(password) < 8 {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "Validation failed",
			map[string][]string{"password": {"too short"}})
		return
	}
	user := s.addUserLocked(email, password, bodyString(r, "displayName"))
	writeData(w, map[string]any{"user": user, "message": "Registration complete"}, "")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	email := emailFrom(r)
	s.mu.Lock()
	for token, owner := range s.sessions {
		if owner == email {
			delete(s.sessions, token)
		}
	}
	s.mu.Unlock()

	if s.opts.CookieMode {
		// emptying the session expires the cookie
		if err := s.cookieSession(w, r).Clear(); err != nil {
			writeError(w, http.StatusInternalServerError, "session_error", err.Error(), nil)
			return
		}
	}
	writeData(w, nil, "Logged out")
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refresh := bodyString(r, "refreshToken")

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.refresh[refresh]
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "Refresh token is invalid", nil)
		return
	}
	exp := time.Now().Add(s.opts.TokenTTL)
	access := IssueToken(email+"#"+uuid.NewString(), exp)
	s.sessions[access] = email
	writeData(w, map[string]any{"accessToken": access, "expiresAt": exp.UnixMilli()}, "")
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	if bodyString(r, "email") == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Validation failed",
			[]map[string]string{{"field": "email", "message": "required"}})
		return
	}
	writeData(w, map[string]any{"message": "If the address exists, a reset link was sent"}, "")
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	if bodyString(r, "token") != "valid-reset-token" {
		writeError(w, http.StatusBadRequest, "invalid_reset_token", "Reset link is invalid or expired", nil)
		return
	}
	writeData(w, map[string]any{"message": "Password updated"}, "")
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	email := emailFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.accounts[email]
	if acct == nil || acct.Password != bodyString(r, "currentPassword") {
		writeError(w, http.StatusBadRequest, "validation_failed", "Validation failed",
			map[string]string{"currentPassword": "incorrect"})
		return
	}
	acct.Password = bodyString(r, "newPassword")
	writeData(w, nil, "Password changed")
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.accounts[emailFrom(r)]
	if acct == nil {
		writeError(w, http.StatusNotFound, "not_found", "User not found", nil)
		return
	}
	writeData(w, acct.User, "")
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.accounts[emailFrom(r)]
	if acct == nil {
		writeError(w, http.StatusNotFound, "not_found", "User not found", nil)
		return
	}
	if name := bodyString(r, "displayName"); name != "" {
		acct.User["displayName"] = name
	}
	if avatar := bodyString(r, "avatarUrl"); avatar != "" {
		acct.User["avatarUrl"] = avatar
	}
	acct.User["updatedAt"] = time.Now().UTC().Format(time.RFC3339)
	writeData(w, acct.User, "Profile updated")
}
