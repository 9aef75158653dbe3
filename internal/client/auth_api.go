package client

import (
	"context"
	"net/http"
	"time"

	"github.com/devilmonastery/gatekeeper/internal/tokens"
)

// API paths, relative to the base URL
const (
	PathLogin                = "/auth/login"
	PathLogout               = "/auth/logout"
	PathRegister             = "/auth/register"
	PathRefresh              = "/auth/refresh"
	PathPasswordResetRequest = "/auth/password-reset-request"
	PathPasswordResetConfirm = "/auth/password-reset-confirm"
	PathChangePassword       = "/auth/change-password"
	PathProfile              = "/users/me"
)

// User is the profile of the signed-in user
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	Roles       []string   `json:"roles"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type LoginResponse struct {
	Tokens tokens.Pair `json:"tokens"`
	User   User        `json:"user"`
}

type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	DisplayName     string `json:"displayName" validate:"required,min=2,max=50"`
	AgreeToTerms    bool   `json:"agreeToTerms" validate:"required"`
}

type RegisterResponse struct {
	User    User   `json:"user"`
	Message string `json:"message"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RefreshResponse carries a new access token; the refresh token is unchanged
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirm struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,password"`
	ConfirmPassword string `json:"-" validate:"required,eqfield=Password"`
}

type ChangePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword" validate:"required"`
	NewPassword        string `json:"newPassword" validate:"required,password,nefield=CurrentPassword"`
	ConfirmNewPassword string `json:"-" validate:"required,eqfield=NewPassword"`
}

// ProfileUpdate is a partial update; empty fields are left unchanged
type ProfileUpdate struct {
	DisplayName string `json:"displayName,omitempty" validate:"omitempty,min=2,max=50"`
	AvatarURL   string `json:"avatarUrl,omitempty" validate:"omitempty,url"`
}

// Empty reports whether the update would change nothing
func (p ProfileUpdate) Empty() bool {
	return p.DisplayName == "" && p.AvatarURL == ""
}

// MessageResponse is returned by endpoints that only acknowledge
type MessageResponse struct {
	Message string `json:"message"`
}

// Login exchanges credentials for a token pair. The caller decides whether
// to persist the pair.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.Do(ctx, http.MethodPost, PathLogin, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout ends the session on the server
func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, PathLogout, nil, nil)
}

// Register creates an account
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.Do(ctx, http.MethodPost, PathRegister, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh asks for a new access token. refreshToken may be empty when the
// server keeps it in a cookie.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	var resp RefreshResponse
	if err := c.Do(ctx, http.MethodPost, PathRefresh, refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestPasswordReset asks the API to email a reset link
func (c *Client) RequestPasswordReset(ctx context.Context, email string) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.Do(ctx, http.MethodPost, PathPasswordResetRequest, PasswordResetRequest{Email: email}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConfirmPasswordReset sets a new password using the emailed reset token
func (c *Client) ConfirmPasswordReset(ctx context.Context, req PasswordResetConfirm) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.Do(ctx, http.MethodPost, PathPasswordResetConfirm, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangePassword changes the signed-in user's password
func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	return c.Do(ctx, http.MethodPost, PathChangePassword, req, nil)
}

// GetProfile fetches the signed-in user
func (c *Client) GetProfile(ctx context.Context) (*User, error) {
	var user User
	if err := c.Do(ctx, http.MethodGet, PathProfile, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile applies a partial profile update and returns the new profile
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	var user User
	if err := c.Do(ctx, http.MethodPatch, PathProfile, update, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
