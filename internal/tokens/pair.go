// Package tokens persists the access/refresh token pair and answers whether
// the session it represents has expired.
package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrNoToken is returned when no token pair is stored
	ErrNoToken = errors.New("no token stored")

	// ErrExpired is returned by Source when the stored token has expired
	ErrExpired = errors.New("token expired")

	// ErrInvalidMode is returned when a storage mode name is not recognised
	ErrInvalidMode = errors.New("invalid storage mode")
)

// Pair is the access/refresh token pair issued at login.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresAt is a Unix timestamp in milliseconds; 0 means unknown
	ExpiresAt int64 `json:"expiresAt"`
	// ServerManaged marks a placeholder for a session held in an HttpOnly
	// cookie. AccessToken carries no usable value in that case.
	ServerManaged bool `json:"-"`
}

// Expiry returns ExpiresAt as a time, or the zero time when unknown
func (p Pair) Expiry() time.Time {
	if p.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(p.ExpiresAt)
}

// OAuth2 converts the pair to an oauth2.Token with a Bearer type
func (p Pair) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       p.Expiry(),
	}
}

// Mode selects where the token pair lives.
type Mode string

const (
	// ModeDurable keeps the pair in a keyed storage medium under three keys
	ModeDurable Mode = "durable"

	// ModeCookie leaves the token in a server-managed HttpOnly cookie
	ModeCookie Mode = "cookie"
)

// ParseMode parses a configured storage mode. "localStorage" is accepted as
// an alias for durable storage.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "durable", "localstorage", "local":
		return ModeDurable, nil
	case "cookie":
		return ModeCookie, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Store persists at most one token pair.
type Store interface {
	// Save persists the pair, replacing any previous one
	Save(pair Pair) error

	// Load returns the stored pair, or nil when none is stored
	Load() (*Pair, error)

	// Clear removes all stored token state
	Clear() error

	// IsExpired reports whether the stored token should be treated as expired.
	// It is true when nothing is stored or the expiry cannot be determined.
	IsExpired() bool

	// Mode reports the storage mode
	Mode() Mode
}

// Clock returns the current time. Stores take one so expiry can be tested.
type Clock func() time.Time
