package tokens

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/devilmonastery/gatekeeper/internal/pkg/logger"
	"github.com/devilmonastery/gatekeeper/internal/storage"
)

// Keys used in the storage medium
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
	TokenExpiryKey  = "tokenExpiry"
)

// DurableStore keeps the pair in a keyed storage medium.
type DurableStore struct {
	medium storage.KeyValue
	now    Clock
	mu     sync.Mutex
	log    *slog.Logger
}

// NewDurableStore creates a store over medium
func NewDurableStore(medium storage.KeyValue, opts ...Option) *DurableStore {
	s := &DurableStore{
		medium: medium,
		now:    time.Now,
		log:    slog.Default().With(slog.String("component", "token-store")),
	}
	for _, opt := range opts {
		opt.apply(&storeOptions{now: &s.now})
	}
	return s
}

// Mode implements Store
func (s *DurableStore) Mode() Mode {
	return ModeDurable
}

// Save implements Store. An empty refresh token removes the stored one so
// that a later Load returns exactly what was saved.
func (s *DurableStore) Save(pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("saving token pair",
		slog.String("preview", logger.TokenPreview(pair.AccessToken)),
		slog.Bool("has_refresh", pair.RefreshToken != ""),
		slog.Int64("expires_at", pair.ExpiresAt))

	if err := s.medium.Set(AccessTokenKey, pair.AccessToken); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	if err := s.medium.Set(TokenExpiryKey, strconv.FormatInt(pair.ExpiresAt, 10)); err != nil {
		return fmt.Errorf("failed to save token expiry: %w", err)
	}
	if pair.RefreshToken != "" {
		if err := s.medium.Set(RefreshTokenKey, pair.RefreshToken); err != nil {
			return fmt.Errorf("failed to save refresh token: %w", err)
		}
	} else if err := s.medium.Delete(RefreshTokenKey); err != nil {
		return fmt.Errorf("failed to remove refresh token: %w", err)
	}
	return nil
}

// Load implements Store
func (s *DurableStore) Load() (*Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *DurableStore) load() (*Pair, error) {
	access, ok, err := s.medium.Get(AccessTokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}
	if !ok || access == "" {
		return nil, nil
	}

	refresh, _, err := s.medium.Get(RefreshTokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}

	pair := &Pair{AccessToken: access, RefreshToken: refresh}

	raw, ok, err := s.medium.Get(TokenExpiryKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load token expiry: %w", err)
	}
	if ok && raw != "" {
		expiresAt, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			// Unknown expiry falls back to the token's own exp claim
			s.log.Warn("ignoring unparseable token expiry",
				slog.String("value", raw),
				slog.String("error", parseErr.Error()))
		} else {
			pair.ExpiresAt = expiresAt
		}
	}
	return pair, nil
}

// Clear implements Store
func (s *DurableStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("clearing token pair")
	if err := s.medium.Delete(AccessTokenKey, RefreshTokenKey, TokenExpiryKey); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

// IsExpired implements Store
func (s *DurableStore) IsExpired() bool {
	s.mu.Lock()
	pair, err := s.load()
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("treating unreadable token as expired", slog.String("error", err.Error()))
		return true
	}
	return expiredAt(pair, s.now())
}

var _ Store = (*DurableStore)(nil)
