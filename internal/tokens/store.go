package tokens

import (
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/devilmonastery/gatekeeper/internal/storage"
)

// Config selects and configures a Store implementation
type Config struct {
	Mode Mode

	// Medium backs durable stores
	Medium storage.KeyValue

	// Jar, BaseURL and CookieName back cookie stores
	Jar        http.CookieJar
	BaseURL    string
	CookieName string
}

// NewStore builds the store for cfg.Mode
func NewStore(cfg Config, opts ...Option) (Store, error) {
	switch cfg.Mode {
	case ModeDurable, "":
		if cfg.Medium == nil {
			return nil, fmt.Errorf("durable token store requires a storage medium")
		}
		return NewDurableStore(cfg.Medium, opts...), nil
	case ModeCookie:
		return NewCookieStore(cfg.Jar, cfg.BaseURL, cfg.CookieName, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, cfg.Mode)
	}
}

type storeSource struct {
	store Store
}

// Source exposes a store as an oauth2.TokenSource, for callers that build
// their own clients with oauth2.NewClient. It never refreshes.
func Source(store Store) oauth2.TokenSource {
	return storeSource{store: store}
}

func (s storeSource) Token() (*oauth2.Token, error) {
	pair, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	if pair == nil || pair.ServerManaged {
		return nil, ErrNoToken
	}
	if s.store.IsExpired() {
		return nil, ErrExpired
	}
	return pair.OAuth2(), nil
}
