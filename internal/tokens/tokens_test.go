package tokens

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/publicsuffix"

	"github.com/devilmonastery/gatekeeper/internal/storage"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func fixedClock() time.Time { return fixedNow }

func createTestToken(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	// ParseUnverified ignores the signature, so a fake one keeps the JWT shape
	tokenString, _ := token.SigningString()
	return tokenString + ".fake_signature"
}

func newDurable(t *testing.T) (*DurableStore, *storage.Memory) {
	t.Helper()
	medium := storage.NewMemory()
	return NewDurableStore(medium, WithClock(fixedClock)), medium
}

func TestDurableStore_SaveLoadRoundTrip(t *testing.T) {
	pairs := []Pair{
		{AccessToken: "a.b.c", RefreshToken: "r1", ExpiresAt: fixedNow.UnixMilli() + 60_000},
		{AccessToken: "only-access", ExpiresAt: 0},
		{AccessToken: "x", RefreshToken: "y", ExpiresAt: 1},
	}

	store, _ := newDurable(t)
	for _, want := range pairs {
		require.NoError(t, store.Save(want))
		got, err := store.Load()
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, *got)
	}
}

func TestDurableStore_UsesThreeKeys(t *testing.T) {
	store, medium := newDurable(t)
	require.NoError(t, store.Save(Pair{AccessToken: "a", RefreshToken: "r", ExpiresAt: 42}))

	for key, want := range map[string]string{
		AccessTokenKey:  "a",
		RefreshTokenKey: "r",
		TokenExpiryKey:  "42",
	} {
		v, ok, err := medium.Get(key)
		require.NoError(t, err)
		assert.True(t, ok, key)
		assert.Equal(t, want, v, key)
	}
}

func TestDurableStore_ClearThenLoad(t *testing.T) {
	store, medium := newDurable(t)
	require.NoError(t, store.Save(Pair{AccessToken: "a", RefreshToken: "r", ExpiresAt: 42}))
	require.NoError(t, store.Clear())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, medium.Len())

	// Clearing twice is harmless
	require.NoError(t, store.Clear())
}

func TestDurableStore_LoadWithoutAccessToken(t *testing.T) {
	store, medium := newDurable(t)
	require.NoError(t, medium.Set(RefreshTokenKey, "orphan"))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDurableStore_BadExpiryFallsBackToClaim(t *testing.T) {
	store, medium := newDurable(t)
	token := createTestToken(jwt.MapClaims{"exp": fixedNow.Add(time.Hour).Unix()})
	require.NoError(t, medium.Set(AccessTokenKey, token))
	require.NoError(t, medium.Set(TokenExpiryKey, "not-a-number"))

	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Zero(t, got.ExpiresAt)
	assert.False(t, store.IsExpired())
}

func TestDurableStore_IsExpired(t *testing.T) {
	nowMs := fixedNow.UnixMilli()

	tests := []struct {
		name    string
		pair    *Pair
		expired bool
	}{
		{name: "nothing stored", pair: nil, expired: true},
		{name: "expiry in the past", pair: &Pair{AccessToken: "t", ExpiresAt: nowMs - 1}, expired: true},
		{name: "expiry exactly now", pair: &Pair{AccessToken: "t", ExpiresAt: nowMs}, expired: true},
		{name: "expiry one ms ahead", pair: &Pair{AccessToken: "t", ExpiresAt: nowMs + 1}, expired: false},
		{
			name:    "claim 5s ahead is inside the skew margin",
			pair:    &Pair{AccessToken: createTestToken(jwt.MapClaims{"exp": fixedNow.Add(5 * time.Second).Unix()})},
			expired: true,
		},
		{
			name:    "claim exactly at the margin",
			pair:    &Pair{AccessToken: createTestToken(jwt.MapClaims{"exp": fixedNow.Add(SkewMargin).Unix()})},
			expired: true,
		},
		{
			name:    "claim 11s ahead",
			pair:    &Pair{AccessToken: createTestToken(jwt.MapClaims{"exp": fixedNow.Add(11 * time.Second).Unix()})},
			expired: false,
		},
		{
			name:    "claim in the past",
			pair:    &Pair{AccessToken: createTestToken(jwt.MapClaims{"exp": fixedNow.Add(-time.Minute).Unix()})},
			expired: true,
		},
		{
			name:    "no exp claim",
			pair:    &Pair{AccessToken: createTestToken(jwt.MapClaims{"sub": "123"})},
			expired: true,
		},
		{name: "undecodable token", pair: &Pair{AccessToken: "not-a-jwt"}, expired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newDurable(t)
			if tt.pair != nil {
				require.NoError(t, store.Save(*tt.pair))
			}
			assert.Equal(t, tt.expired, store.IsExpired())
		})
	}
}

func TestDecodeExpiry(t *testing.T) {
	exp := fixedNow.Add(time.Hour).Truncate(time.Second)
	got, err := DecodeExpiry(createTestToken(jwt.MapClaims{"exp": exp.Unix()}))
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))

	_, err = DecodeExpiry("")
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = DecodeExpiry("a.b")
	assert.Error(t, err)
}

func TestDecodeExpiry_UnknownAlgIsExpired(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, fixedNow.Add(time.Hour).Unix())))
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing alg", header: `{"typ":"JWT"}`},
		{name: "unregistered alg", header: `{"alg":"XYZ999","typ":"JWT"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := base64.RawURLEncoding.EncodeToString([]byte(tt.header)) + "." + payload + ".sig"
			_, err := DecodeExpiry(token)
			assert.Error(t, err)

			store, _ := newDurable(t)
			require.NoError(t, store.Save(Pair{AccessToken: token}))
			assert.True(t, store.IsExpired())
		})
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"":             ModeDurable,
		"durable":      ModeDurable,
		"localStorage": ModeDurable,
		"cookie":       ModeCookie,
		" Cookie ":     ModeCookie,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("sessionStorage")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestPair_OAuth2(t *testing.T) {
	p := Pair{AccessToken: "a", RefreshToken: "r", ExpiresAt: fixedNow.UnixMilli()}
	tok := p.OAuth2()
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "r", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.Type())
	assert.True(t, tok.Expiry.Equal(fixedNow))

	assert.True(t, Pair{AccessToken: "a"}.OAuth2().Expiry.IsZero())
}

func newJar(t *testing.T) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	return jar
}

func TestCookieStore(t *testing.T) {
	jar := newJar(t)
	store, err := NewCookieStore(jar, "https://api.example.com/api", "", WithClock(fixedClock))
	require.NoError(t, err)
	assert.Equal(t, ModeCookie, store.Mode())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, got, "no cookie means no session")
	assert.True(t, store.IsExpired())

	// Save never writes anything the client could read
	require.NoError(t, store.Save(Pair{AccessToken: "secret"}))
	got, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	u, _ := url.Parse("https://api.example.com/api")
	jar.SetCookies(u, []*http.Cookie{{Name: DefaultSessionCookie, Value: "opaque", Path: "/", HttpOnly: true}})

	got, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.ServerManaged)
	assert.NotEqual(t, "opaque", got.AccessToken)

	// The expiry of a server-managed token is unknowable: fail closed
	assert.True(t, store.IsExpired())

	require.NoError(t, store.Clear())
	got, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(Config{Mode: ModeDurable, Medium: storage.NewMemory()})
	require.NoError(t, err)
	assert.Equal(t, ModeDurable, s.Mode())

	_, err = NewStore(Config{Mode: ModeDurable})
	assert.Error(t, err)

	s, err = NewStore(Config{Mode: ModeCookie, Jar: newJar(t), BaseURL: "http://localhost:8000/api"})
	require.NoError(t, err)
	assert.Equal(t, ModeCookie, s.Mode())

	_, err = NewStore(Config{Mode: ModeCookie})
	assert.Error(t, err)

	_, err = NewStore(Config{Mode: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestSource(t *testing.T) {
	store, _ := newDurable(t)
	src := Source(store)

	_, err := src.Token()
	assert.True(t, errors.Is(err, ErrNoToken))

	require.NoError(t, store.Save(Pair{AccessToken: "a", ExpiresAt: fixedNow.UnixMilli() - 1}))
	_, err = src.Token()
	assert.ErrorIs(t, err, ErrExpired)

	require.NoError(t, store.Save(Pair{AccessToken: "a", ExpiresAt: fixedNow.UnixMilli() + 60_000}))
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
}
