package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseKeyValue runs the behaviour every medium must share
func exerciseKeyValue(t *testing.T, kv KeyValue) {
	t.Helper()

	_, ok, err := kv.Get("accessToken")
	require.NoError(t, err)
	assert.False(t, ok, "empty medium should not report a value")

	require.NoError(t, kv.Set("accessToken", "abc"))
	require.NoError(t, kv.Set("tokenExpiry", "1700000000000"))

	v, ok, err := kv.Get("accessToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, kv.Set("accessToken", "def"))
	v, _, err = kv.Get("accessToken")
	require.NoError(t, err)
	assert.Equal(t, "def", v)

	require.NoError(t, kv.Delete("accessToken", "missing"))
	_, ok, err = kv.Get("accessToken")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err = kv.Get("tokenExpiry")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1700000000000", v)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseKeyValue(t, m)
	assert.Equal(t, 1, m.Len())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatekeeper", "credentials-dev.json")
	f := NewFile(path)
	exerciseKeyValue(t, f)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFile_RemovedWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials-dev.json")
	f := NewFile(path)

	require.NoError(t, f.Set("accessToken", "abc"))
	require.NoError(t, f.Delete("accessToken"))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file should be removed once empty")
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials-dev.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := NewFile(path).Get("accessToken")
	assert.Error(t, err)
}

func TestFile_WatchSeesExternalRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials-dev.json")
	f := NewFile(path)
	require.NoError(t, f.Set("accessToken", "abc"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	require.NoError(t, f.Watch(ctx, func() { changes.Add(1) }))

	require.NoError(t, os.Remove(path))

	assert.Eventually(t, func() bool { return changes.Load() > 0 },
		2*time.Second, 20*time.Millisecond)
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.db")
	s, err := OpenSQLite(path, "dev")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	exerciseKeyValue(t, s)
}

func TestSQLite_ScopesAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.db")

	dev, err := OpenSQLite(path, "dev")
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	require.NoError(t, dev.Set("accessToken", "dev-token"))

	// Reopening runs migrations again; ErrNoChange must be tolerated
	prod, err := OpenSQLite(path, "prod")
	require.NoError(t, err)
	t.Cleanup(func() { prod.Close() })

	_, ok, err := prod.Get("accessToken")
	require.NoError(t, err)
	assert.False(t, ok, "prod scope must not see dev keys")

	scopes, err := prod.Scopes()
	require.NoError(t, err)
	assert.Equal(t, []string{"dev"}, scopes)
}

func TestSession_RoundTripThroughCookie(t *testing.T) {
	store := NewSessionStore([]byte("0123456789abcdef0123456789abcdef"), false)

	// First request writes the value into the session cookie
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, NewSession(store, "", req, rec).Set("accessToken", "abc"))

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	// Second request carries the cookie back
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req2.AddCookie(c)
	}
	rec2 := httptest.NewRecorder()
	s := NewSession(store, "", req2, rec2)

	v, ok, err := s.Get("accessToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Delete("accessToken"))
	deleted := rec2.Result().Cookies()
	require.NotEmpty(t, deleted)
	assert.True(t, deleted[len(deleted)-1].MaxAge < 0, "empty session should expire the cookie")
}

func TestSession_GarbageCookieStartsFresh(t *testing.T) {
	store := NewSessionStore([]byte("0123456789abcdef0123456789abcdef"), false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionName, Value: "garbage"})
	s := NewSession(store, "", req, httptest.NewRecorder())

	_, ok, err := s.Get("accessToken")
	require.NoError(t, err)
	assert.False(t, ok)
}
