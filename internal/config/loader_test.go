package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devilmonastery/gatekeeper/internal/tokens"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatekeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadFromDefaults()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, tokens.ModeDurable, cfg.Auth.StorageMode)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.False(t, cfg.CookieMode())
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_File(t *testing.T) {
	t.Setenv("TEST_API_HOST", "auth.example.com")
	path := writeConfig(t, `
api:
  base_url: https://${TEST_API_HOST}/api/v1
  timeout: 5s
auth:
  storage_mode: cookie
  csrf_header_name: X-XSRF-TOKEN
storage:
  backend: sqlite
  dir: /tmp/gk
logging:
  level: debug
  format: json
  file: /tmp/gk/cli.log
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.CookieMode())
	assert.Equal(t, "X-XSRF-TOKEN", cfg.Auth.CSRFHeaderName)
	assert.Equal(t, "XSRF-TOKEN", cfg.Auth.CSRFCookieName)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, LoggingConfig{Level: "debug", Format: "json", File: "/tmp/gk/cli.log"}, cfg.Logging)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: http://file.example.com/api\n")
	t.Setenv(EnvAPIURL, "http://env.example.com/api")
	t.Setenv(EnvAPITimeout, "2s")
	t.Setenv(EnvAuthStorage, "localStorage")
	t.Setenv(EnvCSRFHeader, "X-CSRF")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.API.Timeout)
	assert.Equal(t, tokens.ModeDurable, cfg.Auth.StorageMode, "localStorage is an alias for durable")
	assert.Equal(t, "X-CSRF", cfg.Auth.CSRFHeaderName)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad url", body: "api:\n  base_url: ftp://x\n"},
		{name: "bad mode", body: "auth:\n  storage_mode: session\n"},
		{name: "bad backend", body: "storage:\n  backend: redis\n"},
		{name: "bad timeout env", env: map[string]string{EnvAPITimeout: "soon"}},
		{name: "bad yaml", body: "api: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
