package config

import (
	"time"

	"github.com/devilmonastery/gatekeeper/internal/storage"
	"github.com/devilmonastery/gatekeeper/internal/tokens"
)

// Config is the environment configuration, read once at startup
type Config struct {
	API     APIConfig     `yaml:"api"`
	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig locates the auth API
type APIConfig struct {
	BaseURL string        `yaml:"base_url" default:"http://localhost:8000/api"`
	Timeout time.Duration `yaml:"timeout" default:"10s"`
}

// AuthConfig selects how the token pair is kept
type AuthConfig struct {
	StorageMode    tokens.Mode `yaml:"storage_mode" default:"durable"` // durable or cookie
	CSRFHeaderName string      `yaml:"csrf_header_name"`               // empty disables the CSRF header
	CSRFCookieName string      `yaml:"csrf_cookie_name" default:"XSRF-TOKEN"`
	SessionCookie  string      `yaml:"session_cookie" default:"auth_session"`
}

// StorageConfig selects the medium behind durable mode
type StorageConfig struct {
	Backend string `yaml:"backend" default:"file"` // file, sqlite or memory
	// Dir holds credentials-<context>.json files or the sqlite database
	Dir string `yaml:"dir"`
}

// LoggingConfig holds defaults for the logging flags
type LoggingConfig struct {
	Level  string `yaml:"level" default:"warn"`
	Format string `yaml:"format" default:"text"`
	File   string `yaml:"file"`
}

// CookieMode reports whether the session lives in a server-managed cookie
func (c *Config) CookieMode() bool {
	return c.Auth.StorageMode == tokens.ModeCookie
}

// validBackends lists the media durable mode can use
var validBackends = map[string]bool{
	storage.BackendFile:   true,
	storage.BackendSQLite: true,
	storage.BackendMemory: true,
}
