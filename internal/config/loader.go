package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/devilmonastery/gatekeeper/internal/pkg/urlutil"
	"github.com/devilmonastery/gatekeeper/internal/storage"
	"github.com/devilmonastery/gatekeeper/internal/tokens"
)

// Environment variables that override the file
const (
	EnvAPIURL      = "GATEKEEPER_API_URL"
	EnvAPITimeout  = "GATEKEEPER_API_TIMEOUT"
	EnvAuthStorage = "GATEKEEPER_AUTH_STORAGE"
	EnvCSRFHeader  = "GATEKEEPER_CSRF_HEADER"
	EnvStorageDir  = "GATEKEEPER_STORAGE_DIR"
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// DefaultConfigPaths defines the default locations to search for configuration files
var DefaultConfigPaths = []string{
	"./gatekeeper.yaml",
	"./gatekeeper.yml",
	"./configs/gatekeeper.yaml",
	"/etc/gatekeeper/config.yaml",
}

// Defaults returns the configuration used when no file sets a value
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000/api",
			Timeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			StorageMode:    tokens.ModeDurable,
			CSRFCookieName: "XSRF-TOKEN",
			SessionCookie:  tokens.DefaultSessionCookie,
		},
		Storage: StorageConfig{
			Backend: storage.BackendFile,
			Dir:     defaultStorageDir(),
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

func defaultStorageDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".gatekeeper"
	}
	return filepath.Join(dir, "gatekeeper")
}

// Load loads the configuration from the specified file or default locations,
// then applies environment overrides
func Load(configPath string) (*Config, error) {
	config := Defaults()
	log := slog.Default().With(slog.String("component", "config"))

	// If no config path is provided, search in default locations
	if configPath == "" {
		configPath = findConfigFile()
	} else if !fileExists(configPath) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	if configPath != "" {
		log.Debug("loading config", slog.String("path", configPath))
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		log.Debug("no config file found, using defaults")
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if err := validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromDefaults loads configuration using only defaults and environment variables
func LoadFromDefaults() (*Config, error) {
	return Load("")
}

func applyEnv(config *Config) error {
	if v := os.Getenv(EnvAPIURL); v != "" {
		config.API.BaseURL = v
	}
	if v := os.Getenv(EnvAPITimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAPITimeout, err)
		}
		config.API.Timeout = d
	}
	if v := os.Getenv(EnvAuthStorage); v != "" {
		config.Auth.StorageMode = tokens.Mode(v)
	}
	if v := os.Getenv(EnvCSRFHeader); v != "" {
		config.Auth.CSRFHeaderName = v
	}
	if v := os.Getenv(EnvStorageDir); v != "" {
		config.Storage.Dir = v
	}
	return nil
}

// findConfigFile searches for a configuration file in default locations
func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// validate normalizes and checks the configuration
func validate(config *Config) error {
	if _, err := urlutil.ParseBaseURL(config.API.BaseURL); err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if config.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}

	mode, err := tokens.ParseMode(string(config.Auth.StorageMode))
	if err != nil {
		return fmt.Errorf("auth.storage_mode: %w", err)
	}
	config.Auth.StorageMode = mode

	if !validBackends[config.Storage.Backend] {
		return fmt.Errorf("storage.backend must be one of file, sqlite, memory; got %q", config.Storage.Backend)
	}
	if config.Storage.Backend != storage.BackendMemory && config.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required for the %s backend", config.Storage.Backend)
	}
	return nil
}
