package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devilmonastery/gatekeeper/internal/client"
	"github.com/devilmonastery/gatekeeper/internal/client/apitest"
	envconfig "github.com/devilmonastery/gatekeeper/internal/config"
	"github.com/devilmonastery/gatekeeper/internal/session"
	"github.com/devilmonastery/gatekeeper/internal/tokens"
	"github.com/devilmonastery/gatekeeper/internal/validation"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{45 * time.Second, "45 seconds"},
		{time.Minute + 30*time.Second, "1 minute"},
		{2*time.Hour + 5*time.Minute, "2 hours and 5 minutes"},
		{49*time.Hour + 3*time.Minute, "2 days, 1 hour and 3 minutes"},
		{-90 * time.Minute, "1 hour and 30 minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}

func useTempConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvCLIConfig, filepath.Join(dir, "gatekeeper-cli.yaml"))
	return dir
}

func TestConfig_Contexts(t *testing.T) {
	useTempConfig(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.CurrentContext)

	staging := &Context{}
	staging.API.URL = "https://staging.example.com/api"
	cfg.AddContext("staging", staging)
	require.NoError(t, cfg.SetCurrentContext("staging"))
	require.NoError(t, SaveConfig(cfg))

	loaded, err := LoadConfig()
	require.NoError(t, err)
	current, err := loaded.GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com/api", current.API.URL)

	assert.Error(t, loaded.DeleteContext("staging"), "current context cannot be deleted")
	assert.NoError(t, loaded.DeleteContext("local"))
	assert.Error(t, loaded.SetCurrentContext("local"))
}

func TestStatusMarkdown(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	user := &client.User{ID: "u1", Email: "ada@example.com", DisplayName: "Ada", Roles: []string{"user"}}

	out := statusMarkdown("local", session.State{}, nil, now)
	assert.Contains(t, out, "Not logged in")

	st := session.State{Authenticated: true, User: user}
	out = statusMarkdown("local", st, &tokens.Pair{AccessToken: "a", ExpiresAt: now.Add(2 * time.Hour).UnixMilli()}, now)
	assert.Contains(t, out, "ada@example.com")
	assert.Contains(t, out, "Valid for 2 hours")

	out = statusMarkdown("local", st, &tokens.Pair{AccessToken: "a", ExpiresAt: now.Add(-time.Minute).UnixMilli()}, now)
	assert.Contains(t, out, "expired 1 minute ago")

	out = statusMarkdown("local", st, &tokens.Pair{ServerManaged: true}, now)
	assert.Contains(t, out, "server-managed cookie")
}

func TestFormatError(t *testing.T) {
	fe := validation.FieldErrors{"email": "is required", "password": "is required"}
	assert.Equal(t, "invalid input:\n  email: is required\n  password: is required", FormatError(fe))

	apiErr := &client.APIError{Status: 409, Code: "email_taken", Message: "Email is already registered"}
	assert.Equal(t, "Email is already registered", FormatError(apiErr))

	invalid := &client.APIError{
		Status:  422,
		Code:    "validation_failed",
		Message: "Validation failed",
		Details: json.RawMessage(`{"password":["too short"],"email":"taken"}`),
	}
	assert.Equal(t, "Validation failed:\n  email: taken\n  password: too short", FormatError(invalid))

	assert.Equal(t, "boom", FormatError(errors.New("boom")))
}

func TestLoggingConfig_FileDefaults(t *testing.T) {
	defaults := &envconfig.LoggingConfig{Level: "debug", Format: "json", File: "/var/log/gk.log"}

	root := NewRootCommand()
	require.NoError(t, root.ParseFlags(nil))
	cfg := loggingConfig(root, defaults)
	assert.Equal(t, slog.LevelDebug, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "/var/log/gk.log", cfg.LogFile)
	assert.False(t, cfg.LogToStderr)

	root = NewRootCommand()
	require.NoError(t, root.ParseFlags([]string{"--log-level", "error", "--log-format", "text"}))
	cfg = loggingConfig(root, defaults)
	assert.Equal(t, slog.LevelError, cfg.Level, "flags win over the config file")
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, "/var/log/gk.log", cfg.LogFile)

	root = NewRootCommand()
	require.NoError(t, root.ParseFlags(nil))
	cfg = loggingConfig(root, nil)
	assert.Equal(t, slog.LevelWarn, cfg.Level)
	assert.True(t, cfg.LogToStderr)
}

func TestCLI_LoggingFromConfigFile(t *testing.T) {
	dir := useTempConfig(t)
	srv := apitest.NewServer(t, apitest.Options{})
	t.Setenv(envconfig.EnvAPIURL, srv.BaseURL())
	t.Setenv(envconfig.EnvStorageDir, dir)

	logPath := filepath.Join(dir, "cli.log")
	cfgPath := filepath.Join(dir, "gatekeeper.yaml")
	body := "logging:\n  level: debug\n  format: json\n  file: " + logPath + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetArgs([]string{"--config", cfgPath, "auth", "token"})
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	assert.ErrorIs(t, root.Execute(), tokens.ErrNoToken)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"invocation ready"`)
}

// runCLI executes the root command with args and returns stdout and stderr
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(append(args, "--log-level", "error"))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLI_LoginTokenStatusLogout(t *testing.T) {
	dir := useTempConfig(t)
	srv := apitest.NewServer(t, apitest.Options{})
	srv.AddUser("ada@example.com", "Passw0rd", "Ada")
	t.Setenv(envconfig.EnvAPIURL, srv.BaseURL())
	t.Setenv(envconfig.EnvStorageDir, dir)

	_, stderr, err := runCLI(t, "Passw0rd\n", "auth", "login", "--email", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Signed in as ada@example.com")
	assert.FileExists(t, filepath.Join(dir, "credentials-local.json"))

	stdout, _, err := runCLI(t, "", "auth", "token")
	require.NoError(t, err)
	token := strings.TrimSpace(stdout)
	exp, err := tokens.DecodeExpiry(token)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	stdout, _, err = runCLI(t, "", "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ada@example.com")

	stdout, _, err = runCLI(t, "", "profile", "update", "--display-name", "Countess")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Countess")

	_, _, err = runCLI(t, "", "auth", "logout")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "credentials-local.json"))

	_, _, err = runCLI(t, "", "auth", "token")
	assert.ErrorIs(t, err, tokens.ErrNoToken)
}

func TestCLI_LoginValidationError(t *testing.T) {
	dir := useTempConfig(t)
	srv := apitest.NewServer(t, apitest.Options{})
	t.Setenv(envconfig.EnvAPIURL, srv.BaseURL())
	t.Setenv(envconfig.EnvStorageDir, dir)

	_, _, err := runCLI(t, "", "auth", "login", "--email", "nope", "--password", "x")
	require.Error(t, err)
	assert.Contains(t, FormatError(err), "email: must be a valid email address")
	assert.Empty(t, srv.Requests())
}

func TestCLI_RevokedSessionPrintsHint(t *testing.T) {
	dir := useTempConfig(t)
	srv := apitest.NewServer(t, apitest.Options{})
	srv.AddUser("ada@example.com", "Passw0rd", "Ada")
	t.Setenv(envconfig.EnvAPIURL, srv.BaseURL())
	t.Setenv(envconfig.EnvStorageDir, dir)

	_, _, err := runCLI(t, "", "auth", "login", "-e", "ada@example.com", "-p", "Passw0rd")
	require.NoError(t, err)
	srv.RevokeAll()

	_, stderr, err := runCLI(t, "", "profile", "show")
	require.Error(t, err)
	assert.Contains(t, stderr, "gatekeeper auth login")
}

func TestCLI_ConfigCommands(t *testing.T) {
	useTempConfig(t)

	_, _, err := runCLI(t, "", "config", "set-context", "prod", "--api-url", "https://auth.example.com/api")
	require.NoError(t, err)
	_, _, err = runCLI(t, "", "config", "use-context", "prod")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "", "config", "get-contexts")
	require.NoError(t, err)
	assert.Regexp(t, `\*\s+prod`, stdout)

	stdout, _, err = runCLI(t, "", "config", "view")
	require.NoError(t, err)
	assert.Contains(t, stdout, "https://auth.example.com/api")

	_, _, err = runCLI(t, "", "config", "delete-context", "prod")
	assert.Error(t, err)
}
