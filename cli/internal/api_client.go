package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/devilmonastery/gatekeeper/internal/client"
	envconfig "github.com/devilmonastery/gatekeeper/internal/config"
	"github.com/devilmonastery/gatekeeper/internal/notify"
	"github.com/devilmonastery/gatekeeper/internal/session"
	"github.com/devilmonastery/gatekeeper/internal/tokens"
)

// configFileOverride is set by --config and wins over the context's file
var configFileOverride string

// loadEnvConfig reads the environment configuration for a context. The
// context's API URL overrides the file unless GATEKEEPER_API_URL is set.
func loadEnvConfig(ctx *Context) (*envconfig.Config, error) {
	path := configFileOverride
	if path == "" {
		path = ctx.ConfigFile
	}

	cfg, err := envconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if ctx.API.URL != "" && os.Getenv(envconfig.EnvAPIURL) == "" {
		cfg.API.BaseURL = ctx.API.URL
	}
	return cfg, nil
}

// invocation is everything a command needs to talk to the API
type invocation struct {
	Env     *envconfig.Config
	Session *session.Session
	Medium  *medium

	cleanup []func()
}

// Close releases the medium and stops the subscriptions
func (r *invocation) Close() error {
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		r.cleanup[i]()
	}
	if r.Medium != nil {
		return r.Medium.close()
	}
	return nil
}

// newInvocation wires storage, token store, client and session for one
// invocation. Notifications and logout signals are printed to errOut.
func newInvocation(cfg *envconfig.Config, contextName string, errOut io.Writer) (*invocation, error) {
	log := slog.Default().With(slog.String("component", "cli"))

	jar, err := client.NewCookieJar()
	if err != nil {
		return nil, err
	}

	r := &invocation{Env: cfg}
	storeCfg := tokens.Config{
		Mode:       cfg.Auth.StorageMode,
		Jar:        jar,
		BaseURL:    cfg.API.BaseURL,
		CookieName: cfg.Auth.SessionCookie,
	}
	if !cfg.CookieMode() {
		r.Medium, err = openMedium(cfg, contextName)
		if err != nil {
			return nil, err
		}
		storeCfg.Medium = r.Medium.kv
	}

	store, err := tokens.NewStore(storeCfg)
	if err != nil {
		r.Close()
		return nil, err
	}

	api, err := client.New(client.Options{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		CookieAuth:     cfg.CookieMode(),
		CSRFHeaderName: cfg.Auth.CSRFHeaderName,
		CSRFCookieName: cfg.Auth.CSRFCookieName,
		Jar:            jar,
		UserAgent:      "gatekeeper-cli",
	}, store)
	if err != nil {
		r.Close()
		return nil, err
	}

	notes := notify.NewCenter()
	r.cleanup = append(r.cleanup, notes.ClearAll)
	// Errors are returned to main and printed there
	r.cleanup = append(r.cleanup, notes.Subscribe(func(n notify.Notification) {
		if n.Type == notify.TypeError {
			return
		}
		fmt.Fprintf(errOut, "%s %s\n", notificationPrefix(n.Type), n.Message)
	}))
	r.cleanup = append(r.cleanup, api.Events().Subscribe(func(client.LogoutEvent) {
		fmt.Fprintln(errOut, "Your session has ended. Run 'gatekeeper auth login' to sign in again.")
	}))

	sess, err := session.New(api, notes)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.Session = sess
	r.cleanup = append(r.cleanup, sess.Close)

	log.Debug("invocation ready",
		slog.String("context", contextName),
		slog.String("api", cfg.API.BaseURL),
		slog.String("mode", string(store.Mode())))
	return r, nil
}

func notificationPrefix(t notify.Type) string {
	switch t {
	case notify.TypeSuccess:
		return "✓"
	case notify.TypeWarning:
		return "⚠"
	case notify.TypeError:
		return "✗"
	default:
		return "•"
	}
}
