package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	envconfig "github.com/devilmonastery/gatekeeper/internal/config"
	"github.com/devilmonastery/gatekeeper/internal/pkg/logger"
	"github.com/devilmonastery/gatekeeper/internal/session"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const cliContextKey contextKey = "cliContext"

// CliContext holds shared CLI context
type CliContext struct {
	Config      *Config
	ContextName string
	Context     *Context
	Invocation  *invocation
	Logger      *slog.Logger
}

// Session returns the session for this invocation
func (c *CliContext) Session() *session.Session {
	return c.Invocation.Session
}

// Global flags
var (
	logLevel      string
	logFile       string
	logToStderr   bool
	alsoLogStderr bool
	logFormat     string
	contextFlag   string
)

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	var ctx CliContext

	rootCmd := &cobra.Command{
		Use:           "gatekeeper",
		Short:         "CLI for the Gatekeeper auth API",
		Long:          `A command line interface for signing in, managing passwords and profiles via the Gatekeeper auth API.`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors (main.go handles it)
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(cmd, nil); err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}

			ctx.Logger = logger.WithCommand(slog.Default().With("component", "cli"), cmd.CommandPath())
			ctx.Logger.Debug("CLI started")

			// config commands manage the contexts file and never talk to the API
			if isConfigCommand(cmd) {
				cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey, &ctx))
				return nil
			}

			cliCfg, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if contextFlag != "" {
				if err := cliCfg.SetCurrentContext(contextFlag); err != nil {
					return err
				}
			}
			current, err := cliCfg.GetCurrentContext()
			if err != nil {
				return err
			}

			env, err := loadEnvConfig(current)
			if err != nil {
				return err
			}
			// the config file supplies defaults for logging flags left unset
			if err := setupLogging(cmd, &env.Logging); err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			ctx.Logger = logger.WithCommand(slog.Default().With("component", "cli"), cmd.CommandPath())

			inv, err := newInvocation(env, cliCfg.CurrentContext, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("failed to set up API client: %w", err)
			}

			ctx.Config = cliCfg
			ctx.ContextName = cliCfg.CurrentContext
			ctx.Context = current
			ctx.Invocation = inv
			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey, &ctx))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if ctx.Invocation != nil {
				return ctx.Invocation.Close()
			}
			return nil
		},
	}

	rootCmd.AddCommand(newAuthCommand())
	rootCmd.AddCommand(newPasswordCommand())
	rootCmd.AddCommand(newProfileCommand())
	rootCmd.AddCommand(newConfigCommand())

	rootCmd.PersistentFlags().StringVar(&configFileOverride, "config", "",
		"Environment configuration file (overrides the context's config-file)")
	rootCmd.PersistentFlags().StringVar(&contextFlag, "context", "",
		"Context to use for this command instead of the current one")

	// Add logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Log file path (if specified, logs to file instead of stderr)")
	rootCmd.PersistentFlags().BoolVar(&logToStderr, "logtostderr", false,
		"Log to stderr (default behavior unless --log-file specified)")
	rootCmd.PersistentFlags().BoolVar(&alsoLogStderr, "alsologtostderr", false,
		"Log to both file and stderr")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"Log format (text, json)")

	return rootCmd
}

func isConfigCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "config" {
			return true
		}
	}
	return false
}

// setupLogging configures the global logger based on CLI flags, falling back
// to defaults for flags that were not given
func setupLogging(cmd *cobra.Command, defaults *envconfig.LoggingConfig) error {
	globalLogger, err := logger.SetupLogger(loggingConfig(cmd, defaults))
	if err != nil {
		return err
	}

	slog.SetDefault(globalLogger)
	return nil
}

func loggingConfig(cmd *cobra.Command, defaults *envconfig.LoggingConfig) logger.Config {
	level, file, format := logLevel, logFile, logFormat
	if defaults != nil {
		flags := cmd.Flags()
		if !flags.Changed("log-level") && defaults.Level != "" {
			level = defaults.Level
		}
		if !flags.Changed("log-file") && defaults.File != "" {
			file = defaults.File
		}
		if !flags.Changed("log-format") && defaults.Format != "" {
			format = defaults.Format
		}
	}

	return logger.Config{
		Level:   logger.ParseLevel(level),
		LogFile: file,
		// Default to stderr logging unless file is specified
		LogToStderr:   logToStderr || file == "",
		AlsoLogStderr: alsoLogStderr,
		Format:        format,
	}
}

// getCliContext extracts the CLI context from the command context
func getCliContext(cmd *cobra.Command) *CliContext {
	return cmd.Context().Value(cliContextKey).(*CliContext)
}
