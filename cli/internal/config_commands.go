package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	envconfig "github.com/devilmonastery/gatekeeper/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration and contexts",
		Long:  `Manage CLI contexts, similar to kubectl contexts. Each context has its own API and credentials.`,
	}

	cmd.AddCommand(newConfigViewCommand())
	cmd.AddCommand(newCurrentContextCommand())
	cmd.AddCommand(newUseContextCommand())
	cmd.AddCommand(newListContextsCommand())
	cmd.AddCommand(newSetContextCommand())
	cmd.AddCommand(newDeleteContextCommand())

	return cmd
}

// view command prints the effective configuration of the current context
func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the current context and its effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCfg, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, err := cliCfg.GetCurrentContext()
			if err != nil {
				return err
			}
			env, err := loadEnvConfig(ctx)
			if err != nil {
				return err
			}
			return writeConfigView(cmd.OutOrStdout(), cliCfg.CurrentContext, env)
		},
	}
}

func writeConfigView(w io.Writer, contextName string, env *envconfig.Config) error {
	configPath, _ := GetConfigPath()
	fmt.Fprintf(w, "# context: %s\n# contexts file: %s\n", contextName, configPath)

	data, err := yaml.Marshal(struct {
		API struct {
			BaseURL string `yaml:"base_url"`
			Timeout string `yaml:"timeout"`
		} `yaml:"api"`
		Auth    envconfig.AuthConfig    `yaml:"auth"`
		Storage envconfig.StorageConfig `yaml:"storage"`
	}{
		API: struct {
			BaseURL string `yaml:"base_url"`
			Timeout string `yaml:"timeout"`
		}{env.API.BaseURL, env.API.Timeout.String()},
		Auth:    env.Auth,
		Storage: env.Storage,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func newCurrentContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current-context",
		Short: "Display the current context",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), config.CurrentContext)
			return nil
		},
	}
}

func newUseContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use-context CONTEXT_NAME",
		Short: "Switch to a different context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contextName := args[0]

			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if err := config.SetCurrentContext(contextName); err != nil {
				return err
			}

			if err := SaveConfig(config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q\n", contextName)
			return nil
		},
	}
}

func newListContextsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "get-contexts",
		Aliases: []string{"list-contexts"},
		Short:   "List all available contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(config.Contexts) == 0 {
				fmt.Fprintln(out, "No contexts configured")
				return nil
			}

			names := make([]string, 0, len(config.Contexts))
			for name := range config.Contexts {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "CURRENT\tNAME\tAPI\tCONFIG\tTHEME")

			for _, name := range names {
				ctx := config.Contexts[name]
				current := " "
				if name == config.CurrentContext {
					current = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					current,
					name,
					orDash(ctx.API.URL),
					orDash(ctx.ConfigFile),
					ctx.Rendering.Theme,
				)
			}
			return w.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newSetContextCommand() *cobra.Command {
	var (
		apiURL     string
		configFile string
		theme      string
	)

	cmd := &cobra.Command{
		Use:     "set-context CONTEXT_NAME",
		Aliases: []string{"add-context"},
		Short:   "Add or update a context",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contextName := args[0]

			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, ok := config.Contexts[contextName]
			if !ok {
				ctx = &Context{}
				ctx.Rendering.Theme = "auto"
			}
			if cmd.Flags().Changed("api-url") {
				ctx.API.URL = apiURL
			}
			if cmd.Flags().Changed("config-file") {
				ctx.ConfigFile = configFile
			}
			if cmd.Flags().Changed("theme") {
				ctx.Rendering.Theme = theme
			}

			config.AddContext(contextName, ctx)

			// If this is the first context, make it current
			if len(config.Contexts) == 1 {
				config.CurrentContext = contextName
			}

			if err := SaveConfig(config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Context %q set\n", contextName)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api-url", "", "API base URL, e.g. https://auth.example.com/api")
	cmd.Flags().StringVar(&configFile, "config-file", "", "Environment configuration file for this context")
	cmd.Flags().StringVar(&theme, "theme", "auto", "Rendering theme")

	return cmd
}

func newDeleteContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-context CONTEXT_NAME",
		Short: "Delete a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contextName := args[0]

			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if err := config.DeleteContext(contextName); err != nil {
				return err
			}

			if err := SaveConfig(config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Context %q deleted\n", contextName)
			return nil
		},
	}
}
