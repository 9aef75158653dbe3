package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/gatekeeper/internal/client"
	"github.com/devilmonastery/gatekeeper/internal/session"
	"github.com/devilmonastery/gatekeeper/internal/tokens"
)

// formatDuration formats a duration in a human-friendly way (e.g., "2 days, 3 hours and 45 minutes")
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if len(parts) == 0 && seconds > 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
		Long:  `Sign in and out of the Gatekeeper API and inspect the stored session.`,
	}

	cmd.AddCommand(newAuthLoginCommand())
	cmd.AddCommand(newAuthLogoutCommand())
	cmd.AddCommand(newAuthRegisterCommand())
	cmd.AddCommand(newAuthStatusCommand())
	cmd.AddCommand(newAuthTokenCommand())
	cmd.AddCommand(newAuthRefreshCommand())
	cmd.AddCommand(newAuthWatchCommand())

	return cmd
}

func newAuthLoginCommand() *cobra.Command {
	var (
		email      string
		password   string
		rememberMe bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in to the Gatekeeper API. Missing values are prompted for;
the password is read without echo when stdin is a terminal.

Examples:
  gatekeeper auth login
  gatekeeper auth login --email ada@example.com --remember-me`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

			email, err := p.Line("Email", email)
			if err != nil {
				return err
			}
			password, err := p.Secret("Password", password)
			if err != nil {
				return err
			}

			cc.Logger.Info("starting login", "email", email, "remember_me", rememberMe)
			if err := cc.Session().Login(cmd.Context(), email, password, rememberMe); err != nil {
				return err
			}

			pair, err := cc.Session().Client().Store().Load()
			if err == nil && pair != nil && !pair.ServerManaged {
				if exp := tokenExpiry(pair); !exp.IsZero() {
					fmt.Fprintf(cmd.OutOrStdout(), "  Token expires: %s\n", exp.Local().Format("2006-01-02 15:04:05"))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address (prompted if omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted if omitted)")
	cmd.Flags().BoolVar(&rememberMe, "remember-me", false, "Ask the API for a long-lived session")

	return cmd
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove stored tokens",
		Long:  `End the session on the server and remove local tokens. Local tokens are removed even if the server call fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			pair, err := cc.Session().Client().Store().Load()
			if err != nil {
				return fmt.Errorf("failed to load token: %w", err)
			}
			if pair == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			if err := cc.Session().Logout(cmd.Context()); err != nil {
				cc.Logger.Warn("server logout failed", "error", err)
				fmt.Fprintln(cmd.ErrOrStderr(), "Server logout failed; local credentials were removed anyway.")
			}
			return nil
		},
	}
}

func newAuthRegisterCommand() *cobra.Command {
	var (
		email        string
		displayName  string
		password     string
		agreeToTerms bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

			email, err := p.Line("Email", email)
			if err != nil {
				return err
			}
			displayName, err := p.Line("Display name", displayName)
			if err != nil {
				return err
			}
			confirm := password
			password, err := p.Secret("Password", password)
			if err != nil {
				return err
			}
			confirm, err = p.Secret("Confirm password", confirm)
			if err != nil {
				return err
			}
			if !agreeToTerms {
				if agreeToTerms, err = p.Confirm("Do you agree to the terms of service?"); err != nil {
					return err
				}
			}

			resp, err := cc.Session().Register(cmd.Context(), client.RegisterRequest{
				Email:           email,
				Password:        password,
				ConfirmPassword: confirm,
				DisplayName:     displayName,
				AgreeToTerms:    agreeToTerms,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Run 'gatekeeper auth login' to sign in.\n", resp.User.Email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	cmd.Flags().StringVar(&displayName, "display-name", "", "Display name (2-50 characters)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted twice if omitted)")
	cmd.Flags().BoolVar(&agreeToTerms, "agree-to-terms", false, "Accept the terms of service")

	return cmd
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			sess := cc.Session()

			if err := sess.Restore(cmd.Context()); err != nil {
				return err
			}
			pair, err := sess.Client().Store().Load()
			if err != nil {
				return fmt.Errorf("failed to load token: %w", err)
			}

			return printMarkdown(cmd.OutOrStdout(), cc,
				statusMarkdown(cc.ContextName, sess.State(), pair, time.Now()))
		},
	}
}

// statusMarkdown describes the session for `auth status`
func statusMarkdown(contextName string, st session.State, pair *tokens.Pair, now time.Time) string {
	var b strings.Builder
	if !st.Authenticated || st.User == nil {
		fmt.Fprintf(&b, "# Not logged in\n\nContext: `%s`\n", contextName)
		return b.String()
	}

	fmt.Fprintf(&b, "# %s\n\n", st.User.DisplayName)
	fmt.Fprintf(&b, "- **Email:** %s\n", st.User.Email)
	fmt.Fprintf(&b, "- **User ID:** `%s`\n", st.User.ID)
	if len(st.User.Roles) > 0 {
		fmt.Fprintf(&b, "- **Roles:** %s\n", strings.Join(st.User.Roles, ", "))
	}
	fmt.Fprintf(&b, "- **Context:** `%s`\n", contextName)

	switch {
	case pair == nil:
	case pair.ServerManaged:
		b.WriteString("- **Session:** server-managed cookie\n")
	default:
		exp := tokenExpiry(pair)
		if exp.IsZero() {
			b.WriteString("- **Token expires:** unknown\n")
			break
		}
		fmt.Fprintf(&b, "- **Token expires:** %s\n", exp.Local().Format("2006-01-02 15:04:05 MST"))
		if now.Before(exp) {
			fmt.Fprintf(&b, "\n✓ Valid for %s\n", formatDuration(exp.Sub(now)))
		} else {
			fmt.Fprintf(&b, "\n⚠ Token expired %s ago. Run `gatekeeper auth refresh`.\n", formatDuration(now.Sub(exp)))
		}
	}
	return b.String()
}

// tokenExpiry is the stored expiry, or the JWT exp claim when none was stored
func tokenExpiry(pair *tokens.Pair) time.Time {
	if exp := pair.Expiry(); !exp.IsZero() {
		return exp
	}
	exp, err := tokens.DecodeExpiry(pair.AccessToken)
	if err != nil {
		return time.Time{}
	}
	return exp
}

func newAuthTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Display the current access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := getCliContext(cmd).Session().Client().Store().Load()
			if err != nil {
				return fmt.Errorf("failed to load token: %w", err)
			}
			if pair == nil {
				return fmt.Errorf("not logged in: %w", tokens.ErrNoToken)
			}
			if pair.ServerManaged {
				return fmt.Errorf("the session is held in an HttpOnly cookie; no token is available")
			}
			fmt.Fprintln(cmd.OutOrStdout(), pair.AccessToken)
			return nil
		},
	}
}

func newAuthRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := getCliContext(cmd).Session()
			if err := sess.Refresh(cmd.Context()); err != nil {
				if errors.Is(err, session.ErrNotAuthenticated) {
					return fmt.Errorf("not logged in")
				}
				return err
			}

			pair, err := sess.Client().Store().Load()
			if err != nil || pair == nil || pair.ServerManaged {
				fmt.Fprintln(cmd.OutOrStdout(), "Token refreshed")
				return nil
			}
			if exp := tokenExpiry(pair); !exp.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), "Token refreshed, valid for %s\n", formatDuration(time.Until(exp)))
			}
			return nil
		},
	}
}

func newAuthWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow sign-in and sign-out across processes",
		Long: `Watch the credentials file of the current context and report when another
process signs in or out. Requires the file storage backend. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			med := cc.Invocation.Medium
			if med == nil || med.file == nil {
				return fmt.Errorf("auth watch requires the file storage backend")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchSession(ctx, cc, cmd)
		},
	}
}

func watchSession(ctx context.Context, cc *CliContext, cmd *cobra.Command) error {
	sess := cc.Session()
	out := cmd.OutOrStdout()

	if err := sess.Restore(ctx); err != nil {
		cc.Logger.Warn("initial restore failed", "error", err)
	}
	report := func(st session.State) {
		stamp := time.Now().Format("15:04:05")
		if st.Authenticated && st.User != nil {
			fmt.Fprintf(out, "%s signed in as %s\n", stamp, st.User.Email)
		} else {
			fmt.Fprintf(out, "%s signed out\n", stamp)
		}
	}
	report(sess.State())

	cancel := sess.OnChange(report)
	defer cancel()

	if err := sess.WatchStore(ctx, cc.Invocation.Medium.file); err != nil {
		return err
	}
	fmt.Fprintf(out, "Watching %s\n", cc.Invocation.Medium.file.Path())
	<-ctx.Done()
	return nil
}
