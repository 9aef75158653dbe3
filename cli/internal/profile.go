package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/gatekeeper/internal/client"
	"github.com/devilmonastery/gatekeeper/internal/session"
)

func newProfileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your profile",
	}

	cmd.AddCommand(newProfileShowCommand())
	cmd.AddCommand(newProfileUpdateCommand())

	return cmd
}

func newProfileShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the signed-in user's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			sess := cc.Session()

			if err := sess.Restore(cmd.Context()); err != nil {
				return err
			}
			st := sess.State()
			if !st.Authenticated || st.User == nil {
				return fmt.Errorf("not logged in")
			}
			return printMarkdown(cmd.OutOrStdout(), cc, profileMarkdown(st.User))
		},
	}
}

func profileMarkdown(u *client.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", u.DisplayName)
	fmt.Fprintf(&b, "| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Email | %s |\n", u.Email)
	fmt.Fprintf(&b, "| ID | `%s` |\n", u.ID)
	if u.AvatarURL != "" {
		fmt.Fprintf(&b, "| Avatar | %s |\n", u.AvatarURL)
	}
	if len(u.Roles) > 0 {
		fmt.Fprintf(&b, "| Roles | %s |\n", strings.Join(u.Roles, ", "))
	}
	if u.LastLoginAt != nil {
		fmt.Fprintf(&b, "| Last login | %s |\n", u.LastLoginAt.Local().Format("2006-01-02 15:04"))
	}
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "| Member since | %s |\n", u.CreatedAt.Local().Format("2006-01-02"))
	}
	return b.String()
}

func newProfileUpdateCommand() *cobra.Command {
	var update client.ProfileUpdate

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change your display name or avatar",
		Example: `  gatekeeper profile update --display-name "Ada Lovelace"
  gatekeeper profile update --avatar-url https://cdn.example.com/ada.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			user, err := cc.Session().UpdateProfile(cmd.Context(), update)
			if errors.Is(err, session.ErrNothingToUpdate) {
				return fmt.Errorf("nothing to update: pass --display-name and/or --avatar-url")
			}
			if err != nil {
				return err
			}
			return printMarkdown(cmd.OutOrStdout(), cc, profileMarkdown(user))
		},
	}

	cmd.Flags().StringVar(&update.DisplayName, "display-name", "", "New display name (2-50 characters)")
	cmd.Flags().StringVar(&update.AvatarURL, "avatar-url", "", "New avatar URL")

	return cmd
}
