package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/gatekeeper/internal/client"
)

func newPasswordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Reset or change your password",
	}

	cmd.AddCommand(newPasswordResetRequestCommand())
	cmd.AddCommand(newPasswordResetConfirmCommand())
	cmd.AddCommand(newPasswordChangeCommand())

	return cmd
}

func newPasswordResetRequestCommand() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "reset-request",
		Short: "Email yourself a password reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

			email, err := p.Line("Email", email)
			if err != nil {
				return err
			}
			_, err = cc.Session().RequestPasswordReset(cmd.Context(), email)
			return err
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address of the account")
	return cmd
}

func newPasswordResetConfirmCommand() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "reset-confirm",
		Short: "Set a new password using the token from a reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

			token, err := p.Line("Reset token", token)
			if err != nil {
				return err
			}
			password, err := p.Secret("New password", "")
			if err != nil {
				return err
			}
			confirm, err := p.Secret("Confirm new password", "")
			if err != nil {
				return err
			}

			_, err = cc.Session().ConfirmPasswordReset(cmd.Context(), client.PasswordResetConfirm{
				Token:           token,
				Password:        password,
				ConfirmPassword: confirm,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'gatekeeper auth login' to sign in with your new password.")
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Token from the reset link")
	return cmd
}

func newPasswordChangeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "change",
		Short: "Change the password of the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

			current, err := p.Secret("Current password", "")
			if err != nil {
				return err
			}
			next, err := p.Secret("New password", "")
			if err != nil {
				return err
			}
			confirm, err := p.Secret("Confirm new password", "")
			if err != nil {
				return err
			}

			return cc.Session().ChangePassword(cmd.Context(), client.ChangePasswordRequest{
				CurrentPassword:    current,
				NewPassword:        next,
				ConfirmNewPassword: confirm,
			})
		},
	}
}
