package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/identkit/identcli/api"
)

func newRegisterCommand(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := a.client().Register(cmd.Context(), api.RegisterRequest{Email: email, Password: password})
			if err != nil {
				return err
			}
			fmt.Println("Registered. Check your inbox for the verification email.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCommand(a *app) *cobra.Command {
	var email, password, code, backupCode, provider string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email/password or print a federated login URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if provider != "" {
				state := uuid.New().String()
				loginURL, err := a.client().OAuthLoginURL(provider, state, "")
				if err != nil {
					return err
				}
				fmt.Println("Open this URL in a browser to continue:")
				fmt.Println(loginURL)
				return nil
			}
			result, err := a.manager.Login(cmd.Context(), api.LoginRequest{
				Email:      email,
				Password:   password,
				Code:       code,
				BackupCode: backupCode,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Signed in as %s\n", result.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().StringVar(&code, "code", "", "TOTP code when two-factor is enabled")
	cmd.Flags().StringVar(&backupCode, "backup-code", "", "Backup code when the TOTP device is unavailable")
	cmd.Flags().StringVar(&provider, "provider", "", "Federated provider: google, microsoft, github or linkedin")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.manager.Logout(cmd.Context())
			fmt.Println("Signed out.")
			return nil
		},
	}
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.state.Authenticated() {
				fmt.Println("Not signed in.")
				return nil
			}
			user, err := a.manager.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(user)
		},
	}
}

func newVerifyEmailCommand(a *app) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "verify-email",
		Short: "Confirm an email address with the emailed token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client().VerifyEmail(cmd.Context(), api.VerifyEmailRequest{Token: token}); err != nil {
				return err
			}
			fmt.Println("Email verified.")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Verification token")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newResendVerificationCommand(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resend-verification",
		Short: "Request a fresh verification email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client().ResendVerification(cmd.Context(), api.ResendVerificationRequest{Email: email}); err != nil {
				return err
			}
			fmt.Println("Verification email sent.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newPasswordCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Password recovery and rotation",
	}
	cmd.AddCommand(newForgotPasswordCommand(a), newResetPasswordCommand(a), newChangePasswordCommand(a))
	return cmd
}

func newForgotPasswordCommand(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot",
		Short: "Start password recovery",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client().ForgotPassword(cmd.Context(), api.ForgotPasswordRequest{Email: email}); err != nil {
				return err
			}
			fmt.Println("Recovery email sent.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newResetPasswordCommand(a *app) *cobra.Command {
	var resetToken, newPassword string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Complete password recovery with the emailed token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := a.client().ResetPassword(cmd.Context(), api.ResetPasswordRequest{
				Token:       resetToken,
				NewPassword: newPassword,
			})
			if err != nil {
				return err
			}
			fmt.Println("Password reset.")
			return nil
		},
	}
	cmd.Flags().StringVar(&resetToken, "token", "", "Reset token")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "New password")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("new-password")
	return cmd
}

func newChangePasswordCommand(a *app) *cobra.Command {
	var currentPassword, newPassword string
	cmd := &cobra.Command{
		Use:   "change",
		Short: "Rotate the password of the signed-in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := a.client().ChangePassword(cmd.Context(), api.ChangePasswordRequest{
				CurrentPassword: currentPassword,
				NewPassword:     newPassword,
			})
			if api.IsStatus(err, 401) {
				// The session is fine; the supplied current password
				// was rejected.
				return fmt.Errorf("current password incorrect")
			}
			if err != nil {
				return err
			}
			fmt.Println("Password changed.")
			return nil
		},
	}
	cmd.Flags().StringVar(&currentPassword, "current", "", "Current password")
	cmd.Flags().StringVar(&newPassword, "new", "", "New password")
	_ = cmd.MarkFlagRequired("current")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}
