package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/identkit/identcli/api"
	"github.com/identkit/identcli/internal/utils"
)

func newProfileCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.client().Profile(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(user)
		},
	}
	cmd.AddCommand(newProfileUpdateCommand(a), newProfileDeleteCommand(a))
	return cmd
}

func newProfileUpdateCommand(a *app) *cobra.Command {
	var req api.UpdateProfileRequest
	fields := map[string]**string{
		"first-name":   &req.FirstName,
		"last-name":    &req.LastName,
		"display-name": &req.DisplayName,
		"avatar-url":   &req.AvatarURL,
		"phone":        &req.Phone,
		"birth-date":   &req.DateOfBirth,
		"gender":       &req.Gender,
		"locale":       &req.Locale,
		"timezone":     &req.Timezone,
	}
	values := make(map[string]*string, len(fields))

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Apply a partial profile update",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for name, target := range fields {
				if cmd.Flags().Changed(name) {
					*target = utils.Ptr(*values[name])
				}
			}
			user, err := a.client().UpdateProfile(cmd.Context(), req)
			if err != nil {
				return err
			}
			a.manager.SetUser(user)
			return printJSON(user)
		},
	}
	for name := range fields {
		values[name] = cmd.Flags().String(name, "", "Profile field "+name)
	}
	return cmd
}

func newProfileDeleteCommand(a *app) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Permanently delete the account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return fmt.Errorf("pass --yes to confirm account deletion")
			}
			if err := a.client().DeleteAccount(cmd.Context()); err != nil {
				return err
			}
			a.manager.Logout(cmd.Context())
			fmt.Println("Account deleted.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm deletion")
	return cmd
}

func newSessionsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List or revoke device sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := a.client().Sessions(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(sessions)
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <session-id>",
		Short: "Revoke one device session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().RevokeSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Session revoked.")
			return nil
		},
	}

	revokeAll := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revoke every device session except this one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client().RevokeAllSessions(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Sessions revoked.")
			return nil
		},
	}

	cmd.AddCommand(revoke, revokeAll)
	return cmd
}

func newTwoFactorCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "2fa",
		Short: "Manage two-factor authentication",
	}

	enable := &cobra.Command{
		Use:   "enable",
		Short: "Start two-factor enrolment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := a.client().Enable2FA(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	var code string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Confirm enrolment with a TOTP code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client().Verify2FA(cmd.Context(), code); err != nil {
				return err
			}
			fmt.Println("Two-factor enabled.")
			return nil
		},
	}
	verify.Flags().StringVar(&code, "code", "", "TOTP code")
	_ = verify.MarkFlagRequired("code")

	disable := &cobra.Command{
		Use:   "disable",
		Short: "Turn two-factor off",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client().Disable2FA(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Two-factor disabled.")
			return nil
		},
	}

	cmd.AddCommand(enable, verify, disable)
	return cmd
}

func newBackupCodesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup-codes",
		Short: "Regenerate two-factor backup codes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := a.client().RegenerateBackupCodes(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func newSecurityInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "security-info",
		Short: "Show the account's security posture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := a.client().SecurityInfo(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
}

func newOAuthCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Manage linked provider identities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, err := a.client().OAuthAccounts(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(accounts)
		},
	}

	unlink := &cobra.Command{
		Use:   "unlink <account-id>",
		Short: "Detach a linked provider identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().UnlinkOAuthAccount(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Account unlinked.")
			return nil
		},
	}

	cmd.AddCommand(unlink)
	return cmd
}
