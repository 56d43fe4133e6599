package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/identkit/identcli/api"
	"github.com/identkit/identcli/export"
	"github.com/identkit/identcli/internal/utils"
)

func newAdminCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "User and audit-log oversight (admin role required)",
	}
	cmd.AddCommand(
		newAdminUsersCommand(a),
		newAdminUserCommand(a),
		newAdminSetStatusCommand(a),
		newAdminSetAdminCommand(a),
		newAdminAuditLogsCommand(a),
		newAdminStatsCommand(a),
	)
	return cmd
}

func newAdminUsersCommand(a *app) *cobra.Command {
	var query api.ListUsersQuery
	var status string
	var emailVerified, twoFactor bool

	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			query.Status = api.UserStatus(status)
			if cmd.Flags().Changed("email-verified") {
				query.EmailVerified = utils.Ptr(emailVerified)
			}
			if cmd.Flags().Changed("two-factor") {
				query.TwoFactorEnabled = utils.Ptr(twoFactor)
			}
			page, err := a.client().ListUsers(cmd.Context(), query)
			if err != nil {
				return err
			}
			return printJSON(page)
		},
	}
	cmd.Flags().IntVar(&query.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&query.Limit, "limit", 20, "Page size")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&query.Q, "q", "", "Free-text search")
	cmd.Flags().BoolVar(&emailVerified, "email-verified", false, "Filter by email verification")
	cmd.Flags().BoolVar(&twoFactor, "two-factor", false, "Filter by two-factor enrolment")
	cmd.Flags().StringVar(&query.From, "from", "", "Created-at lower bound (RFC 3339)")
	cmd.Flags().StringVar(&query.To, "to", "", "Created-at upper bound (RFC 3339)")
	return cmd
}

func newAdminUserCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "user <user-id>",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.client().GetUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(user)
		},
	}
}

func newAdminSetStatusCommand(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <user-id>",
		Short: "Move a user to a new lifecycle status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.client().UpdateUserStatus(cmd.Context(), args[0], api.UpdateUserStatusRequest{
				Status: api.UserStatus(status),
			})
			if err != nil {
				return err
			}
			fmt.Println("Status updated.")
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "active, inactive, suspended or pending_verification")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newAdminSetAdminCommand(a *app) *cobra.Command {
	var isAdmin bool
	cmd := &cobra.Command{
		Use:   "set-admin <user-id>",
		Short: "Grant or revoke the admin role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.client().UpdateUserAdmin(cmd.Context(), args[0], api.UpdateUserAdminRequest{
				IsAdmin: isAdmin,
			})
			if err != nil {
				return err
			}
			fmt.Println("Admin flag updated.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "Grant (true) or revoke (false)")
	return cmd
}

func newAdminAuditLogsCommand(a *app) *cobra.Command {
	var query api.ListAuditLogsQuery
	var success bool
	var csvOut string

	cmd := &cobra.Command{
		Use:   "audit-logs",
		Short: "List the audit trail, optionally exporting CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("success") {
				query.Success = utils.Ptr(success)
			}
			page, err := a.client().ListAuditLogs(cmd.Context(), query)
			if err != nil {
				return err
			}
			if csvOut == "" {
				return printJSON(page)
			}
			out, err := os.Create(csvOut)
			if err != nil {
				return err
			}
			defer out.Close()
			if err := export.AuditLogsCSV(out, page.Items); err != nil {
				return err
			}
			fmt.Printf("Wrote %d entries to %s\n", len(page.Items), csvOut)
			return nil
		},
	}
	cmd.Flags().IntVar(&query.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&query.Limit, "limit", 50, "Page size")
	cmd.Flags().StringVar(&query.UserID, "user", "", "Filter by user ID")
	cmd.Flags().StringVar(&query.Action, "action", "", "Filter by action")
	cmd.Flags().BoolVar(&success, "success", false, "Filter by outcome")
	cmd.Flags().StringVar(&query.From, "from", "", "Created-at lower bound (RFC 3339)")
	cmd.Flags().StringVar(&query.To, "to", "", "Created-at upper bound (RFC 3339)")
	cmd.Flags().StringVar(&csvOut, "csv", "", "Write the page as CSV to this file")
	return cmd
}

func newAdminStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := a.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}
