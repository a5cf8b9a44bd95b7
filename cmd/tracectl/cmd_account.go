package main

import (
	"context"
	"fmt"
	"io"

	"github.com/emperorhan/recycle-trace/internal/app"
	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Inspect accounts and manage role requests",
}

var accountShowCmd = &cobra.Command{
	Use:   "show ADDRESS",
	Short: "Show any address's role and status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			acct, err := a.Accounts.AccountInfo(ctx, addr)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootFlags.output, acct, func(w io.Writer) { writeAccount(w, acct) })
		})
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			accounts, err := a.Accounts.ListAccounts(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootFlags.output, accounts, func(w io.Writer) { writeAccounts(w, accounts) })
		})
	},
}

var accountRequestRoleCmd = &cobra.Command{
	Use:   "request-role ROLE",
	Short: "Request a role for the connected account",
	Long: fmt.Sprintf("Request one of %s, %s, %s or %s for the connected account.\n"+
		"The request stays pending until an administrator approves it.",
		model.RoleCitizen, model.RoleTransporter, model.RoleProcessor, model.RoleRewardAuthority),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := model.ParseRole(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if _, err := ensureConnected(ctx, a); err != nil {
				return err
			}
			if err := a.Accounts.RequestRole(ctx, role.String()); err != nil {
				return err
			}
			acct, err := a.Accounts.Reload(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootFlags.output, acct, func(w io.Writer) {
				fmt.Fprintf(w, "Requested %s.\n", role.Label())
				writeAccount(w, acct)
			})
		})
	},
}

var accountApproveCmd = &cobra.Command{
	Use:   "approve ADDRESS",
	Short: "Approve a pending role request (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideAccount(cmd, args[0], true)
	},
}

var accountRejectCmd = &cobra.Command{
	Use:   "reject ADDRESS",
	Short: "Reject a pending role request (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideAccount(cmd, args[0], false)
	},
}

func decideAccount(cmd *cobra.Command, raw string, approve bool) error {
	addr, err := parseAddress(raw)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if _, err := ensureConnected(ctx, a); err != nil {
			return err
		}
		decide := a.Accounts.RejectAccount
		if approve {
			decide = a.Accounts.ApproveAccount
		}
		if err := decide(ctx, addr); err != nil {
			return err
		}
		acct, err := a.Accounts.AccountInfo(ctx, addr)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), rootFlags.output, acct, func(w io.Writer) { writeAccount(w, acct) })
	})
}

func init() {
	accountCmd.AddCommand(accountShowCmd, accountListCmd, accountRequestRoleCmd, accountApproveCmd, accountRejectCmd)
}
