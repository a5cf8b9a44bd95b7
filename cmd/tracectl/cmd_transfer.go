package main

import (
	"context"
	"io"

	"github.com/emperorhan/recycle-trace/internal/app"
	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/spf13/cobra"
)

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "List and settle custody transfers",
}

var transferListFlags struct {
	status string
}

var transferListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transfers, optionally filtered by --status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, err := model.ParseTransferStatus(transferListFlags.status)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			transfers, err := a.Tokens.Transfers(ctx, status)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootFlags.output, transfers, func(w io.Writer) { writeTransfers(w, transfers) })
		})
	},
}

var transferAcceptCmd = &cobra.Command{
	Use:   "accept TRANSFER_ID",
	Short: "Accept a transfer addressed to you",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("transfer", args[0])
		if err != nil {
			return err
		}
		return submit(cmd, "accept transfer", func(ctx context.Context, a *app.App) (*ledger.Receipt, error) {
			return a.Tokens.AcceptTransfer(ctx, id)
		})
	},
}

var transferRejectCmd = &cobra.Command{
	Use:   "reject TRANSFER_ID",
	Short: "Reject a transfer addressed to you",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("transfer", args[0])
		if err != nil {
			return err
		}
		return submit(cmd, "reject transfer", func(ctx context.Context, a *app.App) (*ledger.Receipt, error) {
			return a.Tokens.RejectTransfer(ctx, id)
		})
	},
}

func init() {
	transferListCmd.Flags().StringVar(&transferListFlags.status, "status", "", "None, Pending, Accepted or Rejected")
	transferCmd.AddCommand(transferListCmd, transferAcceptCmd, transferRejectCmd)
}
