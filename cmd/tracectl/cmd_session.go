package main

import (
	"context"
	"fmt"
	"io"

	"github.com/emperorhan/recycle-trace/internal/app"
	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/spf13/cobra"
)

type sessionOutput struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	ChainID   uint64 `json:"chain_id,omitempty"`
	Network   string `json:"network,omitempty"`
}

func sessionState(a *app.App) sessionOutput {
	addr, ok := a.Session.Address()
	if !ok {
		return sessionOutput{}
	}
	chainID := a.Session.ChainID()
	return sessionOutput{
		Connected: true,
		Address:   addr.Hex(),
		ChainID:   chainID,
		Network:   model.NetworkForChainID(chainID).String(),
	}
}

func writeSession(w io.Writer, s sessionOutput) {
	if !s.Connected {
		fmt.Fprintln(w, "Not connected.")
		return
	}
	fmt.Fprintf(w, "Address:\t%s\n", s.Address)
	fmt.Fprintf(w, "Network:\t%s (%d)\n", s.Network, s.ChainID)
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the wallet endpoint and remember the account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if _, err := a.Session.Connect(ctx); err != nil {
				return err
			}
			s := sessionState(a)
			return render(cmd.OutOrStdout(), rootFlags.output, s, func(w io.Writer) { writeSession(w, s) })
		})
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the connected account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Session.Disconnect(ctx); err != nil {
				return err
			}
			s := sessionState(a)
			return render(cmd.OutOrStdout(), rootFlags.output, s, func(w io.Writer) { writeSession(w, s) })
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the connected account and its role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			acct, err := a.Accounts.CurrentAccount(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootFlags.output, acct, func(w io.Writer) { writeAccount(w, acct) })
		})
	},
}
