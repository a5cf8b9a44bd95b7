package main

import (
	"context"
	"io"
	"strings"

	"github.com/emperorhan/recycle-trace/internal/app"
	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/emperorhan/recycle-trace/internal/traceability"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "List, create and move recycling tokens",
}

var tokenListFlags struct {
	owner string
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tokens (all, or held by --owner)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		owner := strings.TrimSpace(tokenListFlags.owner)
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var (
				tokens []model.Token
				err    error
			)
			switch strings.ToLower(owner) {
			case "", "all":
				tokens, err = a.Tokens.AllTokens(ctx)
			case "me":
				if _, err = ensureConnected(ctx, a); err == nil {
					tokens, err = a.Tokens.MyTokens(ctx)
				}
			default:
				addr, perr := parseAddress(owner)
				if perr != nil {
					return perr
				}
				tokens, err = a.Tokens.TokensByUser(ctx, addr)
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootFlags.output, tokens, func(w io.Writer) { writeTokens(w, tokens) })
		})
	},
}

var tokenCreateFlags struct {
	name     string
	supply   uint64
	features string
	parent   uint64
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register recyclable material as a new token (citizen)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		req := traceability.CreateTokenRequest{
			Name:            tokenCreateFlags.name,
			TotalSupply:     tokenCreateFlags.supply,
			CitizenFeatures: tokenCreateFlags.features,
			ParentID:        tokenCreateFlags.parent,
		}
		return submit(cmd, "create token", func(ctx context.Context, a *app.App) (*ledger.Receipt, error) {
			return a.Tokens.CreateToken(ctx, req)
		})
	},
}

var tokenCollectCmd = &cobra.Command{
	Use:   "collect TOKEN_ID",
	Short: "Take custody of a created token (transporter)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("token", args[0])
		if err != nil {
			return err
		}
		return submit(cmd, "collect token", func(ctx context.Context, a *app.App) (*ledger.Receipt, error) {
			return a.Tokens.CollectToken(ctx, id)
		})
	},
}

var tokenTransferFlags struct {
	to     string
	amount uint64
}

var tokenTransferCmd = &cobra.Command{
	Use:   "transfer TOKEN_ID",
	Short: "Propose handing a token over to another account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("token", args[0])
		if err != nil {
			return err
		}
		to, err := parseAddress(tokenTransferFlags.to)
		if err != nil {
			return err
		}
		return submit(cmd, "transfer", func(ctx context.Context, a *app.App) (*ledger.Receipt, error) {
			return a.Tokens.Transfer(ctx, id, to, tokenTransferFlags.amount)
		})
	},
}

var tokenProcessFlags struct {
	features string
}

var tokenProcessCmd = &cobra.Command{
	Use:   "process TOKEN_ID",
	Short: "Mark a collected token as processed (processor)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("token", args[0])
		if err != nil {
			return err
		}
		return submit(cmd, "process token", func(ctx context.Context, a *app.App) (*ledger.Receipt, error) {
			return a.Tokens.ProcessToken(ctx, id, tokenProcessFlags.features)
		})
	},
}

var tokenRewardFlags struct {
	amount   uint64
	features string
}

var tokenRewardCmd = &cobra.Command{
	Use:   "reward TOKEN_ID",
	Short: "Reward the citizen behind a processed token (reward authority)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("token", args[0])
		if err != nil {
			return err
		}
		return submit(cmd, "reward token", func(ctx context.Context, a *app.App) (*ledger.Receipt, error) {
			return a.Tokens.RewardToken(ctx, id, tokenRewardFlags.amount, tokenRewardFlags.features)
		})
	},
}

var tokenHistoryCmd = &cobra.Command{
	Use:   "history TOKEN_ID",
	Short: "Show a token's custody changes in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("token", args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			entries, err := a.Tokens.TokenHistory(ctx, id)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootFlags.output, entries, func(w io.Writer) { writeHistory(w, entries) })
		})
	},
}

var tokenCollectedCmd = &cobra.Command{
	Use:   "collected",
	Short: "List tokens that have been collected",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			tokens, err := a.Tokens.CollectedTokens(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootFlags.output, tokens, func(w io.Writer) { writeTokens(w, tokens) })
		})
	},
}

var tokenProcessedCmd = &cobra.Command{
	Use:   "processed",
	Short: "List tokens that have been processed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			tokens, err := a.Tokens.ProcessedTokens(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootFlags.output, tokens, func(w io.Writer) { writeTokens(w, tokens) })
		})
	},
}

var tokenRewardedFlags struct {
	citizen string
}

var tokenRewardedCmd = &cobra.Command{
	Use:   "rewarded",
	Short: "List rewards, optionally for one --citizen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var (
				rewards []traceability.RewardedToken
				err     error
			)
			if tokenRewardedFlags.citizen == "" {
				rewards, err = a.Tokens.RewardedTokens(ctx)
			} else {
				citizen, perr := parseAddress(tokenRewardedFlags.citizen)
				if perr != nil {
					return perr
				}
				rewards, err = a.Tokens.RewardedTokensByUser(ctx, citizen)
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootFlags.output, rewards, func(w io.Writer) { writeRewarded(w, rewards) })
		})
	},
}

// submit connects if needed, runs one mutation and prints its receipt.
func submit(cmd *cobra.Command, action string, fn func(ctx context.Context, a *app.App) (*ledger.Receipt, error)) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if _, err := ensureConnected(ctx, a); err != nil {
			return err
		}
		rcpt, err := fn(ctx, a)
		if err != nil {
			return err
		}
		out := newReceiptOutput(rcpt)
		return render(cmd.OutOrStdout(), rootFlags.output, out, func(w io.Writer) { writeReceipt(w, action, out) })
	})
}

func init() {
	tokenListCmd.Flags().StringVar(&tokenListFlags.owner, "owner", "", `holder address, "me", or "all"`)

	f := tokenCreateCmd.Flags()
	f.StringVar(&tokenCreateFlags.name, "name", "", "material name (required)")
	f.Uint64Var(&tokenCreateFlags.supply, "supply", 0, "total supply in units")
	f.StringVar(&tokenCreateFlags.features, "features", "", `citizen features as JSON, default "{}"`)
	f.Uint64Var(&tokenCreateFlags.parent, "parent", 0, "parent token id, 0 for none")
	_ = tokenCreateCmd.MarkFlagRequired("name")

	f = tokenTransferCmd.Flags()
	f.StringVar(&tokenTransferFlags.to, "to", "", "recipient address (required)")
	f.Uint64Var(&tokenTransferFlags.amount, "amount", 0, "units to transfer")
	_ = tokenTransferCmd.MarkFlagRequired("to")

	tokenProcessCmd.Flags().StringVar(&tokenProcessFlags.features, "features", "", "processing features as JSON")

	f = tokenRewardCmd.Flags()
	f.Uint64Var(&tokenRewardFlags.amount, "amount", 0, "reward amount")
	f.StringVar(&tokenRewardFlags.features, "features", "", "reward features as JSON")

	tokenRewardedCmd.Flags().StringVar(&tokenRewardedFlags.citizen, "citizen", "", "only rewards for this citizen address")

	tokenCmd.AddCommand(
		tokenListCmd,
		tokenCreateCmd,
		tokenCollectCmd,
		tokenTransferCmd,
		tokenProcessCmd,
		tokenRewardCmd,
		tokenHistoryCmd,
		tokenCollectedCmd,
		tokenProcessedCmd,
		tokenRewardedCmd,
	)
}
