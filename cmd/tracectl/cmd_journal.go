package main

import (
	"context"
	"fmt"
	"io"

	"github.com/emperorhan/recycle-trace/internal/app"
	"github.com/spf13/cobra"
)

var journalFlags struct {
	limit int
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recently submitted transactions (needs DB_URL)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if journalFlags.limit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			entries, err := a.Journal.Recent(ctx, journalFlags.limit)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootFlags.output, entries, func(w io.Writer) { writeJournal(w, entries) })
		})
	},
}

func init() {
	journalCmd.Flags().IntVar(&journalFlags.limit, "limit", 20, "number of entries")
}
