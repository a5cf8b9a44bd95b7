package main

import (
	"context"
	"io"

	"github.com/emperorhan/recycle-trace/internal/app"
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the dashboard for the connected account's role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			view, err := a.Dashboard.Build(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootFlags.output, view, func(w io.Writer) { writeView(w, view) })
		})
	},
}
