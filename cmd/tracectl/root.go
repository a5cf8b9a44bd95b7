package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configFile string
	output     string
	noConnect  bool
}

var rootCmd = &cobra.Command{
	Use:   "tracectl",
	Short: "Operate the recycling traceability ledger",
	Long: "tracectl drives the access-manager and traceability contracts:\n" +
		"role requests and approvals, token custody from citizen to reward,\n" +
		"and the per-role dashboards, from the CLI or over HTTP.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		switch rootFlags.output {
		case outputText, outputJSON:
			return nil
		default:
			return fmt.Errorf("unknown output format %q (want %s or %s)", rootFlags.output, outputText, outputJSON)
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configFile, "config", "", "YAML config file (overrides $TRACECTL_CONFIG)")
	pf.StringVarP(&rootFlags.output, "output", "o", outputText, "output format: text or json")
	pf.BoolVar(&rootFlags.noConnect, "no-connect", false, "fail instead of connecting when no session is restored")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
