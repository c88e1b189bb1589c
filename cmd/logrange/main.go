package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	version = "0.1.0"
	banner  = `
╔═══════════════════════════════════════════╗
║            logrange v%s                ║
║   Adaptive-window EVM log range fetcher   ║
╚═══════════════════════════════════════════╝
`
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "logrange",
	Short: "logrange - fault-tolerant EVM event log fetcher",
	Long: `logrange fetches every event log matching an address and topic filter over a
block range. Windows rejected by the provider are split in half, windows that
time out are retried after a wait, and the results are fed to the configured
sinks (SQLite log store, token holders file).`,
	Version:      version,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the logrange version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "logrange v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(fetchCmd, holdersCmd, schemaCmd, versionCmd)
}
