// Package cmd wires the cobra root command and its subcommands for the
// ingestor binary: "run" starts the ingestion pipeline, "analytics-backfill"
// runs the offline soft-facts catch-up, and "serve-api" starts the
// read-only query API. Every flag has a viper-bound environment override so
// the binary can be driven by either flags or env vars.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ingestor",
		Short: "xmr-ingestor: a Monero-style block-chain ingestion pipeline",
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newAnalyticsBackfillCmd())
	root.AddCommand(newServeAPICmd())

	return root
}

// bindEnv binds a flag to its environment variable override via viper, so
// both `--flag value` and the documented env var work identically.
func bindEnv(cmd *cobra.Command, flag, env string) {
	_ = viper.BindPFlag(flag, cmd.Flags().Lookup(flag))
	_ = viper.BindEnv(flag, env)
}
