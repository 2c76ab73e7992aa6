package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute builds and runs the cryptolake root command against ctx,
// which is cancelled on SIGINT/SIGTERM.
func Execute(ctx context.Context) error {
	root := &cobra.Command{Use: "cryptolake", Short: "Crypto market data lake: ingest, aggregate, fetch, and report"}
	root.PersistentFlags().String("config", "config.yaml", "path to the YAML config file")
	root.AddCommand(runCmd(ctx))
	root.AddCommand(healthCmd())
	root.AddCommand(versionCmd())
	log.Info().Msg("cryptolake starting")
	return root.ExecuteContext(ctx)
}
