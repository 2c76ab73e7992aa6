package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tradewithmeai/cryptolake/internal/clock"
	"github.com/tradewithmeai/cryptolake/internal/config"
)

// healthCmd prints the most recently written heartbeat document for a
// one-shot status check, without starting any component itself.
func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the last heartbeat written by a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("fatal config: %w", err)
			}

			raw, err := os.ReadFile(clock.HealthHeartbeatPath(cfg.BasePath))
			if err != nil {
				return fmt.Errorf("read heartbeat: %w", err)
			}

			var pretty map[string]interface{}
			if err := json.Unmarshal(raw, &pretty); err != nil {
				return fmt.Errorf("parse heartbeat: %w", err)
			}
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
