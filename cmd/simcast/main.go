package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/simcast/internal/config"
)

// Overridden at release time via -ldflags "-X main.version=...".
var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "simcast",
		Short: "Simcast - deterministic population simulation",
		Long: `simcast runs batched, tick-based simulations over synthetic populations.

It executes scenario configs against persona sets, records per-tick
telemetry, and aggregates population-level outcomes per run.`,
	}

	root.PersistentFlags().Bool("json", false, "Output as JSON (for machine consumption)")
	root.PersistentFlags().String("data", "", "Data directory (default ~/.simcast)")

	root.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newValidateCmd(),
		newTraceCmd(),
		newArchiveCmd(),
		newMCPServerCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the simcast version",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "simcast version %s\n", version)
		},
	}
}

// loadAppConfig reads the app config and resolves the data directory,
// honoring the --data flag over config and environment.
func loadAppConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	dataDir, _ := cmd.Flags().GetString("data")
	if dataDir == "" {
		dataDir, err = cfg.Storage.ResolvedDir()
		if err != nil {
			return nil, "", err
		}
	}
	return cfg, dataDir, nil
}
