package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/simcast/internal/logging"
	"github.com/nvandessel/simcast/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Start the MCP server on stdio",
		Long: `Start a Model Context Protocol server exposing simulation runs as tools.

The server speaks MCP over stdin/stdout and exposes:
  simcast_run      - submit a run, optionally waiting for its result
  simcast_status   - poll a run's lifecycle state
  simcast_cancel   - cancel a queued or running run
  simcast_outcome  - fetch the aggregated outcome of a finished run

Runs execute on an internal worker pool sized by max_concurrent_runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, dataDir, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:          "simcast",
				Version:       version,
				DataDir:       dataDir,
				Workers:       appCfg.Jobs.MaxConcurrentRuns,
				QueueCapacity: appCfg.Jobs.QueueCapacity,
				Logger:        logging.NewLogger(appCfg.Logging.Level, os.Stderr),
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			return server.Run(cmd.Context())
		},
	}
}
