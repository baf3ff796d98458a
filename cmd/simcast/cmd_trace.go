package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/simcast/internal/store"
)

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect stored execution traces",
	}

	cmd.AddCommand(newTraceListCmd())
	cmd.AddCommand(newTraceShowCmd())
	cmd.AddCommand(newTraceExportCmd())

	return cmd
}

func newTraceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored traces",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			_, dataDir, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(dataDir)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			traces, err := st.ListTraces(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"traces": traces,
					"count":  len(traces),
				})
			}

			if len(traces) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No traces stored yet.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored traces (%d):\n", len(traces))
			for _, info := range traces {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  seed=%d  ticks=%d  %s\n",
					info.RunID, info.Seed, info.Ticks, info.StoredAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newTraceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one trace tick by tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			_, dataDir, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(dataDir)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			trace, err := st.GetTrace(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(trace)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Trace %s (seed %d, %d ticks)\n", trace.RunID, trace.Seed, trace.TicksExecuted())
			fmt.Fprintln(out, "  tick  sampled  errors  events  elapsed_ms")
			for _, tr := range trace.TickData {
				fmt.Fprintf(out, "  %4d  %7d  %6d  %6d  %10.2f\n",
					tr.Tick, tr.SampledCount, len(tr.Errors), len(tr.EventsApplied), tr.ElapsedMs)
			}

			var stageTotal uint64
			for _, n := range trace.Counters.StageInvocations {
				stageTotal += n
			}
			fmt.Fprintf(out, "Counters: %d agent steps, %d stage invocations, %d batches, %d partitions, %d backpressure events\n",
				trace.Counters.AgentSteps, stageTotal, trace.Counters.Batches,
				trace.Counters.Partitions, trace.Counters.BackpressureEvents)
			return nil
		},
	}
}

func newTraceExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a trace's tick data to Arrow IPC or JSONL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			format, _ := cmd.Flags().GetString("format")
			outPath, _ := cmd.Flags().GetString("out")

			if format != "arrow" && format != "jsonl" {
				return fmt.Errorf("invalid format: %s (must be arrow or jsonl)", format)
			}
			runID := args[0]
			if outPath == "" {
				outPath = fmt.Sprintf("%s.%s", runID, format)
			}

			_, dataDir, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(dataDir)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			trace, err := st.GetTrace(cmd.Context(), runID)
			if err != nil {
				return err
			}

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outPath, err)
			}
			defer f.Close()

			switch format {
			case "arrow":
				err = store.WriteTicksArrow(f, trace)
			case "jsonl":
				err = store.ExportTicksJSONL(f, trace)
			}
			if err != nil {
				return fmt.Errorf("failed to export trace: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"run_id": runID,
					"format": format,
					"path":   outPath,
					"ticks":  trace.TicksExecuted(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d ticks to %s\n", trace.TicksExecuted(), outPath)
			return nil
		},
	}

	cmd.Flags().String("format", "arrow", "Export format: arrow or jsonl")
	cmd.Flags().String("out", "", "Output path (default <run-id>.<format>)")

	return cmd
}
