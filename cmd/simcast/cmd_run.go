package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nvandessel/simcast/internal/config"
	"github.com/nvandessel/simcast/internal/engine"
	"github.com/nvandessel/simcast/internal/logging"
	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/population"
	"github.com/nvandessel/simcast/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a simulation run",
		Long: `Execute a simulation run and wait for its result.

The run config is a YAML document; omitted fields take defaults. Personas
come from --personas, or a synthetic population of --agents is generated
from the run's seed.

Examples:
  simcast run --config scenario.yaml --personas panel.json
  simcast run --agents 200 --max-ticks 50 --seed 7 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			personaPath, _ := cmd.Flags().GetString("personas")
			agents, _ := cmd.Flags().GetInt("agents")
			maxTicks, _ := cmd.Flags().GetInt("max-ticks")
			seed, _ := cmd.Flags().GetInt64("seed")
			tenant, _ := cmd.Flags().GetString("tenant")
			jsonOut, _ := cmd.Flags().GetBool("json")

			runCfg := config.DefaultRunConfig()
			if configPath != "" {
				loaded, err := config.LoadRunConfig(configPath)
				if err != nil {
					return err
				}
				runCfg = loaded
			}
			if maxTicks > 0 {
				runCfg.MaxTicks = maxTicks
			}
			if seed > 0 {
				runCfg.SeedConfig = models.SeedConfig{
					Strategy:    models.SeedFixed,
					PrimarySeed: uint32(seed),
				}
			}
			if err := runCfg.Validate(); err != nil {
				return err
			}

			var personas []population.PersonaRecord
			if personaPath != "" {
				loaded, err := population.LoadPersonas(personaPath)
				if err != nil {
					return err
				}
				personas = loaded
			} else {
				if agents <= 0 {
					agents = 50
				}
				synthSeed := runCfg.SeedConfig.PrimarySeed
				if synthSeed == 0 {
					synthSeed = 1
				}
				personas = population.Synthesize(agents, synthSeed)
			}

			appCfg, dataDir, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(dataDir)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			logger := logging.NewLogger(appCfg.Logging.Level, os.Stderr)
			var tickLog *logging.TickLogger
			if appCfg.Logging.TickDir != "" {
				tickLog = logging.NewTickLogger(appCfg.Logging.TickDir, appCfg.Logging.Level)
				defer tickLog.Close()
			}

			runner := engine.NewRunner(engine.Options{
				Logger:    logger,
				TickLog:   tickLog,
				Nodes:     st,
				Telemetry: st,
			})

			rc := models.RunContext{
				TenantID: tenant,
				RunID:    uuid.NewString(),
				JobID:    uuid.NewString(),
			}
			res := runner.Execute(cmd.Context(), rc, runCfg, personas)

			if jsonOut {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(res); err != nil {
					return err
				}
			} else {
				printRunResult(cmd, res, len(personas))
			}

			if res.Status != models.StatusSucceeded {
				return fmt.Errorf("run %s: %s", res.Status, res.Error)
			}
			return nil
		},
	}

	cmd.Flags().String("config", "", "Run config YAML file")
	cmd.Flags().String("personas", "", "Persona JSON or YAML file")
	cmd.Flags().Int("agents", 0, "Synthetic population size when no persona file is given (default 50)")
	cmd.Flags().Int("max-ticks", 0, "Override the run config's max ticks")
	cmd.Flags().Int64("seed", 0, "Fixed seed override")
	cmd.Flags().String("tenant", "", "Tenant the run belongs to")

	return cmd
}

func printRunResult(cmd *cobra.Command, res models.JobResult, agentCount int) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s %s in %dms (%d agents)\n", res.RunID, res.Status, res.DurationMs, agentCount)
	if res.Error != "" {
		fmt.Fprintf(out, "  Error: %s\n", res.Error)
	}
	if res.Result == nil {
		return
	}

	r := res.Result
	share := r.OutcomeDistribution[r.PrimaryOutcome]
	fmt.Fprintf(out, "  Primary outcome: %s (%.1f%% of population)\n", r.PrimaryOutcome, share*100)
	fmt.Fprintf(out, "  Confidence: [%.3f, %.3f] (%s)\n",
		r.ConfidenceInterval.Lower, r.ConfidenceInterval.Upper, r.ConfidenceInterval.Method)
	if r.StoppedEarly {
		fmt.Fprintln(out, "  Stopped early")
	}
	fmt.Fprintln(out, "  Key metrics:")
	for _, m := range r.KeyMetrics {
		fmt.Fprintf(out, "    %s: %g\n", m.Name, m.Value)
	}
}
