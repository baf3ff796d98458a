package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/simcast/internal/config"
	"github.com/nvandessel/simcast/internal/population"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a run config without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			personaPath, _ := cmd.Flags().GetString("personas")

			runCfg, err := config.LoadRunConfig(args[0])
			if err != nil {
				if jsonOut {
					_ = json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
						"valid": false,
						"error": err.Error(),
					})
				}
				return err
			}

			personaCount := -1
			if personaPath != "" {
				personas, err := population.LoadPersonas(personaPath)
				if err != nil {
					if jsonOut {
						_ = json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
							"valid": false,
							"error": err.Error(),
						})
					}
					return err
				}
				personaCount = len(personas)
			}

			if jsonOut {
				result := map[string]any{
					"valid":     true,
					"max_ticks": runCfg.MaxTicks,
					"sampling":  string(runCfg.SchedulerProfile.SamplingPolicy),
				}
				if personaCount >= 0 {
					result["personas"] = personaCount
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (max_ticks=%d, sampling=%s)\n",
				args[0], runCfg.MaxTicks, runCfg.SchedulerProfile.SamplingPolicy)
			if personaCount >= 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s holds %d personas\n", personaPath, personaCount)
			}
			return nil
		},
	}

	cmd.Flags().String("personas", "", "Also validate a persona file")

	return cmd
}
