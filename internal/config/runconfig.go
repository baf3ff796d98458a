package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/simcast/internal/models"
)

// DefaultRunConfig returns the run configuration a bare `simcast run` uses.
// Every field validates cleanly; scenario files override what they name.
func DefaultRunConfig() models.RunConfig {
	return models.RunConfig{
		SeedConfig: models.SeedConfig{Strategy: models.SeedFixed, PrimarySeed: 1},
		MaxTicks:   100,
		TickRate:   1,
		SchedulerProfile: models.SchedulerProfile{
			BatchSize:      32,
			SamplingPolicy: models.SamplingAll,
			WorkerCount:    4,
			AvgConnections: 4,
		},
	}
}

// LoadRunConfig reads a run configuration document, layered over
// DefaultRunConfig, and validates the result. Run configs are always
// explicit files; they take no environment overrides.
func LoadRunConfig(path string) (models.RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.RunConfig{}, fmt.Errorf("reading run config: %w", err)
	}

	cfg := DefaultRunConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return models.RunConfig{}, fmt.Errorf("parsing run config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return models.RunConfig{}, err
	}
	return cfg, nil
}
