package models

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a run. Transitions are one-way:
// queued → running → one of the terminal states. Terminal runs are never
// mutated; corrections happen as a new run.
type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// SamplingPolicy selects which active agents participate in a tick.
type SamplingPolicy string

const (
	SamplingAll        SamplingPolicy = "all"
	SamplingRandom     SamplingPolicy = "random"
	SamplingStratified SamplingPolicy = "stratified"
)

// SeedStrategy controls where the base seed comes from.
type SeedStrategy string

const (
	// SeedFixed uses SeedConfig.PrimarySeed verbatim. The default, and the
	// only strategy that makes runs reproducible.
	SeedFixed SeedStrategy = "fixed"
	// SeedTime derives the seed from the wall clock at run start. For
	// exploratory runs only; the chosen seed is recorded in the trace.
	SeedTime SeedStrategy = "time"
)

// SeedConfig describes the run's base seed.
type SeedConfig struct {
	Strategy    SeedStrategy `json:"strategy" yaml:"strategy"`
	PrimarySeed uint32       `json:"primary_seed" yaml:"primary_seed"`
}

// SchedulerProfile tunes tick partitioning and dispatch.
type SchedulerProfile struct {
	BatchSize               int            `json:"batch_size" yaml:"batch_size"`
	SamplingPolicy          SamplingPolicy `json:"sampling_policy" yaml:"sampling_policy"`
	SamplingRatio           float64        `json:"sampling_ratio" yaml:"sampling_ratio"`
	BackpressureThresholdMs int64          `json:"backpressure_threshold_ms" yaml:"backpressure_threshold_ms"`
	// WorkerCount bounds batch-phase parallelism. Zero or one runs batches
	// sequentially on the coordinator goroutine.
	WorkerCount      int  `json:"worker_count" yaml:"worker_count"`
	InfluenceEnabled bool `json:"influence_enabled" yaml:"influence_enabled"`
	// AvgConnections parameterizes social graph construction when influence
	// is enabled: mean of the exponential connection-count draw.
	AvgConnections float64 `json:"avg_connections" yaml:"avg_connections"`
}

// LoggingProfile tunes trace density.
type LoggingProfile struct {
	// KeyframeInterval captures full agent snapshots every N ticks.
	// Zero disables keyframes; final states are always captured.
	KeyframeInterval int `json:"keyframe_interval" yaml:"keyframe_interval"`
	// PersistInterval flushes the partial trace to the telemetry store every
	// N ticks. Zero flushes only at run end.
	PersistInterval int `json:"persist_interval" yaml:"persist_interval"`
}

// ScenarioPatch seeds the environment and schedules external events.
type ScenarioPatch struct {
	Variables map[string]float64 `json:"variables,omitempty" yaml:"variables,omitempty"`
	Events    []ExternalEvent    `json:"events,omitempty" yaml:"events,omitempty"`
	// Modifiers multiply agent behavioral parameters at load time, keyed by
	// parameter name.
	Modifiers map[string]float64 `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
	// EventProbabilityPerTick is the chance of synthesizing one catalog
	// event per tick. Zero disables random injection.
	EventProbabilityPerTick float64 `json:"event_probability_per_tick" yaml:"event_probability_per_tick"`
}

// RuleProfile names the registered rule engine a run uses.
type RuleProfile struct {
	Name    string             `json:"name" yaml:"name"`
	Version string             `json:"version" yaml:"version"`
	Params  map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

// BacktestConfig enables the historical leakage check: any input data point
// dated after Cutoff fails the run before the first tick.
type BacktestConfig struct {
	Enabled bool      `json:"enabled" yaml:"enabled"`
	Cutoff  time.Time `json:"cutoff,omitempty" yaml:"cutoff,omitempty"`
}

// RunConfig is the immutable per-run configuration. The engine never writes
// to it after Execute begins.
type RunConfig struct {
	SeedConfig SeedConfig `json:"seed_config" yaml:"seed_config"`
	MaxTicks   int        `json:"max_ticks" yaml:"max_ticks"`
	// TickRate is the simulated duration of one tick in seconds. Purely
	// descriptive: it is recorded in the trace, never used to pace
	// execution.
	TickRate  float64 `json:"tick_rate" yaml:"tick_rate"`
	MaxAgents int     `json:"max_agents" yaml:"max_agents"`

	SchedulerProfile SchedulerProfile `json:"scheduler_profile" yaml:"scheduler_profile"`
	LoggingProfile   LoggingProfile   `json:"logging_profile" yaml:"logging_profile"`
	ScenarioPatch    ScenarioPatch    `json:"scenario_patch" yaml:"scenario_patch"`
	RuleProfile      RuleProfile      `json:"rule_profile" yaml:"rule_profile"`
	Backtest         BacktestConfig   `json:"backtest" yaml:"backtest"`

	SoftTimeoutMs int64 `json:"soft_timeout_ms" yaml:"soft_timeout_ms"`
	HardTimeoutMs int64 `json:"hard_timeout_ms" yaml:"hard_timeout_ms"`
}

// Validate checks the configuration before a run starts. All findings are
// ConfigErrors: fatal at initialization, before the tick loop.
func (c *RunConfig) Validate() error {
	if c.MaxTicks <= 0 {
		return &ConfigError{Field: "max_ticks", Reason: "must be positive"}
	}
	if c.MaxAgents < 0 {
		return &ConfigError{Field: "max_agents", Reason: "must not be negative"}
	}
	if c.SchedulerProfile.BatchSize <= 0 {
		return &ConfigError{Field: "scheduler_profile.batch_size", Reason: "must be positive"}
	}
	switch c.SchedulerProfile.SamplingPolicy {
	case SamplingAll, SamplingRandom, SamplingStratified:
	default:
		return &ConfigError{Field: "scheduler_profile.sampling_policy", Reason: "must be all, random or stratified"}
	}
	if c.SchedulerProfile.SamplingPolicy != SamplingAll {
		if c.SchedulerProfile.SamplingRatio <= 0 || c.SchedulerProfile.SamplingRatio > 1 {
			return &ConfigError{Field: "scheduler_profile.sampling_ratio", Reason: "must be in (0, 1]"}
		}
	}
	if c.SchedulerProfile.BackpressureThresholdMs < 0 {
		return &ConfigError{Field: "scheduler_profile.backpressure_threshold_ms", Reason: "must not be negative"}
	}
	if c.SchedulerProfile.WorkerCount < 0 {
		return &ConfigError{Field: "scheduler_profile.worker_count", Reason: "must not be negative"}
	}
	if c.SchedulerProfile.InfluenceEnabled && c.SchedulerProfile.AvgConnections <= 0 {
		return &ConfigError{Field: "scheduler_profile.avg_connections", Reason: "must be positive when influence is enabled"}
	}
	switch c.SeedConfig.Strategy {
	case SeedFixed, SeedTime, "":
	default:
		return &ConfigError{Field: "seed_config.strategy", Reason: "must be fixed or time"}
	}
	if c.LoggingProfile.KeyframeInterval < 0 {
		return &ConfigError{Field: "logging_profile.keyframe_interval", Reason: "must not be negative"}
	}
	if c.LoggingProfile.PersistInterval < 0 {
		return &ConfigError{Field: "logging_profile.persist_interval", Reason: "must not be negative"}
	}
	if p := c.ScenarioPatch.EventProbabilityPerTick; p < 0 || p > 1 {
		return &ConfigError{Field: "scenario_patch.event_probability_per_tick", Reason: "must be in [0, 1]"}
	}
	for i, ev := range c.ScenarioPatch.Events {
		if err := ev.Validate(); err != nil {
			return &ConfigError{Field: "scenario_patch.events", Reason: fmt.Sprintf("event %d: %v", i, err)}
		}
	}
	if c.Backtest.Enabled && c.Backtest.Cutoff.IsZero() {
		return &ConfigError{Field: "backtest.cutoff", Reason: "required when backtest is enabled"}
	}
	if c.SoftTimeoutMs < 0 || c.HardTimeoutMs < 0 {
		return &ConfigError{Field: "timeouts", Reason: "must not be negative"}
	}
	if c.SoftTimeoutMs > 0 && c.HardTimeoutMs > 0 && c.SoftTimeoutMs > c.HardTimeoutMs {
		return &ConfigError{Field: "soft_timeout_ms", Reason: "must not exceed hard_timeout_ms"}
	}
	return nil
}

// RunContext identifies the tenant, run and job a work item belongs to. The
// orchestrator supplies it; the engine threads it through to storage.
type RunContext struct {
	TenantID string `json:"tenant_id"`
	RunID    string `json:"run_id"`
	JobID    string `json:"job_id"`
}

// JobResult is what Execute hands back to the orchestrator.
type JobResult struct {
	RunID       string             `json:"run_id"`
	JobID       string             `json:"job_id,omitempty"`
	Status      RunStatus          `json:"status"`
	Result      *AggregatedOutcome `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	DurationMs  int64              `json:"duration_ms"`
}
