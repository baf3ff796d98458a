package mcp

// RunInput defines parameters for the simcast_run tool.
type RunInput struct {
	ConfigPath  string `json:"config_path,omitempty" jsonschema:"Path to a run config YAML file (defaults apply when omitted)"`
	PersonaPath string `json:"persona_path,omitempty" jsonschema:"Path to a persona JSON or YAML file"`
	AgentCount  int    `json:"agent_count,omitempty" jsonschema:"Number of synthetic personas when no persona file is given (default: 50)"`
	MaxTicks    int    `json:"max_ticks,omitempty" jsonschema:"Override for the maximum tick count"`
	Seed        int64  `json:"seed,omitempty" jsonschema:"Fixed seed override for reproducible runs"`
	TenantID    string `json:"tenant_id,omitempty" jsonschema:"Tenant the run belongs to"`
	Wait        bool   `json:"wait,omitempty" jsonschema:"Block until the run reaches a terminal state (default: false)"`
}

// RunOutput defines the response for the simcast_run tool.
type RunOutput struct {
	RunID      string `json:"run_id" jsonschema:"Identifier of the accepted run"`
	JobID      string `json:"job_id" jsonschema:"Identifier of the scheduled job"`
	Status     string `json:"status" jsonschema:"Run status at return time"`
	Error      string `json:"error,omitempty" jsonschema:"Terminal error when the run failed"`
	DurationMs int64  `json:"duration_ms,omitempty" jsonschema:"Wall-clock duration for completed runs"`
	Message    string `json:"message" jsonschema:"Human-readable result message"`
}

// StatusInput defines parameters for the simcast_status tool.
type StatusInput struct {
	RunID string `json:"run_id" jsonschema:"Identifier of the run to inspect"`
}

// StatusOutput defines the response for the simcast_status tool.
type StatusOutput struct {
	RunID      string `json:"run_id" jsonschema:"Identifier of the run"`
	JobID      string `json:"job_id,omitempty" jsonschema:"Identifier of the scheduled job"`
	Status     string `json:"status" jsonschema:"Current run status: queued, running, succeeded, failed or cancelled"`
	Error      string `json:"error,omitempty" jsonschema:"Terminal error when the run failed"`
	DurationMs int64  `json:"duration_ms,omitempty" jsonschema:"Wall-clock duration for completed runs"`
	HasOutcome bool   `json:"has_outcome" jsonschema:"Whether an aggregated outcome is available via simcast_outcome"`
}

// CancelInput defines parameters for the simcast_cancel tool.
type CancelInput struct {
	RunID string `json:"run_id" jsonschema:"Identifier of the run to cancel"`
}

// CancelOutput defines the response for the simcast_cancel tool.
type CancelOutput struct {
	RunID   string `json:"run_id" jsonschema:"Identifier of the run"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}

// OutcomeInput defines parameters for the simcast_outcome tool.
type OutcomeInput struct {
	RunID string `json:"run_id" jsonschema:"Identifier of the completed run"`
}

// OutcomeMetric is one named scalar in an outcome report.
type OutcomeMetric struct {
	Name  string  `json:"name" jsonschema:"Metric name"`
	Value float64 `json:"value" jsonschema:"Metric value"`
}

// OutcomeOutput defines the response for the simcast_outcome tool.
type OutcomeOutput struct {
	RunID               string             `json:"run_id" jsonschema:"Identifier of the run"`
	PrimaryOutcome      string             `json:"primary_outcome" jsonschema:"Most supported outcome across the population"`
	OutcomeDistribution map[string]float64 `json:"outcome_distribution" jsonschema:"Share of the population per outcome"`
	ConfidenceLower     float64            `json:"confidence_lower" jsonschema:"Lower bound of the primary outcome's confidence interval"`
	ConfidenceUpper     float64            `json:"confidence_upper" jsonschema:"Upper bound of the primary outcome's confidence interval"`
	ConfidenceMethod    string             `json:"confidence_method" jsonschema:"Interval estimation method"`
	KeyMetrics          []OutcomeMetric    `json:"key_metrics" jsonschema:"Run-level metrics such as ticks_executed and final_active_ratio"`
	StoppedEarly        bool               `json:"stopped_early" jsonschema:"Whether the run stopped before max_ticks"`
}
