package models

// AgentTickSummary is one agent's contribution to a tick: what it decided
// and what it signalled. Agents that errored or abstained from deciding have
// no summary. Terminate asks the pool to retire the agent at tick end.
type AgentTickSummary struct {
	AgentID       string `json:"agent_id"`
	ActionType    string `json:"action_type"`
	OutcomeSignal string `json:"outcome_signal,omitempty"`
	Terminate     bool   `json:"terminate,omitempty"`
}

// TickResult is the append-only record of one tick. The sequence of
// TickResults forms the execution trace.
type TickResult struct {
	Tick          int                `json:"tick"`
	SampledCount  int                `json:"sampled_count"`
	Summaries     []AgentTickSummary `json:"summaries,omitempty"`
	Errors        []AgentStageError  `json:"errors,omitempty"`
	EventsApplied []string           `json:"events_applied,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	ElapsedMs     float64            `json:"elapsed_ms"`
}

// KeyMetric is one named scalar in the final outcome.
type KeyMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ConfidenceInterval bounds the primary outcome's proportion.
type ConfidenceInterval struct {
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	Method string  `json:"method"` // "normal-approximation" or "series-variance"
}

// AggregatedOutcome is the run-level result, computed exactly once at run
// completion from the tick history and final agent states.
type AggregatedOutcome struct {
	RunID               string                        `json:"run_id"`
	PrimaryOutcome      string                        `json:"primary_outcome"`
	OutcomeDistribution map[string]float64            `json:"outcome_distribution"`
	ActionCounts        map[string]int64              `json:"action_counts,omitempty"`
	ConfidenceInterval  ConfidenceInterval            `json:"confidence_interval"`
	KeyMetrics          []KeyMetric                   `json:"key_metrics"`
	RegionalBreakdown   map[string]map[string]float64 `json:"regional_breakdown,omitempty"`
	AgeBreakdown        map[string]map[string]float64 `json:"age_breakdown,omitempty"`
	StoppedEarly        bool                          `json:"stopped_early,omitempty"`
}

// Metric returns the named key metric and whether it was present.
func (o *AggregatedOutcome) Metric(name string) (float64, bool) {
	for _, m := range o.KeyMetrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}
