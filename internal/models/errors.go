package models

import (
	"errors"
	"fmt"
	"time"
)

// AgentStageError records one agent's pipeline failure. It is agent-local:
// the agent is excluded from the tick's aggregation and the run continues.
// The struct doubles as the trace record, so it carries a plain message
// rather than a wrapped error.
type AgentStageError struct {
	AgentID string `json:"agent_id"`
	Tick    int    `json:"tick"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func (e *AgentStageError) Error() string {
	return fmt.Sprintf("agent %s tick %d stage %s: %s", e.AgentID, e.Tick, e.Stage, e.Message)
}

// RuleEngineError is fatal to the run: a failed rule invocation can leave
// agent state desynchronized, so the run stops rather than continue on it.
type RuleEngineError struct {
	RuleName string
	Tick     int
	Err      error
}

func (e *RuleEngineError) Error() string {
	return fmt.Sprintf("rule engine %s failed at tick %d: %v", e.RuleName, e.Tick, e.Err)
}

func (e *RuleEngineError) Unwrap() error { return e.Err }

// ConfigError reports an invalid RunConfig. Fatal at initialization.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid run config: %s %s", e.Field, e.Reason)
}

// LeakageError reports an input data point dated after the backtest cutoff.
// Fatal before the first tick, so no simulation compute is spent on a run
// that would be invalid.
type LeakageError struct {
	Source     string
	ObservedAt time.Time
	Cutoff     time.Time
}

func (e *LeakageError) Error() string {
	return fmt.Sprintf("leakage violation: %s observed at %s is after backtest cutoff %s",
		e.Source, e.ObservedAt.Format(time.RFC3339), e.Cutoff.Format(time.RFC3339))
}

// ErrRunNotFound is returned by Cancel and status lookups for unknown runs.
var ErrRunNotFound = errors.New("run not found")

// ErrHardDeadline marks a run that exceeded its hard timeout and was
// forcibly terminated.
var ErrHardDeadline = errors.New("hard deadline exceeded")
