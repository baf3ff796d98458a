package models

import "time"

// AgentSnapshot is one agent's state at a keyframe tick (or at run end, for
// final states). Tick -1 marks a final-state snapshot.
type AgentSnapshot struct {
	Tick       int         `json:"tick"`
	AgentID    string      `json:"agent_id"`
	Segment    string      `json:"segment"`
	State      StateVector `json:"state"`
	LastAction string      `json:"last_action,omitempty"`
	Terminated bool        `json:"terminated,omitempty"`
}

// CounterSnapshot is the immutable copy of the execution counters attached
// to the trace at run end. External verifiers read it; the engine never
// reads it back.
type CounterSnapshot struct {
	StageInvocations   map[string]uint64 `json:"stage_invocations"`
	RuleApplications   map[string]uint64 `json:"rule_applications,omitempty"`
	Partitions         uint64            `json:"partitions"`
	Batches            uint64            `json:"batches"`
	BackpressureEvents uint64            `json:"backpressure_events"`
	AgentSteps         uint64            `json:"agent_steps"`
}

// ExecutionTrace is everything a run leaves behind for audit and replay:
// the per-tick records, periodic keyframes, final agent states and the
// counter snapshot. A failed run still flushes whatever trace exists.
type ExecutionTrace struct {
	RunID          string          `json:"run_id"`
	Seed           uint32          `json:"seed"`
	TickRate       float64         `json:"tick_rate,omitempty"`
	TickData       []TickResult    `json:"tick_data"`
	AgentSnapshots []AgentSnapshot `json:"agent_snapshots,omitempty"`
	FinalStates    []AgentSnapshot `json:"final_states,omitempty"`
	Counters       CounterSnapshot `json:"counters"`
}

// TicksExecuted returns the number of fully completed ticks in the trace.
func (t *ExecutionTrace) TicksExecuted() int {
	return len(t.TickData)
}

// StorageRef points at a stored trace. The engine treats it as opaque.
type StorageRef struct {
	ID       string    `json:"id"`
	URI      string    `json:"uri"`
	StoredAt time.Time `json:"stored_at"`
}
