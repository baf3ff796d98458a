// Package store persists runs, outcomes and execution traces. The surface is
// split the way the orchestrator consumes it: NodeStore keeps run records and
// the aggregated outcomes attached to them (the scenario-map side), while
// TelemetryStore keeps execution traces (the audit and replay side). SQLite
// backs both in production; the in-memory store backs tests and ephemeral
// runs.
package store

import (
	"context"
	"time"

	"github.com/nvandessel/simcast/internal/models"
)

// RunRecord is the stored row for one run.
type RunRecord struct {
	RunID     string            `json:"run_id"`
	TenantID  string            `json:"tenant_id,omitempty"`
	JobID     string            `json:"job_id,omitempty"`
	Status    models.RunStatus  `json:"status"`
	Seed      uint32            `json:"seed"`
	Error     string            `json:"error,omitempty"`
	Config    *models.RunConfig `json:"config,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TraceInfo summarizes one stored trace.
type TraceInfo struct {
	RunID    string    `json:"run_id"`
	Seed     uint32    `json:"seed"`
	Ticks    int       `json:"ticks"`
	StoredAt time.Time `json:"stored_at"`
}

// NodeStore stores run records and attaches aggregated outcomes to them.
// Lookups for unknown runs return models.ErrRunNotFound.
type NodeStore interface {
	SaveRun(ctx context.Context, run RunRecord) error
	UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus, errMsg string) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	SaveOutcome(ctx context.Context, outcome *models.AggregatedOutcome) error
	GetOutcome(ctx context.Context, runID string) (*models.AggregatedOutcome, error)

	Close() error
}

// TelemetryStore stores execution traces. AppendTicks is the mid-run
// checkpoint flush; StoreFromExecutionResult writes the complete trace at
// run end and supersedes any checkpointed rows.
type TelemetryStore interface {
	StoreFromExecutionResult(ctx context.Context, tenantID, runID string, trace *models.ExecutionTrace) (models.StorageRef, error)
	AppendTicks(ctx context.Context, runID string, ticks []models.TickResult) error
	GetTrace(ctx context.Context, runID string) (*models.ExecutionTrace, error)
	ListTraces(ctx context.Context) ([]TraceInfo, error)
	Close() error
}

// Store is the combined surface the CLI and the MCP server wire up once.
type Store interface {
	NodeStore
	TelemetryStore
}
