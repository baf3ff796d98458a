package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/simcast/internal/models"
)

// MemoryStore implements NodeStore and TelemetryStore in memory, for tests
// and ephemeral runs. Nothing survives process exit.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     map[string]RunRecord
	outcomes map[string]*models.AggregatedOutcome
	traces   map[string]*models.ExecutionTrace
	ticks    map[string]map[int]models.TickResult
	stored   map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:     make(map[string]RunRecord),
		outcomes: make(map[string]*models.AggregatedOutcome),
		traces:   make(map[string]*models.ExecutionTrace),
		ticks:    make(map[string]map[int]models.TickResult),
		stored:   make(map[string]time.Time),
	}
}

// SaveRun inserts or updates a run record.
func (s *MemoryStore) SaveRun(ctx context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	now := time.Now().UTC()
	if existing, ok := s.runs[run.RunID]; ok {
		run.CreatedAt = existing.CreatedAt
		if run.Config == nil {
			run.Config = existing.Config
		}
	} else if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	s.runs[run.RunID] = run
	return nil
}

// UpdateRunStatus advances a run's status and records its error, if any.
func (s *MemoryStore) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return models.ErrRunNotFound
	}
	run.Status = status
	run.Error = errMsg
	run.UpdatedAt = time.Now().UTC()
	s.runs[runID] = run
	return nil
}

// GetRun retrieves a run record by ID.
func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, models.ErrRunNotFound
	}
	out := run
	return &out, nil
}

// ListRuns returns run records newest-first.
func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveOutcome attaches an aggregated outcome to its run.
func (s *MemoryStore) SaveOutcome(ctx context.Context, outcome *models.AggregatedOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if outcome == nil || outcome.RunID == "" {
		return fmt.Errorf("outcome run ID is required")
	}
	s.outcomes[outcome.RunID] = outcome
	return nil
}

// GetOutcome retrieves the aggregated outcome stored for a run.
func (s *MemoryStore) GetOutcome(ctx context.Context, runID string) (*models.AggregatedOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outcome, ok := s.outcomes[runID]
	if !ok {
		return nil, models.ErrRunNotFound
	}
	return outcome, nil
}

// StoreFromExecutionResult stores the complete trace, superseding any
// checkpointed tick rows.
func (s *MemoryStore) StoreFromExecutionResult(ctx context.Context, tenantID, runID string, trace *models.ExecutionTrace) (models.StorageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trace == nil {
		return models.StorageRef{}, fmt.Errorf("trace is required")
	}
	if runID == "" {
		runID = trace.RunID
	}
	if runID == "" {
		return models.StorageRef{}, fmt.Errorf("run ID is required")
	}

	storedAt := time.Now().UTC()
	s.traces[runID] = trace
	delete(s.ticks, runID)
	s.stored[runID] = storedAt

	return models.StorageRef{
		ID:       runID,
		URI:      "memory://" + runID,
		StoredAt: storedAt,
	}, nil
}

// AppendTicks checkpoint-flushes tick rows mid-run.
func (s *MemoryStore) AppendTicks(ctx context.Context, runID string, ticks []models.TickResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID == "" {
		return fmt.Errorf("run ID is required")
	}
	if len(ticks) == 0 {
		return nil
	}
	byTick := s.ticks[runID]
	if byTick == nil {
		byTick = make(map[int]models.TickResult)
		s.ticks[runID] = byTick
	}
	for _, td := range ticks {
		byTick[td.Tick] = td
	}
	if _, ok := s.stored[runID]; !ok {
		s.stored[runID] = time.Now().UTC()
	}
	return nil
}

// GetTrace returns the stored trace, or the checkpointed prefix when the run
// has not completed.
func (s *MemoryStore) GetTrace(ctx context.Context, runID string) (*models.ExecutionTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if trace, ok := s.traces[runID]; ok {
		return trace, nil
	}
	byTick, ok := s.ticks[runID]
	if !ok {
		return nil, models.ErrRunNotFound
	}
	trace := &models.ExecutionTrace{RunID: runID}
	for _, tick := range sortedTicks(byTick) {
		trace.TickData = append(trace.TickData, byTick[tick])
	}
	return trace, nil
}

// ListTraces summarizes stored traces newest-first.
func (s *MemoryStore) ListTraces(ctx context.Context) ([]TraceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TraceInfo, 0, len(s.stored))
	for runID, storedAt := range s.stored {
		info := TraceInfo{RunID: runID, StoredAt: storedAt}
		if trace, ok := s.traces[runID]; ok {
			info.Seed = trace.Seed
			info.Ticks = len(trace.TickData)
		} else {
			info.Ticks = len(s.ticks[runID])
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StoredAt.Equal(out[j].StoredAt) {
			return out[i].StoredAt.After(out[j].StoredAt)
		}
		return out[i].RunID < out[j].RunID
	})
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func sortedTicks(byTick map[int]models.TickResult) []int {
	ticks := make([]int, 0, len(byTick))
	for t := range byTick {
		ticks = append(ticks, t)
	}
	sort.Ints(ticks)
	return ticks
}
