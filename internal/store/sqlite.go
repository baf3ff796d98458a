package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/simcast/internal/models"
)

// SQLiteStore implements NodeStore and TelemetryStore on a single SQLite
// database under the data directory.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the database at dataDir/simcast.db.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "simcast.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with a single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.dbPath }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// SaveRun inserts or updates a run record.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	var configJSON []byte
	if run.Config != nil {
		var err error
		configJSON, err = json.Marshal(run.Config)
		if err != nil {
			return fmt.Errorf("marshal run config: %w", err)
		}
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, tenant_id, job_id, status, seed, error, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			seed = excluded.seed,
			error = excluded.error,
			config = COALESCE(excluded.config, runs.config),
			updated_at = excluded.updated_at`,
		run.RunID, run.TenantID, run.JobID, string(run.Status), int64(run.Seed), run.Error,
		nullableJSON(configJSON), run.CreatedAt.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.RunID, err)
	}
	return nil
}

// UpdateRunStatus advances a run's status and records its error, if any.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE run_id = ?`,
		string(status), errMsg, time.Now().UTC().Format(time.RFC3339Nano), runID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if n == 0 {
		return models.ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run record by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, tenant_id, job_id, status, seed, error, config, created_at, updated_at
		FROM runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, nil
}

// ListRuns returns run records newest-first. A non-positive limit returns
// all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, tenant_id, job_id, status, seed, error, config, created_at, updated_at
		FROM runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// SaveOutcome attaches an aggregated outcome to its run. The run record must
// exist first; the foreign key enforces it.
func (s *SQLiteStore) SaveOutcome(ctx context.Context, outcome *models.AggregatedOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if outcome == nil || outcome.RunID == "" {
		return fmt.Errorf("outcome run ID is required")
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outcomes (run_id, primary_outcome, outcome, stored_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			primary_outcome = excluded.primary_outcome,
			outcome = excluded.outcome,
			stored_at = excluded.stored_at`,
		outcome.RunID, outcome.PrimaryOutcome, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save outcome for run %s: %w", outcome.RunID, err)
	}
	return nil
}

// GetOutcome retrieves the aggregated outcome stored for a run.
func (s *SQLiteStore) GetOutcome(ctx context.Context, runID string) (*models.AggregatedOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT outcome FROM outcomes WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome for run %s: %w", runID, err)
	}

	var outcome models.AggregatedOutcome
	if err := json.Unmarshal([]byte(payload), &outcome); err != nil {
		return nil, fmt.Errorf("unmarshal outcome for run %s: %w", runID, err)
	}
	return &outcome, nil
}

// StoreFromExecutionResult writes the complete trace. Header and tick rows
// go in one transaction, so a stored trace is never half-visible.
func (s *SQLiteStore) StoreFromExecutionResult(ctx context.Context, tenantID, runID string, trace *models.ExecutionTrace) (models.StorageRef, error) {
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

	counters, err := json.Marshal(trace.Counters)
	if err != nil {
		return models.StorageRef{}, fmt.Errorf("marshal counters: %w", err)
	}
	var snapshots, finals []byte
	if len(trace.AgentSnapshots) > 0 {
		if snapshots, err = json.Marshal(trace.AgentSnapshots); err != nil {
			return models.StorageRef{}, fmt.Errorf("marshal snapshots: %w", err)
		}
	}
	if len(trace.FinalStates) > 0 {
		if finals, err = json.Marshal(trace.FinalStates); err != nil {
			return models.StorageRef{}, fmt.Errorf("marshal final states: %w", err)
		}
	}

	storedAt := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.StorageRef{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO traces (run_id, tenant_id, seed, tick_rate, counters, snapshots, final_states, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			seed = excluded.seed,
			tick_rate = excluded.tick_rate,
			counters = excluded.counters,
			snapshots = excluded.snapshots,
			final_states = excluded.final_states,
			stored_at = excluded.stored_at`,
		runID, tenantID, int64(trace.Seed), trace.TickRate,
		nullableJSON(counters), nullableJSON(snapshots), nullableJSON(finals),
		storedAt.Format(time.RFC3339Nano)); err != nil {
		return models.StorageRef{}, fmt.Errorf("store trace header for run %s: %w", runID, err)
	}

	if err := upsertTicks(ctx, tx, runID, trace.TickData); err != nil {
		return models.StorageRef{}, fmt.Errorf("store trace ticks for run %s: %w", runID, err)
	}

	if err := tx.Commit(); err != nil {
		return models.StorageRef{}, fmt.Errorf("commit trace for run %s: %w", runID, err)
	}

	return models.StorageRef{
		ID:       runID,
		URI:      fmt.Sprintf("sqlite://%s#%s", s.dbPath, runID),
		StoredAt: storedAt,
	}, nil
}

// AppendTicks checkpoint-flushes tick rows mid-run. A stub trace header is
// created on first flush so the rows are listable before the run completes.
func (s *SQLiteStore) AppendTicks(ctx context.Context, runID string, ticks []models.TickResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID == "" {
		return fmt.Errorf("run ID is required")
	}
	if len(ticks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO traces (run_id, stored_at) VALUES (?, ?)
		ON CONFLICT(run_id) DO NOTHING`,
		runID, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("ensure trace header for run %s: %w", runID, err)
	}

	if err := upsertTicks(ctx, tx, runID, ticks); err != nil {
		return fmt.Errorf("append ticks for run %s: %w", runID, err)
	}

	return tx.Commit()
}

// GetTrace reassembles a trace from its header and tick rows.
func (s *SQLiteStore) GetTrace(ctx context.Context, runID string) (*models.ExecutionTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var seed int64
	var tickRate float64
	var counters, snapshots, finals sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT seed, tick_rate, counters, snapshots, final_states
		FROM traces WHERE run_id = ?`, runID).
		Scan(&seed, &tickRate, &counters, &snapshots, &finals)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trace for run %s: %w", runID, err)
	}

	trace := &models.ExecutionTrace{
		RunID:    runID,
		Seed:     uint32(seed),
		TickRate: tickRate,
	}
	if counters.Valid && counters.String != "" {
		if err := json.Unmarshal([]byte(counters.String), &trace.Counters); err != nil {
			return nil, fmt.Errorf("unmarshal counters for run %s: %w", runID, err)
		}
	}
	if snapshots.Valid && snapshots.String != "" {
		if err := json.Unmarshal([]byte(snapshots.String), &trace.AgentSnapshots); err != nil {
			return nil, fmt.Errorf("unmarshal snapshots for run %s: %w", runID, err)
		}
	}
	if finals.Valid && finals.String != "" {
		if err := json.Unmarshal([]byte(finals.String), &trace.FinalStates); err != nil {
			return nil, fmt.Errorf("unmarshal final states for run %s: %w", runID, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, sampled_count, elapsed_ms, summaries, errors, events, metrics
		FROM trace_ticks WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, fmt.Errorf("get trace ticks for run %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var td models.TickResult
		var summaries, errs, events, metcol sql.NullString
		if err := rows.Scan(&td.Tick, &td.SampledCount, &td.ElapsedMs, &summaries, &errs, &events, &metcol); err != nil {
			return nil, fmt.Errorf("scan tick for run %s: %w", runID, err)
		}
		if err := unmarshalInto(summaries, &td.Summaries); err != nil {
			return nil, fmt.Errorf("unmarshal tick summaries for run %s: %w", runID, err)
		}
		if err := unmarshalInto(errs, &td.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal tick errors for run %s: %w", runID, err)
		}
		if err := unmarshalInto(events, &td.EventsApplied); err != nil {
			return nil, fmt.Errorf("unmarshal tick events for run %s: %w", runID, err)
		}
		if err := unmarshalInto(metcol, &td.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal tick metrics for run %s: %w", runID, err)
		}
		trace.TickData = append(trace.TickData, td)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get trace ticks for run %s: %w", runID, err)
	}

	return trace, nil
}

// ListTraces summarizes stored traces newest-first.
func (s *SQLiteStore) ListTraces(ctx context.Context) ([]TraceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.run_id, t.seed, t.stored_at, COUNT(tt.tick)
		FROM traces t LEFT JOIN trace_ticks tt ON tt.run_id = t.run_id
		GROUP BY t.run_id, t.seed, t.stored_at
		ORDER BY t.stored_at DESC, t.run_id`)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	var out []TraceInfo
	for rows.Next() {
		var info TraceInfo
		var seed int64
		var storedAt string
		if err := rows.Scan(&info.RunID, &seed, &storedAt, &info.Ticks); err != nil {
			return nil, fmt.Errorf("list traces: %w", err)
		}
		info.Seed = uint32(seed)
		if t, err := time.Parse(time.RFC3339Nano, storedAt); err == nil {
			info.StoredAt = t
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	return out, nil
}

// upsertTicks writes tick rows inside the caller's transaction.
func upsertTicks(ctx context.Context, tx *sql.Tx, runID string, ticks []models.TickResult) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_ticks (run_id, tick, sampled_count, elapsed_ms, summaries, errors, events, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, tick) DO UPDATE SET
			sampled_count = excluded.sampled_count,
			elapsed_ms = excluded.elapsed_ms,
			summaries = excluded.summaries,
			errors = excluded.errors,
			events = excluded.events,
			metrics = excluded.metrics`)
	if err != nil {
		return fmt.Errorf("prepare tick upsert: %w", err)
	}
	defer stmt.Close()

	for _, td := range ticks {
		summaries, err := marshalIfAny(td.Summaries, len(td.Summaries) > 0)
		if err != nil {
			return err
		}
		errs, err := marshalIfAny(td.Errors, len(td.Errors) > 0)
		if err != nil {
			return err
		}
		events, err := marshalIfAny(td.EventsApplied, len(td.EventsApplied) > 0)
		if err != nil {
			return err
		}
		metrics, err := marshalIfAny(td.Metrics, len(td.Metrics) > 0)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, runID, td.Tick, td.SampledCount, td.ElapsedMs,
			summaries, errs, events, metrics); err != nil {
			return fmt.Errorf("upsert tick %d: %w", td.Tick, err)
		}
	}
	return nil
}

// marshalIfAny marshals v when present, nil otherwise, so empty collections
// stay NULL instead of "[]".
func marshalIfAny(v interface{}, present bool) (interface{}, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tick field: %w", err)
	}
	return string(b), nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func unmarshalInto(s sql.NullString, dst interface{}) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var rec RunRecord
	var tenantID, jobID, errMsg, config sql.NullString
	var status, createdAt, updatedAt string
	var seed int64
	if err := row.Scan(&rec.RunID, &tenantID, &jobID, &status, &seed, &errMsg, &config, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.TenantID = tenantID.String
	rec.JobID = jobID.String
	rec.Status = models.RunStatus(status)
	rec.Seed = uint32(seed)
	rec.Error = errMsg.String
	if config.Valid && config.String != "" {
		var cfg models.RunConfig
		if err := json.Unmarshal([]byte(config.String), &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal run config: %w", err)
		}
		rec.Config = &cfg
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}
