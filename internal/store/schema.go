package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the version new databases are stamped with. Opening a
// database stamped lower triggers a forward migration.
const SchemaVersion = 1

// schemaV1 holds every table the store needs, applied in one transaction.
const schemaV1 = `
-- Run records (one row per run; status transitions are one-way)
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    tenant_id TEXT,
    job_id TEXT,
    status TEXT NOT NULL,
    seed INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    config TEXT,  -- JSON RunConfig
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

-- Aggregated outcomes (the scenario-node payload, one per run)
CREATE TABLE IF NOT EXISTS outcomes (
    run_id TEXT PRIMARY KEY REFERENCES runs(run_id) ON DELETE CASCADE,
    primary_outcome TEXT NOT NULL,
    outcome TEXT NOT NULL,  -- JSON AggregatedOutcome
    stored_at TEXT NOT NULL
);

-- Trace headers (tick rows live in trace_ticks)
CREATE TABLE IF NOT EXISTS traces (
    run_id TEXT PRIMARY KEY,
    tenant_id TEXT,
    seed INTEGER NOT NULL DEFAULT 0,
    tick_rate REAL NOT NULL DEFAULT 0,
    counters TEXT,      -- JSON CounterSnapshot
    snapshots TEXT,     -- JSON keyframe snapshots
    final_states TEXT,  -- JSON final agent states
    stored_at TEXT NOT NULL
);

-- Per-tick rows. Checkpoint flushes upsert here mid-run, so a crashed run
-- still leaves a replayable prefix.
CREATE TABLE IF NOT EXISTS trace_ticks (
    run_id TEXT NOT NULL,
    tick INTEGER NOT NULL,
    sampled_count INTEGER NOT NULL DEFAULT 0,
    elapsed_ms REAL NOT NULL DEFAULT 0,
    summaries TEXT,  -- JSON
    errors TEXT,     -- JSON
    events TEXT,     -- JSON array of event names
    metrics TEXT,    -- JSON
    PRIMARY KEY (run_id, tick)
);

-- Migration stamp
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema brings the database to the current schema version. A file with
// no version stamp gets the full schema; a stamped one is integrity-checked
// first and then migrated forward if it is behind.
func InitSchema(ctx context.Context, db *sql.DB) error {
	version, err := storedSchemaVersion(ctx, db)
	if err != nil {
		// No stamp: fresh database file.
		return createTables(ctx, db)
	}

	if err := ValidateIntegrity(ctx, db); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if version >= SchemaVersion {
		return nil
	}
	return applyMigrations(ctx, db, version)
}

// storedSchemaVersion reads the stamp; it errors when the stamp table has
// never been created.
func storedSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	return version, err
}

// createTables installs the full current schema and stamps it, atomically.
func createTables(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("install schema: %w", err)
	}
	stamp := `INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`
	if _, err := tx.ExecContext(ctx, stamp, SchemaVersion); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return tx.Commit()
}

// applyMigrations walks the database forward from the stamped version.
// Version 1 is the only schema so far; steps land here when v2 exists.
func applyMigrations(ctx context.Context, db *sql.DB, from int) error {
	_ = from
	return nil
}

// ValidateIntegrity runs PRAGMA integrity_check and PRAGMA foreign_key_check
// and fails on any finding.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	findings, err := integrityFindings(ctx, db)
	if err != nil {
		return err
	}
	if len(findings) > 0 {
		return fmt.Errorf("integrity_check failed: %v", findings)
	}

	violations, err := foreignKeyViolations(ctx, db)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("foreign_key_check failed: %v", violations)
	}
	return nil
}

func integrityFindings(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return nil, fmt.Errorf("run integrity_check: %w", err)
	}
	defer rows.Close()

	var findings []string
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return nil, fmt.Errorf("scan integrity_check result: %w", err)
		}
		if result != "ok" {
			findings = append(findings, result)
		}
	}
	return findings, rows.Err()
}

func foreignKeyViolations(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return nil, fmt.Errorf("run foreign_key_check: %w", err)
	}
	defer rows.Close()

	var violations []string
	for rows.Next() {
		var table, rowid, parent, fkid string
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, fmt.Errorf("scan foreign_key_check result: %w", err)
		}
		violations = append(violations, fmt.Sprintf("table=%s rowid=%s parent=%s fkid=%s", table, rowid, parent, fkid))
	}
	return violations, rows.Err()
}

// ResetSchema drops every table and rebuilds the schema from scratch.
// Destructive; tests and maintenance tooling only.
func ResetSchema(ctx context.Context, db *sql.DB) error {
	for _, table := range []string{"trace_ticks", "traces", "outcomes", "runs", "schema_version"} {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return InitSchema(ctx, db)
}
