// Package archive exports and restores the run store. An archive file is a
// self-contained snapshot of runs, their aggregated outcomes and their
// execution traces, so results can be moved between data directories or kept
// past a retention horizon.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/store"
)

// Entry bundles one run with everything stored about it. Outcome and Trace
// are nil when the run never produced them (failed or cancelled runs).
type Entry struct {
	Run     store.RunRecord           `json:"run"`
	Outcome *models.AggregatedOutcome `json:"outcome,omitempty"`
	Trace   *models.ExecutionTrace    `json:"trace,omitempty"`
}

// Snapshot is the archive payload: every run in the store at export time.
type Snapshot struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// TickCount sums the trace ticks across all entries.
func (s *Snapshot) TickCount() int {
	total := 0
	for _, e := range s.Entries {
		if e.Trace != nil {
			total += e.Trace.TicksExecuted()
		}
	}
	return total
}

// DefaultDir returns the archive directory under a data directory.
func DefaultDir(dataDir string) string {
	return filepath.Join(dataDir, "archives")
}

// GeneratePath creates a timestamped archive filename in the given directory.
func GeneratePath(dir string) string {
	ts := time.Now().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("simcast-%s.archive", ts))
}

// Export snapshots every run in the store and writes it to path.
func Export(ctx context.Context, st store.Store, path string) (*Snapshot, error) {
	runs, err := st.ListRuns(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	snap := &Snapshot{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Entries:   make([]Entry, 0, len(runs)),
	}
	for _, run := range runs {
		entry := Entry{Run: run}

		outcome, err := st.GetOutcome(ctx, run.RunID)
		switch {
		case err == nil:
			entry.Outcome = outcome
		case errors.Is(err, models.ErrRunNotFound):
			// Run finished without an outcome; archive the record alone.
		default:
			return nil, fmt.Errorf("reading outcome for %s: %w", run.RunID, err)
		}

		trace, err := st.GetTrace(ctx, run.RunID)
		switch {
		case err == nil:
			entry.Trace = trace
		case errors.Is(err, models.ErrRunNotFound):
		default:
			return nil, fmt.Errorf("reading trace for %s: %w", run.RunID, err)
		}

		snap.Entries = append(snap.Entries, entry)
	}

	if err := Write(path, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RestoreMode controls how restore treats runs that already exist.
type RestoreMode string

const (
	// RestoreMerge skips runs whose ID is already in the store (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreOverwrite writes every archived run, replacing existing rows.
	RestoreOverwrite RestoreMode = "overwrite"
)

// RestoreResult counts what a restore touched.
type RestoreResult struct {
	RunsRestored     int `json:"runs_restored"`
	RunsSkipped      int `json:"runs_skipped"`
	OutcomesRestored int `json:"outcomes_restored"`
	TracesRestored   int `json:"traces_restored"`
}

// Restore imports an archive file into the store. In merge mode, runs that
// already exist are skipped whole: their outcome and trace are left alone.
func Restore(ctx context.Context, st store.Store, path string, mode RestoreMode) (*RestoreResult, error) {
	if mode != RestoreMerge && mode != RestoreOverwrite {
		return nil, fmt.Errorf("unknown restore mode: %s", mode)
	}

	snap, err := Read(path)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	for _, entry := range snap.Entries {
		if mode == RestoreMerge {
			_, err := st.GetRun(ctx, entry.Run.RunID)
			if err == nil {
				result.RunsSkipped++
				continue
			}
			if !errors.Is(err, models.ErrRunNotFound) {
				return nil, fmt.Errorf("checking run %s: %w", entry.Run.RunID, err)
			}
		}

		// The run record goes first: outcomes reference it.
		if err := st.SaveRun(ctx, entry.Run); err != nil {
			return nil, fmt.Errorf("restoring run %s: %w", entry.Run.RunID, err)
		}
		result.RunsRestored++

		if entry.Outcome != nil {
			if err := st.SaveOutcome(ctx, entry.Outcome); err != nil {
				return nil, fmt.Errorf("restoring outcome for %s: %w", entry.Run.RunID, err)
			}
			result.OutcomesRestored++
		}
		if entry.Trace != nil {
			if _, err := st.StoreFromExecutionResult(ctx, entry.Run.TenantID, entry.Run.RunID, entry.Trace); err != nil {
				return nil, fmt.Errorf("restoring trace for %s: %w", entry.Run.RunID, err)
			}
			result.TracesRestored++
		}
	}
	return result, nil
}
