package archive

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/store"
)

// seedRun stores a run record, optionally with an outcome and a trace.
func seedRun(t *testing.T, st store.Store, runID string, status models.RunStatus, withOutcome, withTrace bool) {
	t.Helper()
	ctx := context.Background()

	err := st.SaveRun(ctx, store.RunRecord{
		RunID:    runID,
		TenantID: "tenant-a",
		Status:   status,
		Seed:     42,
	})
	if err != nil {
		t.Fatalf("SaveRun(%s) error = %v", runID, err)
	}

	if withOutcome {
		outcome := &models.AggregatedOutcome{
			RunID:          runID,
			PrimaryOutcome: "adopt",
			OutcomeDistribution: map[string]float64{
				"adopt": 0.75, "reject": 0.25,
			},
			ConfidenceInterval: models.ConfidenceInterval{Lower: 0.6, Upper: 0.9, Method: "normal-approximation"},
		}
		if err := st.SaveOutcome(ctx, outcome); err != nil {
			t.Fatalf("SaveOutcome(%s) error = %v", runID, err)
		}
	}

	if withTrace {
		trace := &models.ExecutionTrace{
			RunID: runID,
			Seed:  42,
			TickData: []models.TickResult{
				{Tick: 1, SampledCount: 4, ElapsedMs: 0.3},
				{Tick: 2, SampledCount: 4, ElapsedMs: 0.2},
			},
		}
		if _, err := st.StoreFromExecutionResult(ctx, "tenant-a", runID, trace); err != nil {
			t.Fatalf("StoreFromExecutionResult(%s) error = %v", runID, err)
		}
	}
}

func TestExportRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemoryStore()
	seedRun(t, src, "run-a", models.StatusSucceeded, true, true)
	seedRun(t, src, "run-b", models.StatusFailed, false, false)

	path := filepath.Join(t.TempDir(), "snap.archive")
	snap, err := Export(ctx, src, path)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("exported %d entries, want 2", len(snap.Entries))
	}

	header, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if header.RunCount != 2 {
		t.Errorf("header run_count = %d, want 2", header.RunCount)
	}
	if header.TickCount != 2 {
		t.Errorf("header tick_count = %d, want 2", header.TickCount)
	}

	dst := store.NewMemoryStore()
	result, err := Restore(ctx, dst, path, RestoreMerge)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.RunsRestored != 2 || result.RunsSkipped != 0 {
		t.Errorf("restored %d skipped %d, want 2 and 0", result.RunsRestored, result.RunsSkipped)
	}
	if result.OutcomesRestored != 1 {
		t.Errorf("outcomes restored = %d, want 1", result.OutcomesRestored)
	}
	if result.TracesRestored != 1 {
		t.Errorf("traces restored = %d, want 1", result.TracesRestored)
	}

	run, err := dst.GetRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("GetRun(run-a) error = %v", err)
	}
	if run.Status != models.StatusSucceeded {
		t.Errorf("run-a status = %q, want %q", run.Status, models.StatusSucceeded)
	}
	if run.TenantID != "tenant-a" {
		t.Errorf("run-a tenant = %q, want tenant-a", run.TenantID)
	}

	outcome, err := dst.GetOutcome(ctx, "run-a")
	if err != nil {
		t.Fatalf("GetOutcome(run-a) error = %v", err)
	}
	if outcome.PrimaryOutcome != "adopt" {
		t.Errorf("primary outcome = %q, want adopt", outcome.PrimaryOutcome)
	}

	trace, err := dst.GetTrace(ctx, "run-a")
	if err != nil {
		t.Fatalf("GetTrace(run-a) error = %v", err)
	}
	if trace.TicksExecuted() != 2 {
		t.Errorf("trace ticks = %d, want 2", trace.TicksExecuted())
	}

	// run-b had neither outcome nor trace.
	if _, err := dst.GetOutcome(ctx, "run-b"); err == nil {
		t.Error("GetOutcome(run-b) succeeded, want ErrRunNotFound")
	}
}

func TestExportEmptyStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "empty.archive")

	snap, err := Export(ctx, store.NewMemoryStore(), path)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(snap.Entries) != 0 {
		t.Errorf("exported %d entries, want 0", len(snap.Entries))
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got.Entries) != 0 {
		t.Errorf("read %d entries, want 0", len(got.Entries))
	}
}

func TestRestoreMergeSkipsExisting(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemoryStore()
	seedRun(t, src, "run-a", models.StatusSucceeded, true, true)

	path := filepath.Join(t.TempDir(), "snap.archive")
	if _, err := Export(ctx, src, path); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	dst := store.NewMemoryStore()
	if _, err := Restore(ctx, dst, path, RestoreMerge); err != nil {
		t.Fatalf("first Restore() error = %v", err)
	}
	result, err := Restore(ctx, dst, path, RestoreMerge)
	if err != nil {
		t.Fatalf("second Restore() error = %v", err)
	}
	if result.RunsRestored != 0 || result.RunsSkipped != 1 {
		t.Errorf("restored %d skipped %d, want 0 and 1", result.RunsRestored, result.RunsSkipped)
	}
}

func TestRestoreOverwrite(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemoryStore()
	seedRun(t, src, "run-a", models.StatusSucceeded, false, false)

	path := filepath.Join(t.TempDir(), "snap.archive")
	if _, err := Export(ctx, src, path); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	// The destination has the same run in a different state.
	dst := store.NewMemoryStore()
	seedRun(t, dst, "run-a", models.StatusFailed, false, false)

	if _, err := Restore(ctx, dst, path, RestoreMerge); err != nil {
		t.Fatalf("merge Restore() error = %v", err)
	}
	run, err := dst.GetRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != models.StatusFailed {
		t.Errorf("after merge, status = %q, want %q (existing row untouched)", run.Status, models.StatusFailed)
	}

	result, err := Restore(ctx, dst, path, RestoreOverwrite)
	if err != nil {
		t.Fatalf("overwrite Restore() error = %v", err)
	}
	if result.RunsRestored != 1 {
		t.Errorf("restored %d, want 1", result.RunsRestored)
	}
	run, err = dst.GetRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != models.StatusSucceeded {
		t.Errorf("after overwrite, status = %q, want %q", run.Status, models.StatusSucceeded)
	}
}

func TestRestoreUnknownMode(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snap.archive")
	if _, err := Export(ctx, store.NewMemoryStore(), path); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	_, err := Restore(ctx, store.NewMemoryStore(), path, RestoreMode("wipe"))
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if !strings.Contains(err.Error(), "unknown restore mode") {
		t.Errorf("error = %v, want unknown mode message", err)
	}
}

func TestGeneratePath(t *testing.T) {
	dir := t.TempDir()
	path := GeneratePath(dir)

	if filepath.Dir(path) != dir {
		t.Errorf("path %q not under %q", path, dir)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "simcast-") {
		t.Errorf("base %q missing simcast- prefix", base)
	}
	if filepath.Ext(base) != ".archive" {
		t.Errorf("base %q missing .archive extension", base)
	}
	if !isArchiveName(base) {
		t.Errorf("isArchiveName(%q) = false, want true", base)
	}
}

func TestDefaultDir(t *testing.T) {
	got := DefaultDir("/data/simcast")
	want := filepath.Join("/data/simcast", "archives")
	if got != want {
		t.Errorf("DefaultDir() = %q, want %q", got, want)
	}
}

func TestSnapshotTickCount(t *testing.T) {
	snap := &Snapshot{
		CreatedAt: time.Now(),
		Entries: []Entry{
			{Trace: &models.ExecutionTrace{TickData: make([]models.TickResult, 3)}},
			{Trace: nil},
			{Trace: &models.ExecutionTrace{TickData: make([]models.TickResult, 2)}},
		},
	}
	if got := snap.TickCount(); got != 5 {
		t.Errorf("TickCount() = %d, want 5", got)
	}
}
