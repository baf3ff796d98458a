package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/simcast/internal/models"
)

// pollTerminal drives simcast_status until the run settles.
func pollTerminal(t *testing.T, s *Server, runID string) StatusOutput {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		_, out, err := s.handleStatus(context.Background(), nil, StatusInput{RunID: runID})
		if err != nil {
			t.Fatalf("simcast_status failed: %v", err)
		}
		if models.RunStatus(out.Status).Terminal() {
			return out
		}
		select {
		case <-deadline:
			t.Fatalf("run %s never reached a terminal state (last %s)", runID, out.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHandleRun_Async(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleRun(context.Background(), nil, RunInput{
		AgentCount: 4,
		MaxTicks:   2,
		Seed:       9,
	})
	if err != nil {
		t.Fatalf("simcast_run failed: %v", err)
	}
	if out.RunID == "" || out.JobID == "" {
		t.Fatalf("expected run and job IDs, got %+v", out)
	}
	if out.Status != string(models.StatusQueued) {
		t.Errorf("status = %s, want queued", out.Status)
	}

	st := pollTerminal(t, s, out.RunID)
	if st.Status != string(models.StatusSucceeded) {
		t.Fatalf("terminal status = %s (%s), want succeeded", st.Status, st.Error)
	}
	if !st.HasOutcome {
		t.Error("expected HasOutcome after a successful run")
	}
}

func TestHandleRun_Wait(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleRun(context.Background(), nil, RunInput{
		AgentCount: 4,
		MaxTicks:   3,
		Seed:       11,
		Wait:       true,
	})
	if err != nil {
		t.Fatalf("simcast_run failed: %v", err)
	}
	if out.Status != string(models.StatusSucceeded) {
		t.Fatalf("status = %s (%s), want succeeded", out.Status, out.Error)
	}
	if out.Error != "" {
		t.Errorf("unexpected error in output: %s", out.Error)
	}
}

func TestHandleRun_PersonaFile(t *testing.T) {
	s := newTestServer(t)

	personaPath := filepath.Join(t.TempDir(), "personas.yaml")
	personas := `
- id: urban-000
  segment: urban
  preferences:
    adopt: 0.7
    wait: 0.3
- id: rural-000
  segment: rural
  preferences:
    adopt: 0.4
    wait: 0.6
`
	if err := os.WriteFile(personaPath, []byte(personas), 0600); err != nil {
		t.Fatalf("failed to write personas: %v", err)
	}

	_, out, err := s.handleRun(context.Background(), nil, RunInput{
		PersonaPath: personaPath,
		MaxTicks:    2,
		Seed:        3,
		Wait:        true,
	})
	if err != nil {
		t.Fatalf("simcast_run failed: %v", err)
	}
	if out.Status != string(models.StatusSucceeded) {
		t.Fatalf("status = %s (%s), want succeeded", out.Status, out.Error)
	}
}

func TestHandleRun_BadConfigPath(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleRun(context.Background(), nil, RunInput{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestHandleRun_BadPersonaPath(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleRun(context.Background(), nil, RunInput{
		PersonaPath: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	if err == nil {
		t.Fatal("expected error for missing persona file")
	}
}

func TestHandleStatus_RequiresRunID(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleStatus(context.Background(), nil, StatusInput{})
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("err = %v, want required-parameter error", err)
	}
}

func TestHandleStatus_UnknownRun(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleStatus(context.Background(), nil, StatusInput{RunID: "missing"})
	if !errors.Is(err, models.ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestHandleCancel_UnknownRun(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleCancel(context.Background(), nil, CancelInput{RunID: "missing"})
	if !errors.Is(err, models.ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestHandleCancel_StopsRun(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleRun(context.Background(), nil, RunInput{
		AgentCount: 20,
		MaxTicks:   1000000,
		Seed:       6,
	})
	if err != nil {
		t.Fatalf("simcast_run failed: %v", err)
	}

	_, c, err := s.handleCancel(context.Background(), nil, CancelInput{RunID: out.RunID})
	if err != nil {
		t.Fatalf("simcast_cancel failed: %v", err)
	}
	if !strings.Contains(c.Message, out.RunID) {
		t.Errorf("message %q does not name the run", c.Message)
	}

	st := pollTerminal(t, s, out.RunID)
	if st.Status != string(models.StatusCancelled) {
		t.Fatalf("terminal status = %s, want cancelled", st.Status)
	}
}

func TestHandleOutcome_UnknownRun(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleOutcome(context.Background(), nil, OutcomeInput{RunID: "missing"})
	if !errors.Is(err, models.ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestHandleOutcome_AfterRun(t *testing.T) {
	s := newTestServer(t)

	_, run, err := s.handleRun(context.Background(), nil, RunInput{
		AgentCount: 5,
		MaxTicks:   3,
		Seed:       17,
		Wait:       true,
	})
	if err != nil {
		t.Fatalf("simcast_run failed: %v", err)
	}
	if run.Status != string(models.StatusSucceeded) {
		t.Fatalf("run status = %s (%s), want succeeded", run.Status, run.Error)
	}

	_, out, err := s.handleOutcome(context.Background(), nil, OutcomeInput{RunID: run.RunID})
	if err != nil {
		t.Fatalf("simcast_outcome failed: %v", err)
	}
	if out.RunID != run.RunID {
		t.Errorf("outcome run ID = %s, want %s", out.RunID, run.RunID)
	}
	if out.PrimaryOutcome == "" {
		t.Error("expected a primary outcome")
	}
	if out.ConfidenceMethod == "" {
		t.Error("expected a confidence interval method")
	}

	var ticks float64
	found := false
	for _, m := range out.KeyMetrics {
		if m.Name == "ticks_executed" {
			ticks, found = m.Value, true
		}
	}
	if !found {
		t.Fatalf("ticks_executed missing from key metrics: %+v", out.KeyMetrics)
	}
	if ticks < 1 || ticks > 3 {
		t.Errorf("ticks_executed = %v, want within [1, 3]", ticks)
	}
}
