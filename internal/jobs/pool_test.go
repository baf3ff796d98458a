package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nvandessel/simcast/internal/engine"
	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/population"
	"github.com/nvandessel/simcast/internal/store"
)

func quickConfig(maxTicks int) models.RunConfig {
	return models.RunConfig{
		SeedConfig: models.SeedConfig{Strategy: models.SeedFixed, PrimarySeed: 5},
		MaxTicks:   maxTicks,
		TickRate:   1,
		SchedulerProfile: models.SchedulerProfile{
			BatchSize:      8,
			SamplingPolicy: models.SamplingAll,
			WorkerCount:    1,
		},
	}
}

func newTestPool(t *testing.T, behavior population.Behavior, opts Options) (*Pool, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	runner := engine.NewRunner(engine.Options{Nodes: ms, Telemetry: ms, Behavior: behavior})
	p := NewPool(runner, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.Shutdown(ctx)
	})
	return p, ms
}

func waitTerminal(t *testing.T, p *Pool, runID string) Status {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		st, err := p.Status(runID)
		if err != nil {
			t.Fatalf("Status(%s): %v", runID, err)
		}
		if st.State.Terminal() {
			return st
		}
		select {
		case <-deadline:
			t.Fatalf("run %s never reached a terminal state (last %s)", runID, st.State)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// gate blocks every observe until opened, and signals once the first
// observe has begun.
type gate struct {
	population.DefaultBehavior
	started   chan struct{}
	release   chan struct{}
	startOnce sync.Once
	openOnce  sync.Once
}

func newGate() *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) open() {
	g.openOnce.Do(func() { close(g.release) })
}

func (g *gate) Observe(a *models.Agent, env map[string]float64, peers []models.PublicState, metrics map[string]float64) (population.Observation, error) {
	g.startOnce.Do(func() { close(g.started) })
	<-g.release
	return g.DefaultBehavior.Observe(a, env, peers, metrics)
}

// signalStart reports the first observe and otherwise behaves normally.
type signalStart struct {
	population.DefaultBehavior
	started chan struct{}
	once    sync.Once
}

func (s *signalStart) Observe(a *models.Agent, env map[string]float64, peers []models.PublicState, metrics map[string]float64) (population.Observation, error) {
	s.once.Do(func() { close(s.started) })
	return s.DefaultBehavior.Observe(a, env, peers, metrics)
}

func TestPoolRunsSubmission(t *testing.T) {
	p, ms := newTestPool(t, nil, Options{Workers: 2, QueueCapacity: 4})

	rc, err := p.Submit(Submission{Config: quickConfig(3), Personas: population.Synthesize(4, 1)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rc.RunID == "" || rc.JobID == "" {
		t.Fatalf("Submit left identifiers empty: %+v", rc)
	}

	st := waitTerminal(t, p, rc.RunID)
	if st.State != models.StatusSucceeded {
		t.Fatalf("state = %s, want succeeded", st.State)
	}
	if st.Result == nil || st.Result.Result == nil {
		t.Fatal("terminal status carries no result")
	}
	if _, err := ms.GetOutcome(context.Background(), rc.RunID); err != nil {
		t.Errorf("GetOutcome: %v", err)
	}

	// Terminal runs cannot be cancelled.
	if err := p.Cancel(rc.RunID); err == nil {
		t.Error("Cancel on a finished run did not error")
	}
}

func TestPoolUnknownRun(t *testing.T) {
	p, _ := newTestPool(t, nil, Options{})

	if _, err := p.Status("missing"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("Status err = %v, want ErrRunNotFound", err)
	}
	if err := p.Cancel("missing"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("Cancel err = %v, want ErrRunNotFound", err)
	}
}

func TestPoolQueueFullRejects(t *testing.T) {
	g := newGate()
	defer g.open()
	p, _ := newTestPool(t, g, Options{Workers: 1, QueueCapacity: 1})

	a, err := p.Submit(Submission{Config: quickConfig(1), Personas: population.Synthesize(2, 1)})
	if err != nil {
		t.Fatalf("Submit a: %v", err)
	}
	<-g.started // a is off the queue and executing

	b, err := p.Submit(Submission{Config: quickConfig(1), Personas: population.Synthesize(2, 2)})
	if err != nil {
		t.Fatalf("Submit b: %v", err)
	}
	if _, err := p.Submit(Submission{Config: quickConfig(1), Personas: population.Synthesize(2, 3)}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third Submit err = %v, want ErrQueueFull", err)
	}

	g.open()
	if st := waitTerminal(t, p, a.RunID); st.State != models.StatusSucceeded {
		t.Errorf("run a state = %s, want succeeded", st.State)
	}
	if st := waitTerminal(t, p, b.RunID); st.State != models.StatusSucceeded {
		t.Errorf("run b state = %s, want succeeded", st.State)
	}
}

func TestPoolCancelQueued(t *testing.T) {
	g := newGate()
	defer g.open()
	p, ms := newTestPool(t, g, Options{Workers: 1, QueueCapacity: 2})

	a, err := p.Submit(Submission{Config: quickConfig(1), Personas: population.Synthesize(2, 1)})
	if err != nil {
		t.Fatalf("Submit a: %v", err)
	}
	<-g.started

	b, err := p.Submit(Submission{Config: quickConfig(1), Personas: population.Synthesize(2, 2)})
	if err != nil {
		t.Fatalf("Submit b: %v", err)
	}
	if err := p.Cancel(b.RunID); err != nil {
		t.Fatalf("Cancel queued: %v", err)
	}

	st, err := p.Status(b.RunID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != models.StatusCancelled {
		t.Fatalf("state = %s, want cancelled", st.State)
	}
	if st.Result == nil || !strings.Contains(st.Result.Error, "cancelled before start") {
		t.Errorf("result = %+v, want a cancelled-before-start error", st.Result)
	}

	g.open()
	if st := waitTerminal(t, p, a.RunID); st.State != models.StatusSucceeded {
		t.Errorf("run a state = %s, want succeeded", st.State)
	}
	// b never reached the engine, so no run record exists.
	if _, err := ms.GetRun(context.Background(), b.RunID); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("GetRun(b) err = %v, want ErrRunNotFound", err)
	}
}

func TestPoolCancelRunning(t *testing.T) {
	s := &signalStart{started: make(chan struct{})}
	p, ms := newTestPool(t, s, Options{Workers: 1, QueueCapacity: 2})

	rc, err := p.Submit(Submission{Config: quickConfig(1000000), Personas: population.Synthesize(3, 2)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-s.started

	if err := p.Cancel(rc.RunID); err != nil {
		t.Fatalf("Cancel running: %v", err)
	}
	st := waitTerminal(t, p, rc.RunID)
	if st.State != models.StatusCancelled {
		t.Fatalf("state = %s, want cancelled", st.State)
	}

	rec, err := ms.GetRun(context.Background(), rc.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Status != models.StatusCancelled {
		t.Errorf("stored status = %s, want cancelled", rec.Status)
	}
}

func TestPoolDuplicateRunID(t *testing.T) {
	g := newGate()
	defer g.open()
	p, _ := newTestPool(t, g, Options{Workers: 1, QueueCapacity: 2})

	sub := Submission{
		RunContext: models.RunContext{RunID: "run-dup"},
		Config:     quickConfig(1),
		Personas:   population.Synthesize(2, 1),
	}
	if _, err := p.Submit(sub); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := p.Submit(sub); err == nil || !strings.Contains(err.Error(), "already submitted") {
		t.Fatalf("second Submit err = %v, want duplicate rejection", err)
	}
}

func TestPoolShutdown(t *testing.T) {
	p, _ := newTestPool(t, nil, Options{Workers: 1, QueueCapacity: 2})

	rc, err := p.Submit(Submission{Config: quickConfig(2), Personas: population.Synthesize(2, 1)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	// The in-flight run finished before Shutdown returned.
	st, err := p.Status(rc.RunID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.State.Terminal() {
		t.Errorf("state after shutdown = %s, want terminal", st.State)
	}

	if _, err := p.Submit(Submission{Config: quickConfig(1), Personas: population.Synthesize(2, 2)}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after shutdown err = %v, want ErrPoolClosed", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
