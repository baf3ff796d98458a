// Package jobs runs simulations asynchronously on a bounded worker pool.
// It owns the in-memory run registry and the per-run cancel functions;
// durable state lives in the stores the engine writes to.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nvandessel/simcast/internal/engine"
	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/population"
)

// ErrQueueFull is returned by Submit when the waiting queue is at capacity.
var ErrQueueFull = errors.New("job queue full")

// ErrPoolClosed is returned by Submit after Shutdown has begun.
var ErrPoolClosed = errors.New("job pool closed")

// Submission is one run request. Empty RunID and JobID fields are filled
// with generated identifiers.
type Submission struct {
	RunContext models.RunContext
	Config     models.RunConfig
	Personas   []population.PersonaRecord
}

// Status is the registry's view of a run.
type Status struct {
	RunID string
	JobID string
	State models.RunStatus
	// Result is set once the run is terminal.
	Result *models.JobResult
}

// Options tunes the pool. Zero values select one worker, a queue of
// sixteen, and a discarding logger.
type Options struct {
	Workers       int
	QueueCapacity int
	Logger        *slog.Logger
}

type entry struct {
	rc     models.RunContext
	state  models.RunStatus
	cancel context.CancelFunc
	result *models.JobResult
}

// Pool dispatches submitted runs to a fixed set of workers. A run is
// executed exactly once; cancellation before dispatch skips it entirely.
type Pool struct {
	runner *engine.Runner
	logger *slog.Logger
	queue  chan Submission

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	wg sync.WaitGroup
}

// NewPool starts a pool with opts.Workers workers.
func NewPool(runner *engine.Runner, opts Options) *Pool {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	capacity := opts.QueueCapacity
	if capacity < 1 {
		capacity = 16
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		runner:     runner,
		logger:     logger,
		queue:      make(chan Submission, capacity),
		baseCtx:    ctx,
		baseCancel: cancel,
		entries:    make(map[string]*entry),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues a run. It never blocks: a full queue rejects with
// ErrQueueFull and the caller decides whether to retry.
func (p *Pool) Submit(sub Submission) (models.RunContext, error) {
	if sub.RunContext.RunID == "" {
		sub.RunContext.RunID = uuid.NewString()
	}
	if sub.RunContext.JobID == "" {
		sub.RunContext.JobID = uuid.NewString()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return models.RunContext{}, ErrPoolClosed
	}
	if _, dup := p.entries[sub.RunContext.RunID]; dup {
		return models.RunContext{}, fmt.Errorf("run %s already submitted", sub.RunContext.RunID)
	}

	select {
	case p.queue <- sub:
		p.entries[sub.RunContext.RunID] = &entry{rc: sub.RunContext, state: models.StatusQueued}
		p.logger.Debug("run queued", "run_id", sub.RunContext.RunID, "job_id", sub.RunContext.JobID)
		return sub.RunContext, nil
	default:
		return models.RunContext{}, ErrQueueFull
	}
}

// Cancel stops a run. Queued runs are retired without executing; running
// runs are cancelled cooperatively and finish at their next tick boundary.
func (p *Pool) Cancel(runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[runID]
	if !ok {
		return models.ErrRunNotFound
	}
	switch e.state {
	case models.StatusQueued:
		e.state = models.StatusCancelled
		e.result = &models.JobResult{
			RunID:  e.rc.RunID,
			JobID:  e.rc.JobID,
			Status: models.StatusCancelled,
			Error:  "cancelled before start",
		}
		p.logger.Info("queued run cancelled", "run_id", runID)
		return nil
	case models.StatusRunning:
		if e.cancel != nil {
			e.cancel()
		}
		return nil
	default:
		return fmt.Errorf("run %s already %s", runID, e.state)
	}
}

// Status reports the registry's view of a run.
func (p *Pool) Status(runID string) (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[runID]
	if !ok {
		return Status{}, models.ErrRunNotFound
	}
	st := Status{RunID: e.rc.RunID, JobID: e.rc.JobID, State: e.state}
	if e.result != nil {
		r := *e.result
		st.Result = &r
	}
	return st, nil
}

// Shutdown stops accepting work and waits for in-flight runs to finish.
// When ctx expires first, in-flight runs are cancelled and Shutdown waits
// for them to unwind before returning ctx's error.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.baseCancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for sub := range p.queue {
		p.execute(sub)
	}
}

func (p *Pool) execute(sub Submission) {
	runID := sub.RunContext.RunID

	p.mu.Lock()
	e, ok := p.entries[runID]
	if !ok || e.state != models.StatusQueued {
		// Cancelled while waiting; never started.
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(p.baseCtx)
	e.state = models.StatusRunning
	e.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	res := p.runner.Execute(ctx, sub.RunContext, sub.Config, sub.Personas)

	p.mu.Lock()
	e.state = res.Status
	e.result = &res
	e.cancel = nil
	p.mu.Unlock()

	p.logger.Info("run finished",
		"run_id", runID,
		"status", res.Status,
		"duration_ms", res.DurationMs)
}
