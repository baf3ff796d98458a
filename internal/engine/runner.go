// Package engine drives simulation runs end to end: config validation and
// preflight checks, the strictly sequential tick loop with its batch
// fan-out, deadline and cancellation handling, and the hand-off of the
// outcome and trace to storage.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nvandessel/simcast/internal/events"
	"github.com/nvandessel/simcast/internal/evidence"
	"github.com/nvandessel/simcast/internal/logging"
	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/outcome"
	"github.com/nvandessel/simcast/internal/population"
	"github.com/nvandessel/simcast/internal/rng"
	"github.com/nvandessel/simcast/internal/rules"
	"github.com/nvandessel/simcast/internal/social"
	"github.com/nvandessel/simcast/internal/store"
	"github.com/nvandessel/simcast/internal/vecmath"
)

// Options wires a Runner's collaborators. Zero values are serviceable: a nil
// logger discards, nil stores skip persistence, a nil behavior selects the
// default population behavior, and a nil clock means time.Now.
type Options struct {
	Logger    *slog.Logger
	TickLog   *logging.TickLogger
	Behavior  population.Behavior
	Nodes     store.NodeStore
	Telemetry store.TelemetryStore
	// Now is the scheduler clock. Injectable so backpressure and deadline
	// behavior can be tested without sleeping.
	Now func() time.Time
}

// Runner executes simulation runs. One Runner may serve many runs; all
// per-run state lives on the run, never on the Runner.
type Runner struct {
	logger    *slog.Logger
	tickLog   *logging.TickLogger
	behavior  population.Behavior
	nodes     store.NodeStore
	telemetry store.TelemetryStore
	now       func() time.Time
}

func NewRunner(opts Options) *Runner {
	r := &Runner{
		logger:    opts.Logger,
		tickLog:   opts.TickLog,
		behavior:  opts.Behavior,
		nodes:     opts.Nodes,
		telemetry: opts.Telemetry,
		now:       opts.Now,
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.behavior == nil {
		r.behavior = population.DefaultBehavior{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Execute runs one simulation to completion and reports the result. Every
// failure class surfaces through the JobResult's status and error rather
// than a returned error: the orchestrator records results, it does not
// branch on them.
func (r *Runner) Execute(ctx context.Context, rc models.RunContext, cfg models.RunConfig, personas []population.PersonaRecord) models.JobResult {
	startedAt := r.now()
	logger := r.logger.With("run_id", rc.RunID)

	res := models.JobResult{RunID: rc.RunID, JobID: rc.JobID, StartedAt: startedAt}
	finish := func(status models.RunStatus, result *models.AggregatedOutcome, err error) models.JobResult {
		res.Status = status
		res.Result = result
		if err != nil {
			res.Error = err.Error()
		}
		res.CompletedAt = r.now()
		res.DurationMs = res.CompletedAt.Sub(startedAt).Milliseconds()
		return res
	}

	var seed uint32
	failEarly := func(err error) models.JobResult {
		logger.Error("run failed before first tick", "error", err)
		r.saveRunRecord(context.WithoutCancel(ctx), rc, seed, &cfg, models.StatusFailed, err.Error())
		return finish(models.StatusFailed, nil, err)
	}

	if err := cfg.Validate(); err != nil {
		return failEarly(err)
	}
	if len(personas) == 0 {
		return failEarly(errors.New("no persona records supplied"))
	}
	seed = resolveSeed(cfg.SeedConfig, r.now)
	if err := checkLeakage(cfg, personas); err != nil {
		return failEarly(err)
	}

	pool, err := population.BuildPool(personas, cfg.ScenarioPatch.Modifiers, cfg.MaxAgents)
	if err != nil {
		return failEarly(fmt.Errorf("building population: %w", err))
	}
	eng, err := rules.New(cfg.RuleProfile)
	if err != nil {
		return failEarly(err)
	}

	r.saveRunRecord(ctx, rc, seed, &cfg, models.StatusRunning, "")

	base := rng.New(seed)
	socialCfg := social.DefaultConfig()
	if cfg.SchedulerProfile.AvgConnections > 0 {
		socialCfg.AvgConnections = cfg.SchedulerProfile.AvgConnections
	}
	if cfg.SchedulerProfile.InfluenceEnabled {
		social.Build(pool, socialCfg, base)
	}

	counters := evidence.NewCounters()
	ru := &run{
		r:         r,
		ctx:       ctx,
		rc:        rc,
		cfg:       cfg,
		logger:    logger,
		startedAt: startedAt,
		base:      base,
		pool:      pool,
		pipeline:  population.NewPipeline(r.behavior, eng, counters, pool),
		sampler:   newSampler(cfg.SchedulerProfile, base),
		events:    events.New(cfg.ScenarioPatch.Events, cfg.ScenarioPatch.EventProbabilityPerTick),
		tracker:   outcome.NewTracker(),
		counters:  counters,
		social:    socialCfg,
		env:       vecmath.Copy(cfg.ScenarioPatch.Variables),
		metrics:   map[string]float64{},
		trace:     &models.ExecutionTrace{RunID: rc.RunID, Seed: seed, TickRate: cfg.TickRate},
	}

	logger.Info("run starting",
		"seed", seed,
		"agents", pool.Size(),
		"max_ticks", cfg.MaxTicks,
		"sampling_policy", cfg.SchedulerProfile.SamplingPolicy,
		"workers", cfg.SchedulerProfile.WorkerCount)

	loopErr := ru.loop()
	ru.finalize()

	// Terminal bookkeeping must survive the caller's cancellation.
	pctx := context.WithoutCancel(ctx)
	if r.telemetry != nil {
		ref, err := r.telemetry.StoreFromExecutionResult(pctx, rc.TenantID, rc.RunID, ru.trace)
		if err != nil {
			logger.Error("trace flush failed", "error", err)
		} else {
			logger.Debug("trace stored", "uri", ref.URI, "ticks", ru.trace.TicksExecuted())
		}
	}

	switch {
	case loopErr == nil:
		result := ru.tracker.Aggregate(outcome.Inputs{
			RunID:           rc.RunID,
			Agents:          pool.All(),
			TicksExecuted:   ru.trace.TicksExecuted(),
			EventsProcessed: ru.events.Processed(),
			StoppedEarly:    ru.trace.TicksExecuted() < cfg.MaxTicks,
		})
		if r.nodes != nil {
			if err := r.nodes.SaveOutcome(pctx, result); err != nil {
				logger.Error("outcome save failed", "error", err)
			}
		}
		r.updateRunStatus(pctx, rc.RunID, models.StatusSucceeded, "")
		logger.Info("run succeeded",
			"ticks", ru.trace.TicksExecuted(),
			"primary_outcome", result.PrimaryOutcome,
			"stopped_early", result.StoppedEarly)
		return finish(models.StatusSucceeded, result, nil)

	case errors.Is(loopErr, context.Canceled) || errors.Is(loopErr, context.DeadlineExceeded):
		r.updateRunStatus(pctx, rc.RunID, models.StatusCancelled, loopErr.Error())
		logger.Info("run cancelled", "ticks", ru.trace.TicksExecuted())
		return finish(models.StatusCancelled, nil, loopErr)

	default:
		r.updateRunStatus(pctx, rc.RunID, models.StatusFailed, loopErr.Error())
		logger.Error("run failed", "ticks", ru.trace.TicksExecuted(), "error", loopErr)
		return finish(models.StatusFailed, nil, loopErr)
	}
}

// saveRunRecord upserts the run's record. Persistence problems are logged
// and swallowed: the simulation result matters more than the bookkeeping.
func (r *Runner) saveRunRecord(ctx context.Context, rc models.RunContext, seed uint32, cfg *models.RunConfig, status models.RunStatus, errMsg string) {
	if r.nodes == nil {
		return
	}
	rec := store.RunRecord{
		RunID:    rc.RunID,
		TenantID: rc.TenantID,
		JobID:    rc.JobID,
		Status:   status,
		Seed:     seed,
		Error:    errMsg,
		Config:   cfg,
	}
	if err := r.nodes.SaveRun(ctx, rec); err != nil {
		r.logger.Warn("run record save failed", "run_id", rc.RunID, "error", err)
	}
}

func (r *Runner) updateRunStatus(ctx context.Context, runID string, status models.RunStatus, errMsg string) {
	if r.nodes == nil {
		return
	}
	if err := r.nodes.UpdateRunStatus(ctx, runID, status, errMsg); err != nil {
		r.logger.Warn("run status update failed", "run_id", runID, "status", status, "error", err)
	}
}

// resolveSeed picks the base seed. Time-seeded runs record the chosen seed in
// the trace, so they stay replayable after the fact.
func resolveSeed(sc models.SeedConfig, now func() time.Time) uint32 {
	if sc.Strategy == models.SeedTime {
		return uint32(now().UnixNano())
	}
	return sc.PrimarySeed
}

// checkLeakage fails a backtest run whose inputs carry observation dates
// past the cutoff, before any simulation compute is spent.
func checkLeakage(cfg models.RunConfig, personas []population.PersonaRecord) error {
	if !cfg.Backtest.Enabled {
		return nil
	}
	cutoff := cfg.Backtest.Cutoff
	for _, p := range personas {
		if p.ObservedAt != nil && p.ObservedAt.After(cutoff) {
			return &models.LeakageError{Source: "persona:" + p.ID, ObservedAt: *p.ObservedAt, Cutoff: cutoff}
		}
	}
	for _, ev := range cfg.ScenarioPatch.Events {
		if ev.ObservedAt != nil && ev.ObservedAt.After(cutoff) {
			return &models.LeakageError{Source: "event:" + ev.Name, ObservedAt: *ev.ObservedAt, Cutoff: cutoff}
		}
	}
	return nil
}

// run is the per-run loop state. The coordinator goroutine owns all of it;
// batch workers only ever see tick-start copies.
type run struct {
	r         *Runner
	ctx       context.Context
	rc        models.RunContext
	cfg       models.RunConfig
	logger    *slog.Logger
	startedAt time.Time

	base     *rng.Stream
	pool     *population.Pool
	pipeline *population.Pipeline
	sampler  *sampler
	events   *events.System
	tracker  *outcome.Tracker
	counters *evidence.Counters
	social   social.Config

	env     map[string]float64
	metrics map[string]float64 // previous tick's metrics, read-only inputs
	trace   *models.ExecutionTrace
	flushed int // tick rows already checkpointed
}

// loop drives the strictly sequential tick loop. A nil return means the run
// completed or stopped gracefully; a context error means it was cancelled;
// anything else is fatal.
func (ru *run) loop() error {
	var softDeadline, hardDeadline time.Time
	if ru.cfg.SoftTimeoutMs > 0 {
		softDeadline = ru.startedAt.Add(time.Duration(ru.cfg.SoftTimeoutMs) * time.Millisecond)
	}
	if ru.cfg.HardTimeoutMs > 0 {
		hardDeadline = ru.startedAt.Add(time.Duration(ru.cfg.HardTimeoutMs) * time.Millisecond)
	}

	for tick := 0; tick < ru.cfg.MaxTicks; tick++ {
		select {
		case <-ru.ctx.Done():
			return ru.ctx.Err()
		default:
		}
		if ru.pool.ActiveCount() == 0 {
			ru.logger.Info("population exhausted", "tick", tick)
			return nil
		}

		tickStart := ru.r.now()

		applied := ru.events.Process(tick, ru.env, ru.base)

		active := ru.pool.Active()
		sampled := ru.sampler.sample(active)
		ru.counters.IncPartition()
		batches := partition(sampled, ru.cfg.SchedulerProfile.BatchSize)
		for range batches {
			ru.counters.IncBatch()
		}

		snaps := ru.pool.SnapshotActive()
		in := population.TickInput{
			Tick:          tick,
			Base:          ru.base,
			Environment:   vecmath.Copy(ru.env),
			Snapshots:     snaps,
			GlobalMetrics: vecmath.Copy(ru.metrics),
		}

		out, err := dispatch(ru.ctx, ru.pipeline, batches, in, ru.cfg.SchedulerProfile.WorkerCount)
		if err != nil {
			return err
		}
		for _, s := range out.summaries {
			if s.Terminate {
				ru.pool.MarkTerminated(s.AgentID)
			}
		}

		interactions := 0
		if ru.cfg.SchedulerProfile.InfluenceEnabled {
			interactions = social.Propagate(ru.pool, snaps, tick, ru.base, ru.social)
		}

		ru.pool.ApplyTerminations()

		metrics := ru.tickMetrics(interactions)
		ru.writeEnvironment(out.summaries, metrics)

		tickEnd := ru.r.now()
		elapsedMs := float64(tickEnd.Sub(tickStart)) / float64(time.Millisecond)

		res := models.TickResult{
			Tick:          tick,
			SampledCount:  len(sampled),
			Summaries:     out.summaries,
			Errors:        out.errors,
			EventsApplied: applied,
			Metrics:       metrics,
			ElapsedMs:     elapsedMs,
		}
		ru.trace.TickData = append(ru.trace.TickData, res)
		ru.tracker.RecordTick(res)
		ru.metrics = metrics

		if th := ru.cfg.SchedulerProfile.BackpressureThresholdMs; th > 0 && elapsedMs > float64(th) {
			ru.counters.IncBackpressure()
			ru.logger.Warn("tick over backpressure threshold",
				"tick", tick, "elapsed_ms", elapsedMs, "threshold_ms", th)
		}

		ru.logTick(res)
		ru.keyframe(tick)
		ru.checkpoint(tick)

		if !hardDeadline.IsZero() && tickEnd.After(hardDeadline) {
			return fmt.Errorf("tick %d: %w", tick, models.ErrHardDeadline)
		}
		if !softDeadline.IsZero() && tickEnd.After(softDeadline) {
			ru.logger.Info("soft deadline reached, stopping early", "tick", tick)
			return nil
		}
		if ru.allCommitted() {
			ru.logger.Info("population fully committed", "tick", tick)
			return nil
		}
	}
	return nil
}

// tickMetrics reduces the tick to its scalar series.
func (ru *run) tickMetrics(interactions int) map[string]float64 {
	m := map[string]float64{
		"active_ratio": float64(ru.pool.ActiveCount()) / float64(ru.pool.Size()),
	}
	if ru.cfg.SchedulerProfile.InfluenceEnabled {
		m["interactions"] = float64(interactions)
	}
	return m
}

// writeEnvironment publishes tick aggregates back into the shared
// environment. This is the coordinator's only write window: after the
// parallel phase, before the next tick starts.
func (ru *run) writeEnvironment(summaries []models.AgentTickSummary, metrics map[string]float64) {
	for k := range ru.env {
		if strings.HasPrefix(k, "share:") {
			delete(ru.env, k)
		}
	}
	shares := make(map[string]float64, len(summaries))
	for _, s := range summaries {
		shares[s.ActionType]++
	}
	vecmath.Normalize(shares)
	for k, v := range shares {
		ru.env["share:"+k] = v
	}
	ru.env["active_ratio"] = metrics["active_ratio"]
}

func (ru *run) logTick(res models.TickResult) {
	ru.r.tickLog.Log(logging.TickEvent{
		RunID:       ru.rc.RunID,
		Tick:        res.Tick,
		Sampled:     res.SampledCount,
		Summaries:   len(res.Summaries),
		Errors:      len(res.Errors),
		Events:      res.EventsApplied,
		ActiveRatio: res.Metrics["active_ratio"],
		ElapsedMs:   res.ElapsedMs,
	})
}

// keyframe captures a full population snapshot every keyframeInterval ticks.
func (ru *run) keyframe(tick int) {
	interval := ru.cfg.LoggingProfile.KeyframeInterval
	if interval <= 0 || (tick+1)%interval != 0 {
		return
	}
	for _, a := range ru.pool.All() {
		ru.trace.AgentSnapshots = append(ru.trace.AgentSnapshots, agentSnapshot(a, tick))
	}
}

// checkpoint flushes not-yet-persisted tick rows every persistInterval
// ticks. Flush failures are logged and retried implicitly at the next
// checkpoint; the final flush at run end is authoritative.
func (ru *run) checkpoint(tick int) {
	interval := ru.cfg.LoggingProfile.PersistInterval
	if ru.r.telemetry == nil || interval <= 0 || (tick+1)%interval != 0 {
		return
	}
	pending := ru.trace.TickData[ru.flushed:]
	if len(pending) == 0 {
		return
	}
	if err := ru.r.telemetry.AppendTicks(ru.ctx, ru.rc.RunID, pending); err != nil {
		ru.logger.Warn("checkpoint flush failed", "tick", tick, "error", err)
		return
	}
	ru.flushed = len(ru.trace.TickData)
}

// allCommitted reports whether every remaining agent carries a committed
// action, at which point further ticks stop.
func (ru *run) allCommitted() bool {
	active := ru.pool.Active()
	if len(active) == 0 {
		return false
	}
	for _, a := range active {
		if a.CommittedAction == "" {
			return false
		}
	}
	return true
}

// finalize attaches the final agent states and the counter snapshot. Called
// on every exit path, so even failed runs leave a complete trace.
func (ru *run) finalize() {
	for _, a := range ru.pool.All() {
		ru.trace.FinalStates = append(ru.trace.FinalStates, agentSnapshot(a, -1))
	}
	ru.trace.Counters = ru.counters.Snapshot()
}

func agentSnapshot(a *models.Agent, tick int) models.AgentSnapshot {
	return models.AgentSnapshot{
		Tick:       tick,
		AgentID:    a.ID,
		Segment:    a.Segment,
		State:      a.State.Clone(),
		LastAction: a.LastAction,
		Terminated: a.Terminated,
	}
}
