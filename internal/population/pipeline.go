package population

import (
	"context"
	"fmt"

	"github.com/nvandessel/simcast/internal/evidence"
	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/rng"
	"github.com/nvandessel/simcast/internal/rules"
)

// TickInput is the per-tick payload shared by every agent in a batch.
// Environment, snapshots and metrics are tick-start copies; workers
// only read them.
type TickInput struct {
	Tick          int
	Base          *rng.Stream
	Environment   map[string]float64
	Snapshots     map[string]models.PublicState
	GlobalMetrics map[string]float64
}

// Pipeline runs the fixed five-stage agent loop. One Pipeline instance
// serves every worker; all mutable state is on the agent being run.
type Pipeline struct {
	behavior Behavior
	engine   rules.Engine
	counters *evidence.Counters
	pool     *Pool
}

func NewPipeline(b Behavior, eng rules.Engine, c *evidence.Counters, pool *Pool) *Pipeline {
	return &Pipeline{behavior: b, engine: eng, counters: c, pool: pool}
}

// RunAgent executes Observe, Evaluate, Decide, Act, Update for one
// agent. A stage failure (error or panic) is returned as an
// AgentStageError and never aborts the caller; a rule engine failure is
// returned as the fatal error and must abort the run.
func (p *Pipeline) RunAgent(ctx context.Context, a *models.Agent, in TickInput) (summary models.AgentTickSummary, stageErr *models.AgentStageError, fatal error) {
	stream := in.Base.Derive(fmt.Sprintf("agent:%s:tick:%d", a.ID, in.Tick))
	stage := models.StageObserve

	defer func() {
		if r := recover(); r != nil {
			summary = models.AgentTickSummary{AgentID: a.ID}
			stageErr = &models.AgentStageError{
				AgentID: a.ID,
				Tick:    in.Tick,
				Stage:   stage,
				Message: fmt.Sprintf("panic: %v", r),
			}
			fatal = nil
		}
	}()

	fail := func(err error) (models.AgentTickSummary, *models.AgentStageError, error) {
		return models.AgentTickSummary{AgentID: a.ID}, &models.AgentStageError{
			AgentID: a.ID,
			Tick:    in.Tick,
			Stage:   stage,
			Message: err.Error(),
		}, nil
	}

	p.counters.IncStage(stage)
	peers := p.pool.PeerSnapshots(a, in.Snapshots)
	obs, err := p.behavior.Observe(a, in.Environment, peers, in.GlobalMetrics)
	if err != nil {
		return fail(err)
	}

	stage = models.StageEvaluate
	p.counters.IncStage(stage)
	ev, err := p.behavior.Evaluate(a, obs)
	if err != nil {
		return fail(err)
	}

	stage = models.StageDecide
	p.counters.IncStage(stage)
	decision, err := p.behavior.Decide(a, ev, stream)
	if err != nil {
		return fail(err)
	}

	stage = models.StageAct
	p.counters.IncStage(stage)
	results, err := p.behavior.Act(a, decision)
	if err != nil {
		return fail(err)
	}

	stage = models.StageUpdate
	p.counters.IncStage(stage)
	ruleResult, err := p.runRules(ctx, a, in, peers, stream.Seed())
	if err != nil {
		return models.AgentTickSummary{AgentID: a.ID}, nil, err
	}
	if err := p.behavior.Update(a, decision, results, ruleResult.StateUpdates); err != nil {
		return fail(err)
	}

	p.counters.IncAgentSteps(1)

	summary = models.AgentTickSummary{AgentID: a.ID}
	if decision != nil {
		summary.ActionType = decision.ActionType
		summary.OutcomeSignal = decision.OutcomeSignal
		summary.Terminate = decision.ActionType == exitAction
	}
	return summary, nil, nil
}

// runRules invokes the pluggable engine and books its applications.
// Any error here is fatal to the run: a rule pack that fails for a
// subset of agents would silently fork determinism.
func (p *Pipeline) runRules(ctx context.Context, a *models.Agent, in TickInput, peers []models.PublicState, seed uint32) (rules.Result, error) {
	rc := rules.Context{
		AgentID:       a.ID,
		Tick:          in.Tick,
		Seed:          seed,
		Environment:   in.Environment,
		AgentState:    a.State.Clone(),
		PeerStates:    peers,
		GlobalMetrics: in.GlobalMetrics,
	}
	res, err := p.engine.RunAgentTick(ctx, rc)
	if err != nil {
		return rules.Result{}, &models.RuleEngineError{
			RuleName: p.engine.Name(),
			Tick:     in.Tick,
			Err:      err,
		}
	}
	for _, app := range res.Applied {
		p.counters.IncRule(app.RuleName, app.RuleVersion, app.InsertionPoint)
	}
	return res, nil
}
