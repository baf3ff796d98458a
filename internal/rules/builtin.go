package rules

import (
	"context"
	"fmt"

	"github.com/nvandessel/simcast/internal/vecmath"
)

func init() {
	Register("noop", "1.0.0", func(map[string]float64) (Engine, error) {
		return noopEngine{}, nil
	})
	Register("momentum", "1.0.0", newMomentum)
	Register("commitment", "1.0.0", newCommitment)
}

// noopEngine applies no updates. It still counts as a pipeline pass so
// determinism tests exercise the same code path as real rule packs.
type noopEngine struct{}

func (noopEngine) Name() string    { return "noop" }
func (noopEngine) Version() string { return "1.0.0" }

func (noopEngine) RunAgentTick(context.Context, Context) (Result, error) {
	return Result{}, nil
}

// momentumEngine drags engagement toward the agent's information
// exposure: agents who keep seeing material about the scenario become
// more engaged, agents starved of it cool off.
type momentumEngine struct {
	rate float64
}

func newMomentum(params map[string]float64) (Engine, error) {
	rate := 0.1
	if v, ok := params["rate"]; ok {
		rate = v
	}
	if rate < 0 || rate > 1 {
		return nil, fmt.Errorf("rate %v outside [0,1]", rate)
	}
	return &momentumEngine{rate: rate}, nil
}

func (e *momentumEngine) Name() string    { return "momentum" }
func (e *momentumEngine) Version() string { return "1.0.0" }

func (e *momentumEngine) RunAgentTick(_ context.Context, rc Context) (Result, error) {
	cur := rc.AgentState.Engagement
	next := vecmath.Clamp(cur+e.rate*(rc.AgentState.InformationExposure-cur), 0, 1)
	return Result{
		StateUpdates: map[string]float64{"engagement": next},
		Applied: []Application{{
			RuleName:       e.Name(),
			RuleVersion:    e.Version(),
			InsertionPoint: InsertionUpdate,
			AgentsAffected: 1,
		}},
	}, nil
}

// commitmentEngine hardens commitment once certainty is high and lets
// it relax otherwise. The threshold and step come from profile params.
type commitmentEngine struct {
	threshold float64
	step      float64
}

func newCommitment(params map[string]float64) (Engine, error) {
	e := &commitmentEngine{threshold: 0.7, step: 0.05}
	if v, ok := params["threshold"]; ok {
		e.threshold = v
	}
	if v, ok := params["step"]; ok {
		e.step = v
	}
	if e.threshold < 0 || e.threshold > 1 {
		return nil, fmt.Errorf("threshold %v outside [0,1]", e.threshold)
	}
	if e.step <= 0 {
		return nil, fmt.Errorf("step %v must be positive", e.step)
	}
	return e, nil
}

func (e *commitmentEngine) Name() string    { return "commitment" }
func (e *commitmentEngine) Version() string { return "1.0.0" }

func (e *commitmentEngine) RunAgentTick(_ context.Context, rc Context) (Result, error) {
	cur := rc.AgentState.CommitmentStrength
	var next float64
	if rc.AgentState.Certainty >= e.threshold {
		next = vecmath.Clamp(cur+e.step, 0, 1)
	} else {
		next = vecmath.Clamp(cur-e.step/2, 0, 1)
	}
	if next == cur {
		return Result{}, nil
	}
	return Result{
		StateUpdates: map[string]float64{"commitment_strength": next},
		Applied: []Application{{
			RuleName:       e.Name(),
			RuleVersion:    e.Version(),
			InsertionPoint: InsertionUpdate,
			AgentsAffected: 1,
		}},
	}, nil
}
