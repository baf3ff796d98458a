package population

import (
	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/rng"
	"github.com/nvandessel/simcast/internal/rules"
	"github.com/nvandessel/simcast/internal/vecmath"
)

// Observation is what an agent perceives at tick start: the shared
// environment and its peers' public snapshots. Both are read-only.
type Observation struct {
	Environment   map[string]float64
	Peers         []models.PublicState
	GlobalMetrics map[string]float64
}

// Evaluation condenses an observation into the signals Decide works
// from.
type Evaluation struct {
	// PeerShares is the normalized distribution of actions peers took
	// last tick.
	PeerShares map[string]float64
	// Sentiment summarizes the macro environment in [-1, 1].
	Sentiment float64
	// Exposure is how much scenario material reached the agent, [0, 1].
	Exposure float64
}

// Decision is a chosen action plus everything Update needs to persist.
// A nil Decision means the agent sat this tick out.
type Decision struct {
	ActionType    string
	OutcomeSignal string
	Commit        bool
	Exposure      float64
	// AdjustedPreferences is the post-bias distribution the action was
	// sampled from. Update writes it back to the state vector.
	AdjustedPreferences map[string]float64
}

// ActionResult is one observable effect of a decision.
type ActionResult struct {
	Type      string
	Signal    string
	Intensity float64
}

// Behavior is the five-stage agent strategy. Implementations must be
// stateless and safe for concurrent use across agents; per-agent state
// lives on the Agent, and only Update may write it.
type Behavior interface {
	Observe(a *models.Agent, env map[string]float64, peers []models.PublicState, metrics map[string]float64) (Observation, error)
	Evaluate(a *models.Agent, obs Observation) (Evaluation, error)
	Decide(a *models.Agent, ev Evaluation, stream *rng.Stream) (*Decision, error)
	Act(a *models.Agent, d *Decision) ([]ActionResult, error)
	Update(a *models.Agent, d *Decision, results []ActionResult, ruleUpdates map[string]float64) error
}

// certaintyGain and certaintySwitchCost drive how conviction moves when
// an agent repeats or abandons its previous action.
const (
	certaintyGain       = 0.05
	certaintySwitchCost = 0.10
	commitThreshold     = 0.85
	exitAction          = "exit"
)

// DefaultBehavior models a boundedly-rational population member: it
// reads peer actions and macro sentiment, runs its preferences through
// the bias stack, then samples an action from the result.
type DefaultBehavior struct{}

func (DefaultBehavior) Observe(a *models.Agent, env map[string]float64, peers []models.PublicState, metrics map[string]float64) (Observation, error) {
	return Observation{Environment: env, Peers: peers, GlobalMetrics: metrics}, nil
}

func (DefaultBehavior) Evaluate(a *models.Agent, obs Observation) (Evaluation, error) {
	shares := make(map[string]float64)
	for _, peer := range obs.Peers {
		if peer.LastAction != "" {
			shares[peer.LastAction]++
		}
	}
	vecmath.Normalize(shares)

	sentiment := vecmath.Clamp(
		obs.Environment["economic_confidence"]+obs.Environment["political_stability"],
		-1, 1,
	)
	exposure := vecmath.Clamp(0.5+obs.Environment["media_attention"], 0, 1)

	return Evaluation{PeerShares: shares, Sentiment: sentiment, Exposure: exposure}, nil
}

func (DefaultBehavior) Decide(a *models.Agent, ev Evaluation, stream *rng.Stream) (*Decision, error) {
	if len(a.State.Preferences) == 0 {
		return nil, nil
	}

	mem := rules.Memory{
		Anchor:          a.Anchor,
		PeerShares:      ev.PeerShares,
		LastAction:      a.LastAction,
		CommittedAction: a.CommittedAction,
	}
	env := map[string]float64{"sentiment": ev.Sentiment}
	adjusted := rules.AdjustPreferences(a.State.Preferences, a.BehavioralParams, env, mem, stream)

	action := vecmath.WeightedKey(adjusted, stream.NextFloat())
	if action == "" {
		return nil, nil
	}

	commit := a.CommittedAction == "" && a.State.Certainty >= commitThreshold && action == a.LastAction
	return &Decision{
		ActionType:          action,
		OutcomeSignal:       action,
		Commit:              commit,
		Exposure:            ev.Exposure,
		AdjustedPreferences: adjusted,
	}, nil
}

func (DefaultBehavior) Act(a *models.Agent, d *Decision) ([]ActionResult, error) {
	if d == nil {
		return nil, nil
	}
	return []ActionResult{{
		Type:      d.ActionType,
		Signal:    d.OutcomeSignal,
		Intensity: a.State.Engagement,
	}}, nil
}

func (DefaultBehavior) Update(a *models.Agent, d *Decision, results []ActionResult, ruleUpdates map[string]float64) error {
	if d != nil {
		if d.ActionType == a.LastAction {
			a.State.Certainty = vecmath.Clamp(a.State.Certainty+certaintyGain, 0, 1)
		} else if a.LastAction != "" {
			a.State.Certainty = vecmath.Clamp(a.State.Certainty-certaintySwitchCost, 0, 1)
		}
		a.State.Preferences = vecmath.Copy(d.AdjustedPreferences)
		a.State.InformationExposure = d.Exposure
		a.LastAction = d.ActionType
		if d.Commit {
			a.CommittedAction = d.ActionType
		}
	}
	return ApplyStateUpdates(&a.State, ruleUpdates)
}
