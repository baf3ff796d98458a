package models

// Pipeline stage names, as they appear in stage errors and counters.
const (
	StageObserve  = "observe"
	StageEvaluate = "evaluate"
	StageDecide   = "decide"
	StageAct      = "act"
	StageUpdate   = "update"
)

// Stages lists the five pipeline stages in execution order.
var Stages = []string{StageObserve, StageEvaluate, StageDecide, StageAct, StageUpdate}

// Demographics describes the fixed personal attributes of an agent. The
// known fields cover what the engine itself reads (age buckets, regional
// breakdowns, similarity matching); Extra preserves any additional numeric
// attributes a persona source supplies.
type Demographics struct {
	Age           int                `json:"age" yaml:"age"`
	Region        string             `json:"region" yaml:"region"`
	Gender        string             `json:"gender,omitempty" yaml:"gender,omitempty"`
	Education     string             `json:"education,omitempty" yaml:"education,omitempty"`
	IncomeBracket string             `json:"income_bracket,omitempty" yaml:"income_bracket,omitempty"`
	Extra         map[string]float64 `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// AgeBucket returns the reporting bucket this agent falls into.
func (d Demographics) AgeBucket() string {
	switch {
	case d.Age < 25:
		return "<25"
	case d.Age < 35:
		return "25-34"
	case d.Age < 45:
		return "35-44"
	case d.Age < 55:
		return "45-54"
	case d.Age < 65:
		return "55-64"
	default:
		return "65+"
	}
}

// BehavioralParams are the per-agent weights consumed by the behavioral bias
// transform and the social propagator.
type BehavioralParams struct {
	StatusQuoBias          float64            `json:"status_quo_bias" yaml:"status_quo_bias"`
	BandwagonWeight        float64            `json:"bandwagon_weight" yaml:"bandwagon_weight"`
	AnchoringWeight        float64            `json:"anchoring_weight" yaml:"anchoring_weight"`
	ConfirmationBias       float64            `json:"confirmation_bias" yaml:"confirmation_bias"`
	LossAversion           float64            `json:"loss_aversion" yaml:"loss_aversion"`
	InteractionCoefficient float64            `json:"interaction_coefficient" yaml:"interaction_coefficient"`
	Extra                  map[string]float64 `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// ApplyModifier multiplies the named parameter by the given factor. Unknown
// names fall through to Extra so scenario patches can address attributes the
// engine does not interpret itself.
func (p *BehavioralParams) ApplyModifier(name string, factor float64) {
	switch name {
	case "status_quo_bias":
		p.StatusQuoBias *= factor
	case "bandwagon_weight":
		p.BandwagonWeight *= factor
	case "anchoring_weight":
		p.AnchoringWeight *= factor
	case "confirmation_bias":
		p.ConfirmationBias *= factor
	case "loss_aversion":
		p.LossAversion *= factor
	case "interaction_coefficient":
		p.InteractionCoefficient *= factor
	default:
		if p.Extra == nil {
			return
		}
		if v, ok := p.Extra[name]; ok {
			p.Extra[name] = v * factor
		}
	}
}

// Psychographics carry trait scores in [0, 1].
type Psychographics struct {
	Openness      float64            `json:"openness" yaml:"openness"`
	Conformity    float64            `json:"conformity" yaml:"conformity"`
	RiskTolerance float64            `json:"risk_tolerance" yaml:"risk_tolerance"`
	Extra         map[string]float64 `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// StateVector is the mutable part of an agent. Preferences form a simplex
// over the run's outcome options; the scalar traits live in [0, 1].
type StateVector struct {
	Preferences             map[string]float64 `json:"preferences"`
	Engagement              float64            `json:"engagement"`
	Certainty               float64            `json:"certainty"`
	InfluenceSusceptibility float64            `json:"influence_susceptibility"`
	InformationExposure     float64            `json:"information_exposure"`
	CommitmentStrength      float64            `json:"commitment_strength"`
}

// Clone returns a deep copy. Snapshots hand copies to other goroutines, so
// sharing the preference map would be a data race.
func (sv StateVector) Clone() StateVector {
	out := sv
	out.Preferences = make(map[string]float64, len(sv.Preferences))
	for k, v := range sv.Preferences {
		out.Preferences[k] = v
	}
	return out
}

// SocialNetwork is an agent's outbound edge set, built once at run start.
type SocialNetwork struct {
	PeerIDs []string           `json:"peer_ids,omitempty"`
	Weights map[string]float64 `json:"weights,omitempty"`
}

// Agent is one member of the simulated population. Only the agent's own
// Update stage and the social propagator may mutate State; everything else
// reads snapshots.
type Agent struct {
	ID               string             `json:"id"`
	Segment          string             `json:"segment"`
	Demographics     Demographics       `json:"demographics"`
	BehavioralParams BehavioralParams   `json:"behavioral_params"`
	Psychographics   Psychographics     `json:"psychographics"`
	State            StateVector        `json:"state"`
	Anchor           map[string]float64 `json:"anchor,omitempty"` // preferences at initialization
	Social           *SocialNetwork     `json:"social,omitempty"`
	LastAction       string             `json:"last_action,omitempty"`
	CommittedAction  string             `json:"committed_action,omitempty"`
	Terminated       bool               `json:"terminated,omitempty"`
}

// PublicState is the immutable projection of an agent that peers observe.
// It is captured at tick start, before any batch runs.
type PublicState struct {
	ID          string             `json:"id"`
	Segment     string             `json:"segment"`
	Preferences map[string]float64 `json:"preferences"`
	Engagement  float64            `json:"engagement"`
	LastAction  string             `json:"last_action,omitempty"`
}

// Snapshot builds the public projection of the agent's current state.
func (a *Agent) Snapshot() PublicState {
	prefs := make(map[string]float64, len(a.State.Preferences))
	for k, v := range a.State.Preferences {
		prefs[k] = v
	}
	return PublicState{
		ID:          a.ID,
		Segment:     a.Segment,
		Preferences: prefs,
		Engagement:  a.State.Engagement,
		LastAction:  a.LastAction,
	}
}
