package rules

import (
	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/rng"
	"github.com/nvandessel/simcast/internal/vecmath"
)

// Memory is the slice of an agent's history the bias layer reads.
type Memory struct {
	// Anchor holds the preferences the agent started the run with.
	Anchor map[string]float64
	// PeerShares is the distribution of actions the agent's peers took
	// last tick, normalized to sum to 1 (empty when no peers acted).
	PeerShares map[string]float64
	// LastAction is the action chosen on the previous tick, if any.
	LastAction string
	// CommittedAction is a locked-in choice, if any.
	CommittedAction string
}

// preferenceJitter bounds the symmetric noise applied after the biases
// so equally-weighted options do not tie forever.
const preferenceJitter = 0.02

// AdjustPreferences applies the behavioral bias stack to a preference
// distribution and returns a fresh, renormalized copy. The input map is
// never mutated. Keys are always processed in sorted order and the
// stream is consumed exactly once per key, so identical inputs yield
// identical outputs.
//
// Biases, in order: status quo, bandwagon, anchoring, confirmation,
// loss aversion, then jitter and renormalization.
func AdjustPreferences(
	prefs map[string]float64,
	params models.BehavioralParams,
	env map[string]float64,
	mem Memory,
	stream *rng.Stream,
) map[string]float64 {
	out := vecmath.Copy(prefs)
	if len(out) == 0 {
		return out
	}
	keys := vecmath.SortedKeys(out)
	uniform := 1.0 / float64(len(keys))

	// Status quo: repeating yesterday's choice feels safer than moving.
	if mem.LastAction != "" {
		if _, ok := out[mem.LastAction]; ok {
			out[mem.LastAction] *= 1 + params.StatusQuoBias
		}
	}

	// Bandwagon: options peers visibly picked gain weight in proportion
	// to how many picked them.
	if params.BandwagonWeight > 0 && len(mem.PeerShares) > 0 {
		for _, k := range keys {
			if share := mem.PeerShares[k]; share > 0 {
				out[k] *= 1 + params.BandwagonWeight*share
			}
		}
	}

	// Anchoring: blend back toward the preferences the agent began with.
	if params.AnchoringWeight > 0 && len(mem.Anchor) > 0 {
		w := vecmath.Clamp(params.AnchoringWeight, 0, 1)
		for _, k := range keys {
			out[k] = out[k]*(1-w) + mem.Anchor[k]*w
		}
	}

	// Confirmation: sharpen whatever already leads. Options above the
	// uniform share grow, options below it shrink.
	if params.ConfirmationBias > 0 {
		for _, k := range keys {
			out[k] *= 1 + params.ConfirmationBias*(out[k]-uniform)
			if out[k] < 0 {
				out[k] = 0
			}
		}
	}

	// Loss aversion: walking away from a committed choice is costlier
	// than never committing, so the committed option gets defended.
	if mem.CommittedAction != "" && params.LossAversion > 0 {
		if _, ok := out[mem.CommittedAction]; ok {
			out[mem.CommittedAction] *= 1 + params.LossAversion
		}
	}

	// Environment pressure: a variable named after an option leans the
	// distribution toward (or away from) it.
	for _, k := range keys {
		if v, ok := env["pressure:"+k]; ok {
			out[k] *= 1 + v
			if out[k] < 0 {
				out[k] = 0
			}
		}
	}

	if stream != nil {
		for _, k := range keys {
			out[k] *= 1 + preferenceJitter*(2*stream.NextFloat()-1)
		}
	}

	vecmath.Normalize(out)
	return out
}
