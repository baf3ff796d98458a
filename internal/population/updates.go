package population

import (
	"fmt"
	"strings"

	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/vecmath"
)

const preferencePrefix = "preferences."

// ApplyStateUpdates merges a rule engine's state updates into a state
// vector. Bare scalar names set that scalar (clamped to [0,1]);
// "preferences.<option>" sets one preference weight, and the whole
// distribution is renormalized afterwards. Unknown keys are an error so
// a misconfigured rule pack fails loudly instead of silently no-oping.
func ApplyStateUpdates(sv *models.StateVector, updates map[string]float64) error {
	if len(updates) == 0 {
		return nil
	}
	prefsTouched := false
	for _, key := range vecmath.SortedKeys(updates) {
		v := updates[key]
		switch key {
		case "engagement":
			sv.Engagement = vecmath.Clamp(v, 0, 1)
		case "certainty":
			sv.Certainty = vecmath.Clamp(v, 0, 1)
		case "influence_susceptibility":
			sv.InfluenceSusceptibility = vecmath.Clamp(v, 0, 1)
		case "information_exposure":
			sv.InformationExposure = vecmath.Clamp(v, 0, 1)
		case "commitment_strength":
			sv.CommitmentStrength = vecmath.Clamp(v, 0, 1)
		default:
			if !strings.HasPrefix(key, preferencePrefix) {
				return fmt.Errorf("population: rule update targets unknown state field %q", key)
			}
			option := strings.TrimPrefix(key, preferencePrefix)
			if option == "" {
				return fmt.Errorf("population: rule update has empty preference option")
			}
			if sv.Preferences == nil {
				sv.Preferences = make(map[string]float64)
			}
			if v < 0 {
				v = 0
			}
			sv.Preferences[option] = v
			prefsTouched = true
		}
	}
	if prefsTouched {
		vecmath.Normalize(sv.Preferences)
	}
	return nil
}
