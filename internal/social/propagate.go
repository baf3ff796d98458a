package social

import (
	"fmt"

	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/population"
	"github.com/nvandessel/simcast/internal/rng"
	"github.com/nvandessel/simcast/internal/vecmath"
)

// Propagate runs one diffusion pass over the active population. Each agent
// interacts with probability engagement * interactionCoefficient, drawn from
// its own tick-scoped stream; on an interaction it pulls one peer (weighted
// by edge weight) toward itself and renormalizes. Peer reads go through the
// tick-start snapshots, so the order agents are visited in cannot leak into
// what they observe. Returns the number of interactions that fired.
func Propagate(pool *population.Pool, snaps map[string]models.PublicState, tick int, base *rng.Stream, cfg Config) int {
	interactions := 0
	for _, a := range pool.Active() {
		if a.Social == nil || len(a.Social.PeerIDs) == 0 {
			continue
		}
		stream := base.Derive(fmt.Sprintf("influence:%s:tick:%d", a.ID, tick))
		p := a.State.Engagement * a.BehavioralParams.InteractionCoefficient
		if p <= 0 || stream.NextFloat() >= p {
			continue
		}
		peer, ok := pickPeer(a, snaps, stream)
		if !ok {
			continue
		}
		w := a.Social.Weights[peer.ID] * a.State.InfluenceSusceptibility * cfg.BlendGain
		w = vecmath.Clamp(w, 0, 1)
		if w == 0 {
			continue
		}
		vecmath.BlendToward(a.State.Preferences, peer.Preferences, w)
		vecmath.Normalize(a.State.Preferences)
		interactions++
	}
	return interactions
}

// pickPeer selects one live peer by edge weight. Peers without a snapshot
// were terminated before the tick started and are skipped.
func pickPeer(a *models.Agent, snaps map[string]models.PublicState, s *rng.Stream) (models.PublicState, bool) {
	ids := make([]string, 0, len(a.Social.PeerIDs))
	weights := make([]float64, 0, len(a.Social.PeerIDs))
	for _, id := range a.Social.PeerIDs {
		if _, ok := snaps[id]; !ok {
			continue
		}
		ids = append(ids, id)
		weights = append(weights, a.Social.Weights[id])
	}
	if len(ids) == 0 {
		return models.PublicState{}, false
	}
	i := vecmath.WeightedIndex(weights, s.NextFloat())
	if i < 0 {
		return models.PublicState{}, false
	}
	return snaps[ids[i]], true
}
