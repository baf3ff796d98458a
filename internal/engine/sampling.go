package engine

import (
	"math"
	"sort"

	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/rng"
)

// sampler applies the run's sampling policy to the active set each tick.
// Draw streams are derived once per domain and consumed across ticks, so
// which agents sit a tick out depends only on the seed and on how the
// population evolved.
type sampler struct {
	policy models.SamplingPolicy
	ratio  float64
	base   *rng.Stream

	random *rng.Stream
	strata map[string]*rng.Stream
}

func newSampler(profile models.SchedulerProfile, base *rng.Stream) *sampler {
	s := &sampler{
		policy: profile.SamplingPolicy,
		ratio:  profile.SamplingRatio,
		base:   base,
	}
	switch s.policy {
	case models.SamplingRandom:
		s.random = base.Derive("sample")
	case models.SamplingStratified:
		s.strata = make(map[string]*rng.Stream)
	}
	return s
}

// sample selects the agents that participate this tick. The input arrives in
// pool insertion order; "all" preserves it, the drawing policies return draw
// order.
func (s *sampler) sample(active []*models.Agent) []*models.Agent {
	switch s.policy {
	case models.SamplingRandom:
		return s.sampleRandom(active)
	case models.SamplingStratified:
		return s.sampleStratified(active)
	default:
		return active
	}
}

// sampleRandom draws ceil(n*ratio) agents without replacement.
func (s *sampler) sampleRandom(active []*models.Agent) []*models.Agent {
	k := int(math.Ceil(float64(len(active)) * s.ratio))
	return rng.Sample(s.random, active, k)
}

// sampleStratified draws max(1, round(len*ratio)) agents per populated
// segment, each segment on its own stream. Segments are visited in sorted
// order so the concatenated result is stable.
func (s *sampler) sampleStratified(active []*models.Agent) []*models.Agent {
	groups := make(map[string][]*models.Agent)
	for _, a := range active {
		groups[a.Segment] = append(groups[a.Segment], a)
	}
	segments := make([]string, 0, len(groups))
	for seg := range groups {
		segments = append(segments, seg)
	}
	sort.Strings(segments)

	var sampled []*models.Agent
	for _, seg := range segments {
		agents := groups[seg]
		stream, ok := s.strata[seg]
		if !ok {
			stream = s.base.Derive("stratified:" + seg)
			s.strata[seg] = stream
		}
		k := int(math.Round(float64(len(agents)) * s.ratio))
		if k < 1 {
			k = 1
		}
		sampled = append(sampled, rng.Sample(stream, agents, k)...)
	}
	return sampled
}
