// Package social builds the run-start interaction graph and diffuses
// preference mass across it once per tick. Edges are directed outward from
// each agent, weighted by attribute affinity, and fixed for the lifetime of
// the run; only the diffusion pass touches agent state.
package social

import (
	"math"

	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/population"
	"github.com/nvandessel/simcast/internal/rng"
	"github.com/nvandessel/simcast/internal/vecmath"
)

// Config holds tunable parameters for graph construction and diffusion.
type Config struct {
	// AvgConnections is the mean of the exponential degree draw. Default: 4.
	AvgConnections float64

	// BaseAffinity is the weight floor for every candidate pair, so agents
	// with no shared attributes remain reachable. Default: 0.1.
	BaseAffinity float64

	// AttributeAffinity is the weight added per matching categorical
	// attribute (segment, region, gender, education, income bracket).
	// Default: 0.2.
	AttributeAffinity float64

	// BlendGain scales each diffusion step before susceptibility and edge
	// weight are applied. Default: 0.5.
	BlendGain float64
}

// DefaultConfig returns the default social graph configuration.
func DefaultConfig() Config {
	return Config{
		AvgConnections:    4,
		BaseAffinity:      0.1,
		AttributeAffinity: 0.2,
		BlendGain:         0.5,
	}
}

// Build wires a social network into every agent in the pool. Degrees come
// from an exponential draw on a stream derived from base, peers from
// affinity-weighted sampling without replacement. Agents are visited in
// insertion order, so the same pool and seed always produce the same graph.
func Build(pool *population.Pool, cfg Config, base *rng.Stream) {
	agents := pool.All()
	if len(agents) < 2 {
		return
	}
	stream := base.Derive("social:graph")
	for _, a := range agents {
		degree := drawDegree(stream, cfg.AvgConnections, len(agents)-1)
		if degree == 0 {
			continue
		}
		peerIDs, weights := pickPeers(a, agents, degree, cfg, stream)
		if len(peerIDs) == 0 {
			continue
		}
		a.Social = &models.SocialNetwork{PeerIDs: peerIDs, Weights: weights}
	}
}

// drawDegree samples round(Exponential(avg)) via the inverse CDF, capped at
// max so an agent can never be wired to more peers than exist.
func drawDegree(s *rng.Stream, avg float64, max int) int {
	if avg <= 0 || max <= 0 {
		return 0
	}
	u := s.NextFloat()
	d := int(math.Round(-avg * math.Log(1-u)))
	if d > max {
		d = max
	}
	return d
}

// pickPeers selects k distinct peers for a, weighted by affinity. Each round
// draws one candidate by cumulative weight and removes it from the pool.
func pickPeers(a *models.Agent, agents []*models.Agent, k int, cfg Config, s *rng.Stream) ([]string, map[string]float64) {
	ids := make([]string, 0, len(agents)-1)
	affinities := make([]float64, 0, len(agents)-1)
	for _, b := range agents {
		if b.ID == a.ID {
			continue
		}
		ids = append(ids, b.ID)
		affinities = append(affinities, affinity(a, b, cfg))
	}
	if k > len(ids) {
		k = len(ids)
	}

	peerIDs := make([]string, 0, k)
	weights := make(map[string]float64, k)
	for len(peerIDs) < k {
		i := vecmath.WeightedIndex(affinities, s.NextFloat())
		if i < 0 {
			break
		}
		peerIDs = append(peerIDs, ids[i])
		weights[ids[i]] = affinities[i]
		ids = append(ids[:i], ids[i+1:]...)
		affinities = append(affinities[:i], affinities[i+1:]...)
	}
	return peerIDs, weights
}

// affinity scores a candidate edge: the base floor plus a fixed bonus per
// matching categorical attribute. Empty demographic fields never match.
func affinity(a, b *models.Agent, cfg Config) float64 {
	w := cfg.BaseAffinity
	if a.Segment == b.Segment {
		w += cfg.AttributeAffinity
	}
	ad, bd := a.Demographics, b.Demographics
	if ad.Region != "" && ad.Region == bd.Region {
		w += cfg.AttributeAffinity
	}
	if ad.Gender != "" && ad.Gender == bd.Gender {
		w += cfg.AttributeAffinity
	}
	if ad.Education != "" && ad.Education == bd.Education {
		w += cfg.AttributeAffinity
	}
	if ad.IncomeBracket != "" && ad.IncomeBracket == bd.IncomeBracket {
		w += cfg.AttributeAffinity
	}
	return w
}
