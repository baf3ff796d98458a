package outcome

import (
	"math"

	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/vecmath"
)

// minSeriesTicks is the history length required before the confidence
// interval switches from the normal approximation to the variance of the
// per-tick primary-share series.
const minSeriesTicks = 10

// Inputs carries the run-end context Aggregate needs beyond the tick tally.
type Inputs struct {
	RunID           string
	Agents          []*models.Agent // full population, terminated included
	TicksExecuted   int
	EventsProcessed int
	StoppedEarly    bool
}

// Aggregate computes the run-level outcome from the recorded ticks and the
// final agent states. When no agent ever signalled an outcome, the final
// preference distributions vote instead, so a short run still reports a
// result. Called exactly once, after the last tick.
func (tr *Tracker) Aggregate(in Inputs) *models.AggregatedOutcome {
	votes := make(map[string]float64, len(tr.outcomeVotes))
	var total float64
	for k, v := range tr.outcomeVotes {
		votes[k] = float64(v)
		total += float64(v)
	}
	if total == 0 {
		for _, a := range in.Agents {
			if action := finalAction(a); action != "" {
				votes[action]++
				total++
			}
		}
	}

	dist := vecmath.Copy(votes)
	vecmath.Normalize(dist)
	primary, share := vecmath.ArgMax(dist)

	return &models.AggregatedOutcome{
		RunID:               in.RunID,
		PrimaryOutcome:      primary,
		OutcomeDistribution: dist,
		ActionCounts:        tr.ActionCounts(),
		ConfidenceInterval:  tr.confidence(primary, share, total),
		RegionalBreakdown:   breakdown(in.Agents, func(a *models.Agent) string { return a.Demographics.Region }),
		AgeBreakdown:        breakdown(in.Agents, func(a *models.Agent) string { return a.Demographics.AgeBucket() }),
		StoppedEarly:        in.StoppedEarly,
		KeyMetrics: []models.KeyMetric{
			{Name: "ticks_executed", Value: float64(in.TicksExecuted)},
			{Name: "agent_count", Value: float64(len(in.Agents))},
			{Name: "events_processed", Value: float64(in.EventsProcessed)},
			{Name: "final_active_ratio", Value: activeRatio(in.Agents)},
		},
	}
}

// confidence bounds the primary outcome's share. With enough tick history
// the interval comes from the variance of the last 20% of the per-tick
// primary-share series; otherwise from the worst-case normal approximation
// 1.96*sqrt(0.25/n).
func (tr *Tracker) confidence(primary string, share, total float64) models.ConfidenceInterval {
	if total <= 0 {
		return models.ConfidenceInterval{Lower: 0, Upper: 1, Method: "normal-approximation"}
	}
	if series := tr.primaryShares(primary); len(series) >= minSeriesTicks {
		window := series[len(series)-len(series)/5:]
		margin := 1.96 * math.Sqrt(variance(window)/float64(len(window)))
		return interval(share, margin, "series-variance")
	}
	margin := 1.96 * math.Sqrt(0.25/total)
	return interval(share, margin, "normal-approximation")
}

// primaryShares is the per-tick share of votes that went to the primary
// outcome. Ticks where nobody voted carry no information and are skipped.
func (tr *Tracker) primaryShares(primary string) []float64 {
	shares := make([]float64, 0, len(tr.voteHistory))
	for _, votes := range tr.voteHistory {
		var tickTotal int64
		for _, v := range votes {
			tickTotal += v
		}
		if tickTotal == 0 {
			continue
		}
		shares = append(shares, float64(votes[primary])/float64(tickTotal))
	}
	return shares
}

func interval(center, margin float64, method string) models.ConfidenceInterval {
	return models.ConfidenceInterval{
		Lower:  vecmath.Clamp(center-margin, 0, 1),
		Upper:  vecmath.Clamp(center+margin, 0, 1),
		Method: method,
	}
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var v float64
	for _, x := range xs {
		d := x - mean
		v += d * d
	}
	return v / float64(len(xs))
}

// breakdown groups final actions by a demographic key and normalizes within
// each group, so every row reads as a distribution over actions.
func breakdown(agents []*models.Agent, key func(*models.Agent) string) map[string]map[string]float64 {
	groups := make(map[string]map[string]float64)
	for _, a := range agents {
		action := finalAction(a)
		if action == "" {
			continue
		}
		k := key(a)
		if k == "" {
			k = "unknown"
		}
		if groups[k] == nil {
			groups[k] = make(map[string]float64)
		}
		groups[k][action]++
	}
	for _, g := range groups {
		vecmath.Normalize(g)
	}
	return groups
}

// finalAction is the agent's last explicit action, falling back to its
// strongest preference when it never acted.
func finalAction(a *models.Agent) string {
	if a.LastAction != "" {
		return a.LastAction
	}
	k, _ := vecmath.ArgMax(a.State.Preferences)
	return k
}

func activeRatio(agents []*models.Agent) float64 {
	if len(agents) == 0 {
		return 0
	}
	active := 0
	for _, a := range agents {
		if !a.Terminated {
			active++
		}
	}
	return float64(active) / float64(len(agents))
}
