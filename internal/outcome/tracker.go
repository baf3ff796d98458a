// Package outcome folds per-tick results into run-level aggregates: action
// counts, outcome vote tallies, metric time series, and at run end the
// aggregated outcome with its confidence interval and demographic breakdowns.
package outcome

import (
	"github.com/nvandessel/simcast/internal/models"
)

// Tracker accumulates tick results over a run. Ticks are strictly
// sequential, so the tracker is not safe for concurrent use; the coordinator
// owns it.
type Tracker struct {
	actionCounts map[string]int64
	outcomeVotes map[string]int64
	voteHistory  []map[string]int64
	series       map[string][]float64
	ticks        int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		actionCounts: make(map[string]int64),
		outcomeVotes: make(map[string]int64),
		series:       make(map[string][]float64),
	}
}

// RecordTick folds one completed tick into the aggregates. Summaries vote
// once per agent; metrics are appended to their time series.
func (tr *Tracker) RecordTick(res models.TickResult) {
	tr.ticks++
	votes := make(map[string]int64)
	for _, s := range res.Summaries {
		if s.ActionType != "" {
			tr.actionCounts[s.ActionType]++
		}
		if s.OutcomeSignal != "" {
			tr.outcomeVotes[s.OutcomeSignal]++
			votes[s.OutcomeSignal]++
		}
	}
	tr.voteHistory = append(tr.voteHistory, votes)
	for name, v := range res.Metrics {
		tr.series[name] = append(tr.series[name], v)
	}
}

// Ticks returns the number of ticks recorded so far.
func (tr *Tracker) Ticks() int {
	return tr.ticks
}

// ActionCounts returns a copy of the cumulative action tally.
func (tr *Tracker) ActionCounts() map[string]int64 {
	out := make(map[string]int64, len(tr.actionCounts))
	for k, v := range tr.actionCounts {
		out[k] = v
	}
	return out
}

// Series returns the recorded time series for a metric, nil if the metric
// was never reported.
func (tr *Tracker) Series(name string) []float64 {
	return tr.series[name]
}
