// Package evidence collects run-scoped counters that let an auditor
// verify what a simulation actually executed. Counters only ever
// increase and are read exactly once, as a snapshot, when the run ends.
package evidence

import (
	"fmt"
	"sync"

	"github.com/nvandessel/simcast/internal/models"
)

// Counters tracks named monotonic counters for a single run. All
// methods are safe for concurrent use by batch workers.
type Counters struct {
	mu sync.Mutex

	stageInvocations map[string]uint64
	ruleApplications map[string]uint64
	partitions       uint64
	batches          uint64
	backpressure     uint64
	agentSteps       uint64
}

// NewCounters returns an empty counter set.
func NewCounters() *Counters {
	return &Counters{
		stageInvocations: make(map[string]uint64),
		ruleApplications: make(map[string]uint64),
	}
}

// IncStage records one invocation of a pipeline stage.
func (c *Counters) IncStage(stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stageInvocations[stage]++
}

// IncRule records one application of a rule. The key carries enough
// identity to distinguish versions and insertion points of the same rule.
func (c *Counters) IncRule(name, version, insertionPoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ruleApplications[fmt.Sprintf("%s:%s:%s", name, version, insertionPoint)]++
}

// IncPartition records one scheduler partition (one per tick).
func (c *Counters) IncPartition() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partitions++
}

// IncBatch records one dispatched batch.
func (c *Counters) IncBatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
}

// IncBackpressure records one tick whose wall-clock time exceeded the
// configured threshold. Advisory only; the scheduler does not slow down.
func (c *Counters) IncBackpressure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backpressure++
}

// IncAgentSteps records n completed agent pipeline executions.
func (c *Counters) IncAgentSteps(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentSteps += uint64(n)
}

// Snapshot returns a copy of every counter. Callers own the returned
// maps; later increments do not show through.
func (c *Counters) Snapshot() models.CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	stages := make(map[string]uint64, len(c.stageInvocations))
	for k, v := range c.stageInvocations {
		stages[k] = v
	}
	rules := make(map[string]uint64, len(c.ruleApplications))
	for k, v := range c.ruleApplications {
		rules[k] = v
	}
	return models.CounterSnapshot{
		StageInvocations:   stages,
		RuleApplications:   rules,
		Partitions:         c.partitions,
		Batches:            c.batches,
		BackpressureEvents: c.backpressure,
		AgentSteps:         c.agentSteps,
	}
}
