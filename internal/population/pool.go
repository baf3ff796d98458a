// Package population holds the agent pool, the persona loader that
// fills it, and the five-stage pipeline each agent runs every tick.
package population

import (
	"fmt"
	"sync"

	"github.com/nvandessel/simcast/internal/models"
)

// Pool is the population container for one run. Insertion order is
// preserved everywhere agents are handed out, which is what keeps
// sampling and batching deterministic.
//
// During the parallel batch phase the pool's structure is read-only;
// workers mutate only the agent they were handed. Terminations are
// buffered and applied by the coordinator at tick end so iteration
// never races membership changes.
type Pool struct {
	mu      sync.RWMutex
	agents  []*models.Agent
	byID    map[string]*models.Agent
	pending []string
}

// NewPool returns an empty pool sized for n agents.
func NewPool(n int) *Pool {
	return &Pool{
		agents: make([]*models.Agent, 0, n),
		byID:   make(map[string]*models.Agent, n),
	}
}

// Add inserts an agent. Duplicate IDs are rejected; silently replacing
// an agent mid-run would corrupt the trace.
func (p *Pool) Add(a *models.Agent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byID[a.ID]; exists {
		return fmt.Errorf("population: duplicate agent id %q", a.ID)
	}
	p.agents = append(p.agents, a)
	p.byID[a.ID] = a
	return nil
}

// Get looks an agent up by ID.
func (p *Pool) Get(id string) (*models.Agent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.byID[id]
	return a, ok
}

// All returns every agent, terminated or not, in insertion order.
func (p *Pool) All() []*models.Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*models.Agent, len(p.agents))
	copy(out, p.agents)
	return out
}

// Active returns the agents still participating, in insertion order.
func (p *Pool) Active() []*models.Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*models.Agent, 0, len(p.agents))
	for _, a := range p.agents {
		if !a.Terminated {
			out = append(out, a)
		}
	}
	return out
}

// Size reports the total population, ActiveCount the non-terminated part.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.agents)
}

func (p *Pool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, a := range p.agents {
		if !a.Terminated {
			n++
		}
	}
	return n
}

// Peers resolves an agent's social network to live agents. Missing or
// terminated peers are skipped.
func (p *Pool) Peers(a *models.Agent) []*models.Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if a.Social == nil {
		return nil
	}
	out := make([]*models.Agent, 0, len(a.Social.PeerIDs))
	for _, id := range a.Social.PeerIDs {
		peer, ok := p.byID[id]
		if !ok || peer.Terminated {
			continue
		}
		out = append(out, peer)
	}
	return out
}

// SnapshotActive takes the tick-start projection of every active agent.
// These snapshots are what peers observe during the parallel phase;
// live state is never read across agents.
func (p *Pool) SnapshotActive() map[string]models.PublicState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snaps := make(map[string]models.PublicState, len(p.agents))
	for _, a := range p.agents {
		if a.Terminated {
			continue
		}
		snaps[a.ID] = a.Snapshot()
	}
	return snaps
}

// PeerSnapshots resolves an agent's peers against a tick-start snapshot
// map, preserving the peer list's order.
func (p *Pool) PeerSnapshots(a *models.Agent, snaps map[string]models.PublicState) []models.PublicState {
	if a.Social == nil {
		return nil
	}
	out := make([]models.PublicState, 0, len(a.Social.PeerIDs))
	for _, id := range a.Social.PeerIDs {
		if s, ok := snaps[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// MarkTerminated buffers a termination for the next ApplyTerminations.
func (p *Pool) MarkTerminated(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, id)
}

// ApplyTerminations retires every buffered agent and reports how many
// actually changed state. Called by the coordinator between ticks.
func (p *Pool) ApplyTerminations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, id := range p.pending {
		if a, ok := p.byID[id]; ok && !a.Terminated {
			a.Terminated = true
			n++
		}
	}
	p.pending = p.pending[:0]
	return n
}
