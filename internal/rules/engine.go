// Package rules hosts the pluggable rule engines that run inside the
// Update stage of every agent tick, plus the behavioral bias layer the
// Decide stage consults before an agent picks an action.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nvandessel/simcast/internal/models"
)

// InsertionUpdate is the only insertion point built-in engines use.
// External rule packs may declare others.
const InsertionUpdate = "update"

// Context is everything a rule engine may read for one agent-tick.
// Engines must treat every field as read-only.
type Context struct {
	AgentID       string
	Tick          int
	Seed          uint32
	Environment   map[string]float64
	AgentState    models.StateVector
	PeerStates    []models.PublicState
	GlobalMetrics map[string]float64
}

// Application records a single rule firing for the evidence counters.
type Application struct {
	RuleName       string `json:"rule_name"`
	RuleVersion    string `json:"rule_version"`
	InsertionPoint string `json:"insertion_point"`
	AgentsAffected int    `json:"agents_affected"`
}

// Result carries the state mutations a rule engine wants applied.
//
// StateUpdates keys address the agent state vector: bare scalar names
// ("engagement", "certainty", "influence_susceptibility",
// "information_exposure", "commitment_strength") set that scalar, and
// "preferences.<option>" sets one preference weight. The Update stage
// applies them and renormalizes preferences afterwards.
type Result struct {
	StateUpdates map[string]float64
	Applied      []Application
}

// Engine is a versioned rule pack. RunAgentTick must be deterministic
// given the Context, and must not retain or mutate anything it was
// handed. Any returned error aborts the whole run.
type Engine interface {
	Name() string
	Version() string
	RunAgentTick(ctx context.Context, rc Context) (Result, error)
}

// Factory builds an engine from profile params.
type Factory func(params map[string]float64) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func registryKey(name, version string) string {
	return name + ":" + version
}

// Register makes a rule engine available to New. Registering the same
// name and version twice panics; that is a programming error.
func Register(name, version string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	key := registryKey(name, version)
	if _, dup := registry[key]; dup {
		panic(fmt.Sprintf("rules: duplicate registration for %s", key))
	}
	registry[key] = f
}

// Registered lists the known name:version keys, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// New builds the engine named by the profile. An empty profile name
// selects the noop engine so runs without a rule pack still execute
// the full pipeline.
func New(profile models.RuleProfile) (Engine, error) {
	name, version := profile.Name, profile.Version
	if name == "" {
		name, version = "noop", "1.0.0"
	}
	if version == "" {
		version = "1.0.0"
	}

	registryMu.RLock()
	f, ok := registry[registryKey(name, version)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("rules: no engine registered for %s:%s (known: %v)", name, version, Registered())
	}
	eng, err := f(profile.Params)
	if err != nil {
		return nil, fmt.Errorf("rules: building %s:%s: %w", name, version, err)
	}
	return eng, nil
}
