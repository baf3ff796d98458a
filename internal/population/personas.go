package population

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/vecmath"
)

// PersonaRecord is the schema-light attribute bag an external persona
// service hands us for each agent. ObservedAt dates the data the
// persona was derived from; backtest runs reject records observed after
// the cutoff.
type PersonaRecord struct {
	ID             string                  `json:"id" yaml:"id"`
	Segment        string                  `json:"segment" yaml:"segment"`
	Demographics   models.Demographics     `json:"demographics" yaml:"demographics"`
	Behavioral     models.BehavioralParams `json:"behavioral_params" yaml:"behavioral_params"`
	Psychographics models.Psychographics   `json:"psychographics" yaml:"psychographics"`
	Preferences    map[string]float64      `json:"preferences" yaml:"preferences"`
	Engagement     float64                 `json:"engagement" yaml:"engagement"`
	ObservedAt     *time.Time              `json:"observed_at,omitempty" yaml:"observed_at,omitempty"`
}

func (r PersonaRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("persona missing id")
	}
	if len(r.Preferences) == 0 {
		return fmt.Errorf("persona %s has no preferences", r.ID)
	}
	for k, v := range r.Preferences {
		if v < 0 {
			return fmt.Errorf("persona %s: preference %q is negative", r.ID, k)
		}
	}
	return nil
}

// LoadPersonas reads persona records from a JSON or YAML file, decided
// by extension.
func LoadPersonas(path string) ([]PersonaRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading personas: %w", err)
	}

	var records []PersonaRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing personas %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing personas %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("personas %s: unsupported extension (want .json, .yaml or .yml)", path)
	}

	for i, r := range records {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("personas %s record %d: %w", path, i, err)
		}
	}
	return records, nil
}

// BuildAgent instantiates an agent from a persona record, applying the
// scenario's behavioral modifiers. The record itself is not modified.
func BuildAgent(r PersonaRecord, modifiers map[string]float64) (*models.Agent, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	params := r.Behavioral
	if params.Extra != nil {
		extra := make(map[string]float64, len(params.Extra))
		for k, v := range params.Extra {
			extra[k] = v
		}
		params.Extra = extra
	}
	for _, name := range vecmath.SortedKeys(modifiers) {
		params.ApplyModifier(name, modifiers[name])
	}

	prefs := vecmath.Copy(r.Preferences)
	vecmath.Normalize(prefs)

	segment := r.Segment
	if segment == "" {
		segment = "default"
	}

	susceptibility := vecmath.Clamp(
		(r.Psychographics.Conformity+r.Psychographics.Openness)/2, 0, 1)

	return &models.Agent{
		ID:               r.ID,
		Segment:          segment,
		Demographics:     r.Demographics,
		BehavioralParams: params,
		Psychographics:   r.Psychographics,
		State: models.StateVector{
			Preferences:             prefs,
			Engagement:              vecmath.Clamp(r.Engagement, 0, 1),
			Certainty:               0.5,
			InfluenceSusceptibility: susceptibility,
			InformationExposure:     0.5,
		},
		Anchor: vecmath.Copy(prefs),
	}, nil
}

// BuildPool turns a persona set into a populated pool, honoring the
// run's maxAgents cap (zero means uncapped).
func BuildPool(records []PersonaRecord, modifiers map[string]float64, maxAgents int) (*Pool, error) {
	n := len(records)
	if maxAgents > 0 && n > maxAgents {
		n = maxAgents
	}
	pool := NewPool(n)
	for _, r := range records[:n] {
		a, err := BuildAgent(r, modifiers)
		if err != nil {
			return nil, err
		}
		if err := pool.Add(a); err != nil {
			return nil, err
		}
	}
	return pool, nil
}
