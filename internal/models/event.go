package models

import (
	"fmt"
	"time"
)

// ExternalEvent is a scheduled shock to the shared environment. While
// active, its impact is applied each tick with geometric decay; the event is
// removed once its duration elapses or its magnitude falls below epsilon.
type ExternalEvent struct {
	Name          string             `json:"name" yaml:"name"`
	TriggerTick   int                `json:"trigger_tick" yaml:"trigger_tick"`
	DurationTicks int                `json:"duration_ticks" yaml:"duration_ticks"`
	DecayRate     float64            `json:"decay_rate" yaml:"decay_rate"`
	Impact        map[string]float64 `json:"impact" yaml:"impact"`
	// CurrentMagnitude tracks the continuous-decay variant; it starts at 1
	// and is multiplied by DecayRate after each application.
	CurrentMagnitude float64 `json:"current_magnitude,omitempty" yaml:"current_magnitude,omitempty"`
	// ObservedAt dates the data point for backtest leakage checks.
	ObservedAt *time.Time `json:"observed_at,omitempty" yaml:"observed_at,omitempty"`
}

// Validate checks the event's shape. Used by RunConfig validation for
// scenario-supplied events.
func (e *ExternalEvent) Validate() error {
	if e.TriggerTick < 0 {
		return fmt.Errorf("trigger_tick must not be negative")
	}
	if e.DurationTicks <= 0 {
		return fmt.Errorf("duration_ticks must be positive")
	}
	if e.DecayRate < 0 || e.DecayRate > 1 {
		return fmt.Errorf("decay_rate must be in [0, 1]")
	}
	if len(e.Impact) == 0 {
		return fmt.Errorf("impact must not be empty")
	}
	return nil
}

// ActiveAt reports whether the event applies at the given tick.
func (e *ExternalEvent) ActiveAt(tick int) bool {
	return tick >= e.TriggerTick && tick < e.TriggerTick+e.DurationTicks
}
