// Package events applies scheduled and randomly injected external
// events to the shared environment. The coordinator calls Process once
// per tick, before agents are dispatched; nothing here is safe for
// concurrent use and nothing needs to be.
package events

import (
	"fmt"
	"math"

	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/rng"
	"github.com/nvandessel/simcast/internal/vecmath"
)

// magnitudeFloor is the point below which a decaying event no longer
// moves the environment measurably and gets dropped.
const magnitudeFloor = 0.01

// System owns every external event for one run. Scheduled events come
// from the run config and apply on a fixed window with power-law decay.
// Injected events carry a live magnitude that shrinks geometrically
// each tick until it falls below the floor.
type System struct {
	scheduled   []models.ExternalEvent
	continuous  []models.ExternalEvent
	probability float64
	processed   map[string]bool
}

// New builds a System from the run's scheduled events. Events that
// arrive with a positive currentMagnitude are treated as continuous
// rather than windowed.
func New(scheduled []models.ExternalEvent, probability float64) *System {
	s := &System{probability: probability, processed: make(map[string]bool)}
	for _, ev := range scheduled {
		if ev.CurrentMagnitude > 0 {
			s.continuous = append(s.continuous, ev)
		} else {
			s.scheduled = append(s.scheduled, ev)
		}
	}
	return s
}

// Process runs the whole event phase for one tick: maybe inject a
// random event, apply everything due, then decay live magnitudes. It
// returns the names of the events that touched the environment this
// tick, in application order.
func (s *System) Process(tick int, env map[string]float64, base *rng.Stream) []string {
	s.maybeInject(tick, base)

	var applied []string
	applied = append(applied, s.applyWindowed(tick, env)...)
	applied = append(applied, s.applyContinuous(tick, env)...)
	s.decayActive(tick)

	for _, name := range applied {
		s.processed[name] = true
	}
	return applied
}

// Processed reports how many distinct events have affected the
// environment so far.
func (s *System) Processed() int { return len(s.processed) }

// applyWindowed applies every scheduled event whose window covers this
// tick: environment[var] += delta * (1-decayRate)^elapsed.
func (s *System) applyWindowed(tick int, env map[string]float64) []string {
	var applied []string
	for _, ev := range s.scheduled {
		if !ev.ActiveAt(tick) {
			continue
		}
		factor := math.Pow(1-ev.DecayRate, float64(tick-ev.TriggerTick))
		for _, v := range vecmath.SortedKeys(ev.Impact) {
			env[v] += ev.Impact[v] * factor
		}
		applied = append(applied, ev.Name)
	}
	return applied
}

// applyContinuous applies live-magnitude events at their current
// strength. The window still bounds them; decay usually kills them
// first.
func (s *System) applyContinuous(tick int, env map[string]float64) []string {
	var applied []string
	for i := range s.continuous {
		ev := &s.continuous[i]
		if !ev.ActiveAt(tick) {
			continue
		}
		for _, v := range vecmath.SortedKeys(ev.Impact) {
			env[v] += ev.Impact[v] * ev.CurrentMagnitude
		}
		applied = append(applied, ev.Name)
	}
	return applied
}

// decayActive shrinks live magnitudes and drops spent events.
func (s *System) decayActive(tick int) {
	kept := s.continuous[:0]
	for _, ev := range s.continuous {
		ev.CurrentMagnitude *= ev.DecayRate
		if ev.CurrentMagnitude < magnitudeFloor {
			continue
		}
		if tick >= ev.TriggerTick+ev.DurationTicks {
			continue
		}
		kept = append(kept, ev)
	}
	s.continuous = kept
}

// maybeInject rolls the per-tick event dice on a tick-scoped stream and
// synthesizes one catalog event on a hit. This is the only place new
// simulation inputs appear after initialization.
func (s *System) maybeInject(tick int, base *rng.Stream) {
	if s.probability <= 0 || base == nil {
		return
	}
	stream := base.Derive(fmt.Sprintf("events:tick:%d", tick))
	if stream.NextFloat() >= s.probability {
		return
	}
	tpl := catalog[int(stream.NextUint32()%uint32(len(catalog)))]
	s.continuous = append(s.continuous, models.ExternalEvent{
		Name:             fmt.Sprintf("%s@%d", tpl.Name, tick),
		TriggerTick:      tick,
		DurationTicks:    tpl.DurationTicks,
		DecayRate:        tpl.DecayRate,
		Impact:           tpl.Impact,
		CurrentMagnitude: 1.0,
	})
}
