// Package projection folds the coordination log into queryable state.
//
// Every Apply is pure and unconditional: events are validated by the command
// layer before they are appended, so folding never rejects an event. Replaying
// the full log from an empty State reproduces the live State exactly.
package projection

import (
	"iter"
	"maps"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/events"
)

// System is the global projection.
type System struct {
	Paused          bool                `json:"paused" cbor:"1,keyasint"`
	PauseReason     string              `json:"pause_reason,omitempty" cbor:"2,keyasint,omitempty"`
	CurrentSequence uint64              `json:"current_sequence" cbor:"3,keyasint"`
	Coefficients    domain.Coefficients `json:"coefficients" cbor:"4,keyasint"`
}

// Apply folds ev into the system projection.
func (s *System) Apply(ev events.Event) {
	s.CurrentSequence = ev.Sequence
	switch p := ev.Payload.(type) {
	case events.SystemConfigured:
		s.Coefficients = p.Coefficients
	case events.SystemPaused:
		s.Paused = true
		s.PauseReason = p.Reason
	case events.SystemResumed:
		s.Paused = false
		s.PauseReason = ""
	}
}

// State aggregates every projection.
type State struct {
	System      System      `json:"system" cbor:"1,keyasint"`
	Threads     Threads     `json:"threads" cbor:"2,keyasint"`
	Agents      Agents      `json:"agents" cbor:"3,keyasint"`
	Escalations Escalations `json:"escalations" cbor:"4,keyasint"`
}

// NewState returns the empty state that replay starts from.
func NewState() *State {
	return &State{
		System:      System{Coefficients: domain.DefaultCoefficients()},
		Threads:     make(Threads),
		Agents:      make(Agents),
		Escalations: make(Escalations),
	}
}

// Apply folds one event into every projection. The system projection goes
// first so coefficient changes take effect for the same event.
func (s *State) Apply(ev events.Event) {
	s.System.Apply(ev)
	s.Threads.Apply(ev, s.System.Coefficients)
	s.Agents.Apply(ev)
	s.Escalations.Apply(ev)
}

// ApplyAll folds a batch in order.
func (s *State) ApplyAll(evs []events.Event) {
	for _, ev := range evs {
		s.Apply(ev)
	}
}

// Replay rebuilds state from empty by folding evs in order.
func Replay(evs iter.Seq[events.Event]) *State {
	return ReplayOnto(NewState(), evs)
}

// ReplayOnto folds evs onto an existing state, typically one restored from a
// snapshot.
func ReplayOnto(s *State, evs iter.Seq[events.Event]) *State {
	for ev := range evs {
		s.Apply(ev)
	}
	return s
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := &State{
		System:      s.System,
		Threads:     make(Threads, len(s.Threads)),
		Agents:      make(Agents, len(s.Agents)),
		Escalations: make(Escalations, len(s.Escalations)),
	}
	for id, t := range s.Threads {
		c.Threads[id] = t.Clone()
	}
	for id, a := range s.Agents {
		c.Agents[id] = a.Clone()
	}
	for id, e := range s.Escalations {
		c.Escalations[id] = e.Clone()
	}
	return c
}

// Normalize replaces nil projection maps with empty ones. Decoders call it
// so decoded and freshly built states compare equal.
func (s *State) Normalize() {
	if s.Threads == nil {
		s.Threads = make(Threads)
	}
	if s.Agents == nil {
		s.Agents = make(Agents)
	}
	if s.Escalations == nil {
		s.Escalations = make(Escalations)
	}
}

func cloneMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}
