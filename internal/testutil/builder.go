// Package testutil builds coordination event logs for tests. Builders number
// events contiguously from 1 and advance a synthetic clock per event, so the
// resulting logs can be appended to any repository or replayed directly.
package testutil

import (
	"slices"
	"testing"
	"time"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/events"
)

// DefaultStart is the timestamp of the first event a Builder emits. It has
// nanosecond precision to catch lossy timestamp storage.
var DefaultStart = time.Date(2026, 3, 1, 12, 0, 0, 987654321, time.UTC)

// Builder accumulates a contiguous event log.
type Builder struct {
	t    testing.TB
	now  time.Time
	step time.Duration
	evs  []events.Event
}

// NewBuilder creates a builder starting at DefaultStart with one second
// between events.
func NewBuilder(t testing.TB) *Builder {
	t.Helper()
	return &Builder{t: t, now: DefaultStart, step: time.Second}
}

// Step sets the clock advance between events.
func (b *Builder) Step(d time.Duration) *Builder {
	b.step = d
	return b
}

// Advance moves the clock forward before the next event.
func (b *Builder) Advance(d time.Duration) *Builder {
	b.now = b.now.Add(d)
	return b
}

// Append adds an event for any payload.
func (b *Builder) Append(entity events.EntityType, id string, p events.Payload, opts ...EventOption) *Builder {
	b.t.Helper()
	ev := events.New(entity, id, p)
	ev.Sequence = uint64(len(b.evs)) + 1
	ev.Timestamp = b.now
	for _, opt := range opts {
		opt(&ev)
	}
	b.evs = append(b.evs, ev)
	b.now = b.now.Add(b.step)
	return b
}

// Genesis records temperature coefficients.
func (b *Builder) Genesis(c domain.Coefficients) *Builder {
	return b.Append(events.EntitySystem, events.SystemEntityID, events.SystemConfigured{Coefficients: c})
}

// Thread creates a thread in the embryo state.
func (b *Builder) Thread(id domain.ThreadID, opts ...ThreadOption) *Builder {
	created := events.ThreadCreated{Title: "thread " + string(id), InitialTemperature: 1}
	for _, opt := range opts {
		opt(&created)
	}
	return b.Append(events.EntityThread, string(id), created)
}

// Transition moves a thread from one state to another.
func (b *Builder) Transition(id domain.ThreadID, from, to domain.ThreadState, opts ...EventOption) *Builder {
	return b.Append(events.EntityThread, string(id), events.ThreadTransitioned{From: from, To: to}, opts...)
}

// Kill terminates a thread.
func (b *Builder) Kill(id domain.ThreadID, from domain.ThreadState, reason string) *Builder {
	return b.Append(events.EntityThread, string(id), events.ThreadKilled{From: from, Reason: reason})
}

// Agent registers an agent.
func (b *Builder) Agent(id domain.AgentID, agentType string) *Builder {
	return b.Append(events.EntityAgent, string(id), events.AgentRegistered{
		AgentType:   agentType,
		TokenDigest: "digest-" + string(id),
	})
}

// Claim assigns a thread to an agent.
func (b *Builder) Claim(thread domain.ThreadID, agent domain.AgentID) *Builder {
	return b.Append(events.EntityThread, string(thread), events.ThreadClaimed{AgentID: agent}, WithActor(string(agent)))
}

// Release clears a claim.
func (b *Builder) Release(thread domain.ThreadID, agent domain.AgentID, completed bool) *Builder {
	return b.Append(events.EntityThread, string(thread), events.ThreadReleased{AgentID: agent, Completed: completed})
}

// Escalation raises an escalation.
func (b *Builder) Escalation(id domain.EscalationID, opts ...EscalationOption) *Builder {
	raised := events.EscalationRaised{
		Category:  "question",
		Priority:  domain.PriorityNormal,
		Title:     "escalation " + string(id),
		CreatedBy: "agent",
	}
	for _, opt := range opts {
		opt(&raised)
	}
	return b.Append(events.EntityEscalation, string(id), raised)
}

// Acknowledge acknowledges an escalation.
func (b *Builder) Acknowledge(id domain.EscalationID, by string) *Builder {
	return b.Append(events.EntityEscalation, string(id), events.EscalationAcknowledged{By: by})
}

// Resolve resolves an escalation.
func (b *Builder) Resolve(id domain.EscalationID, by, resolution string, selected *int) *Builder {
	return b.Append(events.EntityEscalation, string(id), events.EscalationResolved{
		By:             by,
		Resolution:     resolution,
		SelectedOption: selected,
	})
}

// Head returns the sequence of the last built event.
func (b *Builder) Head() uint64 {
	return uint64(len(b.evs))
}

// Build returns a copy of the accumulated log.
func (b *Builder) Build() []events.Event {
	return slices.Clone(b.evs)
}
