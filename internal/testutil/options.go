package testutil

import (
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/events"
)

// EventOption adjusts envelope fields of a built event.
type EventOption func(*events.Event)

// WithActor sets the actor id.
func WithActor(actor string) EventOption {
	return func(e *events.Event) { e.ActorID = actor }
}

// WithCorrelation sets the correlation id.
func WithCorrelation(id string) EventOption {
	return func(e *events.Event) { e.CorrelationID = id }
}

// WithCausation sets the causation id.
func WithCausation(id string) EventOption {
	return func(e *events.Event) { e.CausationID = id }
}

// ThreadOption adjusts a ThreadCreated payload.
type ThreadOption func(*events.ThreadCreated)

// Titled sets the title.
func Titled(title string) ThreadOption {
	return func(c *events.ThreadCreated) { c.Title = title }
}

// Described sets the description.
func Described(description string) ThreadOption {
	return func(c *events.ThreadCreated) { c.Description = description }
}

// ChildOf sets the parent thread.
func ChildOf(parent domain.ThreadID) ThreadOption {
	return func(c *events.ThreadCreated) { c.ParentID = parent }
}

// Temperature sets the initial temperature.
func Temperature(v float64) ThreadOption {
	return func(c *events.ThreadCreated) { c.InitialTemperature = v }
}

// Metadata sets the thread metadata.
func Metadata(md map[string]string) ThreadOption {
	return func(c *events.ThreadCreated) { c.Metadata = md }
}

// EscalationOption adjusts an EscalationRaised payload.
type EscalationOption func(*events.EscalationRaised)

// About links the escalation to a thread.
func About(thread domain.ThreadID) EscalationOption {
	return func(r *events.EscalationRaised) { r.ThreadID = thread }
}

// Priority sets the priority.
func Priority(p domain.EscalationPriority) EscalationOption {
	return func(r *events.EscalationRaised) { r.Priority = p }
}

// RaisedBy sets the creator.
func RaisedBy(actor string) EscalationOption {
	return func(r *events.EscalationRaised) { r.CreatedBy = actor }
}

// Choices sets the options offered to the resolver.
func Choices(labels ...string) EscalationOption {
	return func(r *events.EscalationRaised) {
		r.Options = nil
		for _, l := range labels {
			r.Options = append(r.Options, domain.EscalationOption{Label: l})
		}
	}
}
