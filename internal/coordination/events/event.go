// Package events defines the immutable event envelope and the payload
// variants recorded in the coordination log.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EntityType names the kind of entity an event changes.
type EntityType string

const (
	EntityThread     EntityType = "thread"
	EntityAgent      EntityType = "agent"
	EntityEscalation EntityType = "escalation"
	EntitySystem     EntityType = "system"
)

// SystemEntityID is the entity id used for system-wide events.
const SystemEntityID = "system"

// Event is a single entry in the coordination log.
// Events are immutable once appended; Sequence is assigned by the log.
type Event struct {
	ID            string
	Sequence      uint64
	Timestamp     time.Time
	EntityID      string
	EntityType    EntityType
	Payload       Payload
	ActorID       string
	CorrelationID string
	CausationID   string
}

// New creates an unsequenced event with a fresh id.
func New(entityType EntityType, entityID string, payload Payload) Event {
	return Event{
		ID:         uuid.New().String(),
		EntityID:   entityID,
		EntityType: entityType,
		Payload:    payload,
	}
}

// Kind returns the payload kind, or "" for an event without payload.
func (e Event) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// NormalizeTime returns t in UTC with the monotonic clock reading removed so
// that timestamps compare equal after a storage round trip.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Round(0)
}
