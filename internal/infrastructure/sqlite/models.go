package sqlite

import (
	"fmt"
	"time"

	"github.com/impel-dev/impel/internal/coordination/events"
)

// eventColumns is the list of columns to select for event queries.
const eventColumns = `sequence, id, timestamp_ns, entity_id, entity_type, kind, payload,
	actor_id, correlation_id, causation_id`

// EventModel represents the database row for the events table.
// Timestamps are stored as Unix nanoseconds.
type EventModel struct {
	Sequence      int64
	ID            string
	TimestampNs   int64
	EntityID      string
	EntityType    string
	Kind          string
	Payload       string  // JSON envelope
	ActorID       *string // nullable
	CorrelationID *string // nullable
	CausationID   *string // nullable
}

// toEventModel converts an event to its database row.
func toEventModel(ev events.Event) (*EventModel, error) {
	payload, err := events.EncodePayload(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload of event %d: %w", ev.Sequence, err)
	}
	return &EventModel{
		Sequence:      int64(ev.Sequence), //nolint:gosec // G115: sequences stay far below MaxInt64
		ID:            ev.ID,
		TimestampNs:   ev.Timestamp.UnixNano(),
		EntityID:      ev.EntityID,
		EntityType:    string(ev.EntityType),
		Kind:          string(ev.Kind()),
		Payload:       string(payload),
		ActorID:       nullable(ev.ActorID),
		CorrelationID: nullable(ev.CorrelationID),
		CausationID:   nullable(ev.CausationID),
	}, nil
}

// toDomain converts a database row back to an event.
func (m *EventModel) toDomain() (events.Event, error) {
	payload, err := events.DecodePayload([]byte(m.Payload))
	if err != nil {
		return events.Event{}, fmt.Errorf("decode payload of event %d: %w", m.Sequence, err)
	}
	return events.Event{
		ID:            m.ID,
		Sequence:      uint64(m.Sequence), //nolint:gosec // G115: column is a positive primary key
		Timestamp:     events.NormalizeTime(time.Unix(0, m.TimestampNs)),
		EntityID:      m.EntityID,
		EntityType:    events.EntityType(m.EntityType),
		Payload:       payload,
		ActorID:       deref(m.ActorID),
		CorrelationID: deref(m.CorrelationID),
		CausationID:   deref(m.CausationID),
	}, nil
}

// scanEvent scans a row into an EventModel.
func scanEvent(scanner interface{ Scan(...any) error }) (*EventModel, error) {
	var m EventModel
	err := scanner.Scan(
		&m.Sequence, &m.ID, &m.TimestampNs, &m.EntityID, &m.EntityType, &m.Kind, &m.Payload,
		&m.ActorID, &m.CorrelationID, &m.CausationID,
	)
	return &m, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
