package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelope is the tagged-variant wire form of a payload.
type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// wireEvent is the JSON form of an Event.
type wireEvent struct {
	ID            string     `json:"id"`
	Sequence      uint64     `json:"sequence"`
	Timestamp     time.Time  `json:"timestamp"`
	EntityID      string     `json:"entity_id"`
	EntityType    EntityType `json:"entity_type"`
	Payload       envelope   `json:"payload"`
	ActorID       string     `json:"actor_id,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	CausationID   string     `json:"causation_id,omitempty"`
}

func decodeAs[T Payload](data json.RawMessage) (Payload, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

var decoders = map[Kind]func(json.RawMessage) (Payload, error){
	KindSystemConfigured:       decodeAs[SystemConfigured],
	KindSystemPaused:           decodeAs[SystemPaused],
	KindSystemResumed:          decodeAs[SystemResumed],
	KindThreadCreated:          decodeAs[ThreadCreated],
	KindThreadTransitioned:     decodeAs[ThreadTransitioned],
	KindThreadKilled:           decodeAs[ThreadKilled],
	KindThreadMerged:           decodeAs[ThreadMerged],
	KindThreadTemperatureSet:   decodeAs[ThreadTemperatureSet],
	KindThreadBoosted:          decodeAs[ThreadBoosted],
	KindThreadClaimed:          decodeAs[ThreadClaimed],
	KindThreadReleased:         decodeAs[ThreadReleased],
	KindAgentRegistered:        decodeAs[AgentRegistered],
	KindAgentDisconnected:      decodeAs[AgentDisconnected],
	KindEscalationRaised:       decodeAs[EscalationRaised],
	KindEscalationAcknowledged: decodeAs[EscalationAcknowledged],
	KindEscalationResolved:     decodeAs[EscalationResolved],
}

// EncodePayload returns the envelope JSON for a payload.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode payload: nil payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Kind(), err)
	}
	return json.Marshal(envelope{Kind: p.Kind(), Data: data})
}

// DecodePayload parses envelope JSON produced by EncodePayload.
func DecodePayload(raw []byte) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	return decodeEnvelope(env)
}

func decodeEnvelope(env envelope) (Payload, error) {
	decode, ok := decoders[env.Kind]
	if !ok {
		return nil, fmt.Errorf("decode payload: unknown kind %q", env.Kind)
	}
	if len(env.Data) == 0 {
		env.Data = json.RawMessage("{}")
	}
	p, err := decode(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return p, nil
}

// MarshalJSON encodes the event with its payload as a kind/data envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("marshal event %s: nil payload", e.ID)
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	return json.Marshal(wireEvent{
		ID:            e.ID,
		Sequence:      e.Sequence,
		Timestamp:     e.Timestamp,
		EntityID:      e.EntityID,
		EntityType:    e.EntityType,
		Payload:       envelope{Kind: e.Payload.Kind(), Data: data},
		ActorID:       e.ActorID,
		CorrelationID: e.CorrelationID,
		CausationID:   e.CausationID,
	})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (e *Event) UnmarshalJSON(raw []byte) error {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return err
	}
	p, err := decodeEnvelope(w.Payload)
	if err != nil {
		return err
	}
	*e = Event{
		ID:            w.ID,
		Sequence:      w.Sequence,
		Timestamp:     NormalizeTime(w.Timestamp),
		EntityID:      w.EntityID,
		EntityType:    w.EntityType,
		Payload:       p,
		ActorID:       w.ActorID,
		CorrelationID: w.CorrelationID,
		CausationID:   w.CausationID,
	}
	return nil
}
