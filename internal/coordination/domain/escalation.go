package domain

import (
	"fmt"
	"slices"
	"time"
)

// EscalationPriority orders escalations; higher values need attention sooner.
type EscalationPriority int

const (
	PriorityLow EscalationPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p EscalationPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the defined priorities.
func (p EscalationPriority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParseEscalationPriority converts a name to a priority.
func ParseEscalationPriority(s string) (EscalationPriority, error) {
	for p := PriorityLow; p <= PriorityCritical; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown escalation priority %q", s)
}

// EscalationStatus is an escalation's lifecycle position.
type EscalationStatus string

const (
	EscalationOpen         EscalationStatus = "open"
	EscalationAcknowledged EscalationStatus = "acknowledged"
	EscalationResolved     EscalationStatus = "resolved"
)

// Escalation categories raised by the engine itself.
const (
	CategoryBlocked = "blocked"
)

// EscalationOption is one choice offered to the human resolving an escalation.
type EscalationOption struct {
	Label       string `json:"label" cbor:"1,keyasint"`
	Description string `json:"description,omitempty" cbor:"2,keyasint,omitempty"`
}

// Escalation is a structured request for human attention.
type Escalation struct {
	ID             EscalationID       `json:"id" cbor:"1,keyasint"`
	Category       string             `json:"category" cbor:"2,keyasint"`
	Priority       EscalationPriority `json:"priority" cbor:"3,keyasint"`
	Status         EscalationStatus   `json:"status" cbor:"4,keyasint"`
	Title          string             `json:"title" cbor:"5,keyasint"`
	Description    string             `json:"description,omitempty" cbor:"6,keyasint,omitempty"`
	ThreadID       ThreadID           `json:"thread_id,omitempty" cbor:"7,keyasint,omitempty"`
	CreatedBy      string             `json:"created_by" cbor:"8,keyasint"`
	CreatedAt      time.Time          `json:"created_at" cbor:"9,keyasint"`
	AcknowledgedAt *time.Time         `json:"acknowledged_at,omitempty" cbor:"10,keyasint,omitempty"`
	AcknowledgedBy string             `json:"acknowledged_by,omitempty" cbor:"11,keyasint,omitempty"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty" cbor:"12,keyasint,omitempty"`
	ResolvedBy     string             `json:"resolved_by,omitempty" cbor:"13,keyasint,omitempty"`
	Resolution     string             `json:"resolution,omitempty" cbor:"14,keyasint,omitempty"`
	Options        []EscalationOption `json:"options,omitempty" cbor:"15,keyasint,omitempty"`
	SelectedOption *int               `json:"selected_option,omitempty" cbor:"16,keyasint,omitempty"`
}

// Clone returns a deep copy.
func (e *Escalation) Clone() *Escalation {
	c := *e
	if e.AcknowledgedAt != nil {
		at := *e.AcknowledgedAt
		c.AcknowledgedAt = &at
	}
	if e.ResolvedAt != nil {
		at := *e.ResolvedAt
		c.ResolvedAt = &at
	}
	if e.SelectedOption != nil {
		idx := *e.SelectedOption
		c.SelectedOption = &idx
	}
	if len(e.Options) == 0 {
		c.Options = nil
	} else {
		c.Options = slices.Clone(e.Options)
	}
	return &c
}
