package domain

import (
	"maps"
	"time"
)

// ThreadID identifies a unit of research work.
type ThreadID string

// AgentID identifies a registered worker agent.
type AgentID string

// EscalationID identifies an escalation raised for human attention.
type EscalationID string

// Thread is a unit of work on the shared backlog.
// Threads are never deleted; terminal threads stay retrievable for audit.
type Thread struct {
	ID           ThreadID          `json:"id" cbor:"1,keyasint"`
	State        ThreadState       `json:"state" cbor:"2,keyasint"`
	Title        string            `json:"title" cbor:"3,keyasint"`
	Description  string            `json:"description,omitempty" cbor:"4,keyasint,omitempty"`
	Temperature  Temperature       `json:"temperature" cbor:"5,keyasint"`
	ClaimedBy    AgentID           `json:"claimed_by,omitempty" cbor:"6,keyasint,omitempty"`
	ParentID     ThreadID          `json:"parent_id,omitempty" cbor:"7,keyasint,omitempty"`
	CreatedAt    time.Time         `json:"created_at" cbor:"8,keyasint"`
	UpdatedAt    time.Time         `json:"updated_at" cbor:"9,keyasint"`
	Version      uint64            `json:"version" cbor:"10,keyasint"`
	Metadata     map[string]string `json:"metadata,omitempty" cbor:"11,keyasint,omitempty"`
	SupersededBy ThreadID          `json:"superseded_by,omitempty" cbor:"12,keyasint,omitempty"`
	KillReason   string            `json:"kill_reason,omitempty" cbor:"13,keyasint,omitempty"`
}

// IsClaimed reports whether an agent holds the thread.
func (t *Thread) IsClaimed() bool {
	return t.ClaimedBy != ""
}

// IsAvailable reports whether the thread is open for work and unclaimed.
func (t *Thread) IsAvailable() bool {
	return t.State.IsOpen() && !t.IsClaimed()
}

// Clone returns a deep copy.
func (t *Thread) Clone() *Thread {
	c := *t
	c.Metadata = cloneMetadata(t.Metadata)
	return &c
}

func cloneMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}
