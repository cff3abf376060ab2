package domain

import "time"

// AgentStatus is an agent's operational state.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentActive  AgentStatus = "active"
	AgentOffline AgentStatus = "offline"
)

// Agent is a registered worker. TokenDigest holds the blake3 digest of the
// agent's auth token; the token itself is never stored.
type Agent struct {
	ID               AgentID           `json:"id" cbor:"1,keyasint"`
	AgentType        string            `json:"agent_type" cbor:"2,keyasint"`
	Status           AgentStatus       `json:"status" cbor:"3,keyasint"`
	CurrentThread    ThreadID          `json:"current_thread,omitempty" cbor:"4,keyasint,omitempty"`
	TokenDigest      string            `json:"token_digest" cbor:"5,keyasint"`
	RegisteredAt     time.Time         `json:"registered_at" cbor:"6,keyasint"`
	LastActiveAt     time.Time         `json:"last_active_at" cbor:"7,keyasint"`
	ThreadsCompleted uint64            `json:"threads_completed" cbor:"8,keyasint"`
	Metadata         map[string]string `json:"metadata,omitempty" cbor:"9,keyasint,omitempty"`
}

// HasClaim reports whether the agent currently holds a thread.
func (a *Agent) HasClaim() bool {
	return a.CurrentThread != ""
}

// Clone returns a deep copy.
func (a *Agent) Clone() *Agent {
	c := *a
	c.Metadata = cloneMetadata(a.Metadata)
	return &c
}
