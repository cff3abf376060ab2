package events

import "github.com/impel-dev/impel/internal/coordination/domain"

// Kind is the tagged-variant discriminator of a payload.
type Kind string

const (
	KindSystemConfigured       Kind = "system.configured"
	KindSystemPaused           Kind = "system.paused"
	KindSystemResumed          Kind = "system.resumed"
	KindThreadCreated          Kind = "thread.created"
	KindThreadTransitioned     Kind = "thread.transitioned"
	KindThreadKilled           Kind = "thread.killed"
	KindThreadMerged           Kind = "thread.merged"
	KindThreadTemperatureSet   Kind = "thread.temperature_set"
	KindThreadBoosted          Kind = "thread.boosted"
	KindThreadClaimed          Kind = "thread.claimed"
	KindThreadReleased         Kind = "thread.released"
	KindAgentRegistered        Kind = "agent.registered"
	KindAgentDisconnected      Kind = "agent.disconnected"
	KindEscalationRaised       Kind = "escalation.raised"
	KindEscalationAcknowledged Kind = "escalation.acknowledged"
	KindEscalationResolved     Kind = "escalation.resolved"
)

// Payload is the entity-change data carried by an event. Payloads carry only
// inputs; derived values such as decayed temperature are recomputed on fold.
type Payload interface {
	Kind() Kind
}

// SystemConfigured records the temperature coefficients in force from this
// event onward.
type SystemConfigured struct {
	Coefficients domain.Coefficients `json:"coefficients"`
}

// SystemPaused halts every command except resume.
type SystemPaused struct {
	Reason string `json:"reason,omitempty"`
}

// SystemResumed lifts a pause.
type SystemResumed struct{}

// ThreadCreated adds a thread in the embryo state.
type ThreadCreated struct {
	Title              string            `json:"title"`
	Description        string            `json:"description,omitempty"`
	ParentID           domain.ThreadID   `json:"parent_id,omitempty"`
	InitialTemperature float64           `json:"initial_temperature"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// ThreadTransitioned moves a thread along a lifecycle edge other than kill.
type ThreadTransitioned struct {
	From   domain.ThreadState `json:"from"`
	To     domain.ThreadState `json:"to"`
	Reason string             `json:"reason,omitempty"`
}

// ThreadKilled terminates a thread.
type ThreadKilled struct {
	From   domain.ThreadState `json:"from"`
	Reason string             `json:"reason,omitempty"`
}

// ThreadMerged kills the source thread (the event entity) in favour of
// TargetID. Children of the source listed in ReparentedIDs move to the target
// and the target keeps the hotter of the two temperatures.
type ThreadMerged struct {
	TargetID      domain.ThreadID    `json:"target_id"`
	From          domain.ThreadState `json:"from"`
	ReparentedIDs []domain.ThreadID  `json:"reparented_ids,omitempty"`
}

// ThreadTemperatureSet overrides a thread's temperature.
type ThreadTemperatureSet struct {
	Value  float64 `json:"value"`
	Reason string  `json:"reason,omitempty"`
}

// ThreadBoosted adds the configured boost for Kind to a thread.
type ThreadBoosted struct {
	Boost domain.BoostKind `json:"boost"`
}

// ThreadClaimed assigns a thread to an agent.
type ThreadClaimed struct {
	AgentID domain.AgentID `json:"agent_id"`
}

// ThreadReleased clears a thread's claim. Completed counts the thread toward
// the agent's completed total.
type ThreadReleased struct {
	AgentID   domain.AgentID `json:"agent_id"`
	Completed bool           `json:"completed,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// AgentRegistered adds an agent. Only the digest of its token is recorded.
type AgentRegistered struct {
	AgentType   string            `json:"agent_type"`
	TokenDigest string            `json:"token_digest"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// AgentDisconnected marks an agent offline.
type AgentDisconnected struct {
	Reason string `json:"reason,omitempty"`
}

// EscalationRaised opens an escalation.
type EscalationRaised struct {
	Category    string                    `json:"category"`
	Priority    domain.EscalationPriority `json:"priority"`
	Title       string                    `json:"title"`
	Description string                    `json:"description,omitempty"`
	ThreadID    domain.ThreadID           `json:"thread_id,omitempty"`
	CreatedBy   string                    `json:"created_by"`
	Options     []domain.EscalationOption `json:"options,omitempty"`
}

// EscalationAcknowledged moves an escalation from open to acknowledged.
type EscalationAcknowledged struct {
	By string `json:"by"`
}

// EscalationResolved moves an escalation from acknowledged to resolved.
type EscalationResolved struct {
	By             string `json:"by"`
	Resolution     string `json:"resolution,omitempty"`
	SelectedOption *int   `json:"selected_option,omitempty"`
}

func (SystemConfigured) Kind() Kind       { return KindSystemConfigured }
func (SystemPaused) Kind() Kind           { return KindSystemPaused }
func (SystemResumed) Kind() Kind          { return KindSystemResumed }
func (ThreadCreated) Kind() Kind          { return KindThreadCreated }
func (ThreadTransitioned) Kind() Kind     { return KindThreadTransitioned }
func (ThreadKilled) Kind() Kind           { return KindThreadKilled }
func (ThreadMerged) Kind() Kind           { return KindThreadMerged }
func (ThreadTemperatureSet) Kind() Kind   { return KindThreadTemperatureSet }
func (ThreadBoosted) Kind() Kind          { return KindThreadBoosted }
func (ThreadClaimed) Kind() Kind          { return KindThreadClaimed }
func (ThreadReleased) Kind() Kind         { return KindThreadReleased }
func (AgentRegistered) Kind() Kind        { return KindAgentRegistered }
func (AgentDisconnected) Kind() Kind      { return KindAgentDisconnected }
func (EscalationRaised) Kind() Kind       { return KindEscalationRaised }
func (EscalationAcknowledged) Kind() Kind { return KindEscalationAcknowledged }
func (EscalationResolved) Kind() Kind     { return KindEscalationResolved }
