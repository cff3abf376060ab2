// Package command defines the commands accepted by the coordination engine.
// A command is an explicit intent; it is validated for shape here and for
// state preconditions by the engine, which is the only place state changes.
package command

import (
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/impel-dev/impel/internal/coordination/events"
)

// Command represents an explicit intent entering the coordination engine.
type Command interface {
	// ID returns unique command identifier for tracing/correlation
	ID() string
	// Type returns the command type for routing
	Type() CommandType
	// Validate checks argument shape before any state is consulted
	Validate() error
	// CreatedAt returns when command was created
	CreatedAt() time.Time
	// Source returns where the command originated
	Source() CommandSource
	// Actor returns the id recorded as the actor of resulting events
	Actor() string
}

// CommandType identifies the kind of command.
type CommandType string

const (
	// Thread Commands

	// CmdCreateThread adds a new thread in the embryo state.
	CmdCreateThread CommandType = "create_thread"
	// CmdTransitionThread moves a thread along a lifecycle edge.
	CmdTransitionThread CommandType = "transition_thread"
	// CmdKillThread forcibly terminates a thread.
	CmdKillThread CommandType = "kill_thread"
	// CmdMergeThreads folds a source thread into a target thread.
	CmdMergeThreads CommandType = "merge_threads"
	// CmdSetTemperature overrides a thread's temperature.
	CmdSetTemperature CommandType = "set_temperature"
	// CmdBoostThread applies a configured boost to a thread.
	CmdBoostThread CommandType = "boost_thread"

	// Agent Commands

	// CmdRegisterAgent adds an agent and issues its token.
	CmdRegisterAgent CommandType = "register_agent"
	// CmdClaimThread assigns a thread to an agent.
	CmdClaimThread CommandType = "claim_thread"
	// CmdReleaseClaim clears an agent's claim without completing the thread.
	CmdReleaseClaim CommandType = "release_claim"
	// CmdDisconnectAgent releases any claim and marks the agent offline.
	CmdDisconnectAgent CommandType = "disconnect_agent"

	// Escalation Commands

	// CmdRaiseEscalation opens an escalation.
	CmdRaiseEscalation CommandType = "raise_escalation"
	// CmdAcknowledgeEscalation moves an escalation from open to acknowledged.
	CmdAcknowledgeEscalation CommandType = "acknowledge_escalation"
	// CmdResolveEscalation moves an escalation from acknowledged to resolved.
	CmdResolveEscalation CommandType = "resolve_escalation"

	// System Commands

	// CmdPauseSystem halts every command except resume.
	CmdPauseSystem CommandType = "pause_system"
	// CmdResumeSystem lifts a pause.
	CmdResumeSystem CommandType = "resume_system"
	// CmdConfigureTemperature records new temperature coefficients.
	CmdConfigureTemperature CommandType = "configure_temperature"
)

// String returns the string representation of the CommandType.
func (ct CommandType) String() string {
	return string(ct)
}

// CommandSource identifies where the command originated.
type CommandSource string

const (
	// SourceAgent indicates the command came from a worker agent.
	SourceAgent CommandSource = "agent"
	// SourceHuman indicates the command came from a human operator.
	SourceHuman CommandSource = "human"
	// SourceCLI indicates the command came from the impel CLI.
	SourceCLI CommandSource = "cli"
	// SourceInternal indicates the command was system-generated (e.g. genesis).
	SourceInternal CommandSource = "internal"
)

// String returns the string representation of the CommandSource.
func (cs CommandSource) String() string {
	return string(cs)
}

// BaseCommand provides common fields for all commands.
// Concrete command types should embed this struct.
type BaseCommand struct {
	id          string
	cmdType     CommandType
	createdAt   time.Time
	source      CommandSource
	actor       string
	traceID     string
	spanContext trace.SpanContext // For OpenTelemetry trace propagation
}

// NewBaseCommand creates a BaseCommand with a generated UUID and current timestamp.
func NewBaseCommand(cmdType CommandType, source CommandSource) BaseCommand {
	return BaseCommand{
		id:        uuid.New().String(),
		cmdType:   cmdType,
		createdAt: time.Now(),
		source:    source,
	}
}

// ID returns the unique command identifier.
func (b *BaseCommand) ID() string {
	return b.id
}

// Type returns the command type.
func (b *BaseCommand) Type() CommandType {
	return b.cmdType
}

// CreatedAt returns when the command was created.
func (b *BaseCommand) CreatedAt() time.Time {
	return b.createdAt
}

// Source returns the origin of this command.
func (b *BaseCommand) Source() CommandSource {
	return b.source
}

// Actor returns the actor id, falling back to the source name.
func (b *BaseCommand) Actor() string {
	if b.actor != "" {
		return b.actor
	}
	return string(b.source)
}

// SetActor records who issued the command, e.g. an agent id.
func (b *BaseCommand) SetActor(actor string) {
	b.actor = actor
}

// TraceID returns the correlation ID for related commands.
// If a valid SpanContext is set, the trace ID is derived from it.
// Otherwise, falls back to the manually set traceID string.
func (b *BaseCommand) TraceID() string {
	if b.spanContext.IsValid() {
		return b.spanContext.TraceID().String()
	}
	return b.traceID
}

// SetTraceID sets the correlation ID for command tracing.
func (b *BaseCommand) SetTraceID(traceID string) {
	b.traceID = traceID
}

// SpanContext returns the OpenTelemetry span context for trace propagation.
func (b *BaseCommand) SpanContext() trace.SpanContext {
	return b.spanContext
}

// SetSpanContext sets the OpenTelemetry span context for trace propagation.
func (b *BaseCommand) SetSpanContext(sc trace.SpanContext) {
	b.spanContext = sc
}

// Validate is a no-op for BaseCommand. Concrete commands should override this.
func (b *BaseCommand) Validate() error {
	return nil
}

// Result contains the outcome of a successful command.
type Result struct {
	// Events are the appended events, in sequence order.
	Events []events.Event
	// Data contains optional result data for the caller.
	Data any
}

// ExpectVersion is embedded by thread-targeting commands for optimistic
// concurrency. Zero skips the check.
type ExpectVersion struct {
	ExpectedVersion uint64 `json:"expected_version,omitempty"`
}

// Expected returns the version the caller expects the target to be at.
func (e ExpectVersion) Expected() uint64 { return e.ExpectedVersion }
