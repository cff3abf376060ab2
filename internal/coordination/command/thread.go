package command

import (
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/types"
)

// ===========================================================================
// Thread Lifecycle Commands
// ===========================================================================

// CreateThreadCommand adds a new thread in the embryo state.
type CreateThreadCommand struct {
	*BaseCommand
	ThreadID    domain.ThreadID   `json:"thread_id"` // Generated if not specified
	Title       string            `json:"title"`     // Required
	Description string            `json:"description,omitempty"`
	ParentID    domain.ThreadID   `json:"parent_id,omitempty"`
	Priority    *float64          `json:"priority,omitempty"` // Initial temperature; configured default when nil
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CreateThreadOption configures a CreateThreadCommand.
type CreateThreadOption func(*CreateThreadCommand)

// WithDescription sets the thread description.
func WithDescription(description string) CreateThreadOption {
	return func(c *CreateThreadCommand) {
		c.Description = description
	}
}

// WithParent places the new thread under parent.
func WithParent(parent domain.ThreadID) CreateThreadOption {
	return func(c *CreateThreadCommand) {
		c.ParentID = parent
	}
}

// WithPriority sets the initial temperature.
func WithPriority(priority float64) CreateThreadOption {
	return func(c *CreateThreadCommand) {
		c.Priority = &priority
	}
}

// WithMetadata attaches free-form metadata.
func WithMetadata(md map[string]string) CreateThreadOption {
	return func(c *CreateThreadCommand) {
		c.Metadata = md
	}
}

// WithThreadID fixes the id instead of generating one.
func WithThreadID(id domain.ThreadID) CreateThreadOption {
	return func(c *CreateThreadCommand) {
		c.ThreadID = id
	}
}

// NewCreateThreadCommand creates a new CreateThreadCommand.
func NewCreateThreadCommand(source CommandSource, title string, opts ...CreateThreadOption) *CreateThreadCommand {
	base := NewBaseCommand(CmdCreateThread, source)
	cmd := &CreateThreadCommand{
		BaseCommand: &base,
		ThreadID:    domain.ThreadID(uuid.New().String()),
		Title:       title,
	}
	for _, opt := range opts {
		opt(cmd)
	}
	return cmd
}

// Validate checks that the title is present and the priority is a temperature.
func (c *CreateThreadCommand) Validate() error {
	if c.ThreadID == "" {
		return types.Invalid("thread_id", "is required")
	}
	if strings.TrimSpace(c.Title) == "" {
		return types.Invalid("title", "is required")
	}
	if c.ParentID == c.ThreadID {
		return types.Invalid("parent_id", "thread cannot be its own parent")
	}
	if c.Priority != nil {
		if err := validateTemperature("priority", *c.Priority); err != nil {
			return err
		}
	}
	return nil
}

// ContentHash excludes the generated id so double submissions are detected.
func (c *CreateThreadCommand) ContentHash() string {
	return contentHash(c.Title, c.Description, c.ParentID, c.Priority, c.Metadata)
}

// TransitionThreadCommand moves a thread along a lifecycle edge.
// Killing uses KillThreadCommand.
type TransitionThreadCommand struct {
	*BaseCommand
	ExpectVersion
	ThreadID domain.ThreadID    `json:"thread_id"`
	To       domain.ThreadState `json:"to"`
	Reason   string             `json:"reason,omitempty"`
}

// NewTransitionThreadCommand creates a new TransitionThreadCommand.
func NewTransitionThreadCommand(source CommandSource, threadID domain.ThreadID, to domain.ThreadState, reason string) *TransitionThreadCommand {
	base := NewBaseCommand(CmdTransitionThread, source)
	return &TransitionThreadCommand{
		BaseCommand: &base,
		ThreadID:    threadID,
		To:          to,
		Reason:      reason,
	}
}

// Validate checks the target state.
func (c *TransitionThreadCommand) Validate() error {
	if c.ThreadID == "" {
		return types.Invalid("thread_id", "is required")
	}
	if _, err := domain.ParseThreadState(string(c.To)); err != nil {
		return types.Invalid("to", "%v", err)
	}
	if c.To == domain.StateKilled {
		return types.Invalid("to", "use kill_thread to kill a thread")
	}
	if c.To == domain.StateEmbryo {
		return types.Invalid("to", "threads never return to embryo")
	}
	return nil
}

// KillThreadCommand forcibly terminates a thread.
type KillThreadCommand struct {
	*BaseCommand
	ExpectVersion
	ThreadID domain.ThreadID `json:"thread_id"`
	Reason   string          `json:"reason,omitempty"`
}

// NewKillThreadCommand creates a new KillThreadCommand.
func NewKillThreadCommand(source CommandSource, threadID domain.ThreadID, reason string) *KillThreadCommand {
	base := NewBaseCommand(CmdKillThread, source)
	return &KillThreadCommand{
		BaseCommand: &base,
		ThreadID:    threadID,
		Reason:      reason,
	}
}

// Validate checks that ThreadID is present.
func (c *KillThreadCommand) Validate() error {
	if c.ThreadID == "" {
		return types.Invalid("thread_id", "is required")
	}
	return nil
}

// MergeThreadsCommand folds SourceID into TargetID. ExpectedVersion applies
// to the source.
type MergeThreadsCommand struct {
	*BaseCommand
	ExpectVersion
	SourceID domain.ThreadID `json:"source_id"`
	TargetID domain.ThreadID `json:"target_id"`
}

// NewMergeThreadsCommand creates a new MergeThreadsCommand.
func NewMergeThreadsCommand(source CommandSource, sourceID, targetID domain.ThreadID) *MergeThreadsCommand {
	base := NewBaseCommand(CmdMergeThreads, source)
	return &MergeThreadsCommand{
		BaseCommand: &base,
		SourceID:    sourceID,
		TargetID:    targetID,
	}
}

// Validate checks that both ids are present and distinct.
func (c *MergeThreadsCommand) Validate() error {
	if c.SourceID == "" {
		return types.Invalid("source_id", "is required")
	}
	if c.TargetID == "" {
		return types.Invalid("target_id", "is required")
	}
	if c.SourceID == c.TargetID {
		return types.Invalid("target_id", "cannot merge a thread into itself")
	}
	return nil
}

// ===========================================================================
// Temperature Commands
// ===========================================================================

// SetTemperatureCommand overrides a thread's temperature.
type SetTemperatureCommand struct {
	*BaseCommand
	ExpectVersion
	ThreadID    domain.ThreadID `json:"thread_id"`
	Temperature float64         `json:"temperature"`
	Reason      string          `json:"reason,omitempty"`
}

// NewSetTemperatureCommand creates a new SetTemperatureCommand.
func NewSetTemperatureCommand(source CommandSource, threadID domain.ThreadID, temperature float64, reason string) *SetTemperatureCommand {
	base := NewBaseCommand(CmdSetTemperature, source)
	return &SetTemperatureCommand{
		BaseCommand: &base,
		ThreadID:    threadID,
		Temperature: temperature,
		Reason:      reason,
	}
}

// Validate checks that the temperature lies in [0,1].
func (c *SetTemperatureCommand) Validate() error {
	if c.ThreadID == "" {
		return types.Invalid("thread_id", "is required")
	}
	return validateTemperature("temperature", c.Temperature)
}

// BoostThreadCommand applies the configured activity or human-comment boost.
// Escalation boosts are applied by raising an escalation.
type BoostThreadCommand struct {
	*BaseCommand
	ExpectVersion
	ThreadID domain.ThreadID  `json:"thread_id"`
	Boost    domain.BoostKind `json:"boost"`
}

// NewBoostThreadCommand creates a new BoostThreadCommand.
func NewBoostThreadCommand(source CommandSource, threadID domain.ThreadID, boost domain.BoostKind) *BoostThreadCommand {
	base := NewBaseCommand(CmdBoostThread, source)
	return &BoostThreadCommand{
		BaseCommand: &base,
		ThreadID:    threadID,
		Boost:       boost,
	}
}

// Validate checks the boost kind.
func (c *BoostThreadCommand) Validate() error {
	if c.ThreadID == "" {
		return types.Invalid("thread_id", "is required")
	}
	if c.Boost != domain.BoostActivity && c.Boost != domain.BoostHumanComment {
		return types.Invalid("boost", "must be %s or %s, got %q", domain.BoostActivity, domain.BoostHumanComment, c.Boost)
	}
	return nil
}

func validateTemperature(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return types.Invalid(field, "must be within [0, 1], got %v", v)
	}
	return nil
}
