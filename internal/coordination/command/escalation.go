package command

import (
	"strings"

	"github.com/google/uuid"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/types"
)

// ===========================================================================
// Escalation Commands
// ===========================================================================

// RaiseEscalationCommand opens an escalation, optionally about a thread.
type RaiseEscalationCommand struct {
	*BaseCommand
	EscalationID domain.EscalationID       `json:"escalation_id"` // Generated if not specified
	Category     string                    `json:"category"`
	Priority     domain.EscalationPriority `json:"priority"`
	Title        string                    `json:"title"`
	Description  string                    `json:"description,omitempty"`
	ThreadID     domain.ThreadID           `json:"thread_id,omitempty"`
	Options      []domain.EscalationOption `json:"options,omitempty"`
}

// RaiseEscalationOption configures a RaiseEscalationCommand.
type RaiseEscalationOption func(*RaiseEscalationCommand)

// AboutThread links the escalation to a thread, which is boosted on raise.
func AboutThread(id domain.ThreadID) RaiseEscalationOption {
	return func(c *RaiseEscalationCommand) {
		c.ThreadID = id
	}
}

// WithEscalationDescription sets the escalation body.
func WithEscalationDescription(description string) RaiseEscalationOption {
	return func(c *RaiseEscalationCommand) {
		c.Description = description
	}
}

// WithOptions sets the choices offered to the resolver.
func WithOptions(opts ...domain.EscalationOption) RaiseEscalationOption {
	return func(c *RaiseEscalationCommand) {
		c.Options = opts
	}
}

// NewRaiseEscalationCommand creates a new RaiseEscalationCommand.
func NewRaiseEscalationCommand(source CommandSource, category string, priority domain.EscalationPriority, title string, opts ...RaiseEscalationOption) *RaiseEscalationCommand {
	base := NewBaseCommand(CmdRaiseEscalation, source)
	cmd := &RaiseEscalationCommand{
		BaseCommand:  &base,
		EscalationID: domain.EscalationID(uuid.New().String()),
		Category:     category,
		Priority:     priority,
		Title:        title,
	}
	for _, opt := range opts {
		opt(cmd)
	}
	return cmd
}

// Validate checks category, title, priority and options.
func (c *RaiseEscalationCommand) Validate() error {
	if c.EscalationID == "" {
		return types.Invalid("escalation_id", "is required")
	}
	if strings.TrimSpace(c.Category) == "" {
		return types.Invalid("category", "is required")
	}
	if strings.TrimSpace(c.Title) == "" {
		return types.Invalid("title", "is required")
	}
	if !c.Priority.Valid() {
		return types.Invalid("priority", "unknown priority %d", int(c.Priority))
	}
	for i, opt := range c.Options {
		if strings.TrimSpace(opt.Label) == "" {
			return types.Invalid("options", "option %d has no label", i)
		}
	}
	return nil
}

// ContentHash excludes the generated id.
func (c *RaiseEscalationCommand) ContentHash() string {
	return contentHash(c.Category, c.Priority, c.Title, c.Description, c.ThreadID, c.Options)
}

// AcknowledgeEscalationCommand moves an escalation from open to acknowledged.
type AcknowledgeEscalationCommand struct {
	*BaseCommand
	EscalationID domain.EscalationID `json:"escalation_id"`
	By           string              `json:"by"`
}

// NewAcknowledgeEscalationCommand creates a new AcknowledgeEscalationCommand.
func NewAcknowledgeEscalationCommand(source CommandSource, id domain.EscalationID, by string) *AcknowledgeEscalationCommand {
	base := NewBaseCommand(CmdAcknowledgeEscalation, source)
	base.SetActor(by)
	return &AcknowledgeEscalationCommand{
		BaseCommand:  &base,
		EscalationID: id,
		By:           by,
	}
}

// Validate checks that the escalation and acknowledger are named.
func (c *AcknowledgeEscalationCommand) Validate() error {
	if c.EscalationID == "" {
		return types.Invalid("escalation_id", "is required")
	}
	if strings.TrimSpace(c.By) == "" {
		return types.Invalid("by", "is required")
	}
	return nil
}

// ResolveEscalationCommand moves an escalation from acknowledged to resolved.
type ResolveEscalationCommand struct {
	*BaseCommand
	EscalationID   domain.EscalationID `json:"escalation_id"`
	By             string              `json:"by"`
	Resolution     string              `json:"resolution,omitempty"`
	SelectedOption *int                `json:"selected_option,omitempty"`
}

// NewResolveEscalationCommand creates a new ResolveEscalationCommand.
func NewResolveEscalationCommand(source CommandSource, id domain.EscalationID, by, resolution string, selected *int) *ResolveEscalationCommand {
	base := NewBaseCommand(CmdResolveEscalation, source)
	base.SetActor(by)
	return &ResolveEscalationCommand{
		BaseCommand:    &base,
		EscalationID:   id,
		By:             by,
		Resolution:     resolution,
		SelectedOption: selected,
	}
}

// Validate checks ids and that a selected option is not negative.
func (c *ResolveEscalationCommand) Validate() error {
	if c.EscalationID == "" {
		return types.Invalid("escalation_id", "is required")
	}
	if strings.TrimSpace(c.By) == "" {
		return types.Invalid("by", "is required")
	}
	if c.SelectedOption != nil && *c.SelectedOption < 0 {
		return types.Invalid("selected_option", "must not be negative")
	}
	return nil
}
