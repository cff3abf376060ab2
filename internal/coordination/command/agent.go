package command

import (
	"strings"

	"github.com/google/uuid"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/types"
)

// ===========================================================================
// Agent Registry Commands
// ===========================================================================

// RegisterAgentCommand adds an agent. The engine issues the token and returns
// it once in the result data.
type RegisterAgentCommand struct {
	*BaseCommand
	AgentID   domain.AgentID    `json:"agent_id"` // Generated if not specified
	AgentType string            `json:"agent_type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RegisterAgentResult is the result data of a successful registration.
type RegisterAgentResult struct {
	AgentID domain.AgentID
	Token   string
}

// NewRegisterAgentCommand creates a new RegisterAgentCommand.
func NewRegisterAgentCommand(source CommandSource, agentType string) *RegisterAgentCommand {
	base := NewBaseCommand(CmdRegisterAgent, source)
	return &RegisterAgentCommand{
		BaseCommand: &base,
		AgentID:     domain.AgentID(uuid.New().String()),
		AgentType:   agentType,
	}
}

// Validate checks that the agent type is present.
func (c *RegisterAgentCommand) Validate() error {
	if c.AgentID == "" {
		return types.Invalid("agent_id", "is required")
	}
	if strings.TrimSpace(c.AgentType) == "" {
		return types.Invalid("agent_type", "is required")
	}
	return nil
}

// ContentHash excludes the generated id.
func (c *RegisterAgentCommand) ContentHash() string {
	return contentHash(c.AgentType, c.Metadata)
}

// ClaimThreadCommand assigns ThreadID to AgentID. ExpectedVersion applies to
// the thread.
type ClaimThreadCommand struct {
	*BaseCommand
	ExpectVersion
	AgentID  domain.AgentID  `json:"agent_id"`
	ThreadID domain.ThreadID `json:"thread_id"`
}

// NewClaimThreadCommand creates a new ClaimThreadCommand.
func NewClaimThreadCommand(source CommandSource, agentID domain.AgentID, threadID domain.ThreadID) *ClaimThreadCommand {
	base := NewBaseCommand(CmdClaimThread, source)
	base.SetActor(string(agentID))
	return &ClaimThreadCommand{
		BaseCommand: &base,
		AgentID:     agentID,
		ThreadID:    threadID,
	}
}

// Validate checks that both ids are present.
func (c *ClaimThreadCommand) Validate() error {
	if c.AgentID == "" {
		return types.Invalid("agent_id", "is required")
	}
	if c.ThreadID == "" {
		return types.Invalid("thread_id", "is required")
	}
	return nil
}

// ReleaseClaimCommand clears an agent's current claim.
type ReleaseClaimCommand struct {
	*BaseCommand
	AgentID domain.AgentID `json:"agent_id"`
	Reason  string         `json:"reason,omitempty"`
}

// NewReleaseClaimCommand creates a new ReleaseClaimCommand.
func NewReleaseClaimCommand(source CommandSource, agentID domain.AgentID, reason string) *ReleaseClaimCommand {
	base := NewBaseCommand(CmdReleaseClaim, source)
	base.SetActor(string(agentID))
	return &ReleaseClaimCommand{
		BaseCommand: &base,
		AgentID:     agentID,
		Reason:      reason,
	}
}

// Validate checks that AgentID is present.
func (c *ReleaseClaimCommand) Validate() error {
	if c.AgentID == "" {
		return types.Invalid("agent_id", "is required")
	}
	return nil
}

// DisconnectAgentCommand releases any claim and marks the agent offline.
type DisconnectAgentCommand struct {
	*BaseCommand
	AgentID domain.AgentID `json:"agent_id"`
	Reason  string         `json:"reason,omitempty"`
}

// NewDisconnectAgentCommand creates a new DisconnectAgentCommand.
func NewDisconnectAgentCommand(source CommandSource, agentID domain.AgentID, reason string) *DisconnectAgentCommand {
	base := NewBaseCommand(CmdDisconnectAgent, source)
	return &DisconnectAgentCommand{
		BaseCommand: &base,
		AgentID:     agentID,
		Reason:      reason,
	}
}

// Validate checks that AgentID is present.
func (c *DisconnectAgentCommand) Validate() error {
	if c.AgentID == "" {
		return types.Invalid("agent_id", "is required")
	}
	return nil
}
