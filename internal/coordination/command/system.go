package command

import (
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/types"
)

// ===========================================================================
// System Commands
// ===========================================================================

// PauseSystemCommand halts every command except resume.
type PauseSystemCommand struct {
	*BaseCommand
	Reason string `json:"reason,omitempty"`
}

// NewPauseSystemCommand creates a new PauseSystemCommand.
func NewPauseSystemCommand(source CommandSource, reason string) *PauseSystemCommand {
	base := NewBaseCommand(CmdPauseSystem, source)
	return &PauseSystemCommand{
		BaseCommand: &base,
		Reason:      reason,
	}
}

// ResumeSystemCommand lifts a pause.
type ResumeSystemCommand struct {
	*BaseCommand
}

// NewResumeSystemCommand creates a new ResumeSystemCommand.
func NewResumeSystemCommand(source CommandSource) *ResumeSystemCommand {
	base := NewBaseCommand(CmdResumeSystem, source)
	return &ResumeSystemCommand{BaseCommand: &base}
}

// ConfigureTemperatureCommand records the coefficients used by every later
// decay and boost. The engine issues it at genesis and whenever the
// configured coefficients differ from the recorded ones.
type ConfigureTemperatureCommand struct {
	*BaseCommand
	Coefficients domain.Coefficients `json:"coefficients"`
}

// NewConfigureTemperatureCommand creates a new ConfigureTemperatureCommand.
func NewConfigureTemperatureCommand(source CommandSource, c domain.Coefficients) *ConfigureTemperatureCommand {
	base := NewBaseCommand(CmdConfigureTemperature, source)
	return &ConfigureTemperatureCommand{
		BaseCommand:  &base,
		Coefficients: c,
	}
}

// Validate checks the half-life and that every magnitude lies in [0,1].
func (c *ConfigureTemperatureCommand) Validate() error {
	if c.Coefficients.HalfLife <= 0 {
		return types.Invalid("half_life", "must be positive, got %s", c.Coefficients.HalfLife)
	}
	for field, v := range map[string]float64{
		"initial_value":       c.Coefficients.InitialValue,
		"activity_boost":      c.Coefficients.ActivityBoost,
		"escalation_boost":    c.Coefficients.EscalationBoost,
		"human_comment_boost": c.Coefficients.HumanCommentBoost,
	} {
		if err := validateTemperature(field, v); err != nil {
			return err
		}
	}
	return nil
}
