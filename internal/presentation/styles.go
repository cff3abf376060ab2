package presentation

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/impel-dev/impel/internal/coordination/domain"
)

var (
	textMutedColor  = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#8C8C8C"}
	stateEmbryo     = lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#A78BFA"}
	stateActive     = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#73F59F"}
	stateBlocked    = lipgloss.AdaptiveColor{Light: "#BF3989", Dark: "#FF8787"}
	stateReview     = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#FECA57"}
	stateTerminal   = lipgloss.AdaptiveColor{Light: "#57606A", Dark: "#6E7681"}
	priorityHotter  = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#FF6B6B"}
	priorityWarmer  = lipgloss.AdaptiveColor{Light: "#BC4C00", Dark: "#FFA94D"}
	headerStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(textMutedColor)
	okStyle         = lipgloss.NewStyle().Foreground(stateActive).Bold(true)
	failStyle       = lipgloss.NewStyle().Foreground(stateBlocked).Bold(true)
	pausedStyle     = lipgloss.NewStyle().Foreground(stateReview).Bold(true)
	criticalStyle   = lipgloss.NewStyle().Foreground(priorityHotter).Bold(true)
	highStyle       = lipgloss.NewStyle().Foreground(priorityWarmer)
	sequenceStyle   = lipgloss.NewStyle().Foreground(textMutedColor).Width(6).Align(lipgloss.Right)
	eventKindStyle  = lipgloss.NewStyle().Width(24)
	entityIDStyle   = lipgloss.NewStyle().Width(38)
	threadStateCell = lipgloss.NewStyle().Width(9)
)

// stateStyle returns the label style of a thread state.
func stateStyle(s domain.ThreadState) lipgloss.Style {
	base := threadStateCell
	switch s {
	case domain.StateEmbryo:
		return base.Foreground(stateEmbryo)
	case domain.StateActive:
		return base.Foreground(stateActive)
	case domain.StateBlocked:
		return base.Foreground(stateBlocked).Bold(true)
	case domain.StateReview:
		return base.Foreground(stateReview)
	default:
		return base.Foreground(stateTerminal)
	}
}

// temperatureStyle colors hot threads so they stand out in listings.
func temperatureStyle(v float64) lipgloss.Style {
	switch {
	case v >= 0.75:
		return criticalStyle
	case v >= 0.5:
		return highStyle
	default:
		return mutedStyle
	}
}

// priorityStyle colors escalation priorities.
func priorityStyle(p string) lipgloss.Style {
	switch p {
	case domain.PriorityCritical.String():
		return criticalStyle
	case domain.PriorityHigh.String():
		return highStyle
	default:
		return lipgloss.NewStyle()
	}
}

// TruncateString truncates a string to fit within maxWidth, adding ellipsis if needed.
func TruncateString(s string, maxWidth int) string {
	if maxWidth < 1 {
		return ""
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return "..."[:maxWidth]
	}

	// Truncate rune by rune
	result := ""
	for _, r := range s {
		test := result + string(r)
		if lipgloss.Width(test) > maxWidth-3 {
			break
		}
		result = test
	}
	return result + "..."
}
