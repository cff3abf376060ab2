// Package presentation renders coordination state for the CLI, as JSON for
// scripts or as styled text for people.
package presentation

import (
	"time"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/engine"
	"github.com/impel-dev/impel/internal/coordination/events"
)

// ThreadDTO represents a thread with its temperature decayed to render time.
type ThreadDTO struct {
	ID           string            `json:"id"`
	State        string            `json:"state"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Temperature  float64           `json:"temperature"`
	ClaimedBy    string            `json:"claimed_by,omitempty"`
	ParentID     string            `json:"parent_id,omitempty"`
	SupersededBy string            `json:"superseded_by,omitempty"`
	KillReason   string            `json:"kill_reason,omitempty"`
	Version      uint64            `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// FromDomainThread converts a thread, decaying its temperature to now.
func FromDomainThread(t *domain.Thread, now time.Time, halfLife time.Duration) ThreadDTO {
	temp := t.Temperature.Decay(now, halfLife)
	return ThreadDTO{
		ID:           string(t.ID),
		State:        t.State.String(),
		Title:        t.Title,
		Description:  t.Description,
		Temperature:  temp.Value,
		ClaimedBy:    string(t.ClaimedBy),
		ParentID:     string(t.ParentID),
		SupersededBy: string(t.SupersededBy),
		KillReason:   t.KillReason,
		Version:      t.Version,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		Metadata:     t.Metadata,
	}
}

// FromDomainThreads converts a list of threads.
func FromDomainThreads(ts []*domain.Thread, now time.Time, halfLife time.Duration) []ThreadDTO {
	out := make([]ThreadDTO, 0, len(ts))
	for _, t := range ts {
		out = append(out, FromDomainThread(t, now, halfLife))
	}
	return out
}

// AgentDTO represents an agent. The token digest is never rendered.
type AgentDTO struct {
	ID               string    `json:"id"`
	AgentType        string    `json:"agent_type"`
	Status           string    `json:"status"`
	CurrentThread    string    `json:"current_thread,omitempty"`
	ThreadsCompleted uint64    `json:"threads_completed"`
	RegisteredAt     time.Time `json:"registered_at"`
	LastActiveAt     time.Time `json:"last_active_at"`
}

// FromDomainAgents converts a list of agents.
func FromDomainAgents(as []*domain.Agent) []AgentDTO {
	out := make([]AgentDTO, 0, len(as))
	for _, a := range as {
		out = append(out, AgentDTO{
			ID:               string(a.ID),
			AgentType:        a.AgentType,
			Status:           string(a.Status),
			CurrentThread:    string(a.CurrentThread),
			ThreadsCompleted: a.ThreadsCompleted,
			RegisteredAt:     a.RegisteredAt,
			LastActiveAt:     a.LastActiveAt,
		})
	}
	return out
}

// EscalationDTO represents an escalation with a named priority.
type EscalationDTO struct {
	ID             string     `json:"id"`
	Category       string     `json:"category"`
	Priority       string     `json:"priority"`
	Status         string     `json:"status"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	ThreadID       string     `json:"thread_id,omitempty"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	Resolution     string     `json:"resolution,omitempty"`
	Options        []string   `json:"options,omitempty"`
	SelectedOption *int       `json:"selected_option,omitempty"`
}

// FromDomainEscalations converts a list of escalations.
func FromDomainEscalations(es []*domain.Escalation) []EscalationDTO {
	out := make([]EscalationDTO, 0, len(es))
	for _, e := range es {
		var options []string
		for _, o := range e.Options {
			options = append(options, o.Label)
		}
		out = append(out, EscalationDTO{
			ID:             string(e.ID),
			Category:       e.Category,
			Priority:       e.Priority.String(),
			Status:         string(e.Status),
			Title:          e.Title,
			Description:    e.Description,
			ThreadID:       string(e.ThreadID),
			CreatedBy:      e.CreatedBy,
			CreatedAt:      e.CreatedAt,
			AcknowledgedBy: e.AcknowledgedBy,
			ResolvedBy:     e.ResolvedBy,
			ResolvedAt:     e.ResolvedAt,
			Resolution:     e.Resolution,
			Options:        options,
			SelectedOption: e.SelectedOption,
		})
	}
	return out
}

// ReportDTO is the outcome of a replay verification.
type ReportDTO struct {
	Sequence          uint64 `json:"sequence"`
	FullReplayMatches bool   `json:"full_replay_matches"`
	SnapshotSequence  uint64 `json:"snapshot_sequence,omitempty"`
	SnapshotMatches   bool   `json:"snapshot_matches"`
	Diff              string `json:"diff,omitempty"`
}

// FromReplayReport converts a verification report.
func FromReplayReport(r *engine.ReplayReport) ReportDTO {
	return ReportDTO{
		Sequence:          r.Sequence,
		FullReplayMatches: r.FullReplayMatches,
		SnapshotSequence:  r.SnapshotSequence,
		SnapshotMatches:   r.SnapshotMatches,
		Diff:              r.Diff,
	}
}

// eventSummary is a one-line description of an event payload.
func eventSummary(e events.Event) string {
	switch p := e.Payload.(type) {
	case events.ThreadCreated:
		return p.Title
	case events.ThreadTransitioned:
		return string(p.From) + " -> " + string(p.To)
	case events.ThreadKilled:
		return p.Reason
	case events.ThreadMerged:
		return "into " + string(p.TargetID)
	case events.ThreadClaimed:
		return "by " + string(p.AgentID)
	case events.ThreadReleased:
		return "by " + string(p.AgentID)
	case events.ThreadBoosted:
		return string(p.Boost)
	case events.EscalationRaised:
		return p.Title
	case events.SystemPaused:
		return p.Reason
	default:
		return ""
	}
}
