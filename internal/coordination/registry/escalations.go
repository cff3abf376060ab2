package registry

import (
	"cmp"
	"slices"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/projection"
	"github.com/impel-dev/impel/internal/coordination/types"
)

// LookupEscalation returns the escalation with id.
func LookupEscalation(s *projection.State, id domain.EscalationID) (*domain.Escalation, error) {
	e, ok := s.Escalations[id]
	if !ok {
		return nil, &types.NotFoundError{Entity: "escalation", ID: string(id)}
	}
	return e, nil
}

// CheckAcknowledge allows Open -> Acknowledged only.
func CheckAcknowledge(e *domain.Escalation) error {
	if e.Status != domain.EscalationOpen {
		return &types.TransitionError{
			Entity: "escalation",
			ID:     string(e.ID),
			From:   string(e.Status),
			To:     string(domain.EscalationAcknowledged),
		}
	}
	return nil
}

// CheckResolve allows Acknowledged -> Resolved only. A selected option must
// index the escalation's options.
func CheckResolve(e *domain.Escalation, selected *int) error {
	if e.Status != domain.EscalationAcknowledged {
		return &types.TransitionError{
			Entity: "escalation",
			ID:     string(e.ID),
			From:   string(e.Status),
			To:     string(domain.EscalationResolved),
		}
	}
	if selected != nil && (*selected < 0 || *selected >= len(e.Options)) {
		return types.Invalid("selected_option", "index %d out of range for %d options", *selected, len(e.Options))
	}
	return nil
}

// EscalationFilter narrows an escalation listing. Zero fields match all.
type EscalationFilter struct {
	Status      domain.EscalationStatus
	MinPriority domain.EscalationPriority
	ThreadID    domain.ThreadID
}

func (f EscalationFilter) matches(e *domain.Escalation) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if e.Priority < f.MinPriority {
		return false
	}
	return f.ThreadID == "" || e.ThreadID == f.ThreadID
}

// ListEscalations returns copies of the matching escalations, highest
// priority first, then oldest first.
func ListEscalations(p projection.Escalations, f EscalationFilter) []*domain.Escalation {
	out := make([]*domain.Escalation, 0, len(p))
	for _, e := range p {
		if f.matches(e) {
			out = append(out, e.Clone())
		}
	}
	SortEscalations(out)
	return out
}

// SortEscalations orders by priority descending, CreatedAt ascending, then id.
func SortEscalations(es []*domain.Escalation) {
	slices.SortFunc(es, func(a, b *domain.Escalation) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
