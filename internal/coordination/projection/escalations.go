package projection

import (
	"slices"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/events"
)

// Escalations is the escalation projection keyed by id.
type Escalations map[domain.EscalationID]*domain.Escalation

// Apply folds ev into the escalation projection.
func (p Escalations) Apply(ev events.Event) {
	ts := ev.Timestamp
	id := domain.EscalationID(ev.EntityID)

	switch pl := ev.Payload.(type) {
	case events.EscalationRaised:
		var opts []domain.EscalationOption
		if len(pl.Options) > 0 {
			opts = slices.Clone(pl.Options)
		}
		p[id] = &domain.Escalation{
			ID:          id,
			Category:    pl.Category,
			Priority:    pl.Priority,
			Status:      domain.EscalationOpen,
			Title:       pl.Title,
			Description: pl.Description,
			ThreadID:    pl.ThreadID,
			CreatedBy:   pl.CreatedBy,
			CreatedAt:   ts,
			Options:     opts,
		}

	case events.EscalationAcknowledged:
		if e, ok := p[id]; ok {
			at := ts
			e.Status = domain.EscalationAcknowledged
			e.AcknowledgedAt = &at
			e.AcknowledgedBy = pl.By
		}

	case events.EscalationResolved:
		if e, ok := p[id]; ok {
			at := ts
			e.Status = domain.EscalationResolved
			e.ResolvedAt = &at
			e.ResolvedBy = pl.By
			e.Resolution = pl.Resolution
			if pl.SelectedOption != nil {
				idx := *pl.SelectedOption
				e.SelectedOption = &idx
			}
		}
	}
}
