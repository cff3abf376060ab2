package projection

import (
	"time"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/events"
)

// Threads is the thread projection keyed by id.
type Threads map[domain.ThreadID]*domain.Thread

// Apply folds ev into the thread projection. Temperature changes are computed
// from the event timestamp and the coefficients in force.
func (p Threads) Apply(ev events.Event, coeff domain.Coefficients) {
	ts := ev.Timestamp
	id := domain.ThreadID(ev.EntityID)

	switch pl := ev.Payload.(type) {
	case events.ThreadCreated:
		p[id] = &domain.Thread{
			ID:          id,
			State:       domain.StateEmbryo,
			Title:       pl.Title,
			Description: pl.Description,
			Temperature: domain.NewTemperature(pl.InitialTemperature, ts),
			ParentID:    pl.ParentID,
			CreatedAt:   ts,
			UpdatedAt:   ts,
			Version:     1,
			Metadata:    cloneMetadata(pl.Metadata),
		}

	case events.ThreadTransitioned:
		if t, ok := p[id]; ok {
			t.State = pl.To
			touch(t, ts)
		}

	case events.ThreadKilled:
		if t, ok := p[id]; ok {
			t.State = domain.StateKilled
			t.KillReason = pl.Reason
			t.ClaimedBy = ""
			touch(t, ts)
		}

	case events.ThreadMerged:
		src, ok := p[id]
		if !ok {
			return
		}
		src.State = domain.StateKilled
		src.SupersededBy = pl.TargetID
		src.ClaimedBy = ""
		touch(src, ts)

		for _, childID := range pl.ReparentedIDs {
			if child, ok := p[childID]; ok {
				child.ParentID = pl.TargetID
				touch(child, ts)
			}
		}
		if target, ok := p[pl.TargetID]; ok {
			target.Temperature = target.Temperature.Max(src.Temperature, ts, coeff.HalfLife)
			touch(target, ts)
		}

	case events.ThreadTemperatureSet:
		if t, ok := p[id]; ok {
			t.Temperature = domain.NewTemperature(pl.Value, ts)
			touch(t, ts)
		}

	case events.ThreadBoosted:
		if t, ok := p[id]; ok {
			t.Temperature = t.Temperature.Boost(coeff.BoostFor(pl.Boost), ts, coeff.HalfLife)
			touch(t, ts)
		}

	case events.ThreadClaimed:
		if t, ok := p[id]; ok {
			t.ClaimedBy = pl.AgentID
			touch(t, ts)
		}

	case events.ThreadReleased:
		if t, ok := p[id]; ok {
			t.ClaimedBy = ""
			touch(t, ts)
		}

	case events.EscalationRaised:
		if pl.ThreadID == "" {
			return
		}
		if t, ok := p[pl.ThreadID]; ok && !t.State.IsTerminal() {
			t.Temperature = t.Temperature.Boost(coeff.EscalationBoost, ts, coeff.HalfLife)
			touch(t, ts)
		}
	}
}

// Children returns the ids of threads whose parent is id.
func (p Threads) Children(id domain.ThreadID) []domain.ThreadID {
	var out []domain.ThreadID
	for cid, t := range p {
		if t.ParentID == id {
			out = append(out, cid)
		}
	}
	return out
}

// IsDescendant reports whether candidate is below ancestor in the parent tree.
func (p Threads) IsDescendant(candidate, ancestor domain.ThreadID) bool {
	seen := make(map[domain.ThreadID]bool)
	for cur := candidate; cur != "" && !seen[cur]; {
		seen[cur] = true
		t, ok := p[cur]
		if !ok {
			return false
		}
		if t.ParentID == ancestor {
			return true
		}
		cur = t.ParentID
	}
	return false
}

func touch(t *domain.Thread, ts time.Time) {
	t.Version++
	t.UpdatedAt = ts
}
