package projection

import (
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/events"
)

// Agents is the agent projection keyed by id.
type Agents map[domain.AgentID]*domain.Agent

// Apply folds ev into the agent projection.
func (p Agents) Apply(ev events.Event) {
	ts := ev.Timestamp

	switch pl := ev.Payload.(type) {
	case events.AgentRegistered:
		id := domain.AgentID(ev.EntityID)
		p[id] = &domain.Agent{
			ID:           id,
			AgentType:    pl.AgentType,
			Status:       domain.AgentIdle,
			TokenDigest:  pl.TokenDigest,
			RegisteredAt: ts,
			LastActiveAt: ts,
			Metadata:     cloneMetadata(pl.Metadata),
		}

	case events.AgentDisconnected:
		if a, ok := p[domain.AgentID(ev.EntityID)]; ok {
			a.Status = domain.AgentOffline
			a.CurrentThread = ""
			a.LastActiveAt = ts
		}

	case events.ThreadClaimed:
		if a, ok := p[pl.AgentID]; ok {
			a.CurrentThread = domain.ThreadID(ev.EntityID)
			a.Status = domain.AgentActive
			a.LastActiveAt = ts
		}

	case events.ThreadReleased:
		a, ok := p[pl.AgentID]
		if !ok {
			return
		}
		if a.CurrentThread == domain.ThreadID(ev.EntityID) {
			a.CurrentThread = ""
			if a.Status != domain.AgentOffline {
				a.Status = domain.AgentIdle
			}
		}
		if pl.Completed {
			a.ThreadsCompleted++
		}
		a.LastActiveAt = ts
	}
}

// Holder returns the agent holding thread id, if any.
func (p Agents) Holder(id domain.ThreadID) (*domain.Agent, bool) {
	for _, a := range p {
		if a.CurrentThread == id {
			return a, true
		}
	}
	return nil, false
}
