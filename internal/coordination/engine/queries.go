package engine

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"time"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/projection"
	"github.com/impel-dev/impel/internal/coordination/registry"
	"github.com/impel-dev/impel/internal/pubsub"
)

// Status summarizes the coordination state.
type Status struct {
	Paused          bool   `json:"paused"`
	PauseReason     string `json:"pause_reason,omitempty"`
	Sequence        uint64 `json:"sequence"`
	ThreadCount     int    `json:"thread_count"`
	AgentCount      int    `json:"agent_count"`
	OpenEscalations int    `json:"open_escalations"`
}

// Status returns a summary of the current state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	open := 0
	for _, esc := range e.state.Escalations {
		if esc.Status != domain.EscalationResolved {
			open++
		}
	}
	return Status{
		Paused:          e.state.System.Paused,
		PauseReason:     e.state.System.PauseReason,
		Sequence:        e.state.System.CurrentSequence,
		ThreadCount:     len(e.state.Threads),
		AgentCount:      len(e.state.Agents),
		OpenEscalations: open,
	}
}

// AvailableThreads returns open, unclaimed threads decayed to the current
// time, hottest first.
func (e *Engine) AvailableThreads() []*domain.Thread {
	return e.AvailableThreadsAt(e.clock.Now())
}

// AvailableThreadsAt ranks available threads with temperatures decayed to
// now. Equal temperatures order by creation time per the configured
// tie-break, then by id.
func (e *Engine) AvailableThreadsAt(now time.Time) []*domain.Thread {
	e.mu.RLock()
	halfLife := e.state.System.Coefficients.HalfLife
	var out []*domain.Thread
	for _, t := range e.state.Threads {
		if !t.IsAvailable() {
			continue
		}
		c := t.Clone()
		c.Temperature = c.Temperature.Decay(now, halfLife)
		out = append(out, c)
	}
	e.mu.RUnlock()

	newest := e.cfg.TieBreak == TieBreakNewest
	slices.SortFunc(out, func(a, b *domain.Thread) int {
		if c := cmp.Compare(b.Temperature.Value, a.Temperature.Value); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			if newest {
				return -c
			}
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Thread returns a copy of the thread with id, terminal threads included.
func (e *Engine) Thread(id domain.ThreadID) (*domain.Thread, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, err := registry.LookupThread(e.state, id)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Threads returns copies of every thread, oldest first.
func (e *Engine) Threads() []*domain.Thread {
	e.mu.RLock()
	out := make([]*domain.Thread, 0, len(e.state.Threads))
	for _, t := range e.state.Threads {
		out = append(out, t.Clone())
	}
	e.mu.RUnlock()

	slices.SortFunc(out, func(a, b *domain.Thread) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Agent returns a copy of the agent with id.
func (e *Engine) Agent(id domain.AgentID) (*domain.Agent, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, err := registry.LookupAgent(e.state, id)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// Agents returns copies of every registered agent ordered by id.
func (e *Engine) Agents() []*domain.Agent {
	e.mu.RLock()
	out := make([]*domain.Agent, 0, len(e.state.Agents))
	for _, a := range e.state.Agents {
		out = append(out, a.Clone())
	}
	e.mu.RUnlock()

	slices.SortFunc(out, func(a, b *domain.Agent) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Escalation returns a copy of the escalation with id.
func (e *Engine) Escalation(id domain.EscalationID) (*domain.Escalation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	esc, err := registry.LookupEscalation(e.state, id)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// Escalations lists matching escalations, highest priority first, then
// oldest first.
func (e *Engine) Escalations(f registry.EscalationFilter) []*domain.Escalation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return registry.ListEscalations(e.state.Escalations, f)
}

// Authenticate resolves an agent token. Offline agents never authenticate.
func (e *Engine) Authenticate(ctx context.Context, token string) (domain.AgentID, bool) {
	return e.auth.Authenticate(ctx, token)
}

// Head returns the sequence of the last appended event.
func (e *Engine) Head() uint64 {
	return e.log.Head()
}

// EventsSince returns the events after seq as of the call.
func (e *Engine) EventsSince(seq uint64) iter.Seq[events.Event] {
	return e.log.EventsSince(seq)
}

// State returns a deep copy of the coordination state.
func (e *Engine) State() *projection.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Subscribe streams future events matching f. The channel closes when ctx is
// done, the engine closes, or the subscriber falls a full buffer behind.
func (e *Engine) Subscribe(ctx context.Context, f events.Filter) <-chan pubsub.Event[events.Event] {
	return e.broker.SubscribeFunc(ctx, f.Matches)
}

// SubscribeSince returns the matching events after seq together with a
// subscription to every later one. Events are published under the write
// lock, so the backlog and the stream meet without gap or overlap.
func (e *Engine) SubscribeSince(ctx context.Context, f events.Filter, seq uint64) ([]events.Event, <-chan pubsub.Event[events.Event]) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var backlog []events.Event
	for ev := range e.log.EventsSince(seq) {
		if f.Matches(ev) {
			backlog = append(backlog, ev)
		}
	}
	return backlog, e.broker.SubscribeFunc(ctx, f.Matches)
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// Coefficients returns the temperature coefficients in effect.
func (e *Engine) Coefficients() domain.Coefficients {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.System.Coefficients
}
