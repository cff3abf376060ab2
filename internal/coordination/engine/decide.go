package engine

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/impel-dev/impel/internal/coordination/command"
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/registry"
	"github.com/impel-dev/impel/internal/coordination/types"
)

// Release reasons recorded when a claim ends as a side effect.
const (
	releaseCompleted    = "thread completed"
	releaseKilled       = "thread killed"
	releaseMerged       = "thread merged"
	releaseDisconnected = "agent disconnected"
)

// decide checks cmd against the current state and returns the events that
// carry it out, plus optional result data. It never mutates state. Called
// with the write lock held.
func (e *Engine) decide(cmd command.Command) ([]events.Event, any, error) {
	s := e.state

	switch c := cmd.(type) {
	// Thread commands

	case *command.CreateThreadCommand:
		if _, exists := s.Threads[c.ThreadID]; exists {
			return nil, nil, types.Invalid("thread_id", "thread %q already exists", c.ThreadID)
		}
		if c.ParentID != "" {
			parent, err := registry.LookupThread(s, c.ParentID)
			if err != nil {
				return nil, nil, err
			}
			if parent.State.IsTerminal() {
				return nil, nil, types.Invalid("parent_id", "parent %q is %s", c.ParentID, parent.State)
			}
		}
		initial := s.System.Coefficients.InitialValue
		if c.Priority != nil {
			initial = *c.Priority
		}
		return one(threadEvent(c.ThreadID, events.ThreadCreated{
			Title:              c.Title,
			Description:        c.Description,
			ParentID:           c.ParentID,
			InitialTemperature: initial,
			Metadata:           c.Metadata,
		})), c.ThreadID, nil

	case *command.TransitionThreadCommand:
		t, err := e.threadFor(c.ThreadID, c.ExpectVersion)
		if err != nil {
			return nil, nil, err
		}
		if !e.machine.CanTransition(t.State, c.To) {
			return nil, nil, transitionError(t, c.To, c.Reason)
		}
		var batch []events.Event
		if c.To == domain.StateComplete && t.IsClaimed() {
			batch = append(batch, release(t, true, releaseCompleted))
		}
		batch = append(batch, threadEvent(t.ID, events.ThreadTransitioned{From: t.State, To: c.To, Reason: c.Reason}))
		if c.To == domain.StateBlocked {
			batch = append(batch, blockedEscalation(t, c.Reason, cmd.Actor()))
		}
		return batch, nil, nil

	case *command.KillThreadCommand:
		t, err := e.threadFor(c.ThreadID, c.ExpectVersion)
		if err != nil {
			return nil, nil, err
		}
		if !e.machine.CanTransition(t.State, domain.StateKilled) {
			return nil, nil, transitionError(t, domain.StateKilled, "")
		}
		var batch []events.Event
		if t.IsClaimed() {
			batch = append(batch, release(t, false, releaseKilled))
		}
		batch = append(batch, threadEvent(t.ID, events.ThreadKilled{From: t.State, Reason: c.Reason}))
		return batch, nil, nil

	case *command.MergeThreadsCommand:
		return e.decideMerge(c)

	case *command.SetTemperatureCommand:
		t, err := e.threadFor(c.ThreadID, c.ExpectVersion)
		if err != nil {
			return nil, nil, err
		}
		if t.State.IsTerminal() {
			return nil, nil, terminalError(t, "temperature")
		}
		return one(threadEvent(t.ID, events.ThreadTemperatureSet{Value: c.Temperature, Reason: c.Reason})), nil, nil

	case *command.BoostThreadCommand:
		t, err := e.threadFor(c.ThreadID, c.ExpectVersion)
		if err != nil {
			return nil, nil, err
		}
		if t.State.IsTerminal() {
			return nil, nil, terminalError(t, "boosted")
		}
		return one(threadEvent(t.ID, events.ThreadBoosted{Boost: c.Boost})), nil, nil

	// Agent commands

	case *command.RegisterAgentCommand:
		if _, exists := s.Agents[c.AgentID]; exists {
			return nil, nil, types.Invalid("agent_id", "agent %q already registered", c.AgentID)
		}
		token, digest, err := registry.IssueToken()
		if err != nil {
			return nil, nil, err
		}
		ev := events.New(events.EntityAgent, string(c.AgentID), events.AgentRegistered{
			AgentType:   c.AgentType,
			TokenDigest: digest,
			Metadata:    c.Metadata,
		})
		return one(ev), command.RegisterAgentResult{AgentID: c.AgentID, Token: token}, nil

	case *command.ClaimThreadCommand:
		if err := registry.CheckClaim(s, c.AgentID, c.ThreadID); err != nil {
			return nil, nil, err
		}
		if _, err := e.threadFor(c.ThreadID, c.ExpectVersion); err != nil {
			return nil, nil, err
		}
		return one(threadEvent(c.ThreadID, events.ThreadClaimed{AgentID: c.AgentID})), nil, nil

	case *command.ReleaseClaimCommand:
		threadID, err := registry.CheckRelease(s, c.AgentID)
		if err != nil {
			return nil, nil, err
		}
		return one(threadEvent(threadID, events.ThreadReleased{AgentID: c.AgentID, Reason: c.Reason})), nil, nil

	case *command.DisconnectAgentCommand:
		a, err := registry.LookupAgent(s, c.AgentID)
		if err != nil {
			return nil, nil, err
		}
		if a.Status == domain.AgentOffline {
			return nil, nil, types.Invalid("agent_id", "agent %q is already offline", c.AgentID)
		}
		var batch []events.Event
		if a.HasClaim() {
			batch = append(batch, threadEvent(a.CurrentThread, events.ThreadReleased{AgentID: a.ID, Reason: releaseDisconnected}))
		}
		batch = append(batch, events.New(events.EntityAgent, string(a.ID), events.AgentDisconnected{Reason: c.Reason}))
		return batch, nil, nil

	// Escalation commands

	case *command.RaiseEscalationCommand:
		if _, exists := s.Escalations[c.EscalationID]; exists {
			return nil, nil, types.Invalid("escalation_id", "escalation %q already exists", c.EscalationID)
		}
		if c.ThreadID != "" {
			if _, err := registry.LookupThread(s, c.ThreadID); err != nil {
				return nil, nil, err
			}
		}
		ev := events.New(events.EntityEscalation, string(c.EscalationID), events.EscalationRaised{
			Category:    c.Category,
			Priority:    c.Priority,
			Title:       c.Title,
			Description: c.Description,
			ThreadID:    c.ThreadID,
			CreatedBy:   cmd.Actor(),
			Options:     c.Options,
		})
		return one(ev), c.EscalationID, nil

	case *command.AcknowledgeEscalationCommand:
		esc, err := registry.LookupEscalation(s, c.EscalationID)
		if err != nil {
			return nil, nil, err
		}
		if err := registry.CheckAcknowledge(esc); err != nil {
			return nil, nil, err
		}
		return one(escalationEvent(esc.ID, events.EscalationAcknowledged{By: c.By})), nil, nil

	case *command.ResolveEscalationCommand:
		esc, err := registry.LookupEscalation(s, c.EscalationID)
		if err != nil {
			return nil, nil, err
		}
		if err := registry.CheckResolve(esc, c.SelectedOption); err != nil {
			return nil, nil, err
		}
		return one(escalationEvent(esc.ID, events.EscalationResolved{
			By:             c.By,
			Resolution:     c.Resolution,
			SelectedOption: c.SelectedOption,
		})), nil, nil

	// System commands

	case *command.PauseSystemCommand:
		return one(systemEvent(events.SystemPaused{Reason: c.Reason})), nil, nil

	case *command.ResumeSystemCommand:
		if !s.System.Paused {
			return nil, nil, &types.TransitionError{
				Entity: "system",
				ID:     events.SystemEntityID,
				From:   "running",
				To:     "running",
				Reason: "system is not paused",
			}
		}
		return one(systemEvent(events.SystemResumed{})), nil, nil

	case *command.ConfigureTemperatureCommand:
		return one(systemEvent(events.SystemConfigured{Coefficients: c.Coefficients})), nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: %s", types.ErrUnknownCommand, cmd.Type())
	}
}

// decideMerge folds source into target. The source is released if claimed,
// killed with a reference to target, and its children move to target; the
// fold keeps the hotter of the two decayed temperatures on target.
func (e *Engine) decideMerge(c *command.MergeThreadsCommand) ([]events.Event, any, error) {
	s := e.state
	src, err := e.threadFor(c.SourceID, c.ExpectVersion)
	if err != nil {
		return nil, nil, err
	}
	target, err := registry.LookupThread(s, c.TargetID)
	if err != nil {
		return nil, nil, err
	}
	if target.State.IsTerminal() {
		return nil, nil, terminalError(target, "merge target")
	}
	if src.State.IsTerminal() {
		return nil, nil, terminalError(src, "merged")
	}
	if s.Threads.IsDescendant(target.ID, src.ID) {
		return nil, nil, types.Invalid("target_id", "target %q descends from source %q", target.ID, src.ID)
	}
	if !e.machine.CanTransition(src.State, domain.StateKilled) {
		return nil, nil, transitionError(src, domain.StateKilled, "merge kills the source")
	}

	children := s.Threads.Children(src.ID)
	slices.Sort(children)

	var batch []events.Event
	if src.IsClaimed() {
		batch = append(batch, release(src, false, releaseMerged))
	}
	batch = append(batch, threadEvent(src.ID, events.ThreadMerged{
		TargetID:      target.ID,
		From:          src.State,
		ReparentedIDs: children,
	}))
	return batch, target.ID, nil
}

// threadFor looks up a thread and enforces an optimistic version check.
func (e *Engine) threadFor(id domain.ThreadID, ev command.ExpectVersion) (*domain.Thread, error) {
	t, err := registry.LookupThread(e.state, id)
	if err != nil {
		return nil, err
	}
	if want := ev.Expected(); want != 0 && want != t.Version {
		return nil, &types.ConflictError{What: "version", ID: string(id), Expected: want, Actual: t.Version}
	}
	return t, nil
}

// blockedEscalation is raised alongside a transition to blocked.
func blockedEscalation(t *domain.Thread, reason, actor string) events.Event {
	return events.New(events.EntityEscalation, uuid.New().String(), events.EscalationRaised{
		Category:    domain.CategoryBlocked,
		Priority:    domain.PriorityNormal,
		Title:       "Thread blocked: " + t.Title,
		Description: reason,
		ThreadID:    t.ID,
		CreatedBy:   actor,
	})
}

func release(t *domain.Thread, completed bool, reason string) events.Event {
	return threadEvent(t.ID, events.ThreadReleased{AgentID: t.ClaimedBy, Completed: completed, Reason: reason})
}

func transitionError(t *domain.Thread, to domain.ThreadState, reason string) error {
	return &types.TransitionError{
		Entity: "thread",
		ID:     string(t.ID),
		From:   t.State.String(),
		To:     to.String(),
		Reason: reason,
	}
}

func terminalError(t *domain.Thread, to string) error {
	return &types.TransitionError{
		Entity: "thread",
		ID:     string(t.ID),
		From:   t.State.String(),
		To:     to,
		Reason: "thread is terminal",
	}
}

func threadEvent(id domain.ThreadID, p events.Payload) events.Event {
	return events.New(events.EntityThread, string(id), p)
}

func escalationEvent(id domain.EscalationID, p events.Payload) events.Event {
	return events.New(events.EntityEscalation, string(id), p)
}

func systemEvent(p events.Payload) events.Event {
	return events.New(events.EntitySystem, events.SystemEntityID, p)
}

func one(ev events.Event) []events.Event {
	return []events.Event{ev}
}
