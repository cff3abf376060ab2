package engine

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/impel-dev/impel/internal/clock"
	"github.com/impel-dev/impel/internal/coordination/command"
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/projection"
	"github.com/impel-dev/impel/internal/coordination/repository"
	"github.com/impel-dev/impel/internal/coordination/snapshot"
	"github.com/impel-dev/impel/internal/coordination/types"
)

// workload draws commands against the ids an engine has handed out so far.
type workload struct {
	threads     []domain.ThreadID
	agents      []domain.AgentID
	escalations []domain.EscalationID
}

func pick[T any](r *rapid.T, pool []T, label string) (T, bool) {
	var zero T
	if len(pool) == 0 {
		return zero, false
	}
	return pool[rapid.IntRange(0, len(pool)-1).Draw(r, label)], true
}

func (w *workload) draw(r *rapid.T) command.Command {
	thread, hasThread := pick(r, w.threads, "thread")
	agent, hasAgent := pick(r, w.agents, "agent")

	switch rapid.IntRange(0, 15).Draw(r, "op") {
	case 0:
		var opts []command.CreateThreadOption
		if hasThread && rapid.Bool().Draw(r, "withParent") {
			opts = append(opts, command.WithParent(thread))
		}
		if rapid.Bool().Draw(r, "withPriority") {
			opts = append(opts, command.WithPriority(rapid.Float64Range(0, 1).Draw(r, "priority")))
		}
		cmd := command.NewCreateThreadCommand(command.SourceHuman, "t", opts...)
		w.threads = append(w.threads, cmd.ThreadID)
		return cmd
	case 1:
		if !hasThread {
			return nil
		}
		to := rapid.SampledFrom(domain.AllThreadStates).Draw(r, "to")
		if to == domain.StateKilled {
			return command.NewKillThreadCommand(command.SourceHuman, thread, "")
		}
		return command.NewTransitionThreadCommand(command.SourceAgent, thread, to, "")
	case 2:
		if !hasThread {
			return nil
		}
		return command.NewKillThreadCommand(command.SourceHuman, thread, "")
	case 3:
		other, ok := pick(r, w.threads, "mergeTarget")
		if !ok {
			return nil
		}
		return command.NewMergeThreadsCommand(command.SourceHuman, thread, other)
	case 4:
		if !hasThread {
			return nil
		}
		return command.NewSetTemperatureCommand(command.SourceHuman, thread, rapid.Float64Range(0, 1).Draw(r, "temp"), "")
	case 5:
		if !hasThread {
			return nil
		}
		kind := rapid.SampledFrom([]domain.BoostKind{
			domain.BoostActivity, domain.BoostEscalation, domain.BoostHumanComment,
		}).Draw(r, "boost")
		return command.NewBoostThreadCommand(command.SourceAgent, thread, kind)
	case 6:
		cmd := command.NewRegisterAgentCommand(command.SourceAgent, "worker")
		w.agents = append(w.agents, cmd.AgentID)
		return cmd
	case 7, 8:
		if !hasThread || !hasAgent {
			return nil
		}
		return command.NewClaimThreadCommand(command.SourceAgent, agent, thread)
	case 9:
		if !hasAgent {
			return nil
		}
		return command.NewReleaseClaimCommand(command.SourceAgent, agent, "")
	case 10:
		if !hasAgent {
			return nil
		}
		return command.NewDisconnectAgentCommand(command.SourceHuman, agent, "")
	case 11:
		var opts []command.RaiseEscalationOption
		if hasThread && rapid.Bool().Draw(r, "aboutThread") {
			opts = append(opts, command.AboutThread(thread))
		}
		priority := domain.EscalationPriority(rapid.IntRange(0, 3).Draw(r, "priority"))
		cmd := command.NewRaiseEscalationCommand(command.SourceAgent, "question", priority, "q", opts...)
		w.escalations = append(w.escalations, cmd.EscalationID)
		return cmd
	case 12:
		esc, ok := pick(r, w.escalations, "ack")
		if !ok {
			return nil
		}
		return command.NewAcknowledgeEscalationCommand(command.SourceHuman, esc, "human")
	case 13:
		esc, ok := pick(r, w.escalations, "resolve")
		if !ok {
			return nil
		}
		return command.NewResolveEscalationCommand(command.SourceHuman, esc, "human", "done", nil)
	case 14:
		return command.NewPauseSystemCommand(command.SourceHuman, "")
	default:
		return command.NewResumeSystemCommand(command.SourceHuman)
	}
}

// checkInvariants verifies claim symmetry and that claims sit on open threads.
func checkInvariants(r *rapid.T, s *projection.State) {
	for id, a := range s.Agents {
		if !a.HasClaim() {
			continue
		}
		t, ok := s.Threads[a.CurrentThread]
		if !ok || t.ClaimedBy != id {
			r.Fatalf("agent %s claims %s but the thread disagrees", id, a.CurrentThread)
		}
	}
	for id, t := range s.Threads {
		if !t.IsClaimed() {
			continue
		}
		if !t.State.IsOpen() {
			r.Fatalf("thread %s is %s but still claimed", id, t.State)
		}
		a, ok := s.Agents[t.ClaimedBy]
		if !ok || a.CurrentThread != id {
			r.Fatalf("thread %s claimed by %s but the agent disagrees", id, t.ClaimedBy)
		}
	}
}

func TestProperty_ReplayReproducesLiveState(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		ctx := context.Background()
		repo := repository.NewMemoryRepository()
		fake := clock.Fake(t0)
		cfg := testConfig()
		e, err := Open(ctx, repo, cfg, WithClock(fake))
		require.NoError(r, err)
		defer e.Close()

		w := &workload{}
		steps := rapid.IntRange(1, 60).Draw(r, "steps")
		for i := 0; i < steps; i++ {
			if rapid.IntRange(0, 4).Draw(r, "tick") == 0 {
				fake.Advance(time.Duration(rapid.IntRange(1, 3600).Draw(r, "seconds")) * time.Second)
			}
			cmd := w.draw(r)
			if cmd == nil {
				continue
			}

			before := e.Head()
			evs, err := e.Execute(ctx, cmd)
			if err != nil {
				if types.Kind(err) == nil {
					r.Fatalf("%s returned an untyped error: %v", cmd.Type(), err)
				}
				if e.Head() != before {
					r.Fatalf("%s failed but appended events", cmd.Type())
				}
				continue
			}
			for j, ev := range evs {
				if ev.Sequence != before+uint64(j)+1 {
					r.Fatalf("sequence gap: got %d want %d", ev.Sequence, before+uint64(j)+1)
				}
			}
			checkInvariants(r, e.State())
		}

		var killed []domain.ThreadID
		for ev := range e.EventsSince(0) {
			switch pl := ev.Payload.(type) {
			case events.ThreadTransitioned:
				if !domain.DefaultStateMachine.CanTransition(pl.From, pl.To) {
					r.Fatalf("event %d records illegal edge %s -> %s", ev.Sequence, pl.From, pl.To)
				}
			case events.ThreadKilled:
				killed = append(killed, domain.ThreadID(ev.EntityID))
			case events.ThreadMerged:
				killed = append(killed, domain.ThreadID(ev.EntityID))
			}
		}
		slices.Sort(killed)
		if len(slices.Compact(killed)) != len(killed) {
			r.Fatalf("a thread was killed twice")
		}

		live := e.State()
		require.Equal(r, live, projection.Replay(e.EventsSince(0)))

		blob, err := snapshot.Encode(live, snapshot.CompressionZstd)
		require.NoError(r, err)
		restored, err := snapshot.Decode(blob)
		require.NoError(r, err)
		require.Equal(r, live, restored)

		report, err := e.VerifyReplay(ctx)
		require.NoError(r, err)
		require.True(r, report.FullReplayMatches)
	})
}

func TestProperty_RecoveryFromAnySnapshotPoint(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		ctx := context.Background()
		repo := repository.NewMemoryRepository()
		fake := clock.Fake(t0)
		e, err := Open(ctx, repo, testConfig(), WithClock(fake))
		require.NoError(r, err)

		w := &workload{}
		steps := rapid.IntRange(1, 40).Draw(r, "steps")
		snapAt := rapid.IntRange(0, steps-1).Draw(r, "snapAt")
		for i := 0; i < steps; i++ {
			fake.Advance(time.Minute)
			if cmd := w.draw(r); cmd != nil {
				_, _ = e.Execute(ctx, cmd)
			}
			if i == snapAt {
				_, err := e.Snapshot(ctx)
				require.NoError(r, err)
			}
		}
		live := e.State()
		require.NoError(r, e.Close())

		recovered, err := Open(ctx, repo, testConfig(), WithClock(fake))
		require.NoError(r, err)
		defer recovered.Close()
		require.Equal(r, live, recovered.State())
	})
}
