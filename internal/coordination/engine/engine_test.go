package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/impel-dev/impel/internal/clock"
	"github.com/impel-dev/impel/internal/coordination/command"
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/projection"
	"github.com/impel-dev/impel/internal/coordination/registry"
	"github.com/impel-dev/impel/internal/coordination/repository"
	"github.com/impel-dev/impel/internal/coordination/types"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// testConfig disables deduplication and automatic snapshots so tests control
// both explicitly.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DedupTTL = 0
	cfg.SnapshotInterval = 0
	return cfg
}

type harness struct {
	e     *Engine
	repo  repository.Repository
	clock *clock.FakeClock
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	repo := repository.NewMemoryRepository()
	fake := clock.Fake(t0)
	e, err := Open(context.Background(), repo, cfg, WithClock(fake))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return &harness{e: e, repo: repo, clock: fake}
}

func (h *harness) exec(t *testing.T, cmd command.Command) []events.Event {
	t.Helper()
	evs, err := h.e.Execute(context.Background(), cmd)
	require.NoError(t, err)
	return evs
}

func (h *harness) createThread(t *testing.T, title string, opts ...command.CreateThreadOption) domain.ThreadID {
	t.Helper()
	cmd := command.NewCreateThreadCommand(command.SourceHuman, title, opts...)
	h.exec(t, cmd)
	return cmd.ThreadID
}

func (h *harness) registerAgent(t *testing.T) (domain.AgentID, string) {
	t.Helper()
	res, err := h.e.Run(context.Background(), command.NewRegisterAgentCommand(command.SourceAgent, "researcher"))
	require.NoError(t, err)
	data := res.Data.(command.RegisterAgentResult)
	return data.AgentID, data.Token
}

func requireReplayEqual(t *testing.T, e *Engine) {
	t.Helper()
	require.Equal(t, e.State(), projection.Replay(e.EventsSince(0)))
}

func availableIDs(e *Engine) []domain.ThreadID {
	var ids []domain.ThreadID
	for _, th := range e.AvailableThreads() {
		ids = append(ids, th.ID)
	}
	return ids
}

func TestOpen_RecordsGenesisCoefficients(t *testing.T) {
	h := newHarness(t, testConfig())

	require.Equal(t, uint64(1), h.e.Head())
	ev, ok := h.e.log.Get(1)
	require.True(t, ok)
	require.Equal(t, events.SystemConfigured{Coefficients: domain.DefaultCoefficients()}, ev.Payload)
	require.Equal(t, string(command.SourceInternal), ev.ActorID)
	require.Equal(t, t0, ev.Timestamp)
}

func TestScenario_CreateClaimKill(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	id := h.createThread(t, "X")
	th, err := h.e.Thread(id)
	require.NoError(t, err)
	require.Equal(t, domain.StateEmbryo, th.State)
	require.InDelta(t, 1.0, th.Temperature.Value, 1e-12)
	require.Equal(t, []domain.ThreadID{id}, availableIDs(h.e))

	agent, _ := h.registerAgent(t)
	h.exec(t, command.NewClaimThreadCommand(command.SourceAgent, agent, id))
	require.Empty(t, availableIDs(h.e))
	a, err := h.e.Agent(agent)
	require.NoError(t, err)
	require.Equal(t, id, a.CurrentThread)
	require.Equal(t, domain.AgentActive, a.Status)

	evs := h.exec(t, command.NewKillThreadCommand(command.SourceHuman, id, "obsolete"))
	require.Len(t, evs, 2)
	require.Equal(t, events.KindThreadReleased, evs[0].Kind())
	require.Equal(t, events.KindThreadKilled, evs[1].Kind())
	require.Equal(t, evs[0].Sequence+1, evs[1].Sequence)
	require.Equal(t, evs[0].CausationID, evs[1].CausationID)

	th, err = h.e.Thread(id)
	require.NoError(t, err, "killed threads stay retrievable")
	require.Equal(t, domain.StateKilled, th.State)
	require.Equal(t, "obsolete", th.KillReason)
	require.Empty(t, th.ClaimedBy)
	require.Empty(t, availableIDs(h.e))

	a, err = h.e.Agent(agent)
	require.NoError(t, err)
	require.Empty(t, a.CurrentThread)
	require.Equal(t, domain.AgentIdle, a.Status)

	_, err = h.e.Execute(ctx, command.NewKillThreadCommand(command.SourceHuman, id, "again"))
	require.ErrorIs(t, err, types.ErrIllegalTransition)

	requireReplayEqual(t, h.e)
}

func TestScenario_Merge(t *testing.T) {
	h := newHarness(t, testConfig())

	target := h.createThread(t, "target", command.WithPriority(0.3))
	source := h.createThread(t, "source", command.WithPriority(0.9))
	child := h.createThread(t, "child", command.WithParent(source))

	h.clock.Advance(3 * time.Hour)
	evs := h.exec(t, command.NewMergeThreadsCommand(command.SourceHuman, source, target))
	require.Len(t, evs, 1)
	require.Equal(t, events.ThreadMerged{
		TargetID:      target,
		From:          domain.StateEmbryo,
		ReparentedIDs: []domain.ThreadID{child},
	}, evs[0].Payload)

	hl := domain.DefaultHalfLife
	decayedSource := domain.NewTemperature(0.9, t0).ValueAt(h.clock.Now(), hl)

	tt, err := h.e.Thread(target)
	require.NoError(t, err)
	require.GreaterOrEqual(t, tt.Temperature.Value, decayedSource-1e-12)
	require.Greater(t, tt.Temperature.Value, domain.NewTemperature(0.3, t0).ValueAt(h.clock.Now(), hl))

	st, err := h.e.Thread(source)
	require.NoError(t, err)
	require.Equal(t, domain.StateKilled, st.State)
	require.Equal(t, target, st.SupersededBy)

	ct, err := h.e.Thread(child)
	require.NoError(t, err)
	require.Equal(t, target, ct.ParentID)

	requireReplayEqual(t, h.e)
}

func TestMerge_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())

	a := h.createThread(t, "a")
	b := h.createThread(t, "b", command.WithParent(a))
	grandchild := h.createThread(t, "c", command.WithParent(b))
	dead := h.createThread(t, "dead")
	h.exec(t, command.NewKillThreadCommand(command.SourceHuman, dead, ""))
	head := h.e.Head()

	tests := []struct {
		name   string
		source domain.ThreadID
		target domain.ThreadID
		want   error
	}{
		{"self", a, a, types.ErrValidationFailed},
		{"target descends from source", a, grandchild, types.ErrValidationFailed},
		{"unknown source", "nope", a, types.ErrNotFound},
		{"unknown target", a, "nope", types.ErrNotFound},
		{"terminal target", a, dead, types.ErrIllegalTransition},
		{"terminal source", dead, a, types.ErrIllegalTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.e.Execute(ctx, command.NewMergeThreadsCommand(command.SourceHuman, tt.source, tt.target))
			require.ErrorIs(t, err, tt.want)
			require.Equal(t, head, h.e.Head(), "rejected merges append nothing")
		})
	}

	// Merging a descendant into its ancestor is fine.
	h.exec(t, command.NewMergeThreadsCommand(command.SourceHuman, grandchild, a))
}

func TestMerge_GraphOnlyPolicyNeedsKillEdge(t *testing.T) {
	cfg := testConfig()
	cfg.KillPolicy = domain.KillFromGraphOnly
	h := newHarness(t, cfg)

	target := h.createThread(t, "target")
	source := h.createThread(t, "source")

	_, err := h.e.Execute(context.Background(), command.NewMergeThreadsCommand(command.SourceHuman, source, target))
	require.ErrorIs(t, err, types.ErrIllegalTransition, "embryo has no kill edge under the graph-only policy")

	h.exec(t, command.NewTransitionThreadCommand(command.SourceHuman, source, domain.StateActive, ""))
	h.exec(t, command.NewTransitionThreadCommand(command.SourceHuman, source, domain.StateReview, ""))
	h.exec(t, command.NewMergeThreadsCommand(command.SourceHuman, source, target))
}

func TestKill_Policies(t *testing.T) {
	ctx := context.Background()

	t.Run("any non-terminal", func(t *testing.T) {
		h := newHarness(t, testConfig())
		id := h.createThread(t, "x")
		h.exec(t, command.NewKillThreadCommand(command.SourceHuman, id, ""))
	})

	t.Run("graph only", func(t *testing.T) {
		cfg := testConfig()
		cfg.KillPolicy = domain.KillFromGraphOnly
		h := newHarness(t, cfg)
		id := h.createThread(t, "x")

		_, err := h.e.Execute(ctx, command.NewKillThreadCommand(command.SourceHuman, id, ""))
		require.ErrorIs(t, err, types.ErrIllegalTransition)

		h.exec(t, command.NewTransitionThreadCommand(command.SourceHuman, id, domain.StateActive, ""))
		h.exec(t, command.NewTransitionThreadCommand(command.SourceHuman, id, domain.StateBlocked, "stuck"))
		h.exec(t, command.NewKillThreadCommand(command.SourceHuman, id, ""))
	})
}

func TestTransition_CompleteReleasesClaimAsCompleted(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.createThread(t, "x")
	agent, _ := h.registerAgent(t)
	h.exec(t, command.NewClaimThreadCommand(command.SourceAgent, agent, id))
	h.exec(t, command.NewTransitionThreadCommand(command.SourceAgent, id, domain.StateActive, ""))
	h.exec(t, command.NewTransitionThreadCommand(command.SourceAgent, id, domain.StateReview, ""))

	evs := h.exec(t, command.NewTransitionThreadCommand(command.SourceAgent, id, domain.StateComplete, "done"))
	require.Len(t, evs, 2)
	require.Equal(t, events.ThreadReleased{AgentID: agent, Completed: true, Reason: releaseCompleted}, evs[0].Payload)

	a, err := h.e.Agent(agent)
	require.NoError(t, err)
	require.Equal(t, uint64(1), a.ThreadsCompleted)
	require.Empty(t, a.CurrentThread)

	_, err = h.e.Execute(context.Background(), command.NewTransitionThreadCommand(command.SourceAgent, id, domain.StateActive, ""))
	require.ErrorIs(t, err, types.ErrIllegalTransition, "complete is terminal")
}

func TestTransition_IllegalEdge(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.createThread(t, "x")

	_, err := h.e.Execute(context.Background(), command.NewTransitionThreadCommand(command.SourceHuman, id, domain.StateReview, ""))
	var te *types.TransitionError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "embryo", te.From)
	require.Equal(t, "review", te.To)
}

func TestTransition_BlockedRaisesEscalation(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.createThread(t, "survey", command.WithPriority(0.5))
	h.exec(t, command.NewTransitionThreadCommand(command.SourceHuman, id, domain.StateActive, ""))

	evs := h.exec(t, command.NewTransitionThreadCommand(command.SourceAgent, id, domain.StateBlocked, "need access"))
	require.Len(t, evs, 2)
	require.Equal(t, events.KindEscalationRaised, evs[1].Kind())

	escs := h.e.Escalations(registry.EscalationFilter{Status: domain.EscalationOpen})
	require.Len(t, escs, 1)
	require.Equal(t, domain.CategoryBlocked, escs[0].Category)
	require.Equal(t, domain.PriorityNormal, escs[0].Priority)
	require.Equal(t, id, escs[0].ThreadID)
	require.Equal(t, "need access", escs[0].Description)

	th, err := h.e.Thread(id)
	require.NoError(t, err)
	require.InDelta(t, 0.75, th.Temperature.Value, 1e-12, "escalation boost applies to the blocked thread")
}

func TestExpectedVersion(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.createThread(t, "x")

	stale := command.NewSetTemperatureCommand(command.SourceHuman, id, 0.4, "")
	stale.ExpectedVersion = 7
	_, err := h.e.Execute(context.Background(), stale)
	var ce *types.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, uint64(7), ce.Expected)
	require.Equal(t, uint64(1), ce.Actual)

	fresh := command.NewSetTemperatureCommand(command.SourceHuman, id, 0.4, "")
	fresh.ExpectedVersion = 1
	h.exec(t, fresh)

	th, err := h.e.Thread(id)
	require.NoError(t, err)
	require.Equal(t, uint64(2), th.Version)
	require.InDelta(t, 0.4, th.Temperature.Value, 1e-12)
}

func TestClaim_Rules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	first := h.createThread(t, "first")
	second := h.createThread(t, "second")
	a1, _ := h.registerAgent(t)
	a2, _ := h.registerAgent(t)

	h.exec(t, command.NewClaimThreadCommand(command.SourceAgent, a1, first))

	_, err := h.e.Execute(ctx, command.NewClaimThreadCommand(command.SourceAgent, a2, first))
	require.ErrorIs(t, err, types.ErrAlreadyClaimed, "thread held by another agent")

	_, err = h.e.Execute(ctx, command.NewClaimThreadCommand(command.SourceAgent, a1, second))
	require.ErrorIs(t, err, types.ErrAlreadyClaimed, "agent already holds a claim")

	_, err = h.e.Execute(ctx, command.NewClaimThreadCommand(command.SourceAgent, "ghost", second))
	require.ErrorIs(t, err, types.ErrNotFound)

	h.exec(t, command.NewReleaseClaimCommand(command.SourceAgent, a1, "switching"))
	h.exec(t, command.NewClaimThreadCommand(command.SourceAgent, a1, second))

	_, err = h.e.Execute(ctx, command.NewReleaseClaimCommand(command.SourceAgent, a2, ""))
	require.ErrorIs(t, err, types.ErrValidationFailed, "nothing to release")

	dead := h.createThread(t, "dead")
	h.exec(t, command.NewKillThreadCommand(command.SourceHuman, dead, ""))
	_, err = h.e.Execute(ctx, command.NewClaimThreadCommand(command.SourceAgent, a2, dead))
	require.ErrorIs(t, err, types.ErrIllegalTransition)

	requireReplayEqual(t, h.e)
}

func TestClaim_ConcurrentExclusivity(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.createThread(t, "contested")

	const n = 16
	agents := make([]domain.AgentID, n)
	for i := range agents {
		agents[i], _ = h.registerAgent(t)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := range agents {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = h.e.Execute(context.Background(), command.NewClaimThreadCommand(command.SourceAgent, agents[i], id))
		}(i)
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "only one claim may succeed")
			winner = i
			continue
		}
		require.ErrorIs(t, err, types.ErrAlreadyClaimed)
	}
	require.NotEqual(t, -1, winner)

	th, err := h.e.Thread(id)
	require.NoError(t, err)
	require.Equal(t, agents[winner], th.ClaimedBy)
	requireReplayEqual(t, h.e)
}

func TestPause_GatesEveryCommandButResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	id := h.createThread(t, "x")
	other := h.createThread(t, "y")
	agent, _ := h.registerAgent(t)
	raise := command.NewRaiseEscalationCommand(command.SourceAgent, "question", domain.PriorityLow, "?")
	h.exec(t, raise)

	h.exec(t, command.NewPauseSystemCommand(command.SourceHuman, "maintenance"))
	require.True(t, h.e.Status().Paused)
	head := h.e.Head()

	one := 1
	gated := []command.Command{
		command.NewCreateThreadCommand(command.SourceHuman, "z"),
		command.NewTransitionThreadCommand(command.SourceHuman, id, domain.StateActive, ""),
		command.NewKillThreadCommand(command.SourceHuman, id, ""),
		command.NewMergeThreadsCommand(command.SourceHuman, id, other),
		command.NewSetTemperatureCommand(command.SourceHuman, id, 0.2, ""),
		command.NewBoostThreadCommand(command.SourceHuman, id, domain.BoostHumanComment),
		command.NewRegisterAgentCommand(command.SourceAgent, "researcher"),
		command.NewClaimThreadCommand(command.SourceAgent, agent, id),
		command.NewReleaseClaimCommand(command.SourceAgent, agent, ""),
		command.NewDisconnectAgentCommand(command.SourceAgent, agent, ""),
		command.NewRaiseEscalationCommand(command.SourceAgent, "q", domain.PriorityHigh, "again"),
		command.NewAcknowledgeEscalationCommand(command.SourceHuman, raise.EscalationID, "human"),
		command.NewResolveEscalationCommand(command.SourceHuman, raise.EscalationID, "human", "ok", &one),
		command.NewPauseSystemCommand(command.SourceHuman, "twice"),
		command.NewConfigureTemperatureCommand(command.SourceCLI, domain.DefaultCoefficients()),
	}
	for _, cmd := range gated {
		_, err := h.e.Execute(ctx, cmd)
		require.ErrorIs(t, err, types.ErrSystemPaused, "%s should be gated", cmd.Type())
		var pe *types.PausedError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, "maintenance", pe.Reason)
	}
	require.Equal(t, head, h.e.Head())

	h.exec(t, command.NewResumeSystemCommand(command.SourceHuman))
	require.False(t, h.e.Status().Paused)
	h.exec(t, command.NewKillThreadCommand(command.SourceHuman, id, ""))

	_, err := h.e.Execute(ctx, command.NewResumeSystemCommand(command.SourceHuman))
	require.ErrorIs(t, err, types.ErrIllegalTransition, "resume when running")
}

func TestValidation_RunsBeforePauseGating(t *testing.T) {
	h := newHarness(t, testConfig())
	h.exec(t, command.NewPauseSystemCommand(command.SourceHuman, ""))

	_, err := h.e.Execute(context.Background(), command.NewSetTemperatureCommand(command.SourceHuman, "t", 1.5, ""))
	require.ErrorIs(t, err, types.ErrValidationFailed)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, testConfig())
	base := command.NewBaseCommand("mystery", command.SourceCLI)
	_, err := h.e.Execute(context.Background(), &base)
	require.ErrorIs(t, err, types.ErrUnknownCommand)
}

func TestAvailableThreads_Ordering(t *testing.T) {
	for _, tc := range []struct {
		tieBreak TieBreak
		want     func(hot, oldWarm, newWarm domain.ThreadID) []domain.ThreadID
	}{
		{TieBreakOldest, func(hot, o, n domain.ThreadID) []domain.ThreadID { return []domain.ThreadID{hot, o, n} }},
		{TieBreakNewest, func(hot, o, n domain.ThreadID) []domain.ThreadID { return []domain.ThreadID{hot, n, o} }},
	} {
		t.Run(string(tc.tieBreak), func(t *testing.T) {
			cfg := testConfig()
			cfg.TieBreak = tc.tieBreak
			h := newHarness(t, cfg)

			oldWarm := h.createThread(t, "old", command.WithPriority(0.5))
			h.clock.Advance(time.Minute)
			hot := h.createThread(t, "hot", command.WithPriority(0.9))
			// Same decayed value as oldWarm at every later instant.
			h.exec(t, command.NewSetTemperatureCommand(command.SourceHuman, oldWarm, 0.5, ""))
			newWarm := h.createThread(t, "new", command.WithPriority(0.5))
			claimed := h.createThread(t, "claimed", command.WithPriority(1.0))
			agent, _ := h.registerAgent(t)
			h.exec(t, command.NewClaimThreadCommand(command.SourceAgent, agent, claimed))

			h.clock.Advance(48 * time.Hour)
			got := h.e.AvailableThreads()
			ids := make([]domain.ThreadID, len(got))
			for i, th := range got {
				ids[i] = th.ID
			}
			require.Equal(t, tc.want(hot, oldWarm, newWarm), ids)
			require.InDelta(t, 0.9/4, got[0].Temperature.Value, 1e-9, "returned temperatures are decayed to now")
		})
	}
}

func TestBoost_ConfiguredAmounts(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.createThread(t, "x", command.WithPriority(0.2))

	h.exec(t, command.NewBoostThreadCommand(command.SourceAgent, id, domain.BoostActivity))
	h.exec(t, command.NewBoostThreadCommand(command.SourceHuman, id, domain.BoostHumanComment))

	th, err := h.e.Thread(id)
	require.NoError(t, err)
	require.InDelta(t, 0.6, th.Temperature.Value, 1e-12)

	h.exec(t, command.NewKillThreadCommand(command.SourceHuman, id, ""))
	_, err = h.e.Execute(context.Background(), command.NewBoostThreadCommand(command.SourceHuman, id, domain.BoostActivity))
	require.ErrorIs(t, err, types.ErrIllegalTransition)
}

func TestCreateThread_Rules(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Coefficients.InitialValue = 0.6
	h := newHarness(t, cfg)

	id := h.createThread(t, "x", command.WithMetadata(map[string]string{"source": "cli"}))
	th, err := h.e.Thread(id)
	require.NoError(t, err)
	require.InDelta(t, 0.6, th.Temperature.Value, 1e-12, "configured initial temperature")
	require.Equal(t, map[string]string{"source": "cli"}, th.Metadata)

	_, err = h.e.Execute(ctx, command.NewCreateThreadCommand(command.SourceHuman, "dup", command.WithThreadID(id)))
	require.ErrorIs(t, err, types.ErrValidationFailed)

	_, err = h.e.Execute(ctx, command.NewCreateThreadCommand(command.SourceHuman, "orphan", command.WithParent("missing")))
	require.ErrorIs(t, err, types.ErrNotFound)

	_, err = h.e.Execute(ctx, command.NewCreateThreadCommand(command.SourceHuman, ""))
	require.ErrorIs(t, err, types.ErrValidationFailed)
}

func TestAgents_RegisterAuthenticateDisconnect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())

	agent, token := h.registerAgent(t)
	require.NotEmpty(t, token)

	got, ok := h.e.Authenticate(ctx, token)
	require.True(t, ok)
	require.Equal(t, agent, got)

	_, ok = h.e.Authenticate(ctx, "impel_bogus")
	require.False(t, ok)

	a, err := h.e.Agent(agent)
	require.NoError(t, err)
	require.NotContains(t, a.TokenDigest, token, "only the digest is stored")

	id := h.createThread(t, "x")
	h.exec(t, command.NewClaimThreadCommand(command.SourceAgent, agent, id))

	evs := h.exec(t, command.NewDisconnectAgentCommand(command.SourceHuman, agent, "gone"))
	require.Len(t, evs, 2)
	require.Equal(t, events.KindThreadReleased, evs[0].Kind())

	_, ok = h.e.Authenticate(ctx, token)
	require.False(t, ok, "offline agents never authenticate")

	th, err := h.e.Thread(id)
	require.NoError(t, err)
	require.Empty(t, th.ClaimedBy)

	_, err = h.e.Execute(ctx, command.NewClaimThreadCommand(command.SourceAgent, agent, id))
	require.ErrorIs(t, err, types.ErrValidationFailed)

	_, err = h.e.Execute(ctx, command.NewDisconnectAgentCommand(command.SourceHuman, agent, ""))
	require.ErrorIs(t, err, types.ErrValidationFailed)
}

func TestEscalations_Lifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	thread := h.createThread(t, "x", command.WithPriority(0.1))

	low := command.NewRaiseEscalationCommand(command.SourceAgent, "question", domain.PriorityLow, "low")
	h.exec(t, low)
	h.clock.Advance(time.Minute)
	crit := command.NewRaiseEscalationCommand(command.SourceAgent, "question", domain.PriorityCritical, "crit",
		command.AboutThread(thread),
		command.WithOptions(domain.EscalationOption{Label: "a"}, domain.EscalationOption{Label: "b"}),
	)
	h.exec(t, crit)
	h.clock.Advance(time.Minute)
	low2 := command.NewRaiseEscalationCommand(command.SourceAgent, "question", domain.PriorityLow, "low2")
	h.exec(t, low2)

	all := h.e.Escalations(registry.EscalationFilter{})
	require.Len(t, all, 3)
	require.Equal(t, crit.EscalationID, all[0].ID)
	require.Equal(t, low.EscalationID, all[1].ID)
	require.Equal(t, low2.EscalationID, all[2].ID)

	th, err := h.e.Thread(thread)
	require.NoError(t, err)
	require.Greater(t, th.Temperature.Value, 0.1, "raising about a thread boosts it")

	one := 1
	_, err = h.e.Execute(ctx, command.NewResolveEscalationCommand(command.SourceHuman, crit.EscalationID, "human", "b", &one))
	require.ErrorIs(t, err, types.ErrIllegalTransition, "resolve requires acknowledged")

	h.exec(t, command.NewAcknowledgeEscalationCommand(command.SourceHuman, crit.EscalationID, "human"))
	_, err = h.e.Execute(ctx, command.NewAcknowledgeEscalationCommand(command.SourceHuman, crit.EscalationID, "human"))
	require.ErrorIs(t, err, types.ErrIllegalTransition)

	five := 5
	_, err = h.e.Execute(ctx, command.NewResolveEscalationCommand(command.SourceHuman, crit.EscalationID, "human", "?", &five))
	require.ErrorIs(t, err, types.ErrValidationFailed)

	h.exec(t, command.NewResolveEscalationCommand(command.SourceHuman, crit.EscalationID, "human", "b", &one))
	esc, err := h.e.Escalation(crit.EscalationID)
	require.NoError(t, err)
	require.Equal(t, domain.EscalationResolved, esc.Status)
	require.Equal(t, 1, *esc.SelectedOption)

	_, err = h.e.Execute(ctx, command.NewAcknowledgeEscalationCommand(command.SourceHuman, "missing", "human"))
	require.ErrorIs(t, err, types.ErrNotFound)

	require.Equal(t, 2, h.e.Status().OpenEscalations)
	requireReplayEqual(t, h.e)
}

// failingRepo rejects appends while failing is set.
type failingRepo struct {
	*repository.MemoryRepository
	mu      sync.Mutex
	failing bool
}

func (r *failingRepo) setFailing(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = v
}

func (r *failingRepo) AppendEvents(ctx context.Context, batch []events.Event) error {
	r.mu.Lock()
	failing := r.failing
	r.mu.Unlock()
	if failing {
		return errors.New("disk full")
	}
	return r.MemoryRepository.AppendEvents(ctx, batch)
}

func TestStorageFailure_NothingFolded(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{MemoryRepository: repository.NewMemoryRepository()}
	e, err := Open(ctx, repo, testConfig(), WithClock(clock.Fake(t0)))
	require.NoError(t, err)
	defer e.Close()

	before := e.State()
	repo.setFailing(true)

	_, err = e.Execute(ctx, command.NewCreateThreadCommand(command.SourceHuman, "x"))
	require.ErrorIs(t, err, types.ErrStorage)
	require.Equal(t, before, e.State())
	require.Equal(t, uint64(1), e.Head())

	repo.setFailing(false)
	evs, err := e.Execute(ctx, command.NewCreateThreadCommand(command.SourceHuman, "x"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), evs[0].Sequence, "no gap after a failed append")
}

func TestDeduplication(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.DedupTTL = time.Minute
	h := newHarness(t, cfg)

	h.exec(t, command.NewCreateThreadCommand(command.SourceHuman, "same"))
	_, err := h.e.Execute(ctx, command.NewCreateThreadCommand(command.SourceHuman, "same"))
	require.ErrorIs(t, err, types.ErrDuplicateCommand)

	// A rejected command does not occupy the window.
	bad := command.NewKillThreadCommand(command.SourceHuman, "missing", "")
	_, err = h.e.Execute(ctx, bad)
	require.ErrorIs(t, err, types.ErrNotFound)
	_, err = h.e.Execute(ctx, command.NewKillThreadCommand(command.SourceHuman, "missing", ""))
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestEvents_EnvelopeFields(t *testing.T) {
	h := newHarness(t, testConfig())
	agent, _ := h.registerAgent(t)
	id := h.createThread(t, "x")

	h.clock.Advance(time.Second)
	cmd := command.NewClaimThreadCommand(command.SourceAgent, agent, id)
	evs := h.exec(t, cmd)

	require.Equal(t, string(agent), evs[0].ActorID)
	require.Equal(t, cmd.ID(), evs[0].CausationID)
	require.Equal(t, cmd.ID(), evs[0].CorrelationID)
	require.Equal(t, t0.Add(time.Second), evs[0].Timestamp)
	require.Equal(t, events.EntityThread, evs[0].EntityType)
	require.Equal(t, string(id), evs[0].EntityID)
}

func TestEngine_ClockAndCoefficients(t *testing.T) {
	cfg := testConfig()
	cfg.Coefficients.HalfLife = 6 * time.Hour
	h := newHarness(t, cfg)

	require.Equal(t, t0, h.e.Now())
	h.clock.Advance(time.Minute)
	require.Equal(t, t0.Add(time.Minute), h.e.Now())
	require.Equal(t, 6*time.Hour, h.e.Coefficients().HalfLife)
}
