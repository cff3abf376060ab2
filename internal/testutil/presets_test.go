package testutil_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/projection"
	"github.com/impel-dev/impel/internal/testutil"
)

func TestLifecycle_FinalState(t *testing.T) {
	state := projection.Replay(slices.Values(testutil.Lifecycle(t).Build()))

	thread := state.Threads["t1"]
	require.Equal(t, domain.StateComplete, thread.State)
	require.Empty(t, thread.ClaimedBy)

	agent := state.Agents["a1"]
	require.Equal(t, domain.AgentIdle, agent.Status)
	require.Equal(t, uint64(1), agent.ThreadsCompleted)

	esc := state.Escalations["e1"]
	require.Equal(t, domain.EscalationResolved, esc.Status)
	require.Equal(t, 0, *esc.SelectedOption)
}

func TestBacklog_DecreasingTemperatures(t *testing.T) {
	b := testutil.Backlog(t, 5)
	require.Equal(t, uint64(6), b.Head())

	state := projection.Replay(slices.Values(b.Build()))
	require.Len(t, state.Threads, 5)
	for i := 1; i < 5; i++ {
		prev := state.Threads[domain.ThreadID("b"+string(rune('0'+i-1)))]
		cur := state.Threads[domain.ThreadID("b"+string(rune('0'+i)))]
		require.Greater(t, prev.Temperature.Value, cur.Temperature.Value)
	}
}
