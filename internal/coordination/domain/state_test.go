package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition_AllPairs(t *testing.T) {
	legal := map[[2]ThreadState]bool{
		{StateEmbryo, StateActive}:   true,
		{StateActive, StateBlocked}:  true,
		{StateActive, StateReview}:   true,
		{StateBlocked, StateActive}:  true,
		{StateBlocked, StateKilled}:  true,
		{StateReview, StateComplete}: true,
		{StateReview, StateKilled}:   true,
		// kill from any non-terminal
		{StateEmbryo, StateKilled}: true,
		{StateActive, StateKilled}: true,
	}

	for _, from := range AllThreadStates {
		for _, to := range AllThreadStates {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				require.Equal(t, legal[[2]ThreadState{from, to}], CanTransition(from, to))
			})
		}
	}
}

func TestCanTransition_GraphOnlyKillPolicy(t *testing.T) {
	m := StateMachine{Kill: KillFromGraphOnly}

	require.False(t, m.CanTransition(StateEmbryo, StateKilled))
	require.False(t, m.CanTransition(StateActive, StateKilled))
	require.True(t, m.CanTransition(StateBlocked, StateKilled))
	require.True(t, m.CanTransition(StateReview, StateKilled))
	require.True(t, m.CanTransition(StateEmbryo, StateActive))
}

func TestCanTransition_TerminalStatesAreFinal(t *testing.T) {
	for _, from := range []ThreadState{StateComplete, StateKilled} {
		for _, to := range AllThreadStates {
			require.False(t, CanTransition(from, to), "%s -> %s", from, to)
			require.False(t, StateMachine{Kill: KillFromGraphOnly}.CanTransition(from, to))
		}
	}
}

func TestCanTransition_SelfLoopsRejected(t *testing.T) {
	for _, s := range AllThreadStates {
		require.False(t, CanTransition(s, s), "%s", s)
	}
}

func TestThreadState_Predicates(t *testing.T) {
	tests := []struct {
		state    ThreadState
		terminal bool
		open     bool
	}{
		{StateEmbryo, false, true},
		{StateActive, false, true},
		{StateBlocked, false, true},
		{StateReview, false, false},
		{StateComplete, true, false},
		{StateKilled, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			require.Equal(t, tt.terminal, tt.state.IsTerminal())
			require.Equal(t, tt.open, tt.state.IsOpen())
		})
	}
}

func TestParseThreadState(t *testing.T) {
	st, err := ParseThreadState("review")
	require.NoError(t, err)
	require.Equal(t, StateReview, st)

	_, err = ParseThreadState("archived")
	require.Error(t, err)
}

func TestParseEscalationPriority(t *testing.T) {
	p, err := ParseEscalationPriority("critical")
	require.NoError(t, err)
	require.Equal(t, PriorityCritical, p)
	require.True(t, PriorityLow < PriorityNormal && PriorityNormal < PriorityHigh && PriorityHigh < PriorityCritical)

	_, err = ParseEscalationPriority("urgent")
	require.Error(t, err)
	require.False(t, EscalationPriority(9).Valid())
}
