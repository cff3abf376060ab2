// Package domain provides the core entities of the coordination engine:
// threads and their lifecycle, temperature, agents and escalations.
package domain

import (
	"fmt"
	"slices"
)

// ThreadState is the lifecycle position of a thread.
type ThreadState string

const (
	StateEmbryo   ThreadState = "embryo"
	StateActive   ThreadState = "active"
	StateBlocked  ThreadState = "blocked"
	StateReview   ThreadState = "review"
	StateComplete ThreadState = "complete"
	StateKilled   ThreadState = "killed"
)

// AllThreadStates lists every state in lifecycle order.
var AllThreadStates = []ThreadState{
	StateEmbryo, StateActive, StateBlocked, StateReview, StateComplete, StateKilled,
}

// ParseThreadState converts a string to a ThreadState.
func ParseThreadState(s string) (ThreadState, error) {
	st := ThreadState(s)
	if !slices.Contains(AllThreadStates, st) {
		return "", fmt.Errorf("unknown thread state %q", s)
	}
	return st, nil
}

// String returns the string representation of the state.
func (s ThreadState) String() string { return string(s) }

// IsTerminal reports whether no transition may leave s.
func (s ThreadState) IsTerminal() bool {
	return s == StateComplete || s == StateKilled
}

// IsOpen reports whether a thread in s is open for work and may be claimed.
func (s ThreadState) IsOpen() bool {
	return s == StateEmbryo || s == StateActive || s == StateBlocked
}

// ===========================================================================
// Valid Thread Transitions (State Machine)
// ===========================================================================

// ValidTransitions defines the minimal lifecycle graph.
// Map key is the "from" state, value is a slice of valid "to" states.
var ValidTransitions = map[ThreadState][]ThreadState{
	StateEmbryo:  {StateActive},
	StateActive:  {StateBlocked, StateReview},
	StateBlocked: {StateActive, StateKilled},
	StateReview:  {StateComplete, StateKilled},
}

// KillPolicy selects which states may transition to Killed.
type KillPolicy int

const (
	// KillFromAnyNonTerminal allows forced termination from every
	// non-terminal state.
	KillFromAnyNonTerminal KillPolicy = iota
	// KillFromGraphOnly allows Killed only along ValidTransitions edges.
	KillFromGraphOnly
)

// StateMachine evaluates thread transitions under a kill policy.
type StateMachine struct {
	Kill KillPolicy
}

// DefaultStateMachine allows kill from any non-terminal state.
var DefaultStateMachine = StateMachine{Kill: KillFromAnyNonTerminal}

// CanTransition reports whether from -> to is legal.
func (m StateMachine) CanTransition(from, to ThreadState) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateKilled && m.Kill == KillFromAnyNonTerminal {
		return true
	}
	return slices.Contains(ValidTransitions[from], to)
}

// CanTransition checks a transition with the default kill policy.
func CanTransition(from, to ThreadState) bool {
	return DefaultStateMachine.CanTransition(from, to)
}
