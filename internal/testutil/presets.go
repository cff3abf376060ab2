package testutil

import (
	"fmt"
	"testing"

	"github.com/impel-dev/impel/internal/coordination/domain"
)

// Lifecycle builds a log that touches every payload family: a thread is
// created, claimed, escalated about, resolved and completed.
//
// Final state: thread t1 complete and unclaimed, agent a1 idle with one
// completed thread, escalation e1 resolved with option 0.
func Lifecycle(t testing.TB) *Builder {
	t.Helper()
	selected := 0
	return NewBuilder(t).
		Genesis(domain.DefaultCoefficients()).
		Thread("t1", Titled("survey"), Described("d"), Temperature(0.75), Metadata(map[string]string{"k": "v"})).
		Agent("a1", "researcher").
		Claim("t1", "a1").
		Transition("t1", domain.StateEmbryo, domain.StateActive, WithCorrelation("cmd-1")).
		Escalation("e1", About("t1"), Priority(domain.PriorityHigh), RaisedBy("a1"), Choices("yes", "no")).
		Acknowledge("e1", "human").
		Resolve("e1", "human", "yes", &selected).
		Transition("t1", domain.StateActive, domain.StateReview).
		Release("t1", "a1", true).
		Transition("t1", domain.StateReview, domain.StateComplete, WithCausation("cmd-2"))
}

// Backlog builds genesis plus n unclaimed embryo threads b0..b(n-1) with
// strictly decreasing initial temperatures.
func Backlog(t testing.TB, n int) *Builder {
	t.Helper()
	b := NewBuilder(t).Genesis(domain.DefaultCoefficients())
	for i := range n {
		b.Thread(domain.ThreadID(fmt.Sprintf("b%d", i)), Temperature(1-float64(i)/float64(n+1)))
	}
	return b
}
