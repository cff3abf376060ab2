package registry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/impel-dev/impel/internal/cachemanager"
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/projection"
	"github.com/impel-dev/impel/internal/coordination/types"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixture() *projection.State {
	s := projection.NewState()
	s.Threads["open"] = &domain.Thread{ID: "open", State: domain.StateActive}
	s.Threads["held"] = &domain.Thread{ID: "held", State: domain.StateEmbryo, ClaimedBy: "busy"}
	s.Threads["review"] = &domain.Thread{ID: "review", State: domain.StateReview}
	s.Agents["idle"] = &domain.Agent{ID: "idle", Status: domain.AgentIdle, TokenDigest: Digest("tok-idle")}
	s.Agents["busy"] = &domain.Agent{ID: "busy", Status: domain.AgentActive, CurrentThread: "held"}
	s.Agents["gone"] = &domain.Agent{ID: "gone", Status: domain.AgentOffline, TokenDigest: Digest("tok-gone")}
	return s
}

func TestCheckClaim(t *testing.T) {
	s := fixture()

	tests := []struct {
		name   string
		agent  domain.AgentID
		thread domain.ThreadID
		kind   error
	}{
		{"ok", "idle", "open", nil},
		{"unknown agent", "nobody", "open", types.ErrNotFound},
		{"unknown thread", "idle", "missing", types.ErrNotFound},
		{"offline agent", "gone", "open", types.ErrValidationFailed},
		{"agent holds claim", "busy", "open", types.ErrAlreadyClaimed},
		{"thread claimed", "idle", "held", types.ErrAlreadyClaimed},
		{"thread not open", "idle", "review", types.ErrIllegalTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckClaim(s, tt.agent, tt.thread)
			if tt.kind == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestCheckClaim_HolderNamed(t *testing.T) {
	err := CheckClaim(fixture(), "idle", "held")
	var claim *types.ClaimError
	require.ErrorAs(t, err, &claim)
	require.Equal(t, "busy", claim.Holder)
}

func TestCheckRelease(t *testing.T) {
	s := fixture()

	id, err := CheckRelease(s, "busy")
	require.NoError(t, err)
	require.Equal(t, domain.ThreadID("held"), id)

	_, err = CheckRelease(s, "idle")
	require.ErrorIs(t, err, types.ErrValidationFailed)

	_, err = CheckRelease(s, "nobody")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestIssueToken(t *testing.T) {
	tok, digest, err := IssueToken()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(tok, "impel_"))
	require.Equal(t, Digest(tok), digest)
	require.NotContains(t, digest, tok)
	require.Len(t, digest, 64)

	other, _, err := IssueToken()
	require.NoError(t, err)
	require.NotEqual(t, tok, other)
}

func TestAuthenticator(t *testing.T) {
	s := fixture()
	lookups := 0
	find := func(d string) (domain.AgentID, bool) {
		lookups++
		return FindByDigest(s, d)
	}
	cache := cachemanager.NewInMemoryCacheManager[string, domain.AgentID]("tokens", time.Minute, time.Minute)
	auth := NewAuthenticator(cache, time.Minute, find)

	id, ok := auth.Authenticate(context.Background(), "tok-idle")
	require.True(t, ok)
	require.Equal(t, domain.AgentID("idle"), id)

	_, ok = auth.Authenticate(context.Background(), "tok-idle")
	require.True(t, ok)
	require.Equal(t, 1, lookups, "second lookup served from cache")

	_, ok = auth.Authenticate(context.Background(), "tok-gone")
	require.False(t, ok, "offline agents do not authenticate")

	_, ok = auth.Authenticate(context.Background(), "")
	require.False(t, ok)

	s.Agents["idle"].Status = domain.AgentOffline
	auth.Forget(context.Background(), Digest("tok-idle"))
	_, ok = auth.Authenticate(context.Background(), "tok-idle")
	require.False(t, ok)
}

func TestEscalationLifecycle(t *testing.T) {
	e := &domain.Escalation{ID: "e", Status: domain.EscalationOpen, Options: []domain.EscalationOption{{Label: "a"}}}

	require.ErrorIs(t, CheckResolve(e, nil), types.ErrIllegalTransition)
	require.NoError(t, CheckAcknowledge(e))

	e.Status = domain.EscalationAcknowledged
	require.ErrorIs(t, CheckAcknowledge(e), types.ErrIllegalTransition)

	bad := 1
	require.ErrorIs(t, CheckResolve(e, &bad), types.ErrValidationFailed)
	good := 0
	require.NoError(t, CheckResolve(e, &good))
	require.NoError(t, CheckResolve(e, nil))

	e.Status = domain.EscalationResolved
	require.ErrorIs(t, CheckAcknowledge(e), types.ErrIllegalTransition)
	require.ErrorIs(t, CheckResolve(e, nil), types.ErrIllegalTransition)
}

func TestListEscalations_Ordering(t *testing.T) {
	p := projection.Escalations{
		"a": {ID: "a", Priority: domain.PriorityNormal, Status: domain.EscalationOpen, CreatedAt: t0},
		"b": {ID: "b", Priority: domain.PriorityCritical, Status: domain.EscalationOpen, CreatedAt: t0.Add(time.Hour)},
		"c": {ID: "c", Priority: domain.PriorityNormal, Status: domain.EscalationOpen, CreatedAt: t0.Add(-time.Hour)},
		"d": {ID: "d", Priority: domain.PriorityLow, Status: domain.EscalationResolved, CreatedAt: t0},
		"e": {ID: "e", Priority: domain.PriorityNormal, Status: domain.EscalationAcknowledged, CreatedAt: t0, ThreadID: "t"},
	}

	ids := func(es []*domain.Escalation) []domain.EscalationID {
		out := make([]domain.EscalationID, len(es))
		for i, e := range es {
			out[i] = e.ID
		}
		return out
	}

	require.Equal(t, []domain.EscalationID{"b", "c", "a", "e", "d"}, ids(ListEscalations(p, EscalationFilter{})))
	require.Equal(t, []domain.EscalationID{"b", "c", "a"}, ids(ListEscalations(p, EscalationFilter{Status: domain.EscalationOpen})))
	require.Equal(t, []domain.EscalationID{"b"}, ids(ListEscalations(p, EscalationFilter{MinPriority: domain.PriorityHigh})))
	require.Equal(t, []domain.EscalationID{"e"}, ids(ListEscalations(p, EscalationFilter{ThreadID: "t"})))

	listed := ListEscalations(p, EscalationFilter{Status: domain.EscalationOpen})
	listed[0].Title = "mutated"
	require.Empty(t, p["b"].Title)
}
