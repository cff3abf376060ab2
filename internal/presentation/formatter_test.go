package presentation

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/engine"
	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/projection"
	"github.com/impel-dev/impel/internal/coordination/types"
	"github.com/impel-dev/impel/internal/testutil"
)

func lifecycleState(t *testing.T) (*projection.State, []events.Event) {
	t.Helper()
	evs := testutil.Lifecycle(t).Build()
	return projection.Replay(slices.Values(evs)), evs
}

func TestFromDomainThread_DecaysToNow(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	th := &domain.Thread{
		ID:          "t1",
		State:       domain.StateActive,
		Title:       "survey",
		Temperature: domain.NewTemperature(0.8, created),
		CreatedAt:   created,
	}

	dto := FromDomainThread(th, created.Add(24*time.Hour), 24*time.Hour)
	require.InDelta(t, 0.4, dto.Temperature, 1e-9)
	require.Equal(t, "active", dto.State)
}

func TestFormatter_ThreadsJSON(t *testing.T) {
	state, _ := lifecycleState(t)
	th := state.Threads["t1"]
	dtos := FromDomainThreads([]*domain.Thread{th}, th.UpdatedAt, 24*time.Hour)

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, true).Threads(dtos))

	var got []ThreadDTO
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "t1", got[0].ID)
	require.Equal(t, "complete", got[0].State)
	require.Equal(t, map[string]string{"k": "v"}, got[0].Metadata)
}

func TestFormatter_ThreadsText(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, false)

	require.NoError(t, f.Threads(nil))
	require.Contains(t, buf.String(), "no threads")

	buf.Reset()
	require.NoError(t, f.Threads([]ThreadDTO{{
		ID:          "t9",
		State:       "blocked",
		Title:       strings.Repeat("x", 80),
		Temperature: 0.9,
		ClaimedBy:   "a1",
	}}))
	out := buf.String()
	require.Contains(t, out, "blocked")
	require.Contains(t, out, "0.900")
	require.Contains(t, out, "@a1")
	require.Contains(t, out, strings.Repeat("x", titleWidth-3)+"...")
	require.NotContains(t, out, strings.Repeat("x", titleWidth+1))
}

func TestFormatter_AgentsOmitToken(t *testing.T) {
	state, _ := lifecycleState(t)

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, true).Agents(FromDomainAgents([]*domain.Agent{state.Agents["a1"]})))
	require.NotContains(t, buf.String(), "digest-a1")
	require.Contains(t, buf.String(), `"threads_completed": 1`)
}

func TestFormatter_Escalations(t *testing.T) {
	state, _ := lifecycleState(t)
	dtos := FromDomainEscalations([]*domain.Escalation{state.Escalations["e1"]})
	require.Equal(t, "high", dtos[0].Priority)
	require.Equal(t, []string{"yes", "no"}, dtos[0].Options)

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, false).Escalations(dtos))
	require.Contains(t, buf.String(), "resolved")
	require.Contains(t, buf.String(), "[1] no")
}

func TestFormatter_EventLineRoundTrips(t *testing.T) {
	_, evs := lifecycleState(t)

	var buf bytes.Buffer
	f := NewFormatter(&buf, true)
	for _, ev := range evs {
		require.NoError(t, f.Event(ev))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(evs))
	for i, line := range lines {
		var got events.Event
		require.NoError(t, json.Unmarshal([]byte(line), &got))
		require.Equal(t, evs[i], got)
	}
}

func TestFormatter_EventText(t *testing.T) {
	_, evs := lifecycleState(t)

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, false).Event(evs[4]))
	require.Contains(t, buf.String(), string(events.KindThreadTransitioned))
	require.Contains(t, buf.String(), "embryo -> active")
}

func TestFormatter_Report(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, false)
	require.NoError(t, f.Report(FromReplayReport(&engine.ReplayReport{
		Sequence:          9,
		FullReplayMatches: true,
		SnapshotSequence:  5,
		SnapshotMatches:   false,
		Diff:              "-a\n+b",
	})))
	require.Contains(t, buf.String(), "sequence 9")
	require.Contains(t, buf.String(), "MISMATCH")
	require.Contains(t, buf.String(), "+b")
}

func TestFormatter_ErrorKind(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, true).Error(&types.NotFoundError{Entity: "thread", ID: "nope"}))

	var got map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, types.ErrNotFound.Error(), got["kind"])
	require.Contains(t, got["error"], `"nope"`)
}

func TestTruncateString(t *testing.T) {
	require.Equal(t, "", TruncateString("abc", 0))
	require.Equal(t, "abc", TruncateString("abc", 3))
	require.Equal(t, "..", TruncateString("abcdef", 2))
	require.Equal(t, "ab...", TruncateString("abcdefgh", 5))
}
