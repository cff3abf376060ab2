package snapshot

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/projection"
)

// sampleState folds a log touching every projection, with sub-second
// timestamps so nanosecond precision is exercised.
func sampleState() *projection.State {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	selected := 1
	log := []events.Event{
		events.New(events.EntitySystem, events.SystemEntityID, events.SystemConfigured{Coefficients: domain.DefaultCoefficients()}),
		events.New(events.EntityThread, "t1", events.ThreadCreated{Title: "survey", InitialTemperature: 0.8, Metadata: map[string]string{"topic": "ants"}}),
		events.New(events.EntityThread, "t2", events.ThreadCreated{Title: "sub", ParentID: "t1", InitialTemperature: 0.4}),
		events.New(events.EntityAgent, "a1", events.AgentRegistered{AgentType: "researcher", TokenDigest: "abc"}),
		events.New(events.EntityThread, "t1", events.ThreadClaimed{AgentID: "a1"}),
		events.New(events.EntityThread, "t1", events.ThreadTransitioned{From: domain.StateEmbryo, To: domain.StateActive}),
		events.New(events.EntityEscalation, "e1", events.EscalationRaised{
			Category: "question", Priority: domain.PriorityCritical, Title: "which corpus?", ThreadID: "t1", CreatedBy: "a1",
			Options: []domain.EscalationOption{{Label: "A"}, {Label: "B", Description: "bigger"}},
		}),
		events.New(events.EntityEscalation, "e1", events.EscalationAcknowledged{By: "human"}),
		events.New(events.EntityEscalation, "e1", events.EscalationResolved{By: "human", Resolution: "use B", SelectedOption: &selected}),
		events.New(events.EntityThread, "t2", events.ThreadKilled{From: domain.StateEmbryo, Reason: "dup"}),
	}
	for i := range log {
		log[i].Sequence = uint64(i) + 1
		log[i].Timestamp = t0.Add(time.Duration(i) * 1500 * time.Millisecond)
	}
	return projection.Replay(slices.Values(log))
}

func TestEncodeDecode_AllCompressions(t *testing.T) {
	state := sampleState()
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			blob, err := Encode(state, tag)
			require.NoError(t, err)

			got, err := Decode(blob)
			require.NoError(t, err)
			require.Equal(t, state, got)
		})
	}
}

func TestEncode_Deterministic(t *testing.T) {
	a, err := Encode(sampleState(), CompressionNone)
	require.NoError(t, err)
	b, err := Encode(sampleState(), CompressionNone)
	require.NoError(t, err)
	require.Equal(t, a, b)

	fa, err := Fingerprint(sampleState())
	require.NoError(t, err)
	fb, err := Fingerprint(sampleState())
	require.NoError(t, err)
	require.Equal(t, fa, fb)
}

func TestFingerprint_DiffersOnChange(t *testing.T) {
	s := sampleState()
	before, err := Fingerprint(s)
	require.NoError(t, err)

	s.Threads["t1"].Title = "renamed"
	after, err := Fingerprint(s)
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestDecode_EmptyState(t *testing.T) {
	blob, err := Encode(projection.NewState(), CompressionZstd)
	require.NoError(t, err)

	got, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, projection.NewState(), got)
}

func TestDecode_RejectsCorruption(t *testing.T) {
	blob, err := Encode(sampleState(), CompressionNone)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated header", func(b []byte) []byte { return b[:headerSize-1] }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"bad version", func(b []byte) []byte { b[4] = 9; return b }},
		{"flipped body byte", func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b }},
		{"wrong size", func(b []byte) []byte { b[9]++; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.mutate(slices.Clone(blob)))
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestEncode_IncompressibleFallsBackToNone(t *testing.T) {
	blob, err := Encode(projection.NewState(), CompressionLZ4)
	require.NoError(t, err)

	tag, err := Compression(blob)
	require.NoError(t, err)
	require.Equal(t, CompressionNone, tag)
}

func TestParseCompressionTag(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		got, err := ParseCompressionTag(tag.String())
		require.NoError(t, err)
		require.Equal(t, tag, got)
	}
	_, err := ParseCompressionTag("brotli")
	require.Error(t, err)
}
