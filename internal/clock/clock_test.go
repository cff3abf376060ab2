package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFake_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)
	require.Equal(t, start, c.Now())

	c.Advance(90 * time.Minute)
	require.Equal(t, start.Add(90*time.Minute), c.Now())

	later := start.Add(48 * time.Hour)
	c.Set(later)
	require.Equal(t, later, c.Now())
}

func TestReal_StripsMonotonic(t *testing.T) {
	now := Real().Now()
	require.Equal(t, time.UTC, now.Location())
	require.Equal(t, now, now.Round(0))
}
