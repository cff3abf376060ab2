package engine

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/impel-dev/impel/internal/clock"
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/processor"
	"github.com/impel-dev/impel/internal/coordination/snapshot"
)

// TieBreak orders available threads of equal temperature.
type TieBreak string

const (
	// TieBreakOldest puts the earliest created thread first.
	TieBreakOldest TieBreak = "oldest"
	// TieBreakNewest puts the most recently created thread first.
	TieBreakNewest TieBreak = "newest"
)

// ParseTieBreak parses a tie-break policy name. Empty means oldest.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(s) {
	case TieBreakOldest, "":
		return TieBreakOldest, nil
	case TieBreakNewest:
		return TieBreakNewest, nil
	default:
		return "", fmt.Errorf("unknown tie-break %q (want oldest or newest)", s)
	}
}

// Config tunes an Engine.
type Config struct {
	// Coefficients are recorded in the log at genesis and whenever they
	// differ from the recorded ones on Open.
	Coefficients domain.Coefficients
	// KillPolicy decides which states may be killed.
	KillPolicy domain.KillPolicy
	// TieBreak orders available threads of equal temperature.
	TieBreak TieBreak
	// DedupTTL rejects identical commands within the window. Zero disables.
	DedupTTL time.Duration
	// SlowCommandThreshold logs a warning for slower commands.
	SlowCommandThreshold time.Duration
	// SnapshotInterval saves a snapshot every N appended events. Zero
	// disables automatic snapshots.
	SnapshotInterval int
	// SnapshotCompression compresses snapshot bodies.
	SnapshotCompression snapshot.CompressionTag
	// SubscriberBuffer is the per-subscriber channel capacity. Subscribers
	// that fall this far behind are disconnected.
	SubscriberBuffer int
	// AuthCacheTTL bounds how long a token digest stays cached.
	AuthCacheTTL time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Coefficients:         domain.DefaultCoefficients(),
		KillPolicy:           domain.KillFromAnyNonTerminal,
		TieBreak:             TieBreakOldest,
		DedupTTL:             processor.DefaultDeduplicationTTL,
		SlowCommandThreshold: processor.DefaultTimeoutWarningThreshold,
		SnapshotInterval:     500,
		SnapshotCompression:  snapshot.CompressionZstd,
		SubscriberBuffer:     256,
		AuthCacheTTL:         5 * time.Minute,
	}
}

// Option configures collaborators that are not plain settings.
type Option func(*Engine)

// WithClock replaces the wall clock, typically with clock.Fake in tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithTracer enables the tracing middleware.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}
