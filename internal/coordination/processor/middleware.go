package processor

import (
	"context"
	"time"

	"github.com/impel-dev/impel/internal/cachemanager"
	"github.com/impel-dev/impel/internal/coordination/command"
	"github.com/impel-dev/impel/internal/coordination/types"
	"github.com/impel-dev/impel/internal/log"
)

// ===========================================================================
// Logging Middleware
// ===========================================================================

// NewLoggingMiddleware creates a middleware that logs command execution.
func NewLoggingMiddleware() Middleware {
	return func(next CommandHandler) CommandHandler {
		return HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.Result, error) {
			start := time.Now()

			traceID := ""
			if hasTraceID, ok := cmd.(interface{ TraceID() string }); ok {
				traceID = hasTraceID.TraceID()
			}

			result, err := next.Handle(ctx, cmd)
			duration := time.Since(start)

			if err != nil {
				log.Warn(log.CatCommands, "command rejected",
					"command_id", cmd.ID(),
					"command_type", cmd.Type().String(),
					"trace_id", traceID,
					"duration", duration,
					"source", cmd.Source(),
					"error", err.Error(),
				)
				return result, err
			}

			var head uint64
			emitted := 0
			if result != nil {
				emitted = len(result.Events)
				if emitted > 0 {
					head = result.Events[emitted-1].Sequence
				}
			}
			log.Debug(log.CatCommands, "command completed",
				"command_id", cmd.ID(),
				"command_type", cmd.Type().String(),
				"trace_id", traceID,
				"duration", duration,
				"source", cmd.Source(),
				"events", emitted,
				"sequence", head,
			)
			return result, nil
		})
	}
}

// ===========================================================================
// Deduplication Middleware
// ===========================================================================

// DefaultDeduplicationTTL is the default time-to-live for deduplication cache entries.
const DefaultDeduplicationTTL = 5 * time.Second

// DeduplicationMiddlewareConfig configures the deduplication middleware.
type DeduplicationMiddlewareConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration // If 0, uses TTL*2
}

// DeduplicationMiddleware rejects commands whose content matches a command
// accepted within the TTL window. Rejected commands release their entry so
// a corrected retry is not mistaken for a duplicate.
type DeduplicationMiddleware struct {
	cache *cachemanager.InMemoryCacheManager[string, time.Time]
	ttl   time.Duration
}

// NewDeduplicationMiddleware creates a new deduplication middleware.
func NewDeduplicationMiddleware(cfg DeduplicationMiddlewareConfig) *DeduplicationMiddleware {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultDeduplicationTTL
	}
	cleanup := cfg.CleanupInterval
	if cleanup == 0 {
		cleanup = ttl * 2
	}
	return &DeduplicationMiddleware{
		cache: cachemanager.NewInMemoryCacheManager[string, time.Time]("dedup", ttl, cleanup),
		ttl:   ttl,
	}
}

// CacheSize returns the current number of entries in the cache.
func (m *DeduplicationMiddleware) CacheSize() int {
	return m.cache.Len()
}

// Middleware returns the middleware function.
func (m *DeduplicationMiddleware) Middleware() Middleware {
	return func(next CommandHandler) CommandHandler {
		return HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.Result, error) {
			hash := command.ContentHash(cmd)

			if !m.cache.Add(ctx, hash, time.Now(), m.ttl) {
				log.Warn(log.CatCommands, "duplicate command rejected",
					"command_id", cmd.ID(),
					"command_type", cmd.Type().String(),
					"content_hash", hash[:16],
				)
				return nil, types.ErrDuplicateCommand
			}

			result, err := next.Handle(ctx, cmd)
			if err != nil {
				_ = m.cache.Delete(ctx, hash)
			}
			return result, err
		})
	}
}

// ===========================================================================
// Timeout Middleware
// ===========================================================================

// DefaultTimeoutWarningThreshold is the default threshold for logging slow handler warnings.
const DefaultTimeoutWarningThreshold = 100 * time.Millisecond

// TimeoutMiddlewareConfig configures the timeout middleware.
type TimeoutMiddlewareConfig struct {
	WarningThreshold time.Duration
}

// NewTimeoutMiddleware creates a middleware that logs warnings when handlers
// exceed the configured threshold. Commands run to completion; only the
// warning is emitted.
func NewTimeoutMiddleware(cfg TimeoutMiddlewareConfig) Middleware {
	threshold := cfg.WarningThreshold
	if threshold == 0 {
		threshold = DefaultTimeoutWarningThreshold
	}

	return func(next CommandHandler) CommandHandler {
		return HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.Result, error) {
			start := time.Now()

			result, err := next.Handle(ctx, cmd)

			duration := time.Since(start)
			if duration > threshold {
				traceID := ""
				if hasTraceID, ok := cmd.(interface{ TraceID() string }); ok {
					traceID = hasTraceID.TraceID()
				}

				log.Warn(log.CatCommands, "handler exceeded time threshold",
					"command_id", cmd.ID(),
					"command_type", cmd.Type().String(),
					"trace_id", traceID,
					"duration", duration,
					"threshold", threshold,
				)
			}

			return result, err
		})
	}
}
