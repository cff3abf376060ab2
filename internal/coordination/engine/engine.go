// Package engine is the coordination state and command executor. It owns the
// projections, the in-memory event log and the repository, and is the only
// path by which coordination state changes.
//
// Execution is serialized by one RWMutex: a command validates, appends, folds
// and publishes inside a single critical section, so readers never observe a
// partially applied outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/impel-dev/impel/internal/cachemanager"
	"github.com/impel-dev/impel/internal/clock"
	"github.com/impel-dev/impel/internal/coordination/command"
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/eventlog"
	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/processor"
	"github.com/impel-dev/impel/internal/coordination/projection"
	"github.com/impel-dev/impel/internal/coordination/registry"
	"github.com/impel-dev/impel/internal/coordination/repository"
	"github.com/impel-dev/impel/internal/coordination/snapshot"
	"github.com/impel-dev/impel/internal/coordination/types"
	"github.com/impel-dev/impel/internal/log"
	"github.com/impel-dev/impel/internal/pubsub"
	"github.com/impel-dev/impel/internal/tracing"
)

// ErrClosed is returned by Execute after Close.
var ErrClosed = errors.New("engine closed")

// Engine is the coordination state plus its command executor.
type Engine struct {
	mu      sync.RWMutex
	state   *projection.State
	log     *eventlog.Log
	repo    repository.Repository
	machine domain.StateMachine
	cfg     Config
	closed  bool

	// sinceSnapshot counts events appended after the last snapshot.
	sinceSnapshot int

	broker  *pubsub.Broker[events.Event]
	auth    *registry.Authenticator
	handler processor.CommandHandler
	dedup   *processor.DeduplicationMiddleware
	clock   clock.Clock
	tracer  trace.Tracer
}

// Open recovers coordination state from repo and returns a ready engine.
// Recovery decodes the latest snapshot, replays the events after it and
// falls back to a full replay when the snapshot is unusable. An empty log
// gets a genesis event recording cfg.Coefficients.
func Open(ctx context.Context, repo repository.Repository, cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		repo:    repo,
		log:     eventlog.New(repo),
		machine: domain.StateMachine{Kill: cfg.KillPolicy},
		cfg:     cfg,
		clock:   clock.Real(),
		broker: pubsub.NewBroker[events.Event](
			pubsub.WithBufferSize(cfg.SubscriberBuffer),
			pubsub.WithSlowConsumerPolicy(pubsub.DisconnectOnFull),
		),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.recover(ctx); err != nil {
		return nil, err
	}

	authCache := cachemanager.NewInMemoryCacheManager[string, domain.AgentID]("auth", cfg.AuthCacheTTL, 2*cfg.AuthCacheTTL)
	e.auth = registry.NewAuthenticator(authCache, cfg.AuthCacheTTL, e.findByDigest)
	e.handler = e.buildHandler()

	if err := e.reconcileCoefficients(ctx); err != nil {
		return nil, err
	}

	log.Info(log.CatEngine, "engine ready",
		"sequence", e.log.Head(),
		"threads", len(e.state.Threads),
		"agents", len(e.state.Agents),
		"paused", e.state.System.Paused,
	)
	return e, nil
}

// recover loads the log and rebuilds the projections.
func (e *Engine) recover(ctx context.Context) error {
	all, err := e.repo.LoadAllEventsOrdered(ctx)
	if err != nil {
		return &types.StorageError{Op: "load events", Err: err}
	}
	if err := e.log.Seed(all); err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	state, from := e.restoreSnapshot(ctx, uint64(len(all)))
	e.state = projection.ReplayOnto(state, e.log.EventsSince(from))
	log.Info(log.CatEngine, "recovered state",
		"events", len(all),
		"snapshot_sequence", from,
		"replayed", uint64(len(all))-from,
	)
	return nil
}

// restoreSnapshot returns the state to replay onto and the sequence it is
// valid at. Any unusable snapshot yields the empty state at 0.
func (e *Engine) restoreSnapshot(ctx context.Context, head uint64) (*projection.State, uint64) {
	snap, err := e.repo.LoadLatestSnapshot(ctx)
	if err != nil {
		log.ErrorErr(log.CatSnapshot, "failed to load snapshot, replaying full log", err)
		return projection.NewState(), 0
	}
	if snap == nil {
		return projection.NewState(), 0
	}
	if snap.Sequence > head {
		log.Warn(log.CatSnapshot, "snapshot is ahead of the log, replaying full log",
			"snapshot_sequence", snap.Sequence, "head", head)
		return projection.NewState(), 0
	}
	state, err := snapshot.Decode(snap.Blob)
	if err != nil {
		log.ErrorErr(log.CatSnapshot, "failed to decode snapshot, replaying full log", err,
			"snapshot_sequence", snap.Sequence)
		return projection.NewState(), 0
	}
	if state.System.CurrentSequence != snap.Sequence {
		log.Warn(log.CatSnapshot, "snapshot sequence mismatch, replaying full log",
			"recorded", snap.Sequence, "decoded", state.System.CurrentSequence)
		return projection.NewState(), 0
	}
	return state, snap.Sequence
}

// reconcileCoefficients records cfg.Coefficients when the log is empty or
// the recorded coefficients differ.
func (e *Engine) reconcileCoefficients(ctx context.Context) error {
	e.mu.RLock()
	head, recorded := e.log.Head(), e.state.System.Coefficients
	e.mu.RUnlock()

	if head > 0 && recorded == e.cfg.Coefficients {
		return nil
	}
	cmd := command.NewConfigureTemperatureCommand(command.SourceInternal, e.cfg.Coefficients)
	if _, err := e.Run(ctx, cmd); err != nil {
		return fmt.Errorf("record temperature coefficients: %w", err)
	}
	return nil
}

// buildHandler assembles the middleware chain around apply:
// logging(tracing(timeout(dedup(apply)))).
func (e *Engine) buildHandler() processor.CommandHandler {
	middlewares := []processor.Middleware{
		processor.NewLoggingMiddleware(),
		tracing.NewTracingMiddleware(e.tracer),
		processor.NewTimeoutMiddleware(processor.TimeoutMiddlewareConfig{
			WarningThreshold: e.cfg.SlowCommandThreshold,
		}),
	}
	if e.cfg.DedupTTL > 0 {
		e.dedup = processor.NewDeduplicationMiddleware(processor.DeduplicationMiddlewareConfig{TTL: e.cfg.DedupTTL})
		middlewares = append(middlewares, e.dedup.Middleware())
	}
	return processor.ChainMiddleware(processor.HandlerFunc(e.apply), middlewares...)
}

// Execute runs cmd and returns the appended events. On error state is
// unchanged.
func (e *Engine) Execute(ctx context.Context, cmd command.Command) ([]events.Event, error) {
	result, err := e.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return result.Events, nil
}

// Run runs cmd and returns the full result, including command specific data
// such as the token issued by RegisterAgent.
func (e *Engine) Run(ctx context.Context, cmd command.Command) (*command.Result, error) {
	if cmd == nil {
		return nil, types.Invalid("command", "is nil")
	}
	return e.handler.Handle(ctx, cmd)
}

// apply is the innermost handler: validate, decide, append, fold, publish.
func (e *Engine) apply(ctx context.Context, cmd command.Command) (*command.Result, error) {
	if err := cmd.Validate(); err != nil {
		if !errors.Is(err, types.ErrValidationFailed) {
			err = &types.ValidationError{Reason: err.Error()}
		}
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if e.state.System.Paused && !passesPause(cmd) {
		return nil, &types.PausedError{Reason: e.state.System.PauseReason}
	}

	now := events.NormalizeTime(e.clock.Now())
	batch, data, err := e.decide(cmd)
	if err != nil {
		return nil, err
	}
	stamp(batch, cmd, now)

	seqs, err := e.log.Append(ctx, batch)
	if err != nil {
		if errors.Is(err, types.ErrStorage) {
			log.ErrorErr(log.CatEngine, "append failed, nothing folded", err,
				"command_id", cmd.ID(), "command_type", cmd.Type().String())
		}
		return nil, err
	}
	for i := range batch {
		batch[i].Sequence = seqs[i]
	}

	e.state.ApplyAll(batch)
	e.afterApply(ctx, batch)

	return &command.Result{Events: batch, Data: data}, nil
}

// passesPause reports whether cmd runs while the system is paused: resume
// always does, and so does the internal coefficient reconciliation on Open.
func passesPause(cmd command.Command) bool {
	switch cmd.Type() {
	case command.CmdResumeSystem:
		return true
	case command.CmdConfigureTemperature:
		return cmd.Source() == command.SourceInternal
	default:
		return false
	}
}

// stamp fills the envelope fields every event of a command shares.
func stamp(batch []events.Event, cmd command.Command, now time.Time) {
	correlation := cmd.ID()
	if traced, ok := cmd.(interface{ TraceID() string }); ok && traced.TraceID() != "" {
		correlation = traced.TraceID()
	}
	for i := range batch {
		batch[i].Timestamp = now
		batch[i].ActorID = cmd.Actor()
		batch[i].CorrelationID = correlation
		batch[i].CausationID = cmd.ID()
	}
}

// afterApply runs with the write lock held once a batch is folded.
func (e *Engine) afterApply(ctx context.Context, batch []events.Event) {
	for _, ev := range batch {
		if ev.Kind() == events.KindAgentDisconnected {
			if a, ok := e.state.Agents[domain.AgentID(ev.EntityID)]; ok {
				e.auth.Forget(ctx, a.TokenDigest)
			}
		}
		e.broker.Publish(pubsub.CreatedEvent, ev)
	}

	e.sinceSnapshot += len(batch)
	if e.cfg.SnapshotInterval > 0 && e.sinceSnapshot >= e.cfg.SnapshotInterval {
		if _, err := e.snapshotLocked(ctx); err != nil {
			log.ErrorErr(log.CatSnapshot, "automatic snapshot failed", err)
		}
	}
}

// findByDigest backs the authenticator on cache misses.
func (e *Engine) findByDigest(digest string) (domain.AgentID, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return registry.FindByDigest(e.state, digest)
}

// Close stops subscriptions and closes the repository.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.broker.Close()
	return e.repo.Close()
}
