package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/impel-dev/impel/internal/coordination/engine"
	"github.com/impel-dev/impel/internal/coordination/repository"
	"github.com/impel-dev/impel/internal/flags"
	"github.com/impel-dev/impel/internal/infrastructure/sqlite"
	"github.com/impel-dev/impel/internal/log"
	"github.com/impel-dev/impel/internal/paths"
	"github.com/impel-dev/impel/internal/tracing"
)

// session is an open database with a recovered engine on top.
type session struct {
	path   string
	repo   repository.Repository
	engine *engine.Engine
	tracer *tracing.Provider
}

// openSession resolves the database, recovers the engine and, when the
// verify-on-open flag is set, checks that replay reproduces the live state.
func openSession(ctx context.Context) (*session, error) {
	engCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	path := paths.ResolveDBPath(cfg.DBPath)
	db, err := sqlite.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	repo := db.EventRepository()

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("starting tracing: %w", err)
	}

	var opts []engine.Option
	if tp.Enabled() {
		opts = append(opts, engine.WithTracer(tp.Tracer()))
	}
	eng, err := engine.Open(ctx, repo, engCfg, opts...)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = repo.Close()
		return nil, fmt.Errorf("recovering state from %s: %w", path, err)
	}

	s := &session{path: path, repo: repo, engine: eng, tracer: tp}
	if flags.New(cfg.Flags).Enabled(flags.FlagVerifyOnOpen) {
		report, err := eng.VerifyReplay(ctx)
		if err != nil {
			_ = s.Close(ctx)
			if errors.Is(err, engine.ErrReplayMismatch) {
				return nil, fmt.Errorf("%w:\n%s", err, report.Diff)
			}
			return nil, err
		}
		log.Debug(log.CatEngine, "replay verified on open", "sequence", report.Sequence)
	}
	return s, nil
}

// Close flushes traces and closes the engine, which closes the database.
func (s *session) Close(ctx context.Context) error {
	var errs []error
	if err := s.engine.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withSession opens a session for the duration of fn.
func withSession(ctx context.Context, fn func(*session) error) (err error) {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
