package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/repository"
	"github.com/impel-dev/impel/internal/coordination/types"
	"github.com/impel-dev/impel/internal/log"
)

// eventRepository implements repository.Repository using SQLite.
type eventRepository struct {
	db    *DB
	retry retryConfig
}

// newEventRepository creates a new eventRepository instance.
func newEventRepository(db *DB) *eventRepository {
	return &eventRepository{db: db, retry: defaultRetryConfig}
}

// Ensure eventRepository implements repository.Repository.
var _ repository.Repository = (*eventRepository)(nil)

// AppendEvents writes the batch in one immediate transaction after checking
// that it continues the stored head.
func (r *eventRepository) AppendEvents(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}
	models := make([]*EventModel, len(batch))
	for i, ev := range batch {
		m, err := toEventModel(ev)
		if err != nil {
			return err
		}
		models[i] = m
	}

	err := retryOp(ctx, r.retry, func() error {
		return r.appendTx(ctx, batch, models)
	})
	if err != nil {
		return err
	}
	log.Debug(log.CatDB, "appended events", "count", len(batch), "head", batch[len(batch)-1].Sequence)
	return nil
}

func (r *eventRepository) appendTx(ctx context.Context, batch []events.Event, models []*EventModel) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var head int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM events`).Scan(&head); err != nil {
		return fmt.Errorf("failed to read head: %w", err)
	}
	if err := repository.CheckContiguous(uint64(head), batch); err != nil { //nolint:gosec // G115: head is non-negative
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (
		sequence, id, timestamp_ns, entity_id, entity_type, kind, payload,
		actor_id, correlation_id, causation_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare append: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range models {
		_, err := stmt.ExecContext(ctx,
			m.Sequence, m.ID, m.TimestampNs, m.EntityID, m.EntityType, m.Kind, m.Payload,
			m.ActorID, m.CorrelationID, m.CausationID,
		)
		if isConstraint(err) {
			return &types.ConflictError{What: "sequence", Expected: uint64(head) + 1, Actual: uint64(m.Sequence)} //nolint:gosec // G115
		}
		if err != nil {
			return fmt.Errorf("failed to insert event %d: %w", m.Sequence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit append: %w", err)
	}
	return nil
}

// LoadAllEventsOrdered returns every stored event in sequence order.
func (r *eventRepository) LoadAllEventsOrdered(ctx context.Context) ([]events.Event, error) {
	return r.LoadEventsAfter(ctx, 0)
}

// LoadEventsAfter returns stored events with sequence > seq in order.
func (r *eventRepository) LoadEventsAfter(ctx context.Context, seq uint64) ([]events.Event, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE sequence > ? ORDER BY sequence`,
		int64(seq), //nolint:gosec // G115
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []events.Event
	for rows.Next() {
		m, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return out, nil
}

// SaveSnapshot upserts a snapshot by sequence.
func (r *eventRepository) SaveSnapshot(ctx context.Context, snap repository.Snapshot) error {
	return retryOp(ctx, r.retry, func() error {
		_, err := r.db.conn.ExecContext(ctx,
			`INSERT INTO snapshots (sequence, blob, created_at_ns) VALUES (?, ?, ?)
			 ON CONFLICT(sequence) DO UPDATE SET blob = excluded.blob, created_at_ns = excluded.created_at_ns`,
			int64(snap.Sequence), snap.Blob, snap.CreatedAt.UnixNano(), //nolint:gosec // G115
		)
		if err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		return nil
	})
}

// LoadLatestSnapshot returns the highest-sequence snapshot, or nil when none
// exists.
func (r *eventRepository) LoadLatestSnapshot(ctx context.Context) (*repository.Snapshot, error) {
	var (
		seq       int64
		blob      []byte
		createdAt int64
	)
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT sequence, blob, created_at_ns FROM snapshots ORDER BY sequence DESC LIMIT 1`,
	).Scan(&seq, &blob, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return &repository.Snapshot{
		Sequence:  uint64(seq), //nolint:gosec // G115
		Blob:      blob,
		CreatedAt: events.NormalizeTime(time.Unix(0, createdAt)),
	}, nil
}

// Close closes the underlying database.
func (r *eventRepository) Close() error {
	return r.db.Close()
}
