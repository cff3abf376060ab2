// Package repository defines the persistence contract of the coordination
// engine and an in-memory implementation. The sqlite implementation lives in
// internal/infrastructure/sqlite.
package repository

import (
	"context"
	"time"

	"github.com/impel-dev/impel/internal/coordination/events"
)

// Snapshot is an encoded projection state valid as of Sequence.
// Blob is opaque to the repository.
type Snapshot struct {
	Sequence  uint64
	Blob      []byte
	CreatedAt time.Time
}

// Repository durably stores the event log and snapshots.
type Repository interface {
	// AppendEvents persists a batch atomically. The batch must continue the
	// stored log exactly; otherwise a types.ConflictError is returned and
	// nothing is written.
	AppendEvents(ctx context.Context, batch []events.Event) error
	// LoadAllEventsOrdered returns every stored event in sequence order.
	LoadAllEventsOrdered(ctx context.Context) ([]events.Event, error)
	// LoadEventsAfter returns the stored events with sequence > seq in order.
	LoadEventsAfter(ctx context.Context, seq uint64) ([]events.Event, error)
	// SaveSnapshot stores a snapshot. Saving twice at one sequence replaces it.
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	// LoadLatestSnapshot returns the highest-sequence snapshot, or nil when
	// none has been saved.
	LoadLatestSnapshot(ctx context.Context) (*Snapshot, error)
	// Close releases the underlying store.
	Close() error
}
