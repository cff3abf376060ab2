package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/types"
)

// ===========================================================================
// MemoryRepository
// ===========================================================================

// MemoryRepository is an in-memory implementation of Repository.
// It is thread-safe using sync.RWMutex for concurrent access.
type MemoryRepository struct {
	mu        sync.RWMutex
	events    []events.Event
	snapshots []Snapshot
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// AppendEvents persists a batch that continues the stored log.
func (r *MemoryRepository) AppendEvents(_ context.Context, batch []events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := CheckContiguous(uint64(len(r.events)), batch); err != nil {
		return err
	}
	r.events = append(r.events, batch...)
	return nil
}

// LoadAllEventsOrdered returns a copy of every stored event.
func (r *MemoryRepository) LoadAllEventsOrdered(ctx context.Context) ([]events.Event, error) {
	return r.LoadEventsAfter(ctx, 0)
}

// LoadEventsAfter returns a copy of the events after seq.
func (r *MemoryRepository) LoadEventsAfter(_ context.Context, seq uint64) ([]events.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if seq >= uint64(len(r.events)) {
		return nil, nil
	}
	return slices.Clone(r.events[seq:]), nil
}

// SaveSnapshot stores a copy of snap.
func (r *MemoryRepository) SaveSnapshot(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap.Blob = slices.Clone(snap.Blob)
	for i := range r.snapshots {
		if r.snapshots[i].Sequence == snap.Sequence {
			r.snapshots[i] = snap
			return nil
		}
	}
	r.snapshots = append(r.snapshots, snap)
	slices.SortFunc(r.snapshots, func(a, b Snapshot) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	return nil
}

// LoadLatestSnapshot returns the highest-sequence snapshot or nil.
func (r *MemoryRepository) LoadLatestSnapshot(context.Context) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.snapshots) == 0 {
		return nil, nil
	}
	snap := r.snapshots[len(r.snapshots)-1]
	snap.Blob = slices.Clone(snap.Blob)
	return &snap, nil
}

// Close is a no-op.
func (r *MemoryRepository) Close() error { return nil }

// CheckContiguous verifies that batch numbers continue from head.
func CheckContiguous(head uint64, batch []events.Event) error {
	for i, ev := range batch {
		want := head + uint64(i) + 1
		if ev.Sequence != want {
			return &types.ConflictError{What: "sequence", Expected: want, Actual: ev.Sequence}
		}
	}
	return nil
}
