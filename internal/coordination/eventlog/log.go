// Package eventlog implements the append-only, gapless coordination log.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/types"
)

// Store durably persists appended batches. AppendEvents must accept the whole
// batch or none of it.
type Store interface {
	AppendEvents(ctx context.Context, batch []events.Event) error
}

// Log is an in-memory ordered event log backed by an optional durable Store.
// Sequence numbers start at 1 and have no gaps.
type Log struct {
	mu     sync.RWMutex
	events []events.Event
	store  Store
}

// New creates an empty log. A nil store keeps the log memory-only.
func New(store Store) *Log {
	return &Log{store: store}
}

// Append assigns the next contiguous sequence numbers to batch, persists it
// and makes it visible. Events that already carry a sequence must match the
// position they would be assigned. Nothing becomes visible unless the store
// accepted the whole batch.
func (l *Log) Append(ctx context.Context, batch []events.Event) ([]uint64, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	head := uint64(len(l.events))
	sequenced := make([]events.Event, len(batch))
	seqs := make([]uint64, len(batch))
	for i, ev := range batch {
		want := head + uint64(i) + 1
		if ev.Sequence != 0 && ev.Sequence != want {
			return nil, &types.ConflictError{What: "sequence", Expected: want, Actual: ev.Sequence}
		}
		ev.Sequence = want
		sequenced[i] = ev
		seqs[i] = want
	}

	if l.store != nil {
		if err := l.store.AppendEvents(ctx, sequenced); err != nil {
			if errors.Is(err, types.ErrConflict) || errors.Is(err, types.ErrStorage) {
				return nil, err
			}
			return nil, &types.StorageError{Op: "append", Err: err}
		}
	}

	l.events = append(l.events, sequenced...)
	return seqs, nil
}

// Seed loads already-persisted events into an empty log without writing them
// to the store. The events must be numbered contiguously from 1.
func (l *Log) Seed(evs []events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) != 0 {
		return fmt.Errorf("seed: log already holds %d events", len(l.events))
	}
	for i, ev := range evs {
		if ev.Sequence != uint64(i)+1 {
			return &types.ConflictError{What: "sequence", Expected: uint64(i) + 1, Actual: ev.Sequence}
		}
	}
	l.events = append([]events.Event(nil), evs...)
	return nil
}

// Head returns the sequence of the last appended event, 0 when empty.
func (l *Log) Head() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events))
}

// Len returns the number of events in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Get returns the event at seq.
func (l *Log) Get(seq uint64) (events.Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq == 0 || seq > uint64(len(l.events)) {
		return events.Event{}, false
	}
	return l.events[seq-1], true
}

// EventsSince returns the events with Sequence > seq in ascending order,
// bounded by the head at the time of the call. Each range over the result
// re-scans from seq.
func (l *Log) EventsSince(seq uint64) iter.Seq[events.Event] {
	l.mu.RLock()
	view := l.events[:len(l.events):len(l.events)]
	l.mu.RUnlock()

	return func(yield func(events.Event) bool) {
		if seq >= uint64(len(view)) {
			return
		}
		for _, ev := range view[seq:] {
			if !yield(ev) {
				return
			}
		}
	}
}
