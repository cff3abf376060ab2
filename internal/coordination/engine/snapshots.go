package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/projection"
	"github.com/impel-dev/impel/internal/coordination/repository"
	"github.com/impel-dev/impel/internal/coordination/snapshot"
	"github.com/impel-dev/impel/internal/log"
)

// ErrReplayMismatch is returned by VerifyReplay when a rebuilt state differs
// from the live one.
var ErrReplayMismatch = errors.New("replay mismatch")

// Snapshot encodes the current state and stores it. It returns the sequence
// the snapshot is valid at.
func (e *Engine) Snapshot(ctx context.Context) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(ctx)
}

func (e *Engine) snapshotLocked(ctx context.Context) (uint64, error) {
	seq := e.state.System.CurrentSequence
	blob, err := snapshot.Encode(e.state, e.cfg.SnapshotCompression)
	if err != nil {
		return 0, err
	}
	snap := repository.Snapshot{
		Sequence:  seq,
		Blob:      blob,
		CreatedAt: events.NormalizeTime(e.clock.Now()),
	}
	if err := e.repo.SaveSnapshot(ctx, snap); err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	e.sinceSnapshot = 0
	log.Info(log.CatSnapshot, "snapshot saved", "sequence", seq, "bytes", len(blob))
	return seq, nil
}

// ReplayReport describes a replay verification.
type ReplayReport struct {
	// Sequence is the live head that was verified.
	Sequence uint64
	// FullReplayMatches is true when replaying the whole log reproduces the
	// live state.
	FullReplayMatches bool
	// SnapshotSequence is the sequence of the verified snapshot, 0 if none.
	SnapshotSequence uint64
	// SnapshotMatches is true when the snapshot plus its tail reproduces the
	// live state, or when there is no snapshot.
	SnapshotMatches bool
	// Diff shows live (-) against rebuilt (+) state for the first mismatch.
	Diff string
}

// VerifyReplay rebuilds state from the full log and from the latest
// snapshot plus its tail, and compares both against the live state.
func (e *Engine) VerifyReplay(ctx context.Context) (*ReplayReport, error) {
	e.mu.RLock()
	live := e.state.Clone()
	head := e.log.Head()
	evs := e.log.EventsSince(0)
	e.mu.RUnlock()

	report := &ReplayReport{Sequence: head, SnapshotMatches: true}

	full := projection.Replay(evs)
	same, diff, err := compareStates(live, full)
	if err != nil {
		return nil, err
	}
	report.FullReplayMatches = same
	if !same {
		report.Diff = diff
	}

	snap, err := e.repo.LoadLatestSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if snap != nil && snap.Sequence <= head {
		report.SnapshotSequence = snap.Sequence
		restored, err := snapshot.Decode(snap.Blob)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot %d: %w", snap.Sequence, err)
		}
		rebuilt := projection.ReplayOnto(restored, sliceAfter(evs, snap.Sequence))
		same, diff, err := compareStates(live, rebuilt)
		if err != nil {
			return nil, err
		}
		report.SnapshotMatches = same
		if !same && report.Diff == "" {
			report.Diff = diff
		}
	}

	if !report.FullReplayMatches || !report.SnapshotMatches {
		log.Error(log.CatEngine, "replay verification failed",
			"sequence", head,
			"full_replay", report.FullReplayMatches,
			"snapshot", report.SnapshotMatches,
		)
		return report, ErrReplayMismatch
	}
	return report, nil
}

// sliceAfter narrows a log view to events after seq.
func sliceAfter(evs iter.Seq[events.Event], seq uint64) iter.Seq[events.Event] {
	return func(yield func(events.Event) bool) {
		for ev := range evs {
			if ev.Sequence <= seq {
				continue
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// compareStates compares deterministic encodings and renders a line diff of
// the JSON forms when they differ.
func compareStates(live, rebuilt *projection.State) (bool, string, error) {
	a, err := snapshot.Fingerprint(live)
	if err != nil {
		return false, "", err
	}
	b, err := snapshot.Fingerprint(rebuilt)
	if err != nil {
		return false, "", err
	}
	if a == b {
		return true, "", nil
	}
	diff, err := stateDiff(live, rebuilt)
	return false, diff, err
}

func stateDiff(live, rebuilt *projection.State) (string, error) {
	left, err := json.MarshalIndent(live, "", "  ")
	if err != nil {
		return "", err
	}
	right, err := json.MarshalIndent(rebuilt, "", "  ")
	if err != nil {
		return "", err
	}

	dmp := diffmatchpatch.New()
	l, r, lines := dmp.DiffLinesToChars(string(left), string(right))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(l, r, false), lines)

	var b strings.Builder
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		default:
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			b.WriteString(prefix)
			b.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				b.WriteByte('\n')
			}
		}
	}
	return b.String(), nil
}
