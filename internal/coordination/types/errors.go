// Package types provides the error kinds shared by every layer of the
// coordination engine. Each rejected command returns one of the typed errors
// below; all of them match their kind sentinel via errors.Is.
package types

import (
	"errors"
	"fmt"
)

// ===========================================================================
// Error Kinds
// ===========================================================================

// ErrNotFound is returned when a referenced thread, agent or escalation does not exist.
var ErrNotFound = errors.New("not found")

// ErrIllegalTransition is returned when the thread or escalation lifecycle rejects a change.
var ErrIllegalTransition = errors.New("illegal transition")

// ErrAlreadyClaimed is returned when a claim collides with an existing claim.
var ErrAlreadyClaimed = errors.New("already claimed")

// ErrSystemPaused is returned for every command except ResumeSystem while paused.
var ErrSystemPaused = errors.New("system paused")

// ErrValidationFailed is returned for malformed command arguments.
var ErrValidationFailed = errors.New("validation failed")

// ErrConflict is returned when an append or optimistic version check loses a race.
var ErrConflict = errors.New("conflict")

// ErrStorage is returned when the durable store rejects an append. It is the
// only fatal class: nothing is folded when it occurs.
var ErrStorage = errors.New("storage unavailable")

// ===========================================================================
// Pipeline Errors
// ===========================================================================

// ErrUnknownCommand is returned when the executor has no case for a command type.
var ErrUnknownCommand = errors.New("unknown command type")

// ErrDuplicateCommand is returned when a duplicate command is detected within the TTL window.
var ErrDuplicateCommand = errors.New("duplicate command detected within TTL window")

// ===========================================================================
// Typed Errors
// ===========================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string // "thread", "agent", "escalation"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TransitionError names the rejected lifecycle edge.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
	Reason string // optional
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s %q cannot transition from %s to %s", e.Entity, e.ID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is reports whether target is ErrIllegalTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// ClaimError describes which side of a claim is already taken.
type ClaimError struct {
	ThreadID string
	AgentID  string
	Holder   string // agent currently holding the thread, or thread held by the agent
	Reason   string
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("agent %q cannot claim thread %q: %s (held: %s)", e.AgentID, e.ThreadID, e.Reason, e.Holder)
}

// Is reports whether target is ErrAlreadyClaimed.
func (e *ClaimError) Is(target error) bool { return target == ErrAlreadyClaimed }

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidationFailed.
func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

// Invalid is shorthand for a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports an expected/actual mismatch for sequences or versions.
type ConflictError struct {
	What     string // "sequence", "version"
	ID       string // entity id for version conflicts
	Expected uint64
	Actual   uint64
}

func (e *ConflictError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s conflict on %q: expected %d, found %d", e.What, e.ID, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s conflict: expected %d, found %d", e.What, e.Expected, e.Actual)
}

// Is reports whether target is ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// PausedError carries the reason the system was paused.
type PausedError struct {
	Reason string
}

func (e *PausedError) Error() string {
	if e.Reason == "" {
		return "system paused"
	}
	return "system paused: " + e.Reason
}

// Is reports whether target is ErrSystemPaused.
func (e *PausedError) Is(target error) bool { return target == ErrSystemPaused }

// StorageError wraps an underlying durable store failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error.
func (e *StorageError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Kind returns the sentinel kind an error belongs to, or nil if it is not a
// coordination error.
func Kind(err error) error {
	for _, kind := range []error{
		ErrNotFound, ErrIllegalTransition, ErrAlreadyClaimed, ErrSystemPaused,
		ErrValidationFailed, ErrConflict, ErrStorage, ErrDuplicateCommand, ErrUnknownCommand,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
