package events

import "slices"

// Filter selects events for a subscription. Zero fields match everything.
type Filter struct {
	EntityType EntityType
	EntityID   string
	Kinds      []Kind
	// AfterSequence skips events at or below this sequence.
	AfterSequence uint64
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e Event) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, e.Kind()) {
		return false
	}
	return e.Sequence > f.AfterSequence
}
