// Package flags provides feature flag support for behaviour that operators may
// switch per deployment. Flags are read-only after initialization; unknown
// flags are disabled and known flags fall back to their defaults.
package flags

import (
	"maps"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/log"
)

// Flag name constants for type-safe flag access.
const (
	// FlagKillFromAnyNonTerminal lets KillThread and MergeThreads terminate a
	// thread from every non-terminal state. When disabled only the lifecycle
	// edges Blocked -> Killed and Review -> Killed are allowed.
	FlagKillFromAnyNonTerminal = "kill-from-any-nonterminal"

	// FlagVerifyOnOpen runs a full replay verification every time the CLI
	// opens the database.
	FlagVerifyOnOpen = "verify-on-open"
)

// Defaults returns the value of every known flag when configuration is silent.
func Defaults() map[string]bool {
	return map[string]bool{
		FlagKillFromAnyNonTerminal: true,
		FlagVerifyOnOpen:           false,
	}
}

// Registry holds feature flag state loaded from configuration.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map layered over Defaults.
func New(flags map[string]bool) *Registry {
	merged := Defaults()
	maps.Copy(merged, flags)
	r := &Registry{flags: merged}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(merged), "flags", r.All())
	return r
}

// Enabled returns true if the named flag is enabled.
// Unknown flags and a nil registry report false.
func (r *Registry) Enabled(name string) bool {
	if r == nil || r.flags == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "Unknown flag accessed", "flag", name, "result", false)
		return false
	}
	return value
}

// KillPolicy maps FlagKillFromAnyNonTerminal to the state machine policy.
// A nil registry uses the default policy.
func (r *Registry) KillPolicy() domain.KillPolicy {
	if r == nil {
		return domain.DefaultStateMachine.Kill
	}
	if r.Enabled(FlagKillFromAnyNonTerminal) {
		return domain.KillFromAnyNonTerminal
	}
	return domain.KillFromGraphOnly
}

// All returns a copy of all flags (for debugging/logging).
func (r *Registry) All() map[string]bool {
	if r == nil || r.flags == nil {
		return make(map[string]bool)
	}
	return maps.Clone(r.flags)
}
