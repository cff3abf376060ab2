package domain

import (
	"math"
	"time"
)

// DefaultHalfLife is the decay half-life applied when none is configured.
const DefaultHalfLife = 24 * time.Hour

// Coefficients configure decay and the boost magnitudes of discrete events.
type Coefficients struct {
	HalfLife          time.Duration `json:"half_life" cbor:"1,keyasint"`
	InitialValue      float64       `json:"initial_value" cbor:"2,keyasint"`
	ActivityBoost     float64       `json:"activity_boost" cbor:"3,keyasint"`
	EscalationBoost   float64       `json:"escalation_boost" cbor:"4,keyasint"`
	HumanCommentBoost float64       `json:"human_comment_boost" cbor:"5,keyasint"`
}

// DefaultCoefficients returns the coefficients used when nothing is configured.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		HalfLife:          DefaultHalfLife,
		InitialValue:      1.0,
		ActivityBoost:     0.1,
		EscalationBoost:   0.25,
		HumanCommentBoost: 0.3,
	}
}

// BoostFor returns the magnitude for a boost kind. Unknown kinds boost by 0.
func (c Coefficients) BoostFor(kind BoostKind) float64 {
	switch kind {
	case BoostActivity:
		return c.ActivityBoost
	case BoostEscalation:
		return c.EscalationBoost
	case BoostHumanComment:
		return c.HumanCommentBoost
	default:
		return 0
	}
}

// BoostKind is a discrete event that raises a thread's temperature.
type BoostKind string

const (
	BoostActivity     BoostKind = "activity"
	BoostEscalation   BoostKind = "escalation"
	BoostHumanComment BoostKind = "human_comment"
)

// Temperature is a decaying attention score anchored at UpdatedAt.
// The pair (Value, UpdatedAt) fully determines the value at any later time.
type Temperature struct {
	Value     float64   `json:"value" cbor:"1,keyasint"`
	UpdatedAt time.Time `json:"updated_at" cbor:"2,keyasint"`
}

// NewTemperature returns a temperature of value anchored at at.
func NewTemperature(value float64, at time.Time) Temperature {
	return Temperature{Value: clamp01(value), UpdatedAt: at}
}

// ValueAt returns the decayed value at now without re-anchoring.
// Times before the anchor return the anchored value.
func (t Temperature) ValueAt(now time.Time, halfLife time.Duration) float64 {
	elapsed := now.Sub(t.UpdatedAt)
	if elapsed <= 0 || halfLife <= 0 {
		return clamp01(t.Value)
	}
	return clamp01(t.Value * math.Exp2(-float64(elapsed)/float64(halfLife)))
}

// Decay returns the temperature re-anchored at now with decay applied.
func (t Temperature) Decay(now time.Time, halfLife time.Duration) Temperature {
	if now.Before(t.UpdatedAt) {
		return t
	}
	return Temperature{Value: t.ValueAt(now, halfLife), UpdatedAt: now}
}

// Boost re-anchors at now and adds amount, clamping to [0,1].
func (t Temperature) Boost(amount float64, now time.Time, halfLife time.Duration) Temperature {
	d := t.Decay(now, halfLife)
	d.Value = clamp01(d.Value + amount)
	return d
}

// Max returns the hotter of t and other, both decayed to now.
func (t Temperature) Max(other Temperature, now time.Time, halfLife time.Duration) Temperature {
	a := t.Decay(now, halfLife)
	b := other.Decay(now, halfLife)
	if b.Value > a.Value {
		a.Value = b.Value
	}
	return a
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
