// Package relationship tracks how well the assistant knows each user. The
// phase is always derived from trust and interaction count; every mutation
// goes through Transition or Decay, both of which are pure.
package relationship

import "math"

// Phase is the relationship stage that governs tone and memory use.
type Phase string

const (
	PhaseStranger     Phase = "STRANGER"
	PhaseAcquaintance Phase = "ACQUAINTANCE"
	PhaseFamiliar     Phase = "FAMILIAR"
	PhaseTrusted      Phase = "TRUSTED"
)

// Phases lists every phase in ascending order.
var Phases = []Phase{PhaseStranger, PhaseAcquaintance, PhaseFamiliar, PhaseTrusted}

// thresholds are the minimum effective interaction counts for each phase.
var thresholds = map[Phase]float64{
	PhaseStranger:     0,
	PhaseAcquaintance: 6,
	PhaseFamiliar:     21,
	PhaseTrusted:      51,
}

// Rank returns the position of p in Phases, or -1 for an unknown phase.
func (p Phase) Rank() int {
	for i, known := range Phases {
		if p == known {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p.Rank() >= 0 }

// Next returns the phase after p and false if p is the last one.
func (p Phase) Next() (Phase, bool) {
	r := p.Rank()
	if r < 0 || r == len(Phases)-1 {
		return "", false
	}
	return Phases[r+1], true
}

// Threshold returns the effective interaction count at which p begins.
func (p Phase) Threshold() float64 {
	return thresholds[p]
}

// Effective weights the interaction count by trust. A user with no trust
// counts half.
func Effective(trust float64, count int) float64 {
	return float64(count) * (0.5 + 0.5*clamp(trust))
}

// PhaseFor derives the phase from trust and interaction count.
func PhaseFor(trust float64, count int) Phase {
	eff := Effective(trust, count)
	phase := PhaseStranger
	for _, p := range Phases {
		if eff >= thresholds[p] {
			phase = p
		}
	}
	return phase
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
