package relationship

import "math"

// Progress describes how far a user is from the next phase.
type Progress struct {
	Current            Phase   `json:"current"`
	Next               Phase   `json:"next,omitempty"`
	Ratio              float64 `json:"ratio"`
	InteractionsToNext int     `json:"interactions_to_next"`
}

// ProgressOf reports progress toward the next phase at the current trust
// level. A TRUSTED user has Ratio 1 and no next phase.
func ProgressOf(s UserState) Progress {
	current := PhaseFor(s.TrustScore, s.InteractionCount)
	next, ok := current.Next()
	if !ok {
		return Progress{Current: current, Ratio: 1}
	}

	lo, hi := current.Threshold(), next.Threshold()
	eff := Effective(s.TrustScore, s.InteractionCount)
	ratio := (eff - lo) / (hi - lo)

	perTurn := 0.5 + 0.5*clamp(s.TrustScore)
	needed := int(math.Ceil(hi/perTurn)) - s.InteractionCount
	if needed < 1 {
		needed = 1
	}
	return Progress{
		Current:            current,
		Next:               next,
		Ratio:              clamp(ratio),
		InteractionsToNext: needed,
	}
}
