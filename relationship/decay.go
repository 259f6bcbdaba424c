package relationship

import (
	"math"
	"time"
)

// DefaultInactivityWindow is the idle period after which decay begins.
const DefaultInactivityWindow = 7 * 24 * time.Hour

const (
	trustDecayPerWindow = 0.01
	maxTrustDecay       = 0.1
	countDampPerWindow  = 0.1
	maxCountDamp        = 0.3
)

// Decay steps a long-idle relationship back toward STRANGER. Each full window
// of inactivity removes a little trust and damps the interaction count, both
// capped per application. LastInteractionAt is left alone; the next
// Transition moves it.
func Decay(state UserState, now time.Time, window time.Duration) UserState {
	if window <= 0 {
		window = DefaultInactivityWindow
	}
	if state.LastInteractionAt.IsZero() {
		return state
	}
	elapsed := now.Sub(state.LastInteractionAt)
	if elapsed <= window {
		return state
	}
	windows := float64(elapsed / window)

	s := state.clone()
	s.TrustScore = math.Max(0, s.TrustScore-math.Min(trustDecayPerWindow*windows, maxTrustDecay))
	damp := math.Min(countDampPerWindow*windows, maxCountDamp)
	s.InteractionCount = int(math.Floor(float64(s.InteractionCount) * (1 - damp)))
	s.rederive(now, TriggerInactivity)
	return s
}
