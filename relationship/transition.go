package relationship

import (
	"math"
	"time"

	"github.com/aschepis/backscratcher/counsel/emotion"
)

// Trust increments applied by Transition.
const (
	BaseIncrement       = 0.005
	IntensityIncrement  = 0.01
	DisclosureIncrement = 0.02
	LengthIncrement     = 0.005

	intensityThreshold = 0.7
	lengthThreshold    = 200
)

// Signal is what one completed turn contributes to the relationship.
type Signal struct {
	At           time.Time
	Intensity    float64
	IsCrisis     bool
	Disclosure   bool
	MessageRunes int
	Primary      emotion.Emotion
	// Text is the masked message. It feeds the learned profile and openness.
	Text string
	// Topics are classified topics of the message.
	Topics []string
}

// TrustIncrement returns how much trust a turn adds. It is never negative.
func TrustIncrement(sig Signal) float64 {
	inc := BaseIncrement
	if !sig.IsCrisis {
		if sig.Intensity > intensityThreshold {
			inc += IntensityIncrement
		}
		if sig.Disclosure {
			inc += DisclosureIncrement
		}
	}
	if sig.MessageRunes > lengthThreshold {
		inc += LengthIncrement
	}
	return inc
}

// Transition applies one turn to state and returns the new state. The input
// is not modified.
func Transition(state UserState, sig Signal) UserState {
	s := state.clone()
	if s.Phase == "" {
		s.Phase = PhaseFor(s.TrustScore, s.InteractionCount)
	}

	s.InteractionCount++
	if sig.At.After(s.LastInteractionAt) || s.LastInteractionAt.IsZero() {
		s.LastInteractionAt = sig.At
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = sig.At
	}
	s.TrustScore = math.Min(1, s.TrustScore+TrustIncrement(sig))

	if sig.Primary != "" {
		s.RecentEmotions = append(s.RecentEmotions, sig.Primary)
		if len(s.RecentEmotions) > MaxRecentEmotions {
			s.RecentEmotions = s.RecentEmotions[len(s.RecentEmotions)-MaxRecentEmotions:]
		}
		if s.EmotionCounts == nil {
			s.EmotionCounts = make(map[emotion.Emotion]int)
		}
		s.EmotionCounts[sig.Primary]++
	}

	s.OpennessScore = OpennessAfter(s.OpennessScore, sig)
	s.RapportScore = RapportAfter(s.RapportScore, s.TrustScore, s.OpennessScore, s.InteractionCount)
	s.Profile = UpdateProfile(s.Profile, sig, s.EmotionCounts)

	s.rederive(sig.At, TriggerInteraction)
	return s
}

var emotionalWords = []string{"嬉しい", "悲しい", "辛い", "不安", "怒り", "寂しい", "嫌", "好き", "怖い", "心配"}

// OpennessAfter returns how open the user is after one turn. Disclosure and
// long or emotional messages raise it; a short turn without disclosure lowers
// it slightly.
func OpennessAfter(current float64, sig Signal) float64 {
	score := current
	if sig.Disclosure {
		score += 0.05
	}
	switch {
	case sig.MessageRunes > 300:
		score += 0.02
	case sig.MessageRunes > 150:
		score += 0.01
	}
	if containsAny(sig.Text, emotionalWords) {
		score += 0.01
	}
	if !sig.Disclosure && sig.MessageRunes < 50 {
		score -= 0.005
	}
	return clamp(score)
}

// RapportAfter moves rapport 30% of the way toward a target built from trust,
// openness and up to 0.2 for the interaction count.
func RapportAfter(current, trust, openness float64, interactions int) float64 {
	target := trust*0.4 + openness*0.4 + math.Min(float64(interactions)/100, 0.2)
	return clamp(current*0.7 + target*0.3)
}
