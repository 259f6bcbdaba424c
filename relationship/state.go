package relationship

import (
	"time"

	"github.com/aschepis/backscratcher/counsel/emotion"
)

const (
	// MaxRecentEmotions bounds UserState.RecentEmotions.
	MaxRecentEmotions = 10
	// MaxPhaseHistory bounds UserState.PhaseHistory.
	MaxPhaseHistory = 20
)

// Transition triggers recorded in PhaseHistory.
const (
	TriggerInteraction = "interaction"
	TriggerInactivity  = "inactivity"
)

// UserState is the persisted relationship for one user.
type UserState struct {
	UserID            string                  `json:"user_id"`
	Phase             Phase                   `json:"phase"`
	TrustScore        float64                 `json:"trust_score"`
	CreatedAt         time.Time               `json:"created_at"`
	LastInteractionAt time.Time               `json:"last_interaction_at"`
	InteractionCount  int                     `json:"interaction_count"`
	RecentEmotions    []emotion.Emotion       `json:"recent_emotions,omitempty"`
	EmotionCounts     map[emotion.Emotion]int `json:"emotion_counts,omitempty"`
	PhaseHistory      []PhaseTransition       `json:"phase_history,omitempty"`
	OpennessScore     float64                 `json:"openness_score"`
	RapportScore      float64                 `json:"rapport_score"`
	Profile           Profile                 `json:"profile"`
}

// PhaseTransition records a phase change.
type PhaseTransition struct {
	From    Phase     `json:"from"`
	To      Phase     `json:"to"`
	At      time.Time `json:"at"`
	Trigger string    `json:"trigger"`
}

// New returns the initial state for a user seen for the first time.
func New(userID string, now time.Time) UserState {
	return UserState{
		UserID:            userID,
		Phase:             PhaseStranger,
		CreatedAt:         now,
		LastInteractionAt: now,
		Profile:           NewProfile(),
	}
}

// IsNew reports whether the user has never completed a turn.
func (s UserState) IsNew() bool {
	return s.InteractionCount == 0
}

// Normalize repairs a state read from storage so that its invariants hold:
// scores are clamped, phase is rederived and a missing profile gets defaults.
func (s UserState) Normalize() UserState {
	s.TrustScore = clamp(s.TrustScore)
	s.OpennessScore = clamp(s.OpennessScore)
	s.RapportScore = clamp(s.RapportScore)
	s.Profile = s.Profile.normalize()
	if s.InteractionCount < 0 {
		s.InteractionCount = 0
	}
	s.Phase = PhaseFor(s.TrustScore, s.InteractionCount)
	if len(s.RecentEmotions) > MaxRecentEmotions {
		s.RecentEmotions = s.RecentEmotions[len(s.RecentEmotions)-MaxRecentEmotions:]
	}
	return s
}

// clone copies the slice and map fields so that transitions never alias the
// caller's state.
func (s UserState) clone() UserState {
	out := s
	out.RecentEmotions = append([]emotion.Emotion(nil), s.RecentEmotions...)
	out.PhaseHistory = append([]PhaseTransition(nil), s.PhaseHistory...)
	if s.EmotionCounts != nil {
		out.EmotionCounts = make(map[emotion.Emotion]int, len(s.EmotionCounts))
		for k, v := range s.EmotionCounts {
			out.EmotionCounts[k] = v
		}
	}
	out.Profile = s.Profile.clone()
	return out
}

// rederive recomputes the phase and records a transition if it changed.
func (s *UserState) rederive(at time.Time, trigger string) {
	next := PhaseFor(s.TrustScore, s.InteractionCount)
	if next == s.Phase {
		return
	}
	s.PhaseHistory = append(s.PhaseHistory, PhaseTransition{
		From:    s.Phase,
		To:      next,
		At:      at,
		Trigger: trigger,
	})
	if len(s.PhaseHistory) > MaxPhaseHistory {
		s.PhaseHistory = s.PhaseHistory[len(s.PhaseHistory)-MaxPhaseHistory:]
	}
	s.Phase = next
}

// SentimentTrend classifies the user's recent emotions.
func SentimentTrend(s UserState) emotion.Trend {
	return emotion.TrendOf(s.RecentEmotions)
}
