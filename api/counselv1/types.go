// Package counselv1 is the wire contract of the counsel.v1.Counsel gRPC
// service. Messages are plain structs carried by a JSON codec.
package counselv1

import "time"

// TurnRequest submits one user message.
type TurnRequest struct {
	UserID    string `json:"user_id" validate:"required,max=128"`
	Message   string `json:"message" validate:"required,max=10000"`
	SessionID string `json:"session_id,omitempty" validate:"max=128"`
	Locale    string `json:"locale,omitempty" validate:"omitempty,max=16"`
}

// TurnResponse is the assistant's reply.
type TurnResponse struct {
	Text      string   `json:"text"`
	Emotion   string   `json:"emotion"`
	IsCrisis  bool     `json:"is_crisis"`
	SessionID string   `json:"session_id"`
	Advice    string   `json:"advice"`
	FollowUps []string `json:"follow_ups,omitempty"`
	Phase     string   `json:"phase"`
	Warnings  []string `json:"warnings,omitempty"`
}

// EraseUserRequest deletes every record of a user.
type EraseUserRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

// EraseUserResponse confirms an erasure.
type EraseUserResponse struct {
	Erased bool `json:"erased"`
}

// RelationshipRequest asks for a user's relationship summary.
type RelationshipRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

// PhaseChange is one recorded phase transition.
type PhaseChange struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	At      time.Time `json:"at"`
	Trigger string    `json:"trigger"`
}

// RelationshipResponse summarizes a user's relationship.
type RelationshipResponse struct {
	UserID             string         `json:"user_id"`
	Phase              string         `json:"phase"`
	TrustScore         float64        `json:"trust_score"`
	InteractionCount   int            `json:"interaction_count"`
	CreatedAt          time.Time      `json:"created_at"`
	LastInteractionAt  time.Time      `json:"last_interaction_at"`
	NextPhase          string         `json:"next_phase,omitempty"`
	ProgressRatio      float64        `json:"progress_ratio"`
	InteractionsToNext int            `json:"interactions_to_next"`
	Trend              string         `json:"trend"`
	EmotionCounts      map[string]int `json:"emotion_counts,omitempty"`
	EpisodeCount       int            `json:"episode_count"`
	PhaseHistory       []PhaseChange  `json:"phase_history,omitempty"`
	OpennessScore      float64        `json:"openness_score"`
	RapportScore       float64        `json:"rapport_score"`
	Tone               string         `json:"tone"`
	Depth              string         `json:"depth"`
	TopTopics          []string       `json:"top_topics,omitempty"`
	ProfileConfidence  float64        `json:"profile_confidence"`
}

// ListOutreachRequest drains pending check-ins. An empty UserID drains all
// users.
type ListOutreachRequest struct {
	UserID string `json:"user_id,omitempty" validate:"max=128"`
	Limit  int    `json:"limit,omitempty" validate:"gte=0,lte=1000"`
}

// OutreachMessage is a queued check-in.
type OutreachMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Trigger   string    `json:"trigger"`
	Priority  int       `json:"priority"`
	Text      string    `json:"text"`
	Phase     string    `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
}

// ListOutreachResponse carries drained check-ins, highest priority first.
type ListOutreachResponse struct {
	Messages []OutreachMessage `json:"messages"`
}

// StatusRequest asks for daemon status.
type StatusRequest struct{}

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Version         string    `json:"version"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	Storage         string    `json:"storage"`
	OutreachEnabled bool      `json:"outreach_enabled"`
	PendingOutreach int       `json:"pending_outreach"`
	SocketPath      string    `json:"socket_path,omitempty"`
}
