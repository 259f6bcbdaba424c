package server

import (
	"context"

	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/counsel/api/counselv1"
	"github.com/aschepis/backscratcher/counsel/emotion"
	"github.com/aschepis/backscratcher/counsel/relationship"
)

// Relationship returns a user's relationship summary.
func (s *Server) Relationship(ctx context.Context, req *counselv1.RelationshipRequest) (*counselv1.RelationshipResponse, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	view, err := s.counselor.Relationship(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err, "failed to load relationship")
	}

	st := view.State
	return &counselv1.RelationshipResponse{
		UserID:             st.UserID,
		Phase:              string(st.Phase),
		TrustScore:         st.TrustScore,
		InteractionCount:   st.InteractionCount,
		CreatedAt:          st.CreatedAt,
		LastInteractionAt:  st.LastInteractionAt,
		NextPhase:          string(view.Progress.Next),
		ProgressRatio:      view.Progress.Ratio,
		InteractionsToNext: view.Progress.InteractionsToNext,
		Trend:              string(view.Trend),
		EmotionCounts: lo.MapKeys(st.EmotionCounts, func(_ int, e emotion.Emotion) string {
			return string(e)
		}),
		EpisodeCount: view.EpisodeCount,
		PhaseHistory: lo.Map(st.PhaseHistory, func(t relationship.PhaseTransition, _ int) counselv1.PhaseChange {
			return counselv1.PhaseChange{From: string(t.From), To: string(t.To), At: t.At, Trigger: t.Trigger}
		}),
		OpennessScore: st.OpennessScore,
		RapportScore:  st.RapportScore,
		Tone:          string(st.Profile.Tone),
		Depth:         string(st.Profile.Depth),
		TopTopics: lo.Map(st.Profile.TopTopics(5), func(a relationship.TopicAffinity, _ int) string {
			return a.Topic
		}),
		ProfileConfidence: st.Profile.Confidence,
	}, nil
}

// EraseUser deletes every stored record of a user, including pending
// outreach and rate-limit state.
func (s *Server) EraseUser(ctx context.Context, req *counselv1.EraseUserRequest) (*counselv1.EraseUserResponse, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	if err := s.counselor.EraseUser(ctx, req.UserID); err != nil {
		return nil, toStatus(err, "failed to erase user")
	}
	if s.inbox != nil {
		s.inbox.Forget(req.UserID)
	}
	s.limiter.forget(req.UserID)

	s.logger.Info().Str("user_id", req.UserID).Msg("User erased")
	return &counselv1.EraseUserResponse{Erased: true}, nil
}
