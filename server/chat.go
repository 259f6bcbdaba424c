package server

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aschepis/backscratcher/counsel/api/counselv1"
	"github.com/aschepis/backscratcher/counsel/counsel"
	"github.com/aschepis/backscratcher/counsel/metrics"
)

// Turn runs one counseling turn.
func (s *Server) Turn(ctx context.Context, req *counselv1.TurnRequest) (*counselv1.TurnResponse, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	if !s.limiter.allow(req.UserID) {
		metrics.IncRateLimited("Turn")
		return nil, status.Error(codes.ResourceExhausted, "too many requests, please slow down")
	}

	s.logger.Info().
		Str("user_id", req.UserID).
		Str("session_id", req.SessionID).
		Int("message_len", len(req.Message)).
		Msg("Turn request received")

	resp, err := s.counselor.Turn(ctx, counsel.Request{
		UserID:    req.UserID,
		Message:   req.Message,
		SessionID: req.SessionID,
		Locale:    req.Locale,
	})
	if err != nil {
		return nil, toStatus(err, "turn failed")
	}

	return &counselv1.TurnResponse{
		Text:      resp.Text,
		Emotion:   string(resp.Emotion.Primary),
		IsCrisis:  resp.IsCrisis,
		SessionID: resp.SessionID,
		Advice:    string(resp.Advice),
		FollowUps: resp.FollowUps,
		Phase:     string(resp.Phase),
		Warnings:  resp.Warnings,
	}, nil
}
