package server

import (
	"context"

	"github.com/samber/lo"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aschepis/backscratcher/counsel/api/counselv1"
	"github.com/aschepis/backscratcher/counsel/outreach"
)

// ListOutreach drains pending check-in messages.
func (s *Server) ListOutreach(ctx context.Context, req *counselv1.ListOutreachRequest) (*counselv1.ListOutreachResponse, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	if s.inbox == nil {
		return nil, status.Error(codes.FailedPrecondition, "outreach is disabled")
	}

	msgs := s.inbox.Drain(req.UserID, req.Limit)
	return &counselv1.ListOutreachResponse{
		Messages: lo.Map(msgs, func(m outreach.Message, _ int) counselv1.OutreachMessage {
			return convertOutreachMessage(m)
		}),
	}, nil
}

// convertOutreachMessage converts an outreach.Message to wire format.
func convertOutreachMessage(m outreach.Message) counselv1.OutreachMessage {
	return counselv1.OutreachMessage{
		ID:        m.ID,
		UserID:    m.UserID,
		Trigger:   string(m.Trigger),
		Priority:  m.Priority,
		Text:      m.Text,
		Phase:     string(m.Phase),
		CreatedAt: m.CreatedAt,
	}
}
