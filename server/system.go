package server

import (
	"context"

	"github.com/aschepis/backscratcher/counsel/api/counselv1"
)

// Status returns daemon status and version information.
func (s *Server) Status(ctx context.Context, req *counselv1.StatusRequest) (*counselv1.StatusResponse, error) {
	pending := 0
	if s.inbox != nil {
		pending = s.inbox.Len()
	}
	return &counselv1.StatusResponse{
		Version:         Version,
		Status:          "running",
		StartedAt:       s.startedAt,
		Provider:        s.info.Provider,
		Model:           s.info.Model,
		Storage:         s.info.Storage,
		OutreachEnabled: s.info.OutreachEnabled,
		PendingOutreach: pending,
		SocketPath:      s.socketPath,
	}, nil
}
