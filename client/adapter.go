package client

import (
	"context"
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/counsel/api/counselv1"
)

// ChatSession sends turns for one user and carries the session ID the
// daemon issues from one turn to the next.
type ChatSession struct {
	client      *Client
	userID      string
	locale      string
	sessionID   string
	chatTimeout time.Duration
}

// NewChatSession creates a session for userID.
// chatTimeout is the timeout duration for each turn (default: 60s if 0).
func NewChatSession(client *Client, userID, locale string, chatTimeout time.Duration) *ChatSession {
	if chatTimeout == 0 {
		chatTimeout = 60 * time.Second
	}
	return &ChatSession{
		client:      client,
		userID:      userID,
		locale:      locale,
		chatTimeout: chatTimeout,
	}
}

// SessionID returns the current session ID, empty before the first turn.
func (s *ChatSession) SessionID() string { return s.sessionID }

// Send submits message and returns the reply.
func (s *ChatSession) Send(ctx context.Context, message string) (*counselv1.TurnResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.chatTimeout)
	defer cancel()

	resp, err := s.client.Counsel.Turn(ctx, &counselv1.TurnRequest{
		UserID:    s.userID,
		Message:   message,
		SessionID: s.sessionID,
		Locale:    s.locale,
	})
	if err != nil {
		return nil, fmt.Errorf("turn failed: %w", err)
	}
	s.sessionID = resp.SessionID
	return resp, nil
}

// Erase deletes every record of the session's user and resets the session.
func (s *ChatSession) Erase(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.chatTimeout)
	defer cancel()

	if _, err := s.client.Counsel.EraseUser(ctx, &counselv1.EraseUserRequest{UserID: s.userID}); err != nil {
		return fmt.Errorf("erase failed: %w", err)
	}
	s.sessionID = ""
	return nil
}

// Relationship returns the relationship summary of the session's user.
func (s *ChatSession) Relationship(ctx context.Context) (*counselv1.RelationshipResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.chatTimeout)
	defer cancel()

	resp, err := s.client.Counsel.Relationship(ctx, &counselv1.RelationshipRequest{UserID: s.userID})
	if err != nil {
		return nil, fmt.Errorf("relationship failed: %w", err)
	}
	return resp, nil
}

// Outreach drains pending check-ins for the session's user.
func (s *ChatSession) Outreach(ctx context.Context) ([]counselv1.OutreachMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.chatTimeout)
	defer cancel()

	resp, err := s.client.Counsel.ListOutreach(ctx, &counselv1.ListOutreachRequest{UserID: s.userID})
	if err != nil {
		return nil, fmt.Errorf("list outreach failed: %w", err)
	}
	return resp.Messages, nil
}
