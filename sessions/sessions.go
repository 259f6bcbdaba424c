// Package sessions groups a user's turns into sessions separated by idle
// gaps. Only identifiers, timestamps, and turn counts are kept.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultIdleWindow is how long a session may sit idle before a new one is
// issued.
const DefaultIdleWindow = 30 * time.Minute

// ErrNoSession is returned by a Store when the user has no session yet.
var ErrNoSession = errors.New("no session")

// Session is one run of turns.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	StartedAt  time.Time `json:"started_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	TurnCount  int       `json:"turn_count"`
}

// Store persists the most recent session per user.
type Store interface {
	LatestSession(ctx context.Context, userID string) (Session, error)
	SaveSession(ctx context.Context, s Session) error
}

// Tracker resolves session IDs for incoming turns.
type Tracker struct {
	store  Store
	idle   time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker. idle <= 0 uses DefaultIdleWindow.
func NewTracker(store Store, idle time.Duration, logger zerolog.Logger) *Tracker {
	if idle <= 0 {
		idle = DefaultIdleWindow
	}
	return &Tracker{
		store:  store,
		idle:   idle,
		logger: logger.With().Str("component", "sessionTracker").Logger(),
		now:    time.Now,
	}
}

// Resolve returns the session a turn belongs to. The requested session is
// continued when it is the user's latest and has not been idle too long;
// otherwise a new session is issued. Nothing is persisted until Touch.
func (t *Tracker) Resolve(ctx context.Context, userID, requested string) (Session, error) {
	now := t.now()
	if requested != "" {
		latest, err := t.store.LatestSession(ctx, userID)
		switch {
		case err == nil:
			if latest.ID == requested && now.Sub(latest.LastSeenAt) <= t.idle {
				return latest, nil
			}
		case errors.Is(err, ErrNoSession):
		default:
			return Session{}, fmt.Errorf("load session: %w", err)
		}
	}

	s := Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		StartedAt:  now,
		LastSeenAt: now,
	}
	t.logger.Debug().
		Str("method", "Resolve").
		Str("user_id", userID).
		Str("session_id", s.ID).
		Bool("requested", requested != "").
		Msg("issued new session")
	return s, nil
}

// Touch records a completed turn in s and persists it. The turn count is
// taken from the stored copy of s when one exists, so turns resolved against
// the same snapshot all count. Callers serialize Touch per user.
func (t *Tracker) Touch(ctx context.Context, s Session) (Session, error) {
	latest, err := t.store.LatestSession(ctx, s.UserID)
	switch {
	case err == nil:
		if latest.ID == s.ID && latest.TurnCount > s.TurnCount {
			s.TurnCount = latest.TurnCount
		}
	case errors.Is(err, ErrNoSession):
	default:
		t.logger.Warn().
			Err(err).
			Str("method", "Touch").
			Str("user_id", s.UserID).
			Str("session_id", s.ID).
			Msg("failed to reload session, counting from snapshot")
	}

	s.LastSeenAt = t.now()
	s.TurnCount++
	if err := t.store.SaveSession(ctx, s); err != nil {
		return s, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}
