// Package storage defines the persistence boundary of the counseling
// pipeline. Concrete engines live in subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/relationship"
	"github.com/aschepis/backscratcher/counsel/sessions"
)

// ErrNotFound is returned by LoadUser for a user with no stored state.
var ErrNotFound = errors.New("not found")

// Store persists user state, episodes, and sessions. Implementations must be
// safe for concurrent use; per-user ordering is the caller's job.
type Store interface {
	episode.Store
	sessions.Store

	LoadUser(ctx context.Context, userID string) (relationship.UserState, error)
	SaveUser(ctx context.Context, state relationship.UserState) error
	// DeleteAll erases every record for userID.
	DeleteAll(ctx context.Context, userID string) error
	ListUserIDs(ctx context.Context) ([]string, error)
	Close() error
}
