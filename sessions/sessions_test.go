package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeStore struct {
	latest map[string]Session
}

func (f *fakeStore) LatestSession(ctx context.Context, userID string) (Session, error) {
	s, ok := f.latest[userID]
	if !ok {
		return Session{}, ErrNoSession
	}
	return s, nil
}

func (f *fakeStore) SaveSession(ctx context.Context, s Session) error {
	f.latest[s.UserID] = s
	return nil
}

func TestTracker_Resolve(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{latest: map[string]Session{
		"u1": {ID: "s-active", UserID: "u1", StartedAt: now.Add(-time.Hour), LastSeenAt: now.Add(-10 * time.Minute), TurnCount: 4},
		"u2": {ID: "s-stale", UserID: "u2", StartedAt: now.Add(-2 * time.Hour), LastSeenAt: now.Add(-31 * time.Minute)},
	}}
	tr := NewTracker(store, 0, zerolog.Nop())
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	tests := []struct {
		name      string
		userID    string
		requested string
		continued string
	}{
		{"active session continues", "u1", "s-active", "s-active"},
		{"no session requested", "u1", "", ""},
		{"unknown id", "u1", "s-other", ""},
		{"idle session expires", "u2", "s-stale", ""},
		{"first turn", "u3", "anything", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.Resolve(ctx, tt.userID, tt.requested)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if tt.continued != "" {
				if got.ID != tt.continued {
					t.Errorf("ID = %s, want %s", got.ID, tt.continued)
				}
				return
			}
			if got.ID == "" || got.ID == tt.requested {
				t.Errorf("expected a fresh session ID, got %q", got.ID)
			}
			if got.TurnCount != 0 || !got.StartedAt.Equal(now) {
				t.Errorf("fresh session = %+v", got)
			}
		})
	}
}

func TestTracker_Touch(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{latest: map[string]Session{}}
	tr := NewTracker(store, time.Minute, zerolog.Nop())
	tr.now = func() time.Time { return now }

	s, err := tr.Resolve(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	s, err = tr.Touch(context.Background(), s)
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if s.TurnCount != 1 || store.latest["u1"].ID != s.ID {
		t.Errorf("session not persisted: %+v", store.latest["u1"])
	}

	again, err := tr.Resolve(context.Background(), "u1", s.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if again.ID != s.ID || again.TurnCount != 1 {
		t.Errorf("expected to continue %s, got %+v", s.ID, again)
	}
}

func TestTracker_TouchFromStaleSnapshotCountsEveryTurn(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{latest: map[string]Session{
		"u1": {ID: "s-1", UserID: "u1", StartedAt: now.Add(-time.Minute), LastSeenAt: now.Add(-time.Minute), TurnCount: 3},
	}}
	tr := NewTracker(store, 0, zerolog.Nop())
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	// Two turns resolved the same snapshot before either was touched.
	first, err := tr.Resolve(ctx, "u1", "s-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := tr.Resolve(ctx, "u1", "s-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if _, err := tr.Touch(ctx, first); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	got, err := tr.Touch(ctx, second)
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if got.TurnCount != 5 || store.latest["u1"].TurnCount != 5 {
		t.Errorf("TurnCount = %d (stored %d), want 5", got.TurnCount, store.latest["u1"].TurnCount)
	}
}

func TestTracker_TouchNewSessionIgnoresOlderOne(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{latest: map[string]Session{
		"u1": {ID: "s-old", UserID: "u1", LastSeenAt: now.Add(-time.Hour), TurnCount: 9},
	}}
	tr := NewTracker(store, 0, zerolog.Nop())
	tr.now = func() time.Time { return now }

	s, err := tr.Resolve(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	s, err = tr.Touch(context.Background(), s)
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if s.TurnCount != 1 {
		t.Errorf("TurnCount = %d, want 1", s.TurnCount)
	}
}
