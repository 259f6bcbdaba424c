// Package storagetest holds the behavior every storage.Store must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/counsel/emotion"
	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/relationship"
	"github.com/aschepis/backscratcher/counsel/sessions"
	"github.com/aschepis/backscratcher/counsel/storage"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Run exercises a Store. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("missing user", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadUser(context.Background(), "nobody")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("LoadUser error = %v, want ErrNotFound", err)
		}
	})

	t.Run("user round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		st := relationship.New("u1", epoch)
		st = relationship.Transition(st, relationship.Signal{
			At: epoch.Add(time.Minute), Primary: emotion.Sadness, Intensity: 0.8,
			Disclosure: true, MessageRunes: 60, Text: "仕事が辛い", Topics: []string{"仕事・キャリア"},
		})
		if err := s.SaveUser(ctx, st); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
		st = relationship.Transition(st, relationship.Signal{At: epoch.Add(2 * time.Minute), Primary: emotion.Hope})
		if err := s.SaveUser(ctx, st); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}

		got, err := s.LoadUser(ctx, "u1")
		if err != nil {
			t.Fatalf("LoadUser: %v", err)
		}
		if got.InteractionCount != 2 || got.TrustScore != st.TrustScore || got.Phase != st.Phase {
			t.Errorf("loaded %+v, want %+v", got, st)
		}
		if !got.LastInteractionAt.Equal(st.LastInteractionAt) || !got.CreatedAt.Equal(epoch) {
			t.Errorf("timestamps = %v / %v", got.CreatedAt, got.LastInteractionAt)
		}
		if len(got.RecentEmotions) != 2 || got.RecentEmotions[1] != emotion.Hope {
			t.Errorf("RecentEmotions = %v", got.RecentEmotions)
		}
		if got.EmotionCounts[emotion.Sadness] != 1 {
			t.Errorf("EmotionCounts = %v", got.EmotionCounts)
		}
		if got.OpennessScore != st.OpennessScore || got.RapportScore != st.RapportScore || got.OpennessScore == 0 {
			t.Errorf("openness/rapport = %v/%v, want %v/%v", got.OpennessScore, got.RapportScore, st.OpennessScore, st.RapportScore)
		}
		if got.Profile.Tone != st.Profile.Tone || got.Profile.LikesEmpathy != st.Profile.LikesEmpathy {
			t.Errorf("Profile = %+v, want %+v", got.Profile, st.Profile)
		}
		if a := got.Profile.Topics["仕事・キャリア"]; a.Mentions != 1 || !a.LastMentioned.Equal(epoch.Add(time.Minute)) {
			t.Errorf("topic affinity = %+v", a)
		}
	})

	t.Run("episodes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i, id := range []string{"a", "b", "c"} {
			ep := episode.Episode{
				ID:           id,
				UserID:       "u1",
				CreatedAt:    epoch.Add(time.Duration(i) * time.Hour),
				Summary:      "summary " + id,
				Significance: 0.5,
				EmotionTag:   emotion.Anxiety,
				Kind:         episode.KindGeneral,
				Topic:        "career",
			}
			if err := s.SaveEpisode(ctx, ep); err != nil {
				t.Fatalf("SaveEpisode(%s): %v", id, err)
			}
		}
		if err := s.DeleteEpisode(ctx, "u1", "b"); err != nil {
			t.Fatalf("DeleteEpisode: %v", err)
		}

		eps, err := s.LoadEpisodes(ctx, "u1")
		if err != nil {
			t.Fatalf("LoadEpisodes: %v", err)
		}
		if len(eps) != 2 || eps[0].ID != "a" || eps[1].ID != "c" {
			t.Fatalf("episodes = %+v", eps)
		}
		if eps[1].Topic != "career" || eps[1].EmotionTag != emotion.Anxiety || !eps[1].CreatedAt.Equal(epoch.Add(2*time.Hour)) {
			t.Errorf("episode fields lost: %+v", eps[1])
		}

		other, err := s.LoadEpisodes(ctx, "u2")
		if err != nil {
			t.Fatalf("LoadEpisodes: %v", err)
		}
		if len(other) != 0 {
			t.Errorf("episodes leaked across users")
		}
	})

	t.Run("sessions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.LatestSession(ctx, "u1"); !errors.Is(err, sessions.ErrNoSession) {
			t.Fatalf("LatestSession error = %v, want ErrNoSession", err)
		}
		first := sessions.Session{ID: "s1", UserID: "u1", StartedAt: epoch, LastSeenAt: epoch, TurnCount: 1}
		second := sessions.Session{ID: "s2", UserID: "u1", StartedAt: epoch.Add(time.Hour), LastSeenAt: epoch.Add(time.Hour), TurnCount: 3}
		for _, sess := range []sessions.Session{first, second} {
			if err := s.SaveSession(ctx, sess); err != nil {
				t.Fatalf("SaveSession: %v", err)
			}
		}
		got, err := s.LatestSession(ctx, "u1")
		if err != nil {
			t.Fatalf("LatestSession: %v", err)
		}
		if got.ID != "s2" || got.TurnCount != 3 {
			t.Errorf("LatestSession = %+v", got)
		}
	})

	t.Run("delete all", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, id := range []string{"u1", "u2"} {
			if err := s.SaveUser(ctx, relationship.New(id, epoch)); err != nil {
				t.Fatalf("SaveUser: %v", err)
			}
			if err := s.SaveEpisode(ctx, episode.Episode{ID: "ep-" + id, UserID: id, CreatedAt: epoch, Kind: episode.KindGeneral}); err != nil {
				t.Fatalf("SaveEpisode: %v", err)
			}
		}
		if err := s.SaveSession(ctx, sessions.Session{ID: "s1", UserID: "u1", StartedAt: epoch, LastSeenAt: epoch}); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}

		if err := s.DeleteAll(ctx, "u1"); err != nil {
			t.Fatalf("DeleteAll: %v", err)
		}
		if _, err := s.LoadUser(ctx, "u1"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("user survived erasure: %v", err)
		}
		if eps, _ := s.LoadEpisodes(ctx, "u1"); len(eps) != 0 {
			t.Errorf("episodes survived erasure")
		}
		if _, err := s.LatestSession(ctx, "u1"); !errors.Is(err, sessions.ErrNoSession) {
			t.Errorf("session survived erasure")
		}

		ids, err := s.ListUserIDs(ctx)
		if err != nil {
			t.Fatalf("ListUserIDs: %v", err)
		}
		if len(ids) != 1 || ids[0] != "u2" {
			t.Errorf("ListUserIDs = %v, want [u2]", ids)
		}
	})
}
