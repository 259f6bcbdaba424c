// Package memstore is an in-process storage.Store for tests and for running
// the daemon without a database.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/counsel/emotion"
	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/relationship"
	"github.com/aschepis/backscratcher/counsel/sessions"
	"github.com/aschepis/backscratcher/counsel/storage"
)

// Store keeps everything in maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	users    map[string]relationship.UserState
	episodes map[string][]episode.Episode
	sessions map[string]sessions.Session
}

var _ storage.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[string]relationship.UserState),
		episodes: make(map[string][]episode.Episode),
		sessions: make(map[string]sessions.Session),
	}
}

func (s *Store) LoadUser(ctx context.Context, userID string) (relationship.UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.users[userID]
	if !ok {
		return relationship.UserState{}, storage.ErrNotFound
	}
	return copyState(st), nil
}

func (s *Store) SaveUser(ctx context.Context, state relationship.UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[state.UserID] = copyState(state)
	return nil
}

func (s *Store) LoadEpisodes(ctx context.Context, userID string) ([]episode.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]episode.Episode(nil), s.episodes[userID]...), nil
}

func (s *Store) SaveEpisode(ctx context.Context, ep episode.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes[ep.UserID] = append(s.episodes[ep.UserID], ep)
	return nil
}

func (s *Store) DeleteEpisode(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes[userID] = lo.Reject(s.episodes[userID], func(ep episode.Episode, _ int) bool {
		return ep.ID == id
	})
	return nil
}

func (s *Store) LatestSession(ctx context.Context, userID string) (sessions.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return sessions.Session{}, sessions.ErrNoSession
	}
	return sess, nil
}

func (s *Store) SaveSession(ctx context.Context, sess sessions.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[sess.UserID]; ok && cur.LastSeenAt.After(sess.LastSeenAt) {
		return nil
	}
	s.sessions[sess.UserID] = sess
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	delete(s.episodes, userID)
	delete(s.sessions, userID)
	return nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := lo.Keys(s.users)
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Close() error { return nil }

func copyState(st relationship.UserState) relationship.UserState {
	st.RecentEmotions = append([]emotion.Emotion(nil), st.RecentEmotions...)
	st.PhaseHistory = append([]relationship.PhaseTransition(nil), st.PhaseHistory...)
	if st.EmotionCounts != nil {
		st.EmotionCounts = lo.Assign(st.EmotionCounts)
	}
	if st.Profile.Topics != nil {
		st.Profile.Topics = lo.Assign(st.Profile.Topics)
	}
	return st
}
