// Package sqlite is the SQLite implementation of storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/emotion"
	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/migrations"
	"github.com/aschepis/backscratcher/counsel/relationship"
	"github.com/aschepis/backscratcher/counsel/sessions"
	"github.com/aschepis/backscratcher/counsel/storage"
)

// Store persists counseling state in SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ storage.Store = (*Store)(nil)

// New wraps an already migrated database.
func New(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "sqliteStore").Logger()}
}

// Open opens the database at path, applies migrations, and returns a Store
// that owns the connection.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps :memory:
	// databases shared.
	db.SetMaxOpenConns(1)

	if err := migrations.RunMigrations(db, logger); err != nil {
		_ = db.Close() //nolint:errcheck // Cleanup on error
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return New(db, logger), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadUser returns the stored state for userID or storage.ErrNotFound.
func (s *Store) LoadUser(ctx context.Context, userID string) (relationship.UserState, error) {
	query := sq.Select(
		"user_id", "trust_score", "created_at", "last_interaction_at",
		"interaction_count", "recent_emotions", "emotion_counts", "phase_history",
		"openness_score", "rapport_score", "profile",
	).
		From("users").
		Where(sq.Eq{"user_id": userID})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return relationship.UserState{}, fmt.Errorf("build query: %w", err)
	}

	var (
		st                           relationship.UserState
		createdAt, lastAt            int64
		recent, counts, phaseHistory string
		profile                      string
	)
	err = s.db.QueryRowContext(ctx, queryStr, args...).Scan(
		&st.UserID, &st.TrustScore, &createdAt, &lastAt,
		&st.InteractionCount, &recent, &counts, &phaseHistory,
		&st.OpennessScore, &st.RapportScore, &profile,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return relationship.UserState{}, storage.ErrNotFound
	}
	if err != nil {
		return relationship.UserState{}, fmt.Errorf("failed to load user: %w", err)
	}

	st.CreatedAt = time.UnixMilli(createdAt).UTC()
	st.LastInteractionAt = time.UnixMilli(lastAt).UTC()
	if err := json.Unmarshal([]byte(recent), &st.RecentEmotions); err != nil {
		return relationship.UserState{}, fmt.Errorf("decode recent_emotions: %w", err)
	}
	if err := json.Unmarshal([]byte(counts), &st.EmotionCounts); err != nil {
		return relationship.UserState{}, fmt.Errorf("decode emotion_counts: %w", err)
	}
	if err := json.Unmarshal([]byte(phaseHistory), &st.PhaseHistory); err != nil {
		return relationship.UserState{}, fmt.Errorf("decode phase_history: %w", err)
	}
	if err := json.Unmarshal([]byte(profile), &st.Profile); err != nil {
		return relationship.UserState{}, fmt.Errorf("decode profile: %w", err)
	}
	return st.Normalize(), nil
}

// SaveUser upserts state.
func (s *Store) SaveUser(ctx context.Context, state relationship.UserState) error {
	recent, err := json.Marshal(nonNilEmotions(state.RecentEmotions))
	if err != nil {
		return fmt.Errorf("encode recent_emotions: %w", err)
	}
	counts, err := json.Marshal(nonNilCounts(state.EmotionCounts))
	if err != nil {
		return fmt.Errorf("encode emotion_counts: %w", err)
	}
	history, err := json.Marshal(nonNilHistory(state.PhaseHistory))
	if err != nil {
		return fmt.Errorf("encode phase_history: %w", err)
	}
	profile, err := json.Marshal(state.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	query := sq.Insert("users").
		Columns(
			"user_id", "phase", "trust_score", "created_at", "last_interaction_at",
			"interaction_count", "recent_emotions", "emotion_counts", "phase_history",
			"openness_score", "rapport_score", "profile", "updated_at",
		).
		Values(
			state.UserID, string(state.Phase), state.TrustScore,
			state.CreatedAt.UnixMilli(), state.LastInteractionAt.UnixMilli(),
			state.InteractionCount, string(recent), string(counts), string(history),
			state.OpennessScore, state.RapportScore, string(profile), time.Now().UnixMilli(),
		).
		Suffix(`ON CONFLICT(user_id) DO UPDATE SET
			phase = excluded.phase,
			trust_score = excluded.trust_score,
			last_interaction_at = excluded.last_interaction_at,
			interaction_count = excluded.interaction_count,
			recent_emotions = excluded.recent_emotions,
			emotion_counts = excluded.emotion_counts,
			phase_history = excluded.phase_history,
			openness_score = excluded.openness_score,
			rapport_score = excluded.rapport_score,
			profile = excluded.profile,
			updated_at = excluded.updated_at`)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// LoadEpisodes returns every episode of userID, oldest first.
func (s *Store) LoadEpisodes(ctx context.Context, userID string) ([]episode.Episode, error) {
	query := sq.Select("id", "user_id", "created_at", "summary", "significance", "emotion_tag", "kind", "topic").
		From("episodes").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at ASC", "id ASC")

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load episodes: %w", err)
	}
	defer rows.Close() //nolint:errcheck // No remedy for rows close errors

	var out []episode.Episode
	for rows.Next() {
		var (
			ep        episode.Episode
			createdAt int64
			tag, kind string
		)
		if err := rows.Scan(&ep.ID, &ep.UserID, &createdAt, &ep.Summary, &ep.Significance, &tag, &kind, &ep.Topic); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		ep.CreatedAt = time.UnixMilli(createdAt).UTC()
		ep.EmotionTag = emotion.Emotion(tag)
		ep.Kind = episode.Kind(kind)
		out = append(out, ep)
	}
	return out, rows.Err()
}

// SaveEpisode inserts ep. Episodes are immutable, so an existing ID is an
// error.
func (s *Store) SaveEpisode(ctx context.Context, ep episode.Episode) error {
	query := sq.Insert("episodes").
		Columns("id", "user_id", "created_at", "summary", "significance", "emotion_tag", "kind", "topic").
		Values(ep.ID, ep.UserID, ep.CreatedAt.UnixMilli(), ep.Summary, ep.Significance, string(ep.EmotionTag), string(ep.Kind), ep.Topic)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("failed to save episode: %w", err)
	}
	return nil
}

// DeleteEpisode removes one episode.
func (s *Store) DeleteEpisode(ctx context.Context, userID, id string) error {
	query := sq.Delete("episodes").Where(sq.Eq{"id": id, "user_id": userID})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("failed to delete episode: %w", err)
	}
	return nil
}

// LatestSession returns the most recently active session of userID.
func (s *Store) LatestSession(ctx context.Context, userID string) (sessions.Session, error) {
	query := sq.Select("id", "user_id", "started_at", "last_seen_at", "turn_count").
		From("sessions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("last_seen_at DESC").
		Limit(1)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return sessions.Session{}, fmt.Errorf("build query: %w", err)
	}

	var (
		sess              sessions.Session
		startedAt, seenAt int64
	)
	err = s.db.QueryRowContext(ctx, queryStr, args...).Scan(&sess.ID, &sess.UserID, &startedAt, &seenAt, &sess.TurnCount)
	if errors.Is(err, sql.ErrNoRows) {
		return sessions.Session{}, sessions.ErrNoSession
	}
	if err != nil {
		return sessions.Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	sess.StartedAt = time.UnixMilli(startedAt).UTC()
	sess.LastSeenAt = time.UnixMilli(seenAt).UTC()
	return sess, nil
}

// SaveSession upserts a session.
func (s *Store) SaveSession(ctx context.Context, sess sessions.Session) error {
	query := sq.Insert("sessions").
		Columns("id", "user_id", "started_at", "last_seen_at", "turn_count").
		Values(sess.ID, sess.UserID, sess.StartedAt.UnixMilli(), sess.LastSeenAt.UnixMilli(), sess.TurnCount).
		Suffix("ON CONFLICT(id) DO UPDATE SET last_seen_at = excluded.last_seen_at, turn_count = excluded.turn_count")

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteAll erases every row belonging to userID in one transaction.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op

	for _, table := range []string{"episodes", "sessions", "users"} {
		queryStr, args, err := sq.Delete(table).Where(sq.Eq{"user_id": userID}).ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, queryStr, args...); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit erasure: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Msg("erased user data")
	return nil
}

// ListUserIDs returns every user with stored state.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	queryStr, args, err := sq.Select("user_id").From("users").OrderBy("user_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close() //nolint:errcheck // No remedy for rows close errors

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nonNilEmotions(v []emotion.Emotion) []emotion.Emotion {
	if v == nil {
		return []emotion.Emotion{}
	}
	return v
}

func nonNilCounts(v map[emotion.Emotion]int) map[emotion.Emotion]int {
	if v == nil {
		return map[emotion.Emotion]int{}
	}
	return v
}

func nonNilHistory(v []relationship.PhaseTransition) []relationship.PhaseTransition {
	if v == nil {
		return []relationship.PhaseTransition{}
	}
	return v
}
