// Package redis is the Redis implementation of storage.Store. Each record is
// a JSON document under a namespaced key:
//
//	<prefix>:users                  set of user IDs
//	<prefix>:user:<id>              user state
//	<prefix>:episodes:<id>          hash of episode ID to episode
//	<prefix>:session:<id>           latest session
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/relationship"
	"github.com/aschepis/backscratcher/counsel/sessions"
	"github.com/aschepis/backscratcher/counsel/storage"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "counsel"

// Config selects the Redis server.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Store persists counseling state in Redis.
type Store struct {
	client *goredis.Client
	prefix string
	logger zerolog.Logger
}

var _ storage.Store = (*Store)(nil)

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // Cleanup on error
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.Prefix, logger), nil
}

// New wraps an existing client.
func New(client *goredis.Client, prefix string, logger zerolog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "redisStore").Logger(),
	}
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) LoadUser(ctx context.Context, userID string) (relationship.UserState, error) {
	data, err := s.client.Get(ctx, s.key("user", userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return relationship.UserState{}, storage.ErrNotFound
	}
	if err != nil {
		return relationship.UserState{}, fmt.Errorf("failed to load user: %w", err)
	}
	var st relationship.UserState
	if err := json.Unmarshal(data, &st); err != nil {
		return relationship.UserState{}, fmt.Errorf("decode user: %w", err)
	}
	return st.Normalize(), nil
}

func (s *Store) SaveUser(ctx context.Context, state relationship.UserState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key("user", state.UserID), data, 0)
	pipe.SAdd(ctx, s.key("users"), state.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) LoadEpisodes(ctx context.Context, userID string) ([]episode.Episode, error) {
	raw, err := s.client.HGetAll(ctx, s.key("episodes", userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load episodes: %w", err)
	}
	out := make([]episode.Episode, 0, len(raw))
	for id, data := range raw {
		var ep episode.Episode
		if err := json.Unmarshal([]byte(data), &ep); err != nil {
			return nil, fmt.Errorf("decode episode %s: %w", id, err)
		}
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SaveEpisode(ctx context.Context, ep episode.Episode) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("encode episode: %w", err)
	}
	ok, err := s.client.HSetNX(ctx, s.key("episodes", ep.UserID), ep.ID, data).Result()
	if err != nil {
		return fmt.Errorf("failed to save episode: %w", err)
	}
	if !ok {
		return fmt.Errorf("episode %s already exists", ep.ID)
	}
	return nil
}

func (s *Store) DeleteEpisode(ctx context.Context, userID, id string) error {
	if err := s.client.HDel(ctx, s.key("episodes", userID), id).Err(); err != nil {
		return fmt.Errorf("failed to delete episode: %w", err)
	}
	return nil
}

func (s *Store) LatestSession(ctx context.Context, userID string) (sessions.Session, error) {
	data, err := s.client.Get(ctx, s.key("session", userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return sessions.Session{}, sessions.ErrNoSession
	}
	if err != nil {
		return sessions.Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	var sess sessions.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return sessions.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

func (s *Store) SaveSession(ctx context.Context, sess sessions.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key("session", sess.UserID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key("user", userID), s.key("episodes", userID), s.key("session", userID))
	pipe.SRem(ctx, s.key("users"), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to erase user: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Msg("erased user data")
	return nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.key("users")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
