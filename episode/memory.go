package episode

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/counsel/relationship"
)

// Store is the persistence Memory needs.
type Store interface {
	LoadEpisodes(ctx context.Context, userID string) ([]Episode, error)
	SaveEpisode(ctx context.Context, ep Episode) error
	DeleteEpisode(ctx context.Context, userID, id string) error
}

// Config tunes recording and selection.
type Config struct {
	Threshold   float64       `yaml:"threshold" validate:"gte=0,lte=1"`
	Cap         int           `yaml:"cap" validate:"gte=1"`
	SelectLimit int           `yaml:"select_limit" validate:"gte=0"`
	HalfLife    time.Duration `yaml:"half_life" validate:"gte=0"`
}

// DefaultConfig returns the default recording policy.
func DefaultConfig() Config {
	return Config{
		Threshold:   0.4,
		Cap:         50,
		SelectLimit: 3,
		HalfLife:    30 * 24 * time.Hour,
	}
}

const (
	significanceWeight = 0.7
	recencyWeight      = 0.3
)

// Memory records and selects episodes. Callers serialize calls per user.
type Memory struct {
	store  Store
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewMemory creates a Memory over store. Zero fields in cfg take defaults.
func NewMemory(store Store, cfg Config, logger zerolog.Logger) *Memory {
	def := DefaultConfig()
	if cfg.Cap <= 0 {
		cfg.Cap = def.Cap
	}
	if cfg.SelectLimit <= 0 {
		cfg.SelectLimit = def.SelectLimit
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = def.HalfLife
	}
	return &Memory{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "episodeMemory").Logger(),
		now:    time.Now,
	}
}

// Config returns the effective configuration.
func (m *Memory) Config() Config {
	return m.cfg
}

// MaybeRecord saves c as an episode when its significance exceeds the
// threshold, then evicts prior episodes until no more than Cap of them
// remain. The new episode is neither counted against the cap nor eligible for
// eviction. It returns the saved episode (nil when c was not significant) and
// the IDs of evicted episodes.
func (m *Memory) MaybeRecord(ctx context.Context, userID string, c Candidate) (*Episode, []string, error) {
	score := Score(c)
	if score <= m.cfg.Threshold {
		m.logger.Debug().
			Str("method", "MaybeRecord").
			Str("user_id", userID).
			Float64("significance", score).
			Msg("turn below significance threshold")
		return nil, nil, nil
	}

	prior, err := m.store.LoadEpisodes(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load episodes: %w", err)
	}

	at := c.At
	if at.IsZero() {
		at = m.now()
	}
	kind := Classify(c)
	ep := Episode{
		ID:           uuid.NewString(),
		UserID:       userID,
		CreatedAt:    at,
		Summary:      Summarize(kind, c.Topic, c.Emotion, c.MaskedText),
		Significance: score,
		EmotionTag:   c.Emotion,
		Kind:         kind,
		Topic:        c.Topic,
	}
	if err := m.store.SaveEpisode(ctx, ep); err != nil {
		return nil, nil, fmt.Errorf("save episode: %w", err)
	}

	victims := EvictionCandidates(prior, len(prior)-m.cfg.Cap)
	evicted := make([]string, 0, len(victims))
	for _, v := range victims {
		if err := m.store.DeleteEpisode(ctx, userID, v.ID); err != nil {
			return &ep, evicted, fmt.Errorf("evict episode %s: %w", v.ID, err)
		}
		evicted = append(evicted, v.ID)
	}

	m.logger.Info().
		Str("user_id", userID).
		Str("episode_id", ep.ID).
		Str("kind", string(kind)).
		Float64("significance", score).
		Int("evicted", len(evicted)).
		Msg("episode recorded")
	return &ep, evicted, nil
}

// EvictionCandidates returns the n episodes that eviction removes first:
// lowest significance, then oldest, then lowest ID.
func EvictionCandidates(episodes []Episode, n int) []Episode {
	if n <= 0 {
		return nil
	}
	ordered := append([]Episode(nil), episodes...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Significance != b.Significance {
			return a.Significance < b.Significance
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if n > len(ordered) {
		n = len(ordered)
	}
	return ordered[:n]
}

// SelectRelevant returns at most limit episodes ranked by significance and
// recency. A STRANGER gets none. limit <= 0 uses the configured default.
func (m *Memory) SelectRelevant(ctx context.Context, userID string, phase relationship.Phase, limit int) ([]Episode, error) {
	if phase == relationship.PhaseStranger || !phase.Valid() {
		return nil, nil
	}
	if limit <= 0 {
		limit = m.cfg.SelectLimit
	}
	episodes, err := m.store.LoadEpisodes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load episodes: %w", err)
	}
	return Rank(episodes, m.now(), m.cfg.HalfLife, limit), nil
}

// Rank orders episodes by 0.7 × significance + 0.3 × recency, where recency
// halves every halfLife, and keeps the first limit.
func Rank(episodes []Episode, now time.Time, halfLife time.Duration, limit int) []Episode {
	type scored struct {
		ep    Episode
		score float64
	}
	ranked := lo.Map(episodes, func(ep Episode, _ int) scored {
		age := now.Sub(ep.CreatedAt)
		if age < 0 {
			age = 0
		}
		recency := math.Pow(0.5, float64(age)/float64(halfLife))
		return scored{ep: ep, score: significanceWeight*ep.Significance + recencyWeight*recency}
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].ep.CreatedAt.After(ranked[j].ep.CreatedAt)
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return lo.Map(ranked, func(s scored, _ int) Episode { return s.ep })
}
