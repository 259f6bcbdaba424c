package outreach

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/metrics"
	"github.com/aschepis/backscratcher/counsel/relationship"
	"github.com/aschepis/backscratcher/counsel/storage"
)

// Store is the read side of storage the sweep needs.
type Store interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	LoadUser(ctx context.Context, userID string) (relationship.UserState, error)
	LoadEpisodes(ctx context.Context, userID string) ([]episode.Episode, error)
}

// Sweeper evaluates every stored user and queues check-ins.
type Sweeper struct {
	store  Store
	inbox  *Inbox
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewSweeper returns a sweeper that reads from store and writes to inbox.
func NewSweeper(store Store, inbox *Inbox, cfg Config, logger zerolog.Logger) *Sweeper {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Sweeper{
		store:  store,
		inbox:  inbox,
		cfg:    cfg,
		logger: logger.With().Str("component", "outreach").Logger(),
		now:    time.Now,
	}
}

// Inbox returns the inbox the sweeper fills.
func (s *Sweeper) Inbox() *Inbox { return s.inbox }

// Sweep runs one pass over all users and returns how many messages were
// queued. Failures for a single user are logged and skipped; only listing
// users or cancellation fails the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	now := s.now()

	var queued atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			msg, ok, err := s.evaluate(gctx, id, now)
			if err != nil {
				s.logger.Warn().Err(err).Str("user_id", id).Msg("skipping user in outreach sweep")
				return nil
			}
			if !ok {
				return nil
			}
			if s.inbox.Push(msg) {
				queued.Add(1)
				metrics.IncOutreach(string(msg.Trigger))
				s.logger.Debug().
					Str("user_id", id).
					Str("trigger", string(msg.Trigger)).
					Int("priority", msg.Priority).
					Msg("queued outreach")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(queued.Load()), err
	}

	s.logger.Info().Int("users", len(ids)).Int64("queued", queued.Load()).Msg("outreach sweep complete")
	return int(queued.Load()), nil
}

func (s *Sweeper) evaluate(ctx context.Context, userID string, now time.Time) (Message, bool, error) {
	state, err := s.store.LoadUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("load user: %w", err)
	}
	episodes, err := s.store.LoadEpisodes(ctx, userID)
	if err != nil {
		return Message{}, false, fmt.Errorf("load episodes: %w", err)
	}
	msg, ok := Decide(state.Normalize(), episodes, now, s.cfg)
	return msg, ok, nil
}
