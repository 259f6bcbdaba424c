// Package runtime runs the background jobs of the counseling daemon.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper is a periodic job returning how many items it produced.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Scheduler runs a Sweeper on a cron schedule until its context ends.
type Scheduler struct {
	sweeper  Sweeper
	schedule cron.Schedule
	spec     string
	timeout  time.Duration
	logger   zerolog.Logger
}

// ParseSchedule parses a schedule string.
// Supports:
//   - Cron expressions: "0 */15 * * * *" (6-field) or "*/15 * * * *" (5-field)
//   - Descriptors: "@hourly", "@every 30m"
//   - Go duration strings: "15m", "2h", "1h30m"
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, fmt.Errorf("schedule string is empty")
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec)
	if err == nil {
		return sched, nil
	}

	d, derr := time.ParseDuration(spec)
	if derr != nil {
		return nil, fmt.Errorf("failed to parse schedule %q as cron expression or duration: %w", spec, err)
	}
	if d < time.Second {
		return nil, fmt.Errorf("schedule interval %s is shorter than one second", d)
	}
	return cron.Every(d), nil
}

// NewScheduler creates a scheduler that runs sweeper on spec. Each run is
// bounded by timeout when it is positive.
func NewScheduler(sweeper Sweeper, spec string, timeout time.Duration, logger zerolog.Logger) (*Scheduler, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper cannot be nil")
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		sweeper:  sweeper,
		schedule: sched,
		spec:     spec,
		timeout:  timeout,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Next returns the next run time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start runs an initial sweep, then sweeps on schedule until ctx is
// canceled. Overlapping runs are skipped. Start blocks until any running
// sweep has finished.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info().Str("schedule", s.spec).Msg("Starting scheduler")

	s.logger.Info().Msg("Scheduler: performing initial sweep")
	s.run(ctx)

	cl := cronLogger{logger: s.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.run(ctx) }))
	c.Start()

	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopping: context cancelled")
	<-c.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.sweeper.Sweep(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled sweep failed")
		return
	}
	s.logger.Info().Int("queued", n).Dur("duration", time.Since(start)).Msg("Scheduled sweep finished")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
