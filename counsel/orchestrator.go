// Package counsel runs one counseling turn end to end: masking, analysis,
// relationship state, episode memory, prompt assembly, generation and
// persistence.
package counsel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/crisis"
	"github.com/aschepis/backscratcher/counsel/emotion"
	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/generation"
	"github.com/aschepis/backscratcher/counsel/metrics"
	"github.com/aschepis/backscratcher/counsel/pii"
	"github.com/aschepis/backscratcher/counsel/prompt"
	"github.com/aschepis/backscratcher/counsel/relationship"
	"github.com/aschepis/backscratcher/counsel/sessions"
	"github.com/aschepis/backscratcher/counsel/storage"
)

var (
	// ErrEmptyMessage is returned for a blank message.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrMissingUserID is returned when a request has no user ID.
	ErrMissingUserID = errors.New("user id is required")
)

// Request is one inbound message.
type Request struct {
	UserID    string
	Message   string
	SessionID string
	Locale    string
}

// Response is the outcome of a turn.
type Response struct {
	Text      string
	Emotion   emotion.Result
	IsCrisis  bool
	SessionID string
	Advice    prompt.Advice
	FollowUps []string
	Phase     relationship.Phase
	Warnings  []string
}

// Config tunes the orchestrator.
type Config struct {
	Generation       generation.Config
	Episodes         episode.Config
	InactivityWindow time.Duration
	SessionIdle      time.Duration
	// ShortCircuit answers crisis turns with the safety template without
	// calling the provider.
	ShortCircuit  bool
	DefaultLocale string
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Generation:       generation.DefaultConfig(),
		Episodes:         episode.DefaultConfig(),
		InactivityWindow: relationship.DefaultInactivityWindow,
		SessionIdle:      sessions.DefaultIdleWindow,
		DefaultLocale:    "ja",
	}
}

// Dependencies are the collaborators the orchestrator is built from.
type Dependencies struct {
	Store      storage.Store
	Generator  generation.Generator
	Anonymizer *pii.Anonymizer
	Analyzer   *emotion.Analyzer
	Hotlines   *crisis.Directory
}

// Orchestrator runs counseling turns. It is safe for concurrent use.
type Orchestrator struct {
	store      storage.Store
	generator  generation.Generator
	anonymizer *pii.Anonymizer
	analyzer   *emotion.Analyzer
	hotlines   *crisis.Directory
	assembler  *prompt.Assembler
	memory     *episode.Memory
	tracker    *sessions.Tracker
	locks      *userLocks
	cfg        Config
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates an Orchestrator.
func New(deps Dependencies, cfg Config, logger zerolog.Logger) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("store is required")
	case deps.Generator == nil:
		return nil, fmt.Errorf("generator is required")
	case deps.Anonymizer == nil:
		return nil, fmt.Errorf("anonymizer is required")
	case deps.Analyzer == nil:
		return nil, fmt.Errorf("analyzer is required")
	case deps.Hotlines == nil:
		return nil, fmt.Errorf("hotline directory is required")
	}

	def := DefaultConfig()
	if cfg.Generation.Timeout <= 0 {
		cfg.Generation.Timeout = def.Generation.Timeout
	}
	if cfg.InactivityWindow <= 0 {
		cfg.InactivityWindow = def.InactivityWindow
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = def.DefaultLocale
	}

	return &Orchestrator{
		store:      deps.Store,
		generator:  deps.Generator,
		anonymizer: deps.Anonymizer,
		analyzer:   deps.Analyzer,
		hotlines:   deps.Hotlines,
		assembler:  prompt.NewAssembler(deps.Hotlines, deps.Analyzer),
		memory:     episode.NewMemory(deps.Store, cfg.Episodes, logger),
		tracker:    sessions.NewTracker(deps.Store, cfg.SessionIdle, logger),
		locks:      newUserLocks(),
		cfg:        cfg,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		now:        time.Now,
	}, nil
}

// turn carries what the read phase hands to the later phases.
type turn struct {
	req      Request
	locale   string
	at       time.Time
	masked   string
	mapping  pii.Mapping
	analysis emotion.Result
	advice   prompt.Advice
	prompt   prompt.Prompt
	session  sessions.Session
	warnings []string
}

// Turn processes one message. A canceled context before persistence fails the
// turn with the context error and persists nothing. A generation failure after
// the retry returns the fallback reply and also persists nothing.
func (o *Orchestrator) Turn(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ErrMissingUserID
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	start := time.Now()

	t := &turn{req: req, locale: req.Locale, at: o.now()}
	if t.locale == "" {
		t.locale = o.cfg.DefaultLocale
	}

	t.masked, t.mapping = o.anonymizer.Anonymize(req.Message)
	for typ, n := range t.mapping.Counts() {
		metrics.AddPIIMasked(string(typ), n)
	}

	o.prepare(ctx, t)
	if err := ctx.Err(); err != nil {
		metrics.ObserveTurn(metrics.OutcomeCanceled, time.Since(start), t.analysis.IsCrisis)
		return nil, err
	}

	logger := o.logger.With().
		Str("user_id", req.UserID).
		Str("session_id", t.session.ID).
		Logger()

	var reply string
	outcome := metrics.OutcomeOK
	if t.analysis.IsCrisis && o.cfg.ShortCircuit {
		reply = SafetyText
		outcome = metrics.OutcomeShortCircuit
	} else {
		generated, err := o.generate(ctx, t.prompt, logger)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				metrics.ObserveTurn(metrics.OutcomeCanceled, time.Since(start), t.analysis.IsCrisis)
				return nil, ctxErr
			}
			logger.Error().Err(err).Bool("is_crisis", t.analysis.IsCrisis).Msg("generation failed, returning fallback")
			metrics.ObserveTurn(metrics.OutcomeFallback, time.Since(start), t.analysis.IsCrisis)
			return o.fallback(t), nil
		}
		reply = generated
	}

	text := o.anonymizer.Deanonymize(reply, t.mapping)
	if unknown := pii.UnknownTokens(reply, t.mapping); len(unknown) > 0 {
		metrics.AddUnknownPlaceholders(len(unknown))
		logger.Warn().Int("unknown_placeholders", len(unknown)).Msg("reply contains placeholders with no mapping")
	}
	if t.analysis.IsCrisis {
		var appended bool
		text, appended = o.hotlines.EnsurePresent(text, t.locale)
		if appended {
			logger.Info().Msg("hotline resources appended to reply")
		}
	}

	if err := ctx.Err(); err != nil {
		metrics.ObserveTurn(metrics.OutcomeCanceled, time.Since(start), t.analysis.IsCrisis)
		return nil, err
	}

	phase := o.commit(context.WithoutCancel(ctx), t, logger)

	metrics.ObserveTurn(outcome, time.Since(start), t.analysis.IsCrisis)
	logger.Info().
		Str("emotion", string(t.analysis.Primary)).
		Bool("is_crisis", t.analysis.IsCrisis).
		Str("phase", string(phase)).
		Int("masked", len(t.mapping)).
		Int("warnings", len(t.warnings)).
		Dur("duration", time.Since(start)).
		Msg("turn completed")

	return &Response{
		Text:      text,
		Emotion:   t.analysis,
		IsCrisis:  t.analysis.IsCrisis,
		SessionID: t.session.ID,
		Advice:    t.advice,
		FollowUps: prompt.FollowUps(t.advice),
		Phase:     phase,
		Warnings:  t.warnings,
	}, nil
}

// prepare is the read phase: under the user's lock it loads and decays
// state, analyzes the masked message against the user's recent emotions,
// resolves the session, selects episodes and assembles the prompt.
func (o *Orchestrator) prepare(ctx context.Context, t *turn) {
	unlock := o.locks.lock(t.req.UserID)
	defer unlock()

	state := o.loadState(ctx, t.req.UserID, t.at)
	state = relationship.Decay(state, t.at, o.cfg.InactivityWindow)

	t.analysis = o.analyzer.Analyze(t.masked, state.RecentEmotions)
	t.advice = prompt.ClassifyAdvice(t.masked, t.analysis.Primary)

	session, err := o.tracker.Resolve(ctx, t.req.UserID, t.req.SessionID)
	if err != nil {
		o.logger.Warn().Err(err).Str("user_id", t.req.UserID).Msg("session lookup failed, starting a new session")
		metrics.IncStorageFailure("load_session")
		session, _ = o.tracker.Resolve(ctx, t.req.UserID, "")
	}
	t.session = session

	episodes, err := o.memory.SelectRelevant(ctx, t.req.UserID, state.Phase, 0)
	if err != nil {
		o.logger.Warn().Err(err).Str("user_id", t.req.UserID).Msg("episode selection failed, continuing without episodes")
		metrics.IncStorageFailure("load_episodes")
		episodes = nil
	}

	t.prompt = o.assembler.Build(prompt.Input{
		Phase:         state.Phase,
		Episodes:      episodes,
		Emotion:       t.analysis,
		MaskedMessage: t.masked,
		Advice:        t.advice,
		Locale:        t.locale,
		Profile:       state.Profile,
	})
}

// loadState returns the stored state, or a new state when the user is
// unknown or the load fails.
func (o *Orchestrator) loadState(ctx context.Context, userID string, now time.Time) relationship.UserState {
	state, err := o.store.LoadUser(ctx, userID)
	if err == nil {
		return state
	}
	if !errors.Is(err, storage.ErrNotFound) {
		o.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to load user state, treating as new user")
		metrics.IncStorageFailure("load_user")
	}
	return relationship.New(userID, now)
}

// generate calls the generator with a per-attempt timeout, retrying with the
// same masked prompt up to the configured number of times.
func (o *Orchestrator) generate(ctx context.Context, p prompt.Prompt, logger zerolog.Logger) (string, error) {
	var reply string
	attempt := 0
	operation := func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, o.cfg.Generation.Timeout)
		defer cancel()

		text, err := o.generator.Generate(actx, p.System, p.User)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("generation attempt failed")
			return err
		}
		reply = text
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.Generation.RetryInterval
	eb.Reset()
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.cfg.Generation.Retries)), ctx)

	if err := backoff.Retry(operation, b); err != nil {
		return "", err
	}
	return reply, nil
}

// fallback builds the reply for a turn whose generation failed. Crisis turns
// still carry the hotline block.
func (o *Orchestrator) fallback(t *turn) *Response {
	text := FallbackText
	if t.analysis.IsCrisis {
		text, _ = o.hotlines.EnsurePresent(text, t.locale)
	}
	return &Response{
		Text:      text,
		Emotion:   t.analysis,
		IsCrisis:  t.analysis.IsCrisis,
		SessionID: t.session.ID,
		Advice:    t.advice,
		FollowUps: prompt.FollowUps(t.advice),
		Warnings:  append(t.warnings, WarnGenerationFailed),
	}
}

// commit is the write phase. Under the user's lock it reloads the latest
// state, applies this turn, saves it, records an episode and touches the
// stored copy of the session. Failures here become warnings. It returns
// the resulting phase.
func (o *Orchestrator) commit(ctx context.Context, t *turn, logger zerolog.Logger) relationship.Phase {
	unlock := o.locks.lock(t.req.UserID)
	defer unlock()

	latest, err := o.store.LoadUser(ctx, t.req.UserID)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		latest = relationship.New(t.req.UserID, t.at)
	default:
		logger.Error().Err(err).Msg("failed to reload user state, state not saved")
		metrics.IncStorageFailure("load_user")
		t.warnings = append(t.warnings, WarnStateNotSaved)
		latest = relationship.New(t.req.UserID, t.at)
	}
	reloadFailed := err != nil && !errors.Is(err, storage.ErrNotFound)

	decayed := relationship.Decay(latest, t.at, o.cfg.InactivityWindow)
	if decayed.Phase != latest.Phase {
		metrics.IncPhaseTransition(string(latest.Phase), string(decayed.Phase), relationship.TriggerInactivity)
	}

	next := relationship.Transition(decayed, relationship.Signal{
		At:           t.at,
		Intensity:    t.analysis.Intensity,
		IsCrisis:     t.analysis.IsCrisis,
		Disclosure:   !t.mapping.Empty() || episode.HasDisclosurePhrase(t.masked),
		MessageRunes: utf8.RuneCountInString(t.req.Message),
		Primary:      t.analysis.Primary,
		Text:         t.masked,
		Topics:       t.advice.Topics(),
	})
	phaseChanged := next.Phase != decayed.Phase
	if phaseChanged {
		metrics.IncPhaseTransition(string(decayed.Phase), string(next.Phase), relationship.TriggerInteraction)
		logger.Info().
			Str("from", string(decayed.Phase)).
			Str("to", string(next.Phase)).
			Msg("relationship phase changed")
	}

	if !reloadFailed {
		if err := o.store.SaveUser(ctx, next); err != nil {
			logger.Error().Err(err).Msg("failed to save user state")
			metrics.IncStorageFailure("save_user")
			t.warnings = append(t.warnings, WarnStateNotSaved)
		}
	}

	ep, evicted, err := o.memory.MaybeRecord(ctx, t.req.UserID, episode.Candidate{
		At:           t.at,
		MaskedText:   t.masked,
		Emotion:      t.analysis.Primary,
		Intensity:    t.analysis.Intensity,
		IsCrisis:     t.analysis.IsCrisis,
		PIIMasked:    !t.mapping.Empty(),
		PhaseChanged: phaseChanged,
		Topic:        string(t.advice),
	})
	if ep != nil {
		metrics.IncEpisodeRecorded(string(ep.Kind))
	}
	metrics.AddEpisodesEvicted(len(evicted))
	if err != nil {
		logger.Error().Err(err).Msg("failed to record episode")
		metrics.IncStorageFailure("save_episode")
		t.warnings = append(t.warnings, WarnEpisodeNotSaved)
	}

	if touched, err := o.tracker.Touch(ctx, t.session); err != nil {
		logger.Error().Err(err).Msg("failed to save session")
		metrics.IncStorageFailure("save_session")
		t.warnings = append(t.warnings, WarnSessionNotSaved)
	} else {
		t.session = touched
	}

	return next.Phase
}

// EraseUser deletes every record of userID.
func (o *Orchestrator) EraseUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUserID
	}
	unlock := o.locks.lock(userID)
	defer unlock()

	if err := o.store.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("erase user: %w", err)
	}
	o.logger.Info().Str("user_id", userID).Msg("user data erased")
	return nil
}

// RelationshipView is a read-only summary of a user's relationship.
type RelationshipView struct {
	State        relationship.UserState
	Progress     relationship.Progress
	Trend        emotion.Trend
	EpisodeCount int
}

// Relationship returns the user's state as of now, with inactivity decay
// applied but not persisted. It returns storage.ErrNotFound for an unknown
// user.
func (o *Orchestrator) Relationship(ctx context.Context, userID string) (*RelationshipView, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}
	unlock := o.locks.lock(userID)
	defer unlock()

	state, err := o.store.LoadUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	state = relationship.Decay(state, o.now(), o.cfg.InactivityWindow)

	episodes, err := o.store.LoadEpisodes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load episodes: %w", err)
	}

	return &RelationshipView{
		State:        state,
		Progress:     relationship.ProgressOf(state),
		Trend:        relationship.SentimentTrend(state),
		EpisodeCount: len(episodes),
	}, nil
}
