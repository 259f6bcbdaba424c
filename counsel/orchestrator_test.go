package counsel

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/crisis"
	"github.com/aschepis/backscratcher/counsel/emotion"
	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/generation"
	"github.com/aschepis/backscratcher/counsel/pii"
	"github.com/aschepis/backscratcher/counsel/relationship"
	"github.com/aschepis/backscratcher/counsel/storage"
	"github.com/aschepis/backscratcher/counsel/storage/memstore"
)

var hotlineContacts = []string{"0570-783-556", "0120-279-338", "0570-064-556"}

// recordingGenerator returns reply and remembers what it was asked.
type recordingGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []string
	msgs    []string
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt, message string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	g.msgs = append(g.msgs, message)
	return g.reply, g.err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Generation.Timeout = time.Second
	cfg.Generation.RetryInterval = time.Millisecond
	return cfg
}

func newTestOrchestrator(t *testing.T, store storage.Store, gen generation.Generator, cfg Config) *Orchestrator {
	t.Helper()
	anonymizer, err := pii.NewDefault()
	if err != nil {
		t.Fatalf("pii.NewDefault: %v", err)
	}
	detector, err := crisis.NewDefaultDetector()
	if err != nil {
		t.Fatalf("crisis.NewDefaultDetector: %v", err)
	}
	analyzer, err := emotion.NewDefaultAnalyzer(detector)
	if err != nil {
		t.Fatalf("emotion.NewDefaultAnalyzer: %v", err)
	}
	hotlines, err := crisis.NewDefaultDirectory()
	if err != nil {
		t.Fatalf("crisis.NewDefaultDirectory: %v", err)
	}
	o, err := New(Dependencies{
		Store:      store,
		Generator:  gen,
		Anonymizer: anonymizer,
		Analyzer:   analyzer,
		Hotlines:   hotlines,
	}, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestTurn_MasksAndRestoresPhone(t *testing.T) {
	gen := &recordingGenerator{reply: "[PHONE_1]に連絡します"}
	o := newTestOrchestrator(t, memstore.New(), gen, testConfig())

	resp, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "090-1234-5678に連絡してください"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.Text != "090-1234-5678に連絡します" {
		t.Errorf("Text = %q", resp.Text)
	}
	if gen.msgs[0] != "[PHONE_1]に連絡してください" {
		t.Errorf("provider saw %q", gen.msgs[0])
	}
	if strings.Contains(gen.prompts[0], "090-1234-5678") {
		t.Errorf("raw phone number reached the prompt")
	}
}

func TestTurn_FirstGreeting(t *testing.T) {
	store := memstore.New()
	gen := &recordingGenerator{reply: "こんにちは。今日はどうされましたか？"}
	o := newTestOrchestrator(t, store, gen, testConfig())

	resp, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "こんにちは"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.Phase != relationship.PhaseStranger {
		t.Errorf("Phase = %s, want STRANGER", resp.Phase)
	}
	if resp.SessionID == "" {
		t.Errorf("no session issued")
	}
	if len(resp.Warnings) != 0 {
		t.Errorf("Warnings = %v", resp.Warnings)
	}

	state, err := store.LoadUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	if math.Abs(state.TrustScore-relationship.BaseIncrement) > 1e-12 {
		t.Errorf("TrustScore = %v, want %v", state.TrustScore, relationship.BaseIncrement)
	}
	if state.InteractionCount != 1 {
		t.Errorf("InteractionCount = %d, want 1", state.InteractionCount)
	}
	episodes, _ := store.LoadEpisodes(context.Background(), "u1")
	if len(episodes) != 0 {
		t.Errorf("greeting recorded %d episodes", len(episodes))
	}
}

func TestTurn_CrisisAppendsHotlines(t *testing.T) {
	store := memstore.New()
	gen := &recordingGenerator{reply: "お話ししてくれてありがとう。"}
	o := newTestOrchestrator(t, store, gen, testConfig())

	resp, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "死にたい"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !resp.IsCrisis {
		t.Fatalf("IsCrisis = false")
	}
	if p := resp.Emotion.Primary; p != emotion.Sadness && p != emotion.Depression {
		t.Errorf("Primary = %s, want sadness or depression", p)
	}
	for _, c := range hotlineContacts {
		if !strings.Contains(resp.Text, c) {
			t.Errorf("reply missing hotline %s", c)
		}
	}
	if !strings.HasPrefix(resp.Text, "お話ししてくれてありがとう。") {
		t.Errorf("provider reply not kept: %q", resp.Text)
	}

	episodes, _ := store.LoadEpisodes(context.Background(), "u1")
	if len(episodes) != 1 || episodes[0].Kind != episode.KindCrisis {
		t.Errorf("episodes = %+v, want one crisis episode", episodes)
	}
}

func TestTurn_ShortCircuitSkipsProvider(t *testing.T) {
	gen := &recordingGenerator{reply: "unused"}
	cfg := testConfig()
	cfg.ShortCircuit = true
	o := newTestOrchestrator(t, memstore.New(), gen, cfg)

	resp, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "もう消えたい"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("provider called %d times", gen.calls)
	}
	if !strings.HasPrefix(resp.Text, SafetyText) {
		t.Errorf("Text = %q", resp.Text)
	}
	for _, c := range hotlineContacts {
		if !strings.Contains(resp.Text, c) {
			t.Errorf("reply missing hotline %s", c)
		}
	}
}

func TestTurn_ProviderFailsTwice(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		isCrisis bool
	}{
		{"ordinary", "仕事がうまくいかない", false},
		{"crisis", "死にたい", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			gen := &recordingGenerator{err: errors.New("provider down")}
			o := newTestOrchestrator(t, store, gen, testConfig())

			resp, err := o.Turn(context.Background(), Request{UserID: "u1", Message: tt.message})
			if err != nil {
				t.Fatalf("Turn: %v", err)
			}
			if gen.calls != 2 {
				t.Errorf("provider called %d times, want 2", gen.calls)
			}
			if !strings.HasPrefix(resp.Text, FallbackText) {
				t.Errorf("Text = %q", resp.Text)
			}
			for _, c := range hotlineContacts {
				if got := strings.Contains(resp.Text, c); got != tt.isCrisis {
					t.Errorf("hotline %s present = %v, want %v", c, got, tt.isCrisis)
				}
			}
			if _, err := store.LoadUser(context.Background(), "u1"); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("state persisted after failed generation: %v", err)
			}
		})
	}
}

func TestTurn_RetrySucceeds(t *testing.T) {
	var calls int32
	gen := generation.GeneratorFunc(func(ctx context.Context, prompt, message string) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "二回目で届きました", nil
	})
	cfg := testConfig()
	cfg.Generation.Timeout = 20 * time.Millisecond
	o := newTestOrchestrator(t, memstore.New(), gen, cfg)

	resp, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "聞いてほしい"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.Text != "二回目で届きました" || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Text = %q after %d calls", resp.Text, calls)
	}
}

func TestTurn_CanceledPersistsNothing(t *testing.T) {
	store := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	gen := generation.GeneratorFunc(func(gctx context.Context, prompt, message string) (string, error) {
		cancel()
		return "", gctx.Err()
	})
	o := newTestOrchestrator(t, store, gen, testConfig())

	_, err := o.Turn(ctx, Request{UserID: "u1", Message: "実は悩んでいて"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := store.LoadUser(context.Background(), "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("state persisted after cancellation: %v", err)
	}
	if _, err := store.LatestSession(context.Background(), "u1"); err == nil {
		t.Errorf("session persisted after cancellation")
	}
}

func TestTurn_ConcurrentTurnsDoNotLoseUpdates(t *testing.T) {
	store := memstore.New()
	const turns = 2

	// Both turns must be inside generation before either proceeds.
	var arrived sync.WaitGroup
	arrived.Add(turns)
	gen := generation.GeneratorFunc(func(ctx context.Context, prompt, message string) (string, error) {
		arrived.Done()
		arrived.Wait()
		return "うん、聞いているよ", nil
	})
	o := newTestOrchestrator(t, store, gen, testConfig())

	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "最近眠れない"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Turn: %v", err)
		}
	}

	state, err := store.LoadUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	if state.InteractionCount != turns {
		t.Errorf("InteractionCount = %d, want %d", state.InteractionCount, turns)
	}
	if o.locks.size() != 0 {
		t.Errorf("%d user locks leaked", o.locks.size())
	}
}

func TestTurn_ConcurrentTurnsInOneSessionCountEveryTurn(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(t, store, &recordingGenerator{reply: "はい"}, testConfig())

	first, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "こんにちは"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}

	const turns = 4
	var arrived sync.WaitGroup
	arrived.Add(turns)
	o.generator = generation.GeneratorFunc(func(ctx context.Context, prompt, message string) (string, error) {
		arrived.Done()
		arrived.Wait()
		return "うん", nil
	})

	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "続きです", SessionID: first.SessionID})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Turn: %v", err)
		}
	}

	sess, err := store.LatestSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if sess.ID != first.SessionID {
		t.Fatalf("session changed: %s then %s", first.SessionID, sess.ID)
	}
	if sess.TurnCount != turns+1 {
		t.Errorf("TurnCount = %d, want %d", sess.TurnCount, turns+1)
	}
}

func TestTurn_EpisodeSummaryCarriesNoPlaceholders(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	seeded := relationship.New("u1", time.Now().Add(-time.Hour))
	seeded.TrustScore = 0.5
	seeded.InteractionCount = 10
	seeded.LastInteractionAt = time.Now().Add(-time.Minute)
	seeded = seeded.Normalize()
	if seeded.Phase != relationship.PhaseAcquaintance {
		t.Fatalf("seeded phase = %s", seeded.Phase)
	}
	if err := store.SaveUser(ctx, seeded); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	gen := &recordingGenerator{reply: "教えてくれてありがとう"}
	o := newTestOrchestrator(t, store, gen, testConfig())

	if _, err := o.Turn(ctx, Request{UserID: "u1", Message: "実は私の番号は090-1111-2222です。今日気づいたんです"}); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	episodes, err := store.LoadEpisodes(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadEpisodes: %v", err)
	}
	if len(episodes) != 1 {
		t.Fatalf("recorded %d episodes, want 1", len(episodes))
	}
	summary := episodes[0].Summary
	if strings.Contains(summary, "[PHONE_") || strings.Contains(summary, "090-1111-2222") {
		t.Errorf("summary = %q", summary)
	}
	if !strings.Contains(summary, "（電話番号）") {
		t.Errorf("summary lost the type label: %q", summary)
	}

	gen.reply = "[PHONE_1]は奥さんの番号ですね"
	resp, err := o.Turn(ctx, Request{UserID: "u1", Message: "妻の番号は080-3333-4444です"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if gen.msgs[1] != "妻の番号は[PHONE_1]です" {
		t.Errorf("provider saw %q", gen.msgs[1])
	}
	if !strings.Contains(gen.prompts[1], "（電話番号）") {
		t.Errorf("second prompt does not reference the earlier episode:\n%s", gen.prompts[1])
	}
	if strings.Contains(gen.prompts[1], "[PHONE_") {
		t.Errorf("second prompt reuses a placeholder from an earlier turn:\n%s", gen.prompts[1])
	}
	if resp.Text != "080-3333-4444は奥さんの番号ですね" {
		t.Errorf("Text = %q", resp.Text)
	}
}

func TestTurn_LearnsProfileAndShapesPrompt(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	seeded := relationship.New("u1", time.Now().Add(-time.Hour))
	seeded.InteractionCount = 20
	seeded.EmotionCounts = map[emotion.Emotion]int{emotion.Sadness: 15, emotion.Hope: 5}
	seeded.LastInteractionAt = time.Now().Add(-time.Minute)
	seeded.Profile.Tone = relationship.ToneWarm
	seeded.Profile.Confidence = 0.3
	seeded.Profile.Topics = map[string]relationship.TopicAffinity{
		"仕事・キャリア": {Topic: "仕事・キャリア", Score: 0.3, Mentions: 4, LastMentioned: time.Now().Add(-time.Hour)},
	}
	if err := store.SaveUser(ctx, seeded.Normalize()); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	gen := &recordingGenerator{reply: "それは大変でしたね"}
	o := newTestOrchestrator(t, store, gen, testConfig())
	if _, err := o.Turn(ctx, Request{UserID: "u1", Message: "上司とうまくいかなくて、どうしたらいいか分からない"}); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	if !strings.Contains(gen.prompts[0], "温かみのある") || !strings.Contains(gen.prompts[0], "関心のあるテーマ: 仕事・キャリア") {
		t.Errorf("prompt does not follow the learned profile:\n%s", gen.prompts[0])
	}

	state, err := store.LoadUser(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	a := state.Profile.Topics["仕事・キャリア"]
	if a.Mentions != 5 || math.Abs(a.Score-0.35) > 1e-9 {
		t.Errorf("topic affinity = %+v", a)
	}
	if math.Abs(state.Profile.LikesQuestions-0.52) > 1e-9 {
		t.Errorf("LikesQuestions = %v, want 0.52", state.Profile.LikesQuestions)
	}
	if state.Profile.Tone != relationship.ToneWarm {
		t.Errorf("Tone = %s, want WARM", state.Profile.Tone)
	}
}

func TestTurn_LeftoverPlaceholderKeptVerbatim(t *testing.T) {
	gen := &recordingGenerator{reply: "[PHONE_1]と[PHONE_2]を確認しました"}
	o := newTestOrchestrator(t, memstore.New(), gen, testConfig())

	resp, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "090-1234-5678です"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.Text != "090-1234-5678と[PHONE_2]を確認しました" {
		t.Errorf("Text = %q", resp.Text)
	}
}

// failingSaveStore fails SaveUser and nothing else.
type failingSaveStore struct {
	*memstore.Store
}

func (f failingSaveStore) SaveUser(ctx context.Context, state relationship.UserState) error {
	return errors.New("disk full")
}

func TestTurn_SaveFailureBecomesWarning(t *testing.T) {
	gen := &recordingGenerator{reply: "大丈夫ですよ"}
	o := newTestOrchestrator(t, failingSaveStore{memstore.New()}, gen, testConfig())

	resp, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "こんにちは"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if resp.Text != "大丈夫ですよ" {
		t.Errorf("Text = %q", resp.Text)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0] != WarnStateNotSaved {
		t.Errorf("Warnings = %v", resp.Warnings)
	}
}

func TestTurn_SessionContinues(t *testing.T) {
	gen := &recordingGenerator{reply: "はい"}
	o := newTestOrchestrator(t, memstore.New(), gen, testConfig())

	first, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "こんにちは"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	second, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "また来ました", SessionID: first.SessionID})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session not continued: %s then %s", first.SessionID, second.SessionID)
	}
}

func TestTurn_InvalidRequests(t *testing.T) {
	o := newTestOrchestrator(t, memstore.New(), &recordingGenerator{reply: "x"}, testConfig())

	if _, err := o.Turn(context.Background(), Request{UserID: "u1", Message: "  "}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank message: err = %v", err)
	}
	if _, err := o.Turn(context.Background(), Request{Message: "hi"}); !errors.Is(err, ErrMissingUserID) {
		t.Errorf("missing user: err = %v", err)
	}
}

func TestEraseUserAndRelationship(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(t, store, &recordingGenerator{reply: "うん"}, testConfig())
	ctx := context.Background()

	if _, err := o.Relationship(ctx, "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("unknown user: err = %v", err)
	}

	for _, msg := range []string{"悲しい", "不安で眠れない", "実は死にたいと思うことがある"} {
		if _, err := o.Turn(ctx, Request{UserID: "u1", Message: msg}); err != nil {
			t.Fatalf("Turn: %v", err)
		}
	}

	view, err := o.Relationship(ctx, "u1")
	if err != nil {
		t.Fatalf("Relationship: %v", err)
	}
	if view.State.InteractionCount != 3 || view.Progress.Current != relationship.PhaseStranger {
		t.Errorf("view = %+v", view)
	}
	if view.Trend != emotion.TrendDeclining {
		t.Errorf("Trend = %s, want declining", view.Trend)
	}
	if view.EpisodeCount == 0 {
		t.Errorf("expected at least the crisis episode")
	}

	if err := o.EraseUser(ctx, "u1"); err != nil {
		t.Fatalf("EraseUser: %v", err)
	}
	if _, err := o.Relationship(ctx, "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("after erase: err = %v", err)
	}
}
