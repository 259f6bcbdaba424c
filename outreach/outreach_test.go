package outreach

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/emotion"
	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/relationship"
	"github.com/aschepis/backscratcher/counsel/storage/memstore"
)

var now = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func user(id string, count int, created, last time.Duration) relationship.UserState {
	return relationship.UserState{
		UserID:            id,
		Phase:             relationship.PhaseStranger,
		CreatedAt:         now.Add(-created),
		LastInteractionAt: now.Add(-last),
		InteractionCount:  count,
	}
}

func TestDecide(t *testing.T) {
	declining := user("u1", 5, 10*day, time.Hour)
	declining.EmotionCounts = map[emotion.Emotion]int{emotion.Sadness: 3, emotion.Hope: 1}

	decliningAndAbsent := user("u1", 5, 20*day, 9*day)
	decliningAndAbsent.EmotionCounts = map[emotion.Emotion]int{emotion.Anxiety: 2, emotion.Stress: 2}

	tooFewSamples := user("u1", 5, 10*day, time.Hour)
	tooFewSamples.EmotionCounts = map[emotion.Emotion]int{emotion.Sadness: 2}

	familiar := user("u1", 30, 30*day+2*time.Hour, time.Hour)
	familiar.Phase = relationship.PhaseFamiliar

	crisisEp := func(age time.Duration) episode.Episode {
		return episode.Episode{ID: "c", UserID: "u1", CreatedAt: now.Add(-age), Kind: episode.KindCrisis, Significance: 0.7, Topic: "crisis_support"}
	}
	careerEp := func(age time.Duration) episode.Episode {
		return episode.Episode{ID: "e", UserID: "u1", CreatedAt: now.Add(-age), Kind: episode.KindGeneral, Significance: 0.4, Topic: "career"}
	}

	tests := []struct {
		name     string
		state    relationship.UserState
		episodes []episode.Episode
		want     Trigger
		wantText string
	}{
		{name: "new user", state: user("u1", 0, 30*day, 30*day)},
		{name: "recently active", state: user("u1", 5, 10*day, time.Hour)},
		{
			name:  "absence",
			state: user("u1", 5, 8*day, 8*day),
			want:  TriggerAbsence,
		},
		{
			name:     "crisis follow-up",
			state:    user("u1", 5, 10*day, 2*day),
			episodes: []episode.Episode{careerEp(9 * day), crisisEp(2 * day)},
			want:     TriggerCrisisFollowUp,
		},
		{
			name:     "significant episode counts as crisis",
			state:    user("u1", 5, 10*day, day+time.Hour),
			episodes: []episode.Episode{{ID: "s", CreatedAt: now.Add(-day - time.Hour), Kind: episode.KindDisclosure, Significance: 0.95}},
			want:     TriggerCrisisFollowUp,
		},
		{
			name:     "crisis too old falls back to topic follow-up",
			state:    user("u1", 5, 10*day, 5*day),
			episodes: []episode.Episode{{ID: "c", CreatedAt: now.Add(-5 * day), Kind: episode.KindCrisis, Topic: "health"}},
			want:     TriggerFollowUp,
			wantText: "体調はいかがですか？",
		},
		{
			name:     "topic follow-up",
			state:    user("u1", 5, 10*day, 4*day),
			episodes: []episode.Episode{careerEp(4 * day)},
			want:     TriggerFollowUp,
			wantText: "お仕事の件、その後いかがでしょうか？",
		},
		{
			name:     "unknown topic uses general template",
			state:    user("u1", 5, 10*day, 4*day),
			episodes: []episode.Episode{{ID: "x", CreatedAt: now.Add(-4 * day), Topic: "education"}},
			want:     TriggerFollowUp,
			wantText: "前回のこと、その後いかがですか？",
		},
		{
			name:     "follow-up suppressed after return",
			state:    user("u1", 5, 10*day, day),
			episodes: []episode.Episode{careerEp(4 * day)},
		},
		{
			name:  "sentiment decline",
			state: declining,
			want:  TriggerSentimentDecline,
		},
		{
			name:  "decline outranks absence",
			state: decliningAndAbsent,
			want:  TriggerSentimentDecline,
		},
		{name: "too few emotions", state: tooFewSamples},
		{
			name:     "day milestone",
			state:    familiar,
			want:     TriggerMilestone,
			wantText: "1ヶ月だね！いつも話してくれてありがとう。",
		},
		{
			name:     "interaction milestone",
			state:    user("u1", 50, 12*day, time.Hour),
			want:     TriggerMilestone,
			wantText: "50回目の会話ですね！ありがとうございます。",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := Decide(tt.state, tt.episodes, now, DefaultConfig())
			if tt.want == "" {
				if ok {
					t.Fatalf("expected no outreach, got %+v", msg)
				}
				return
			}
			if !ok {
				t.Fatalf("expected %s, got none", tt.want)
			}
			if msg.Trigger != tt.want {
				t.Errorf("Trigger = %s, want %s", msg.Trigger, tt.want)
			}
			if msg.Priority != tt.want.Priority() {
				t.Errorf("Priority = %d, want %d", msg.Priority, tt.want.Priority())
			}
			if tt.wantText != "" && msg.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", msg.Text, tt.wantText)
			}
			if msg.Text == "" || msg.UserID != "u1" || !msg.CreatedAt.Equal(now) {
				t.Errorf("incomplete message %+v", msg)
			}
		})
	}
}

func TestDecide_ToneFollowsPhase(t *testing.T) {
	for _, phase := range relationship.Phases {
		state := user("u1", 5, 10*day, 8*day)
		state.Phase = phase
		msg, ok := Decide(state, nil, now, DefaultConfig())
		if !ok || msg.Trigger != TriggerAbsence {
			t.Fatalf("%s: expected absence, got %+v", phase, msg)
		}
		found := false
		for _, tmpl := range absenceTemplates[phase] {
			if msg.Text == tmpl {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: %q is not a %s template", phase, msg.Text, phase)
		}
		if msg.Phase != phase {
			t.Errorf("Phase = %s, want %s", msg.Phase, phase)
		}
	}
}

func TestPick_Deterministic(t *testing.T) {
	templates := []string{"a", "b", "c"}
	first := pick(templates, "user-42")
	for i := 0; i < 10; i++ {
		if got := pick(templates, "user-42"); got != first {
			t.Fatalf("pick changed from %q to %q", first, got)
		}
	}
	if pick(nil, "u") != "" {
		t.Errorf("pick(nil) should be empty")
	}
}

func msgFor(userID string, trigger Trigger, at time.Time) Message {
	return Message{UserID: userID, Trigger: trigger, Priority: trigger.Priority(), Text: "hi", CreatedAt: at}
}

func TestInbox_OnePendingPerUser(t *testing.T) {
	inbox := NewInbox(10, day)

	if !inbox.Push(msgFor("u1", TriggerFollowUp, now)) {
		t.Fatalf("first push rejected")
	}
	if inbox.Push(msgFor("u1", TriggerMilestone, now)) {
		t.Errorf("lower priority should not replace pending message")
	}
	if !inbox.Push(msgFor("u1", TriggerAbsence, now)) {
		t.Errorf("higher priority should replace pending message")
	}
	if inbox.Len() != 1 {
		t.Fatalf("Len = %d, want 1", inbox.Len())
	}

	got := inbox.Drain("u1", 0)
	if len(got) != 1 || got[0].Trigger != TriggerAbsence || got[0].ID == "" {
		t.Fatalf("Drain = %+v", got)
	}
	if inbox.Len() != 0 {
		t.Errorf("inbox not empty after drain")
	}
}

func TestInbox_Cooldown(t *testing.T) {
	inbox := NewInbox(10, day)
	inbox.Push(msgFor("u1", TriggerAbsence, now))
	inbox.Drain("", 0)

	if inbox.Push(msgFor("u1", TriggerCrisisFollowUp, now.Add(time.Hour))) {
		t.Errorf("push inside cooldown accepted")
	}
	if !inbox.Push(msgFor("u1", TriggerAbsence, now.Add(day))) {
		t.Errorf("push after cooldown rejected")
	}

	inbox.Forget("u1")
	if inbox.Len() != 0 {
		t.Errorf("Forget left a pending message")
	}
	if !inbox.Push(msgFor("u1", TriggerAbsence, now.Add(day))) {
		t.Errorf("push after Forget rejected")
	}
}

func TestInbox_CapacityDropsLowestPriority(t *testing.T) {
	inbox := NewInbox(2, 0)
	inbox.Push(msgFor("a", TriggerMilestone, now))
	inbox.Push(msgFor("b", TriggerAbsence, now))

	if inbox.Push(msgFor("c", TriggerMilestone, now)) {
		t.Errorf("equal-priority push into full inbox accepted")
	}
	if !inbox.Push(msgFor("d", TriggerCrisisFollowUp, now)) {
		t.Errorf("higher-priority push into full inbox rejected")
	}

	got := inbox.Drain("", 0)
	if len(got) != 2 || got[0].UserID != "d" || got[1].UserID != "b" {
		t.Fatalf("Drain = %+v, want [d b]", got)
	}
}

func TestInbox_DrainOrderAndLimit(t *testing.T) {
	inbox := NewInbox(10, 0)
	inbox.Push(msgFor("a", TriggerMilestone, now))
	inbox.Push(msgFor("b", TriggerAbsence, now.Add(time.Minute)))
	inbox.Push(msgFor("c", TriggerAbsence, now))
	inbox.Push(msgFor("d", TriggerCrisisFollowUp, now))

	got := inbox.Drain("", 3)
	want := []string{"d", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("Drain returned %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].UserID != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i].UserID, want[i])
		}
	}
	if inbox.Len() != 1 {
		t.Errorf("Len = %d, want 1", inbox.Len())
	}
	if rest := inbox.Drain("nobody", 0); len(rest) != 0 {
		t.Errorf("Drain(nobody) = %+v", rest)
	}
}

type flakyStore struct {
	*memstore.Store
	failFor string
}

func (f *flakyStore) LoadEpisodes(ctx context.Context, userID string) ([]episode.Episode, error) {
	if userID == f.failFor {
		return nil, errors.New("disk on fire")
	}
	return f.Store.LoadEpisodes(ctx, userID)
}

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	save := func(s relationship.UserState) {
		t.Helper()
		if err := store.SaveUser(ctx, s); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
	}
	save(user("absent", 5, 20*day, 10*day))
	save(user("active", 5, 20*day, time.Hour))
	save(user("broken", 5, 20*day, 10*day))
	save(user("crisis", 5, 20*day, 2*day))
	if err := store.SaveEpisode(ctx, episode.Episode{
		ID: "ep-1", UserID: "crisis", CreatedAt: now.Add(-2 * day), Kind: episode.KindCrisis, Significance: 0.9,
	}); err != nil {
		t.Fatalf("SaveEpisode: %v", err)
	}

	inbox := NewInbox(10, day)
	cfg := DefaultConfig()
	cfg.Concurrency = 2
	sw := NewSweeper(&flakyStore{Store: store, failFor: "broken"}, inbox, cfg, zerolog.Nop())
	sw.now = func() time.Time { return now }

	n, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("queued = %d, want 2", n)
	}

	got := sw.Inbox().Drain("", 0)
	if len(got) != 2 || got[0].UserID != "crisis" || got[0].Trigger != TriggerCrisisFollowUp ||
		got[1].UserID != "absent" || got[1].Trigger != TriggerAbsence {
		t.Fatalf("Drain = %+v", got)
	}

	// Drained users are cooling down; the next sweep queues nothing new.
	n, err = sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep queued %d, want 0", n)
	}
}

func TestSweeper_Canceled(t *testing.T) {
	store := memstore.New()
	if err := store.SaveUser(context.Background(), user("u1", 5, 20*day, 10*day)); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sw := NewSweeper(store, NewInbox(10, day), DefaultConfig(), zerolog.Nop())
	if _, err := sw.Sweep(ctx); err == nil || !strings.Contains(err.Error(), "canceled") {
		t.Errorf("Sweep on canceled context = %v, want cancellation error", err)
	}
}

func TestSweeper_LogsUserIDField(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	for _, s := range []relationship.UserState{user("absent", 5, 20*day, 10*day), user("broken", 5, 20*day, 10*day)} {
		if err := store.SaveUser(ctx, s); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
	}

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Concurrency = 1
	sw := NewSweeper(&flakyStore{Store: store, failFor: "broken"}, NewInbox(10, day), cfg, zerolog.New(&buf).Level(zerolog.DebugLevel))
	sw.now = func() time.Time { return now }
	if _, err := sw.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"user_id":"broken"`, `"user_id":"absent"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
	if strings.Contains(out, `"userID"`) {
		t.Errorf("log output uses userID:\n%s", out)
	}
}
