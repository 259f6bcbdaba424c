package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/counsel/crisis"
	"github.com/aschepis/backscratcher/counsel/emotion"
	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/relationship"
)

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	dir, err := crisis.NewDefaultDirectory()
	if err != nil {
		t.Fatalf("NewDefaultDirectory: %v", err)
	}
	return NewAssembler(dir, nil)
}

func testEpisodes() []episode.Episode {
	return []episode.Episode{{
		ID:           "ep-1",
		UserID:       "u1",
		CreatedAt:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Summary:      "【気づき】[career] 上司との関係を見直せた",
		Significance: 0.6,
		EmotionTag:   emotion.Hope,
	}}
}

func TestBuild_StrangerHasNoEpisodes(t *testing.T) {
	a := newTestAssembler(t)

	p := a.Build(Input{
		Phase:         relationship.PhaseStranger,
		Episodes:      testEpisodes(),
		Emotion:       emotion.Result{Primary: emotion.Neutral},
		MaskedMessage: "こんにちは",
	})

	if !strings.Contains(p.System, phaseTone[relationship.PhaseStranger]) {
		t.Errorf("missing stranger tone")
	}
	if strings.Contains(p.System, "これまでの出来事") || strings.Contains(p.System, "上司との関係") {
		t.Errorf("stranger prompt must not reference episodes:\n%s", p.System)
	}
	if strings.Contains(p.System, "⚠️") {
		t.Errorf("non-crisis prompt contains crisis instructions")
	}
	if p.User != "こんにちは" {
		t.Errorf("User = %q", p.User)
	}
}

func TestBuild_AcquaintanceReferencesEpisodes(t *testing.T) {
	a := newTestAssembler(t)

	p := a.Build(Input{
		Phase:         relationship.PhaseAcquaintance,
		Episodes:      testEpisodes(),
		Emotion:       emotion.Result{Primary: emotion.Anxiety, Intensity: 0.25},
		MaskedMessage: "また仕事のことで相談です",
	})

	if !strings.Contains(p.System, "- [06/01] 【気づき】[career] 上司との関係を見直せた") {
		t.Errorf("episode line missing:\n%s", p.System)
	}
	if !strings.Contains(p.System, "- 強度: 3/10") {
		t.Errorf("intensity line missing:\n%s", p.System)
	}
	if !strings.Contains(p.System, "- 相談カテゴリ: 仕事・キャリア") {
		t.Errorf("advice line missing:\n%s", p.System)
	}
}

func TestBuild_EpisodePlaceholdersRenderedAsLabels(t *testing.T) {
	a := newTestAssembler(t)
	episodes := testEpisodes()
	episodes[0].Summary = "【個人情報共有】実は私の番号は[PHONE_1]です"

	p := a.Build(Input{
		Phase:         relationship.PhaseAcquaintance,
		Episodes:      episodes,
		Emotion:       emotion.Result{Primary: emotion.Neutral},
		MaskedMessage: "妻の番号は[PHONE_1]です",
	})

	if strings.Contains(p.System, "[PHONE_1]") {
		t.Errorf("system prompt carries an episode placeholder:\n%s", p.System)
	}
	if !strings.Contains(p.System, "実は私の番号は（電話番号）です") {
		t.Errorf("episode line missing:\n%s", p.System)
	}
	if p.User != "妻の番号は[PHONE_1]です" {
		t.Errorf("User = %q", p.User)
	}
}

func learnedProfile() relationship.Profile {
	p := relationship.NewProfile()
	p.Tone = relationship.ToneWarm
	p.Depth = relationship.DepthShallow
	p.LikesEmpathy = 0.8
	p.LikesQuestions = 0.2
	p.LikesAdvice = 0.65
	p.Confidence = 0.3
	p.Topics = map[string]relationship.TopicAffinity{
		"仕事・キャリア": {Topic: "仕事・キャリア", Score: 0.4},
		"家族":      {Topic: "家族", Score: 0.3},
		"趣味":      {Topic: "趣味", Score: 0.2},
		"お金":      {Topic: "お金", Score: 0.1},
	}
	return p
}

func TestBuild_AdaptationGuide(t *testing.T) {
	a := newTestAssembler(t)

	p := a.Build(Input{
		Phase:         relationship.PhaseAcquaintance,
		Emotion:       emotion.Result{Primary: emotion.Sadness, Intensity: 0.4},
		MaskedMessage: "また相談です",
		Profile:       learnedProfile(),
	})

	for _, want := range []string{
		"## このユーザーへの対応ガイド",
		"- 温かみのある、励ましを含んだ応答を心がける",
		"- 簡潔な応答を心がける（短めに）",
		"- 共感を特に重視し、相手の気持ちに寄り添う",
		"- 質問は控えめにする",
		"- 具体的なアドバイスや提案を積極的に行う",
		"- 関心のあるテーマ: 仕事・キャリア, 家族, 趣味",
	} {
		if !strings.Contains(p.System, want) {
			t.Errorf("missing %q:\n%s", want, p.System)
		}
	}
	if strings.Contains(p.System, "お金") {
		t.Errorf("only the top three topics belong in the guide:\n%s", p.System)
	}
	if strings.Index(p.System, "## 関係性") > strings.Index(p.System, "## このユーザーへの対応ガイド") {
		t.Errorf("guide must follow the relationship block:\n%s", p.System)
	}
}

func TestBuild_AdaptationGuideNeedsConfidence(t *testing.T) {
	a := newTestAssembler(t)
	profile := learnedProfile()
	profile.Confidence = 0.2

	p := a.Build(Input{
		Phase:         relationship.PhaseAcquaintance,
		Emotion:       emotion.Result{Primary: emotion.Neutral},
		MaskedMessage: "こんにちは",
		Profile:       profile,
	})
	if strings.Contains(p.System, "対応ガイド") {
		t.Errorf("low-confidence profile shaped the prompt:\n%s", p.System)
	}
}

func TestBuild_CrisisDropsAdaptationGuide(t *testing.T) {
	a := newTestAssembler(t)
	profile := learnedProfile()
	profile.Tone = relationship.ToneCasual

	p := a.Build(Input{
		Phase:         relationship.PhaseTrusted,
		Emotion:       emotion.Result{Primary: emotion.Depression, IsCrisis: true, CrisisSeverity: 1},
		MaskedMessage: "死にたい",
		Profile:       profile,
	})
	if strings.Contains(p.System, "カジュアル") || strings.Contains(p.System, "対応ガイド") {
		t.Errorf("crisis prompt carries the learned tone:\n%s", p.System)
	}
}

func TestBuild_CrisisInstructionsLast(t *testing.T) {
	a := newTestAssembler(t)

	for _, phase := range relationship.Phases {
		t.Run(string(phase), func(t *testing.T) {
			p := a.Build(Input{
				Phase:         phase,
				Episodes:      testEpisodes(),
				Emotion:       emotion.Result{Primary: emotion.Depression, Intensity: 0.5, IsCrisis: true},
				MaskedMessage: "死にたい",
			})

			crisisAt := strings.Index(p.System, "⚠️ 重要")
			toneAt := strings.Index(p.System, phaseTone[phase])
			if crisisAt < 0 || toneAt < 0 || crisisAt < toneAt {
				t.Fatalf("crisis block must follow phase tone (crisis %d, tone %d)", crisisAt, toneAt)
			}
			if episodesAt := strings.Index(p.System, "これまでの出来事"); episodesAt > crisisAt {
				t.Errorf("episodes appear after crisis block")
			}
			for _, contact := range []string{"0570-783-556", "0120-279-338", "0570-064-556"} {
				if !strings.Contains(p.System[crisisAt:], contact) {
					t.Errorf("crisis block missing %s", contact)
				}
			}
			if !strings.HasSuffix(p.System, "この指示を優先してください。") {
				t.Errorf("prompt does not end with crisis instructions")
			}
		})
	}
}

func TestClassifyAdvice(t *testing.T) {
	tests := []struct {
		text    string
		primary emotion.Emotion
		want    Advice
	}{
		{"死にたい", emotion.Sadness, AdviceCrisisSupport},
		{"仕事がつらい", emotion.Depression, AdviceCrisisSupport},
		{"薬を飲んでいる", emotion.Neutral, AdviceMentalHealth},
		{"彼氏と喧嘩した", emotion.Anger, AdviceRelationship},
		{"仕事で上司に怒られた", emotion.Sadness, AdviceCareer},
		{"母が入院した", emotion.Anxiety, AdviceFamily},
		{"友達と喧嘩した", emotion.Anger, AdviceFriendship},
		{"試験が不安", emotion.Anxiety, AdviceEducation},
		{"体調が悪い", emotion.Neutral, AdviceHealth},
		{"今日は雨", emotion.Neutral, AdviceGeneralSupport},
	}
	for _, tt := range tests {
		if got := ClassifyAdvice(tt.text, tt.primary); got != tt.want {
			t.Errorf("ClassifyAdvice(%q, %s) = %s, want %s", tt.text, tt.primary, got, tt.want)
		}
	}
}

func TestFollowUps(t *testing.T) {
	if got := FollowUps(AdviceCareer); len(got) != 2 || got[1] != "理想的な働き方はどのようなものですか？" {
		t.Errorf("FollowUps(career) = %v", got)
	}
	general := FollowUps(AdviceGeneralSupport)
	if got := FollowUps(AdviceFriendship); len(got) != 2 || got[0] != general[0] {
		t.Errorf("FollowUps(friendship) = %v, want general templates", got)
	}

	got := FollowUps(AdviceCrisisSupport)
	got[0] = "changed"
	if FollowUps(AdviceCrisisSupport)[0] == "changed" {
		t.Errorf("FollowUps must return a copy")
	}
}
