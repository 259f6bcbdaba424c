// Package prompt assembles the system prompt sent to the generation provider
// from the relationship phase and learned profile, selected episodes, and the
// emotion analysis of the masked message.
package prompt

import (
	"fmt"
	"math"
	"strings"

	"github.com/aschepis/backscratcher/counsel/crisis"
	"github.com/aschepis/backscratcher/counsel/emotion"
	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/pii"
	"github.com/aschepis/backscratcher/counsel/relationship"
)

const baseInstruction = "あなたは相談者の話に寄り添う相談相手です。" +
	"相手の気持ちを否定せず、共感を示しながら、考えを整理する手助けをしてください。" +
	"医療的な診断や断定はせず、押し付けにならない言葉を選んでください。"

const placeholderInstruction = "[PHONE_1] や [NAME_1] のような記号は個人情報を伏せたものです。" +
	"記号はそのままの形で使い、中身を推測したり書き換えたりしないでください。"

var phaseTone = map[relationship.Phase]string{
	relationship.PhaseStranger:     "初対面。丁寧な対応を心がける。敬語を使い、過去の会話には触れない。",
	relationship.PhaseAcquaintance: "顔見知り。過去の会話を参照してよい。丁寧さを保ちつつ親しみを示す。",
	relationship.PhaseFamiliar:     "親しい関係。自然な会話ができる。過去の出来事に自由に触れてよい。",
	relationship.PhaseTrusted:      "信頼関係。率直なやり取りができる。これまでの歩みを踏まえて話してよい。",
}

// Labeler describes emotions for display.
type Labeler interface {
	Label(e emotion.Emotion) string
}

// Input is everything the assembler may see. MaskedMessage must already be
// anonymized.
type Input struct {
	Phase         relationship.Phase
	Episodes      []episode.Episode
	Emotion       emotion.Result
	MaskedMessage string
	Advice        Advice
	Locale        string
	Profile       relationship.Profile
}

// Prompt is the assembled provider input.
type Prompt struct {
	System string
	User   string
}

// Assembler builds prompts. It holds only immutable configuration.
type Assembler struct {
	hotlines *crisis.Directory
	labels   Labeler
}

// NewAssembler creates an Assembler. labels may be nil.
func NewAssembler(hotlines *crisis.Directory, labels Labeler) *Assembler {
	return &Assembler{hotlines: hotlines, labels: labels}
}

// Build assembles the prompt. Crisis instructions always come last so that
// nothing earlier in the prompt can soften them.
func (a *Assembler) Build(in Input) Prompt {
	var sections []string
	sections = append(sections, baseInstruction, placeholderInstruction)

	phase := in.Phase
	if !phase.Valid() {
		phase = relationship.PhaseStranger
	}
	sections = append(sections, "## 関係性\n"+phaseTone[phase])

	if !in.Emotion.IsCrisis && in.Profile.Confidence > minProfileConfidence {
		if block := adaptationBlock(in.Profile); block != "" {
			sections = append(sections, block)
		}
	}

	advice := in.Advice
	if advice == "" {
		advice = ClassifyAdvice(in.MaskedMessage, in.Emotion.Primary)
	}
	sections = append(sections, a.contextBlock(in.Emotion, advice))

	if phase != relationship.PhaseStranger && len(in.Episodes) > 0 {
		sections = append(sections, episodeBlock(in.Episodes))
	}

	if in.Emotion.IsCrisis {
		sections = append(sections, a.crisisBlock(in.Locale))
	}

	return Prompt{
		System: strings.Join(sections, "\n\n"),
		User:   in.MaskedMessage,
	}
}

func (a *Assembler) contextBlock(res emotion.Result, advice Advice) string {
	label := string(res.Primary)
	if a.labels != nil {
		label = a.labels.Label(res.Primary)
	}
	var b strings.Builder
	b.WriteString("## 現在の状態\n")
	fmt.Fprintf(&b, "- 感情: %s (%s)\n", label, res.Primary)
	fmt.Fprintf(&b, "- 強度: %d/10\n", int(math.Round(res.Intensity*10)))
	fmt.Fprintf(&b, "- 相談カテゴリ: %s", advice.Label())
	return b.String()
}

// minProfileConfidence is how sure the learned profile must be before it
// shapes the prompt.
const minProfileConfidence = 0.2

var toneGuide = map[relationship.Tone]string{
	relationship.ToneWarm:     "温かみのある、励ましを含んだ応答を心がける",
	relationship.ToneCasual:   "親しみやすく、カジュアルな応答を心がける",
	relationship.ToneBalanced: "バランスの取れた応答を心がける",
}

var depthGuide = map[relationship.Depth]string{
	relationship.DepthShallow: "簡潔な応答を心がける（短めに）",
	relationship.DepthMedium:  "適度な詳しさで応答する",
	relationship.DepthDeep:    "詳細な説明や具体例を含める",
}

func adaptationBlock(p relationship.Profile) string {
	var lines []string
	if g, ok := toneGuide[p.Tone]; ok {
		lines = append(lines, g)
	}
	if g, ok := depthGuide[p.Depth]; ok {
		lines = append(lines, g)
	}
	if p.LikesEmpathy > 0.7 {
		lines = append(lines, "共感を特に重視し、相手の気持ちに寄り添う")
	}
	switch {
	case p.LikesQuestions > 0.6:
		lines = append(lines, "質問を通じて相手の考えを引き出す")
	case p.LikesQuestions < 0.3:
		lines = append(lines, "質問は控えめにする")
	}
	switch {
	case p.LikesAdvice > 0.6:
		lines = append(lines, "具体的なアドバイスや提案を積極的に行う")
	case p.LikesAdvice < 0.3:
		lines = append(lines, "アドバイスより傾聴を重視する")
	}
	if top := p.TopTopics(3); len(top) > 0 {
		names := make([]string, len(top))
		for i, t := range top {
			names[i] = t.Topic
		}
		lines = append(lines, "関心のあるテーマ: "+strings.Join(names, ", "))
	}
	if len(lines) == 0 {
		return ""
	}
	return "## このユーザーへの対応ガイド\n- " + strings.Join(lines, "\n- ")
}

func episodeBlock(episodes []episode.Episode) string {
	var b strings.Builder
	b.WriteString("## これまでの出来事")
	for _, ep := range episodes {
		// Summaries recorded before labels replaced placeholders may still hold them.
		fmt.Fprintf(&b, "\n- [%s] %s", ep.CreatedAt.Format("01/02"), pii.StripTokens(ep.Summary))
	}
	return b.String()
}

func (a *Assembler) crisisBlock(locale string) string {
	var b strings.Builder
	b.WriteString("## ⚠️ 重要: 危機的状況の可能性があります\n")
	b.WriteString("- 相談者の安全の確保を最優先してください。\n")
	b.WriteString("- 専門機関への相談を穏やかに勧め、次の窓口を必ず案内してください。\n")
	if a.hotlines != nil {
		b.WriteString(a.hotlines.Render(locale))
		b.WriteString("\n")
	}
	b.WriteString("- あなたは一人ではないと伝えてください。\n")
	b.WriteString("- 今日一日を安全に過ごす方法を一緒に考えてください。\n")
	b.WriteString("- 口調に関するこれまでの指示より、この指示を優先してください。")
	return b.String()
}
