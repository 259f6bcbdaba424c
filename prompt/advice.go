package prompt

import (
	"strings"

	"github.com/aschepis/backscratcher/counsel/emotion"
)

// Advice is the topic category of a message.
type Advice string

const (
	AdviceCrisisSupport  Advice = "crisis_support"
	AdviceMentalHealth   Advice = "mental_health"
	AdviceRelationship   Advice = "relationship"
	AdviceCareer         Advice = "career"
	AdviceFamily         Advice = "family"
	AdviceFriendship     Advice = "friendship"
	AdviceEducation      Advice = "education"
	AdviceHealth         Advice = "health"
	AdviceGeneralSupport Advice = "general_support"
)

type adviceRule struct {
	advice   Advice
	label    string
	keywords []string
}

// adviceRules are checked in order; the first category with a keyword hit
// wins.
var adviceRules = []adviceRule{
	{AdviceMentalHealth, "メンタルヘルス", []string{"うつ", "うつ病", "精神的", "メンタル", "心療内科", "精神科", "カウンセラー", "薬", "治療"}},
	{AdviceRelationship, "恋愛・パートナー", []string{"恋愛", "恋人", "彼氏", "彼女", "片思い", "失恋", "デート", "結婚", "離婚", "パートナー"}},
	{AdviceCareer, "仕事・キャリア", []string{"仕事", "職場", "転職", "就職", "会社", "上司", "同僚", "残業", "給料", "キャリア", "昇進"}},
	{AdviceFamily, "家族", []string{"家族", "親", "父", "母", "兄弟", "姉妹", "子供", "育児", "介護", "実家"}},
	{AdviceFriendship, "友人関係", []string{"友達", "友人", "仲間", "人間関係", "サークル", "飲み会", "付き合い"}},
	{AdviceEducation, "学業・進路", []string{"勉強", "学校", "大学", "受験", "テスト", "試験", "宿題", "成績", "進路"}},
	{AdviceHealth, "健康", []string{"健康", "病気", "体調", "病院", "医者", "症状", "治療", "診察"}},
}

var crisisAdviceKeywords = []string{"死にたい", "消えたい", "自殺", "生きる意味", "限界", "自分を傷つけ", "終わりにしたい"}

var followUps = map[Advice][]string{
	AdviceCrisisSupport: {
		"今、誰か信頼できる人はそばにいますか？",
		"専門のカウンセラーや医師に相談することを考えてみませんか？",
	},
	AdviceMentalHealth: {
		"この状況はいつ頃から続いていますか？",
		"今まで試してみた対処法はありますか？",
	},
	AdviceRelationship: {
		"お相手とはどのくらいお付き合いされているのですか？",
		"この問題について話し合ったことはありますか？",
	},
	AdviceCareer: {
		"現在の職場環境についてもう少し教えてください",
		"理想的な働き方はどのようなものですか？",
	},
	AdviceFamily: {
		"ご家族との関係について詳しく教えてください",
		"この状況がどのくらい続いていますか？",
	},
	AdviceGeneralSupport: {
		"このことで一番困っていることは何ですか？",
		"理想的な状況はどのようなものでしょうか？",
	},
}

// ClassifyAdvice picks the advice category for a masked message. Depression
// or any crisis keyword routes to crisis support ahead of every topic.
func ClassifyAdvice(text string, primary emotion.Emotion) Advice {
	if primary == emotion.Depression || containsAny(text, crisisAdviceKeywords) {
		return AdviceCrisisSupport
	}
	for _, r := range adviceRules {
		if containsAny(text, r.keywords) {
			return r.advice
		}
	}
	return AdviceGeneralSupport
}

// FollowUps returns suggested follow-up questions for a category. Categories
// without their own templates use the general ones.
func FollowUps(a Advice) []string {
	qs, ok := followUps[a]
	if !ok {
		qs = followUps[AdviceGeneralSupport]
	}
	return append([]string(nil), qs...)
}

// Label returns the display name of a.
func (a Advice) Label() string {
	switch a {
	case AdviceCrisisSupport:
		return "危機支援"
	case AdviceGeneralSupport:
		return "一般相談"
	}
	for _, r := range adviceRules {
		if r.advice == a {
			return r.label
		}
	}
	return string(a)
}

// Topics returns the learned-profile topics a classified message counts
// toward. Crisis and general support are not topics.
func (a Advice) Topics() []string {
	if a == AdviceCrisisSupport || a == AdviceGeneralSupport || a == "" {
		return nil
	}
	return []string{a.Label()}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
