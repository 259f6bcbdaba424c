package relationship

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/counsel/emotion"
)

// Tone is the response tone learned for a user.
type Tone string

const (
	ToneBalanced Tone = "BALANCED"
	ToneWarm     Tone = "WARM"
	ToneCasual   Tone = "CASUAL"
)

// Depth is how detailed replies to a user should be.
type Depth string

const (
	DepthShallow Depth = "SHALLOW"
	DepthMedium  Depth = "MEDIUM"
	DepthDeep    Depth = "DEEP"
)

// Profile learning rates.
const (
	preferenceStep = 0.02

	classifiedTopicStart = 0.2
	classifiedTopicStep  = 0.05
	keywordTopicStart    = 0.1
	keywordTopicStep     = 0.02
	topicStaleAfter      = 30 * 24 * time.Hour
	topicStaleDecay      = 0.01

	detailLongRunes  = 300
	detailShortRunes = 50

	// MaxProfileTopics bounds Profile.Topics. The lowest affinity goes first.
	MaxProfileTopics = 24
)

// TopicAffinity is how much a user talks about one topic.
type TopicAffinity struct {
	Topic         string    `json:"topic"`
	Score         float64   `json:"score"`
	Mentions      int       `json:"mentions"`
	LastMentioned time.Time `json:"last_mentioned"`
}

// Profile is the communication style learned from a user's turns. The
// preferences are in [0, 1].
type Profile struct {
	Tone           Tone                     `json:"tone"`
	Depth          Depth                    `json:"depth"`
	Topics         map[string]TopicAffinity `json:"topics,omitempty"`
	LikesQuestions float64                  `json:"likes_questions"`
	LikesAdvice    float64                  `json:"likes_advice"`
	LikesEmpathy   float64                  `json:"likes_empathy"`
	LikesDetail    float64                  `json:"likes_detail"`
	Confidence     float64                  `json:"confidence"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

// NewProfile returns the profile of a user nothing has been learned about.
func NewProfile() Profile {
	return Profile{
		Tone:           ToneBalanced,
		Depth:          DepthMedium,
		LikesQuestions: 0.5,
		LikesAdvice:    0.5,
		LikesEmpathy:   0.7,
		LikesDetail:    0.5,
	}
}

type topicRule struct {
	topic    string
	keywords []string
}

// topicRules share their names with the advice category labels where the
// two overlap, so classified and keyword topics land on the same entry.
var topicRules = []topicRule{
	{"仕事・キャリア", []string{"仕事", "職場", "会社", "上司", "同僚", "転職", "キャリア", "残業"}},
	{"恋愛・パートナー", []string{"恋愛", "彼氏", "彼女", "パートナー", "デート", "告白", "失恋", "結婚"}},
	{"家族", []string{"家族", "親", "父", "母", "兄弟", "子供", "育児", "介護"}},
	{"友人関係", []string{"友達", "友人", "人間関係", "仲間", "付き合い"}},
	{"健康", []string{"健康", "病気", "体調", "病院", "治療", "メンタル", "うつ", "睡眠"}},
	{"お金", []string{"お金", "給料", "貯金", "借金", "投資", "節約"}},
	{"将来", []string{"将来", "夢", "目標", "進路", "人生設計", "未来"}},
	{"趣味", []string{"趣味", "ゲーム", "音楽", "映画", "旅行", "スポーツ", "読書"}},
	{"学業・進路", []string{"勉強", "学校", "大学", "受験", "テスト", "成績"}},
	{"ストレス", []string{"ストレス", "プレッシャー", "不安", "心配", "疲れ"}},
	{"自己肯定感", []string{"自信", "自己肯定", "価値", "存在意義", "自分らしさ"}},
}

var questionWords = []string{"なんで", "どうして", "なぜ", "どうすれば", "どうしたら"}

// DetectTopics returns the topics whose keywords occur in text, in a fixed
// order.
func DetectTopics(text string) []string {
	var topics []string
	for _, r := range topicRules {
		if containsAny(text, r.keywords) {
			topics = append(topics, r.topic)
		}
	}
	return topics
}

// UpdateProfile learns from one turn. counts are the user's emotion counts
// including this turn. The input profile is not modified.
func UpdateProfile(p Profile, sig Signal, counts map[emotion.Emotion]int) Profile {
	p = p.normalize().clone()
	p.updateTopics(sig)
	p.learnPreferences(sig)

	p.Tone = toneFor(counts)
	switch {
	case p.LikesDetail > 0.7:
		p.Depth = DepthDeep
	case p.LikesDetail < 0.3:
		p.Depth = DepthShallow
	default:
		p.Depth = DepthMedium
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	p.Confidence = math.Min(1, float64(len(p.Topics))*0.05+float64(total)*0.01)
	if sig.At.After(p.UpdatedAt) {
		p.UpdatedAt = sig.At
	}
	return p
}

func (p *Profile) updateTopics(sig Signal) {
	if p.Topics == nil {
		p.Topics = make(map[string]TopicAffinity)
	}
	mention := func(topic string, start, step float64) {
		a, ok := p.Topics[topic]
		if !ok {
			p.Topics[topic] = TopicAffinity{Topic: topic, Score: start, Mentions: 1, LastMentioned: sig.At}
			return
		}
		a.Mentions++
		a.Score = math.Min(1, a.Score+step)
		a.LastMentioned = sig.At
		p.Topics[topic] = a
	}

	classified := make(map[string]bool, len(sig.Topics))
	for _, topic := range sig.Topics {
		if topic == "" || classified[topic] {
			continue
		}
		classified[topic] = true
		mention(topic, classifiedTopicStart, classifiedTopicStep)
	}
	for _, topic := range DetectTopics(sig.Text) {
		if !classified[topic] {
			mention(topic, keywordTopicStart, keywordTopicStep)
		}
	}

	for topic, a := range p.Topics {
		if !a.LastMentioned.IsZero() && sig.At.Sub(a.LastMentioned) > topicStaleAfter {
			a.Score = math.Max(0, a.Score-topicStaleDecay)
			p.Topics[topic] = a
		}
	}
	for len(p.Topics) > MaxProfileTopics {
		top := p.TopTopics(len(p.Topics))
		delete(p.Topics, top[len(top)-1].Topic)
	}
}

func (p *Profile) learnPreferences(sig Signal) {
	switch {
	case sig.MessageRunes > detailLongRunes:
		p.LikesDetail = clamp(p.LikesDetail + preferenceStep)
	case sig.MessageRunes < detailShortRunes:
		p.LikesDetail = clamp(p.LikesDetail - preferenceStep)
	}
	if strings.ContainsAny(sig.Text, "?？") {
		p.LikesAdvice = clamp(p.LikesAdvice + preferenceStep*0.5)
	}
	if isToneNegative(sig.Primary) || sig.Intensity > 0.6 {
		p.LikesEmpathy = clamp(p.LikesEmpathy + preferenceStep)
	}
	if containsAny(sig.Text, questionWords) {
		p.LikesQuestions = clamp(p.LikesQuestions + preferenceStep)
	}
}

// toneFor warms up for users who are mostly negative and relaxes for users
// who are mostly positive.
func toneFor(counts map[emotion.Emotion]int) Tone {
	var negative, positive, total int
	for e, n := range counts {
		total += n
		switch {
		case isToneNegative(e):
			negative += n
		case e.Positive():
			positive += n
		}
	}
	if total == 0 {
		return ToneBalanced
	}
	ratio := float64(negative) / float64(total)
	switch {
	case ratio > 0.6:
		return ToneWarm
	case ratio < 0.3 && positive > negative:
		return ToneCasual
	default:
		return ToneBalanced
	}
}

// isToneNegative also counts confusion, which does not drive the sentiment
// trend but still calls for a gentler tone.
func isToneNegative(e emotion.Emotion) bool {
	return e.Negative() || e == emotion.Confusion
}

// TopTopics returns up to n topics by descending affinity, ties by name.
func (p Profile) TopTopics(n int) []TopicAffinity {
	out := make([]TopicAffinity, 0, len(p.Topics))
	for _, a := range p.Topics {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Topic < out[j].Topic
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// normalize fills a profile read from storage before profiles existed and
// clamps the preferences.
func (p Profile) normalize() Profile {
	if p.Tone == "" && p.Depth == "" && p.Confidence == 0 && len(p.Topics) == 0 {
		updated := p.UpdatedAt
		p = NewProfile()
		p.UpdatedAt = updated
	}
	if p.Tone == "" {
		p.Tone = ToneBalanced
	}
	if p.Depth == "" {
		p.Depth = DepthMedium
	}
	p.LikesQuestions = clamp(p.LikesQuestions)
	p.LikesAdvice = clamp(p.LikesAdvice)
	p.LikesEmpathy = clamp(p.LikesEmpathy)
	p.LikesDetail = clamp(p.LikesDetail)
	p.Confidence = clamp(p.Confidence)
	return p
}

func (p Profile) clone() Profile {
	if p.Topics != nil {
		topics := make(map[string]TopicAffinity, len(p.Topics))
		for k, v := range p.Topics {
			topics[k] = v
		}
		p.Topics = topics
	}
	return p
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
