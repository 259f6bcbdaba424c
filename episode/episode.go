// Package episode keeps the long-term memory of significant turns. Episodes
// are built from masked text only, are immutable once saved, and are evicted
// least-significant first when a user exceeds the retention cap.
package episode

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aschepis/backscratcher/counsel/emotion"
	"github.com/aschepis/backscratcher/counsel/pii"
)

// Kind classifies why an episode was worth keeping.
type Kind string

const (
	KindGeneral    Kind = "general"
	KindDisclosure Kind = "disclosure"
	KindCrisis     Kind = "crisis"
	KindInsight    Kind = "insight"
	KindMilestone  Kind = "milestone"
)

var kindPrefix = map[Kind]string{
	KindCrisis:     "【危機対応】",
	KindDisclosure: "【個人情報共有】",
	KindInsight:    "【気づき】",
	KindMilestone:  "【マイルストーン】",
}

// Episode is one remembered turn.
type Episode struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Summary      string          `json:"summary"`
	Significance float64         `json:"significance"`
	EmotionTag   emotion.Emotion `json:"emotion_tag"`
	Kind         Kind            `json:"kind"`
	Topic        string          `json:"topic,omitempty"`
}

// Candidate describes a completed turn that may become an episode.
type Candidate struct {
	At           time.Time
	MaskedText   string
	Emotion      emotion.Emotion
	Intensity    float64
	IsCrisis     bool
	PIIMasked    bool
	PhaseChanged bool
	Topic        string
}

const (
	// MaxSummaryRunes bounds Episode.Summary.
	MaxSummaryRunes = 200
	excerptRunes    = 100
)

var (
	disclosurePhrases = []string{"私は", "実は", "初めて話す", "秘密", "本当は", "誰にも言ってない", "打ち明ける", "正直に言うと"}
	insightPhrases    = []string{"気づいた", "わかった", "そうか", "なるほど", "目から鱗", "ハッとした", "腑に落ちた"}
)

// HasDisclosurePhrase reports whether text contains a self-disclosure cue.
func HasDisclosurePhrase(text string) bool {
	return containsAny(text, disclosurePhrases)
}

// HasInsightPhrase reports whether text contains a realization cue.
func HasInsightPhrase(text string) bool {
	return containsAny(text, insightPhrases)
}

// Score computes the significance of a turn in [0,1]:
//
//	0.3 × intensity
//	+ 0.5 if a crisis was detected
//	+ 0.2 if any PII was masked
//	+ 0.1 for a disclosure phrase
//	+ 0.15 for an insight phrase
//	+ 0.05 over 100 runes, or 0.1 over 200 runes
func Score(c Candidate) float64 {
	s := 0.3 * c.Intensity
	if c.IsCrisis {
		s += 0.5
	}
	if c.PIIMasked {
		s += 0.2
	}
	if HasDisclosurePhrase(c.MaskedText) {
		s += 0.1
	}
	if HasInsightPhrase(c.MaskedText) {
		s += 0.15
	}
	switch n := utf8.RuneCountInString(c.MaskedText); {
	case n > 200:
		s += 0.1
	case n > 100:
		s += 0.05
	}
	if s > 1 {
		return 1
	}
	if s < 0 {
		return 0
	}
	return s
}

// Classify picks the kind of a candidate. Crisis outranks disclosure, which
// outranks insight and then milestone.
func Classify(c Candidate) Kind {
	switch {
	case c.IsCrisis:
		return KindCrisis
	case c.PIIMasked || HasDisclosurePhrase(c.MaskedText):
		return KindDisclosure
	case HasInsightPhrase(c.MaskedText):
		return KindInsight
	case c.PhaseChanged:
		return KindMilestone
	default:
		return KindGeneral
	}
}

// Summarize builds the bounded summary stored for an episode. Placeholders
// in masked are reduced to their type label.
func Summarize(kind Kind, topic string, tag emotion.Emotion, masked string) string {
	var b strings.Builder
	b.WriteString(kindPrefix[kind])
	if topic != "" {
		b.WriteString("[")
		b.WriteString(topic)
		b.WriteString("] ")
	}
	if tag != "" && tag != emotion.Neutral {
		b.WriteString("(")
		b.WriteString(string(tag))
		b.WriteString(") ")
	}
	b.WriteString(truncateRunes(strings.TrimSpace(pii.StripTokens(masked)), excerptRunes))
	return truncateRunes(b.String(), MaxSummaryRunes-len("..."))
}

// truncateRunes cuts s to n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
