// Package emotion classifies the emotional content of a message with a
// weighted keyword lexicon and attaches the crisis assessment for the same
// text.
package emotion

// Emotion is one of the closed set of recognized emotions.
type Emotion string

const (
	Happiness  Emotion = "happiness"
	Sadness    Emotion = "sadness"
	Anxiety    Emotion = "anxiety"
	Anger      Emotion = "anger"
	Loneliness Emotion = "loneliness"
	Depression Emotion = "depression"
	Stress     Emotion = "stress"
	Confusion  Emotion = "confusion"
	Hope       Emotion = "hope"
	Neutral    Emotion = "neutral"
)

// All lists every emotion, neutral last.
var All = []Emotion{Happiness, Sadness, Anxiety, Anger, Loneliness, Depression, Stress, Confusion, Hope, Neutral}

// Valid reports whether e is a recognized emotion.
func (e Emotion) Valid() bool {
	for _, known := range All {
		if e == known {
			return true
		}
	}
	return false
}

// Positive reports whether e counts toward an improving trend.
func (e Emotion) Positive() bool {
	return e == Happiness || e == Hope
}

// Negative reports whether e counts toward a declining trend.
func (e Emotion) Negative() bool {
	switch e {
	case Sadness, Anxiety, Anger, Loneliness, Depression, Stress:
		return true
	}
	return false
}

// Result is the analysis of a single message. CrisisSeverity is independent
// of Primary.
type Result struct {
	Primary          Emotion             `json:"primary"`
	Intensity        float64             `json:"intensity"`
	Secondary        []Emotion           `json:"secondary,omitempty"`
	IsCrisis         bool                `json:"is_crisis"`
	CrisisSeverity   float64             `json:"crisis_severity"`
	CrisisCategories []string            `json:"crisis_categories,omitempty"`
	Scores           map[Emotion]float64 `json:"-"`
}

// Trend is the direction of a user's recent sentiment.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// trendRatio is the share of positive or negative samples needed to call a
// direction.
const trendRatio = 0.6

// TrendOf classifies a sequence of emotions. Neutral and ambiguous emotions
// are ignored.
func TrendOf(recent []Emotion) Trend {
	var pos, neg int
	for _, e := range recent {
		switch {
		case e.Positive():
			pos++
		case e.Negative():
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return TrendStable
	}
	switch {
	case float64(pos)/float64(total) > trendRatio:
		return TrendImproving
	case float64(neg)/float64(total) > trendRatio:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// NegativeShare returns how many of recent are negative and how many were
// inspected.
func NegativeShare(recent []Emotion) (negative, total int) {
	for _, e := range recent {
		if e.Negative() {
			negative++
		}
	}
	return negative, len(recent)
}
