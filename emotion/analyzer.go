package emotion

import (
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aschepis/backscratcher/counsel/crisis"
	"gopkg.in/yaml.v3"
)

// DefaultLexicon is the versioned emotion lexicon compiled into the binary.
//
//go:embed lexicon.yaml
var DefaultLexicon []byte

// Lexicon is the YAML layout of the emotion lexicon.
type Lexicon struct {
	Version          string           `yaml:"version"`
	IntensityScale   float64          `yaml:"intensity_scale"`
	Priority         []Emotion        `yaml:"priority"`
	Emotions         []EmotionEntry   `yaml:"emotions"`
	Negation         Negation         `yaml:"negation"`
	Emphasis         Emphasis         `yaml:"emphasis"`
	CompoundDistress CompoundDistress `yaml:"compound_distress"`
}

// EmotionEntry holds the keywords for one emotion.
type EmotionEntry struct {
	Name     Emotion  `yaml:"name"`
	Label    string   `yaml:"label"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
	Emojis   []string `yaml:"emojis"`
}

// Negation shifts scores when any negation word is present.
type Negation struct {
	Words       []string            `yaml:"words"`
	Adjustments map[Emotion]float64 `yaml:"adjustments"`
}

// Emphasis scales every score when any emphasis word is present.
type Emphasis struct {
	Words      []string `yaml:"words"`
	Multiplier float64  `yaml:"multiplier"`
}

// CompoundDistress raises the severity of a lexicon-flagged crisis when
// several negative emotions are strong at once. It never flags a crisis by
// itself.
type CompoundDistress struct {
	Emotions []Emotion `yaml:"emotions"`
	MinScore float64   `yaml:"min_score"`
	MinCount int       `yaml:"min_count"`
	Severity float64   `yaml:"severity"`
}

// CompoundDistressCategory is appended to the crisis categories when the
// compound distress rule raised the severity.
const CompoundDistressCategory = "compound_distress"

// Analyzer scores emotions and runs crisis detection on the same text. It is
// immutable after construction and safe for concurrent use.
type Analyzer struct {
	lexicon  Lexicon
	labels   map[Emotion]string
	rank     map[Emotion]int
	detector *crisis.Detector
}

// NewAnalyzer builds an Analyzer from a YAML lexicon and a crisis detector.
func NewAnalyzer(data []byte, detector *crisis.Detector) (*Analyzer, error) {
	if detector == nil {
		return nil, fmt.Errorf("crisis detector is required")
	}
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("parse emotion lexicon: %w", err)
	}
	if lex.Version == "" {
		return nil, fmt.Errorf("emotion lexicon: version is required")
	}
	if lex.IntensityScale <= 0 {
		return nil, fmt.Errorf("emotion lexicon: intensity_scale must be positive")
	}
	if lex.Emphasis.Multiplier == 0 {
		lex.Emphasis.Multiplier = 1
	}

	labels := make(map[Emotion]string, len(lex.Emotions))
	for i, e := range lex.Emotions {
		if !e.Name.Valid() || e.Name == Neutral {
			return nil, fmt.Errorf("emotion lexicon: unknown emotion %q", e.Name)
		}
		if e.Weight <= 0 {
			return nil, fmt.Errorf("emotion lexicon: %s weight must be positive", e.Name)
		}
		for j, k := range e.Keywords {
			lex.Emotions[i].Keywords[j] = crisis.Normalize(k)
		}
		labels[e.Name] = e.Label
	}
	labels[Neutral] = "中性・平常"

	rank := make(map[Emotion]int, len(lex.Priority))
	for i, e := range lex.Priority {
		rank[e] = i
	}
	for _, e := range lex.Emotions {
		if _, ok := rank[e.Name]; !ok {
			return nil, fmt.Errorf("emotion lexicon: %s missing from priority", e.Name)
		}
	}

	return &Analyzer{
		lexicon:  lex,
		labels:   labels,
		rank:     rank,
		detector: detector,
	}, nil
}

// NewDefaultAnalyzer builds an Analyzer from the embedded lexicon.
func NewDefaultAnalyzer(detector *crisis.Detector) (*Analyzer, error) {
	return NewAnalyzer(DefaultLexicon, detector)
}

// Label returns the human-readable description of e.
func (a *Analyzer) Label(e Emotion) string {
	if l, ok := a.labels[e]; ok {
		return l
	}
	return string(e)
}

// Analyze classifies text. history is the user's recent primary emotions,
// oldest first; it only influences crisis severity escalation.
func (a *Analyzer) Analyze(text string, history []Emotion) Result {
	normalized := crisis.Normalize(text)
	scores := a.score(text, normalized)

	res := Result{Primary: Neutral, Scores: scores}
	primary, max := a.primary(scores)
	if max > 0 {
		res.Primary = primary
		res.Intensity = math.Min(max/a.lexicon.IntensityScale, 1)
		res.Secondary = a.secondary(scores, primary)
	}

	window := history
	if n := a.detector.Window(); len(window) > n {
		window = window[len(window)-n:]
	}
	neg, total := NegativeShare(window)
	assessment := a.detector.Detect(text, crisis.History{Negative: neg, Total: total})
	res.IsCrisis = assessment.IsCrisis
	res.CrisisSeverity = assessment.Severity
	res.CrisisCategories = assessment.Categories

	if cd := a.lexicon.CompoundDistress; res.IsCrisis && cd.MinCount > 0 {
		strong := 0
		for _, e := range cd.Emotions {
			if scores[e] > cd.MinScore {
				strong++
			}
		}
		if strong >= cd.MinCount {
			res.CrisisSeverity = 1 - (1-res.CrisisSeverity)*(1-cd.Severity)
			res.CrisisCategories = append(res.CrisisCategories, CompoundDistressCategory)
		}
	}
	return res
}

func (a *Analyzer) score(raw, normalized string) map[Emotion]float64 {
	scores := make(map[Emotion]float64, len(a.lexicon.Emotions))
	for _, e := range a.lexicon.Emotions {
		var s float64
		for _, k := range e.Keywords {
			s += float64(strings.Count(normalized, k)) * e.Weight
		}
		for _, emoji := range e.Emojis {
			s += float64(strings.Count(raw, emoji)) * e.Weight
		}
		scores[e.Name] = s
	}

	if containsAny(normalized, a.lexicon.Negation.Words) {
		for e, delta := range a.lexicon.Negation.Adjustments {
			scores[e] = math.Max(0, scores[e]+delta)
		}
	}
	if containsAny(normalized, a.lexicon.Emphasis.Words) {
		for e := range scores {
			scores[e] *= a.lexicon.Emphasis.Multiplier
		}
	}
	return scores
}

// primary returns the highest-scoring emotion, breaking ties by priority.
func (a *Analyzer) primary(scores map[Emotion]float64) (Emotion, float64) {
	best, max := Neutral, 0.0
	for _, e := range a.lexicon.Priority {
		if s := scores[e]; s > max {
			best, max = e, s
		}
	}
	return best, max
}

func (a *Analyzer) secondary(scores map[Emotion]float64, primary Emotion) []Emotion {
	var out []Emotion
	for e, s := range scores {
		if e != primary && s > 0 {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if scores[out[i]] != scores[out[j]] {
			return scores[out[i]] > scores[out[j]]
		}
		return a.rank[out[i]] < a.rank[out[j]]
	})
	return out
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
