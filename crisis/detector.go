// Package crisis detects self-harm risk in user messages and supplies the
// hotline resources that must accompany a reply when risk is detected.
//
// Detection is deliberately independent of emotion classification: a message
// whose dominant emotion is anger or stress can still carry a crisis marker.
package crisis

import (
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/width"
	"gopkg.in/yaml.v3"
)

// DefaultLexicon is the versioned marker lexicon compiled into the binary.
//
//go:embed lexicon.yaml
var DefaultLexicon []byte

// Lexicon is the YAML layout of the marker lexicon.
type Lexicon struct {
	Version    string     `yaml:"version"`
	Escalation Escalation `yaml:"escalation"`
	Categories []Category `yaml:"categories"`
}

// Escalation raises severity when recent history is predominantly negative.
type Escalation struct {
	Window        int     `yaml:"window"`
	NegativeRatio float64 `yaml:"negative_ratio"`
	Boost         float64 `yaml:"boost"`
}

// Category groups markers that share a severity.
type Category struct {
	Name     string   `yaml:"name"`
	Severity float64  `yaml:"severity"`
	Markers  []string `yaml:"markers"`
}

// History summarizes the recent emotional trajectory of a user.
type History struct {
	Negative int
	Total    int
}

// Assessment is the outcome of a crisis check.
type Assessment struct {
	IsCrisis   bool
	Severity   float64
	Categories []string
	Escalated  bool
}

// Detector matches crisis markers. It is immutable after construction and
// safe for concurrent use.
type Detector struct {
	lexicon Lexicon
}

// ParseLexicon decodes and validates a marker lexicon.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("parse crisis lexicon: %w", err)
	}
	if lex.Version == "" {
		return nil, fmt.Errorf("crisis lexicon: version is required")
	}
	if len(lex.Categories) == 0 {
		return nil, fmt.Errorf("crisis lexicon: no categories defined")
	}
	for i, c := range lex.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("crisis lexicon: category %d has no name", i)
		}
		if c.Severity <= 0 || c.Severity > 1 {
			return nil, fmt.Errorf("crisis lexicon: category %s severity %v out of range (0,1]", c.Name, c.Severity)
		}
		if len(c.Markers) == 0 {
			return nil, fmt.Errorf("crisis lexicon: category %s has no markers", c.Name)
		}
		for j, m := range c.Markers {
			lex.Categories[i].Markers[j] = Normalize(m)
		}
	}
	if lex.Escalation.Window <= 0 {
		lex.Escalation.Window = 5
	}
	return &lex, nil
}

// NewDetector builds a Detector from a YAML lexicon.
func NewDetector(data []byte) (*Detector, error) {
	lex, err := ParseLexicon(data)
	if err != nil {
		return nil, err
	}
	return &Detector{lexicon: *lex}, nil
}

// NewDefaultDetector builds a Detector from the embedded lexicon.
func NewDefaultDetector() (*Detector, error) {
	return NewDetector(DefaultLexicon)
}

// Version returns the lexicon version.
func (d *Detector) Version() string {
	return d.lexicon.Version
}

// Window is the number of recent emotions the escalation rule inspects.
func (d *Detector) Window() int {
	return d.lexicon.Escalation.Window
}

// Detect checks text for crisis markers. Any match flags a crisis.
func (d *Detector) Detect(text string, history History) Assessment {
	normalized := Normalize(text)

	var matched []Category
	for _, c := range d.lexicon.Categories {
		for _, m := range c.Markers {
			if strings.Contains(normalized, m) {
				matched = append(matched, c)
				break
			}
		}
	}
	if len(matched) == 0 {
		return Assessment{}
	}

	survive := 1.0
	names := make([]string, 0, len(matched))
	for _, c := range matched {
		survive *= 1 - c.Severity
		names = append(names, c.Name)
	}
	sort.Strings(names)

	a := Assessment{
		IsCrisis:   true,
		Severity:   1 - survive,
		Categories: names,
	}

	esc := d.lexicon.Escalation
	if history.Total > 0 && esc.Boost > 0 {
		ratio := float64(history.Negative) / float64(history.Total)
		if ratio >= esc.NegativeRatio {
			a.Severity += esc.Boost
			a.Escalated = true
		}
	}
	a.Severity = math.Min(a.Severity, 1)
	return a
}

// Normalize folds width variants and strips whitespace so that markers match
// half-width katakana and spaced-out spellings.
func Normalize(text string) string {
	folded := width.Fold.String(text)
	return strings.Join(strings.Fields(folded), "")
}
