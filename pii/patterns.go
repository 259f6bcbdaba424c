package pii

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultPatterns is the versioned matcher battery compiled into the binary.
//
//go:embed patterns.yaml
var DefaultPatterns []byte

// PatternFile is the YAML layout of a matcher battery.
type PatternFile struct {
	Version        string        `yaml:"version"`
	Matchers       []MatcherSpec `yaml:"matchers"`
	NameExclusions []string      `yaml:"name_exclusions"`
}

// MatcherSpec describes one typed matcher. DigitBoundary rejects matches that
// continue into adjacent digits, so a short number format never claims a slice
// of a longer one.
type MatcherSpec struct {
	Type          Type          `yaml:"type"`
	Priority      int           `yaml:"priority"`
	Description   string        `yaml:"description"`
	DigitBoundary bool          `yaml:"digit_boundary"`
	Patterns      []PatternSpec `yaml:"patterns"`
}

// PatternSpec is a single regular expression. Group selects the capture group
// that forms the masked span; 0 masks the whole match.
type PatternSpec struct {
	Regex string `yaml:"regex"`
	Group int    `yaml:"group"`
}

type compiledPattern struct {
	re    *regexp.Regexp
	group int
}

type matcher struct {
	typ           Type
	priority      int
	digitBoundary bool
	patterns      []compiledPattern
}

// ParsePatterns decodes and validates a matcher battery.
func ParsePatterns(data []byte) (*PatternFile, error) {
	var file PatternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pii patterns: %w", err)
	}
	if file.Version == "" {
		return nil, fmt.Errorf("pii patterns: version is required")
	}
	if len(file.Matchers) == 0 {
		return nil, fmt.Errorf("pii patterns: no matchers defined")
	}
	return &file, nil
}

// compile turns the file into an immutable matcher list sorted by priority.
func (f *PatternFile) compile() ([]matcher, error) {
	matchers := make([]matcher, 0, len(f.Matchers))
	for _, spec := range f.Matchers {
		if !spec.Type.Valid() {
			return nil, fmt.Errorf("pii patterns: unknown type %q", spec.Type)
		}
		m := matcher{
			typ:           spec.Type,
			priority:      spec.Priority,
			digitBoundary: spec.DigitBoundary,
		}
		for _, p := range spec.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("pii patterns: compile %s regex %q: %w", spec.Type, p.Regex, err)
			}
			if p.Group < 0 || p.Group > re.NumSubexp() {
				return nil, fmt.Errorf("pii patterns: %s regex %q has no group %d", spec.Type, p.Regex, p.Group)
			}
			m.patterns = append(m.patterns, compiledPattern{re: re, group: p.Group})
		}
		matchers = append(matchers, m)
	}

	sort.SliceStable(matchers, func(i, j int) bool {
		return matchers[i].priority < matchers[j].priority
	})
	return matchers, nil
}
