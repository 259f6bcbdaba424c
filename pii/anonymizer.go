package pii

import (
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// Anonymizer masks PII with an ordered, immutable matcher battery. It is safe
// for concurrent use.
type Anonymizer struct {
	version    string
	matchers   []matcher
	exclusions map[string]struct{}
}

// New builds an Anonymizer from a YAML matcher battery.
func New(patterns []byte) (*Anonymizer, error) {
	file, err := ParsePatterns(patterns)
	if err != nil {
		return nil, err
	}
	matchers, err := file.compile()
	if err != nil {
		return nil, err
	}
	exclusions := make(map[string]struct{}, len(file.NameExclusions))
	for _, w := range file.NameExclusions {
		exclusions[w] = struct{}{}
	}
	return &Anonymizer{
		version:    file.Version,
		matchers:   matchers,
		exclusions: exclusions,
	}, nil
}

// NewDefault builds an Anonymizer from the embedded battery.
func NewDefault() (*Anonymizer, error) {
	return New(DefaultPatterns)
}

// Version returns the version string of the loaded battery.
func (a *Anonymizer) Version() string {
	return a.version
}

// Detect returns the accepted PII spans in text ordered by position.
// Matchers run in priority order and a span overlapping one accepted by an
// earlier matcher is dropped. Matching runs on a width-folded copy of text so
// full-width digits and letters are caught; offsets and values refer to text.
func (a *Anonymizer) Detect(text string) []Finding {
	findings, _ := a.detect(text)
	return findings
}

func (a *Anonymizer) detect(text string) ([]Finding, string) {
	f := foldWidth(text)
	var accepted []Finding
	for _, m := range a.matchers {
		for _, p := range m.patterns {
			for _, loc := range p.re.FindAllStringSubmatchIndex(f.text, -1) {
				fs, fe := loc[2*p.group], loc[2*p.group+1]
				if fs < 0 || fs == fe {
					continue
				}
				if m.digitBoundary && !atDigitBoundary(f.text, fs, fe) {
					continue
				}
				if m.typ == TypeName {
					if _, skip := a.exclusions[strings.TrimSpace(f.text[fs:fe])]; skip {
						continue
					}
				}
				start, end := f.original(fs, fe)
				if overlapsAny(accepted, start, end) {
					continue
				}
				accepted = append(accepted, Finding{Type: m.typ, Value: text[start:end], Start: start, End: end})
			}
		}
	}
	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].Start < accepted[j].Start
	})
	return accepted, f.text
}

// folded is a width-folded copy of a string with, for every byte of the copy,
// the byte span of the original rune it came from.
type folded struct {
	text   string
	starts []int
	ends   []int
}

func foldWidth(text string) folded {
	var b strings.Builder
	b.Grow(len(text))
	f := folded{
		starts: make([]int, 0, len(text)),
		ends:   make([]int, 0, len(text)),
	}
	for i, r := range text {
		size := utf8.RuneLen(r)
		if r == utf8.RuneError {
			_, size = utf8.DecodeRuneInString(text[i:])
		}
		out := width.Fold.String(text[i : i+size])
		b.WriteString(out)
		for range len(out) {
			f.starts = append(f.starts, i)
			f.ends = append(f.ends, i+size)
		}
	}
	f.text = b.String()
	return f
}

// original maps the folded span [start, end) back to the original text.
func (f folded) original(start, end int) (int, int) {
	return f.starts[start], f.ends[end-1]
}

// Anonymize replaces every detected span with a placeholder. Ordinals are
// 1-based per type in order of first appearance, and a repeated value of the
// same type reuses its placeholder. Ordinals whose placeholder already occurs
// literally in text are skipped so the mapping stays unambiguous.
func (a *Anonymizer) Anonymize(text string) (string, Mapping) {
	findings, foldedText := a.detect(text)
	if len(findings) == 0 {
		return text, nil
	}

	type key struct {
		typ   Type
		value string
	}
	issued := make(map[key]string, len(findings))
	next := make(map[Type]int, len(Types))
	var mapping Mapping

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, f := range findings {
		b.WriteString(text[cursor:f.Start])
		k := key{typ: f.Type, value: f.Value}
		token, ok := issued[k]
		if !ok {
			n := next[f.Type]
			for {
				n++
				tok := f.Type.Token(n)
				if !strings.Contains(text, tok) && !strings.Contains(foldedText, tok) {
					break
				}
			}
			next[f.Type] = n
			token = f.Type.Token(n)
			issued[k] = token
			mapping = append(mapping, Entry{Token: token, Original: f.Value, Type: f.Type, Ordinal: n})
		}
		b.WriteString(token)
		cursor = f.End
	}
	b.WriteString(text[cursor:])
	return b.String(), mapping
}

// Deanonymize restores original values with a single literal substitution
// pass over the mapping. Placeholders not present in the mapping are left
// verbatim; callers can report them with UnknownTokens.
func (a *Anonymizer) Deanonymize(text string, mapping Mapping) string {
	return Restore(text, mapping)
}

// Restore is Deanonymize without an Anonymizer.
func Restore(text string, mapping Mapping) string {
	if len(mapping) == 0 {
		return text
	}
	pairs := make([]string, 0, 2*len(mapping))
	for _, e := range mapping {
		pairs = append(pairs, e.Token, e.Original)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// UnknownTokens returns placeholders of the vocabulary that appear in text but
// are not in mapping, in order of appearance.
func UnknownTokens(text string, mapping Mapping) []string {
	var unknown []string
	for _, tok := range tokenPattern.FindAllString(text, -1) {
		if _, ok := mapping.Lookup(tok); !ok {
			unknown = append(unknown, tok)
		}
	}
	return unknown
}

func overlapsAny(spans []Finding, start, end int) bool {
	for _, s := range spans {
		if start < s.End && s.Start < end {
			return true
		}
	}
	return false
}

// atDigitBoundary reports whether text[start:end] is not glued to further
// digits, either directly or through a single hyphen. text is width-folded.
func atDigitBoundary(text string, start, end int) bool {
	if start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if isDigit(r) {
			return false
		}
		if isHyphen(r) && start-size > 0 {
			if p, _ := utf8.DecodeLastRuneInString(text[:start-size]); isDigit(p) {
				return false
			}
		}
	}
	if end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		if isDigit(r) {
			return false
		}
		if isHyphen(r) && end+size < len(text) {
			if n, _ := utf8.DecodeRuneInString(text[end+size:]); isDigit(n) {
				return false
			}
		}
	}
	return true
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// isHyphen matches the dash forms Japanese input methods produce between
// digit groups. Full-width forms are already folded to ASCII.
func isHyphen(r rune) bool {
	switch r {
	case '-', '‐', '−', 'ー':
		return true
	}
	return false
}
