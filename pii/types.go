// Package pii masks personally identifiable information before text leaves
// the process and restores it in generated replies.
//
// Anonymize replaces each detected span with a typed placeholder such as
// [PHONE_1] and returns the mapping needed to reverse it. The mapping is
// request-scoped: it is never persisted and never sent to the provider.
package pii

import (
	"fmt"
	"regexp"
)

// Type is a PII category. Its string form is the placeholder prefix.
type Type string

const (
	TypeCard     Type = "CARD"
	TypeMyNumber Type = "MYNUMBER"
	TypeEmail    Type = "EMAIL"
	TypeBirthday Type = "BIRTHDAY"
	TypeAddress  Type = "ADDRESS"
	TypePhone    Type = "PHONE"
	TypeName     Type = "NAME"
)

// Types lists every placeholder type in matcher order.
var Types = []Type{TypeCard, TypeMyNumber, TypeEmail, TypeBirthday, TypeAddress, TypePhone, TypeName}

// Valid reports whether t is part of the placeholder vocabulary.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Token returns the placeholder for the n-th value of this type.
func (t Type) Token(n int) string {
	return fmt.Sprintf("[%s_%d]", t, n)
}

var labels = map[Type]string{
	TypeCard:     "カード番号",
	TypeMyNumber: "マイナンバー",
	TypeEmail:    "メールアドレス",
	TypeBirthday: "生年月日",
	TypeAddress:  "住所",
	TypePhone:    "電話番号",
	TypeName:     "名前",
}

// Label returns the human-readable name of the type.
func (t Type) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}

// tokenPattern matches any placeholder of the vocabulary.
var tokenPattern = regexp.MustCompile(`\[(CARD|MYNUMBER|EMAIL|BIRTHDAY|ADDRESS|PHONE|NAME)_\d+\]`)

// StripTokens rewrites every placeholder in text to its bare type label, such
// as （電話番号）. Text that outlives a request must not carry ordinals, since
// the next request's mapping reissues them for different values.
func StripTokens(text string) string {
	return tokenPattern.ReplaceAllStringFunc(text, func(tok string) string {
		m := tokenPattern.FindStringSubmatch(tok)
		return "（" + Type(m[1]).Label() + "）"
	})
}

// Finding is a detected PII span in the original text. Start and End are byte
// offsets.
type Finding struct {
	Type  Type
	Value string
	Start int
	End   int
}

// Entry binds one placeholder to the original substring it replaced.
type Entry struct {
	Token    string
	Original string
	Type     Type
	Ordinal  int
}

// Mapping is the ordered set of placeholders produced by one Anonymize call.
type Mapping []Entry

// Empty reports whether nothing was masked.
func (m Mapping) Empty() bool {
	return len(m) == 0
}

// Lookup returns the original value for token.
func (m Mapping) Lookup(token string) (string, bool) {
	for _, e := range m {
		if e.Token == token {
			return e.Original, true
		}
	}
	return "", false
}

// Counts returns the number of distinct placeholders per type.
func (m Mapping) Counts() map[Type]int {
	counts := make(map[Type]int, len(m))
	for _, e := range m {
		counts[e.Type]++
	}
	return counts
}

// Has reports whether any placeholder of type t was issued.
func (m Mapping) Has(t Type) bool {
	for _, e := range m {
		if e.Type == t {
			return true
		}
	}
	return false
}
