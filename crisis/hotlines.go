package crisis

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultHotlines is the hotline directory compiled into the binary.
//
//go:embed hotlines.yaml
var DefaultHotlines []byte

// Hotline is a single crisis support contact.
type Hotline struct {
	Name    string `yaml:"name" json:"name"`
	Contact string `yaml:"contact" json:"contact"`
	Hours   string `yaml:"hours,omitempty" json:"hours,omitempty"`
}

// LocaleHotlines is the hotline block for one locale.
type LocaleHotlines struct {
	Heading string    `yaml:"heading" json:"heading"`
	Closing string    `yaml:"closing" json:"closing"`
	Entries []Hotline `yaml:"entries" json:"entries"`
}

// DirectoryFile is the YAML layout of the hotline directory.
type DirectoryFile struct {
	Version       string                    `yaml:"version"`
	DefaultLocale string                    `yaml:"default_locale"`
	Locales       map[string]LocaleHotlines `yaml:"locales"`
}

// Directory resolves hotlines by locale and renders them into replies.
type Directory struct {
	version       string
	defaultLocale string
	locales       map[string]LocaleHotlines
}

// NewDirectory builds a Directory from YAML.
func NewDirectory(data []byte) (*Directory, error) {
	var file DirectoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse hotline directory: %w", err)
	}
	return NewDirectoryFromFile(file)
}

// NewDefaultDirectory builds a Directory from the embedded hotlines.
func NewDefaultDirectory() (*Directory, error) {
	return NewDirectory(DefaultHotlines)
}

// NewDirectoryFromFile validates an already decoded directory.
func NewDirectoryFromFile(file DirectoryFile) (*Directory, error) {
	if len(file.Locales) == 0 {
		return nil, fmt.Errorf("hotline directory: no locales defined")
	}
	if file.DefaultLocale == "" {
		return nil, fmt.Errorf("hotline directory: default_locale is required")
	}
	if _, ok := file.Locales[file.DefaultLocale]; !ok {
		return nil, fmt.Errorf("hotline directory: default locale %q has no entries", file.DefaultLocale)
	}
	for locale, block := range file.Locales {
		if len(block.Entries) == 0 {
			return nil, fmt.Errorf("hotline directory: locale %q has no entries", locale)
		}
		for _, h := range block.Entries {
			if h.Contact == "" {
				return nil, fmt.Errorf("hotline directory: locale %q entry %q has no contact", locale, h.Name)
			}
		}
	}
	return &Directory{
		version:       file.Version,
		defaultLocale: file.DefaultLocale,
		locales:       file.Locales,
	}, nil
}

// Merge overlays locales from override onto the directory. Locales present in
// override replace the built-in block wholesale.
func (d *Directory) Merge(override map[string]LocaleHotlines) (*Directory, error) {
	if len(override) == 0 {
		return d, nil
	}
	locales := make(map[string]LocaleHotlines, len(d.locales)+len(override))
	for k, v := range d.locales {
		locales[k] = v
	}
	for k, v := range override {
		locales[k] = v
	}
	return NewDirectoryFromFile(DirectoryFile{
		Version:       d.version,
		DefaultLocale: d.defaultLocale,
		Locales:       locales,
	})
}

// Lookup returns the hotline block for locale, falling back to the default.
func (d *Directory) Lookup(locale string) LocaleHotlines {
	if block, ok := d.locales[locale]; ok {
		return block
	}
	return d.locales[d.defaultLocale]
}

// Render formats the hotline block for locale.
func (d *Directory) Render(locale string) string {
	block := d.Lookup(locale)
	var b strings.Builder
	if block.Heading != "" {
		b.WriteString(block.Heading)
		b.WriteString("\n")
	}
	for _, h := range block.Entries {
		b.WriteString("・")
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Contact)
		if h.Hours != "" {
			b.WriteString("（")
			b.WriteString(h.Hours)
			b.WriteString("）")
		}
		b.WriteString("\n")
	}
	if block.Closing != "" {
		b.WriteString(block.Closing)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Present reports whether every hotline contact for locale already appears in
// reply.
func (d *Directory) Present(reply, locale string) bool {
	for _, h := range d.Lookup(locale).Entries {
		if !strings.Contains(reply, h.Contact) {
			return false
		}
	}
	return true
}

// EnsurePresent appends the hotline block to reply unless every contact is
// already in it. The second result reports whether anything was appended.
func (d *Directory) EnsurePresent(reply, locale string) (string, bool) {
	if d.Present(reply, locale) {
		return reply, false
	}
	block := d.Render(locale)
	if strings.TrimSpace(reply) == "" {
		return block, true
	}
	return strings.TrimRight(reply, "\n") + "\n\n" + block, true
}
