// Package command turns inbound chat text into commands or natural-language
// intents. Everything here is pure and safe for concurrent use.
package command

import (
	"strings"
	"unicode/utf8"
)

// DefaultPrefixes is the prefix set used when none is configured.
const DefaultPrefixes = "!#.$/~^"

// Parsed is a prefixed command split into its parts.
type Parsed struct {
	Prefix  rune
	Command string // Lowercased command token
	Args    []string
	Raw     string
}

// PrefixString returns the prefix as a string, for echoing back in replies.
func (p Parsed) PrefixString() string {
	return string(p.Prefix)
}

// Parser recognizes commands that start with one of a fixed set of prefixes.
type Parser struct {
	prefixes map[rune]struct{}
	primary  rune
}

// NewParser creates a parser accepting each rune of prefixes as a command
// prefix. An empty set falls back to DefaultPrefixes. The first rune is the
// primary prefix used in help text.
func NewParser(prefixes string) *Parser {
	if strings.TrimSpace(prefixes) == "" {
		prefixes = DefaultPrefixes
	}
	p := &Parser{prefixes: make(map[rune]struct{}, utf8.RuneCountInString(prefixes))}
	for _, r := range prefixes {
		if r == ' ' || r == '\t' || r == '\n' {
			continue
		}
		if p.primary == 0 {
			p.primary = r
		}
		p.prefixes[r] = struct{}{}
	}
	return p
}

// Primary returns the prefix shown in help and hint texts.
func (p *Parser) Primary() string {
	return string(p.primary)
}

// IsPrefix reports whether r is an accepted prefix.
func (p *Parser) IsPrefix(r rune) bool {
	_, ok := p.prefixes[r]
	return ok
}

// Parse splits text into a command. It returns false when the text does not
// start with a prefix or when no command token follows the prefix.
//
// Example:
//
//	p.Parse("!add prod1 2") // {Prefix: '!', Command: "add", Args: ["prod1", "2"]}
//	p.Parse("hello there")  // false
//	p.Parse("! ")           // false
func (p *Parser) Parse(text string) (Parsed, bool) {
	trimmed := strings.TrimSpace(text)
	prefix, size := utf8.DecodeRuneInString(trimmed)
	if size == 0 || prefix == utf8.RuneError || !p.IsPrefix(prefix) {
		return Parsed{}, false
	}

	fields := strings.Fields(trimmed[size:])
	if len(fields) == 0 {
		return Parsed{}, false
	}

	parsed := Parsed{
		Prefix:  prefix,
		Command: strings.ToLower(fields[0]),
		Raw:     text,
	}
	if len(fields) > 1 {
		parsed.Args = fields[1:]
	}
	return parsed, true
}
