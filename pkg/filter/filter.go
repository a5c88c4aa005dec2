// Package filter cleans user-supplied text: chat lines, nicks and free-form
// command arguments.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxChatLength is the longest chat line kept, in characters.
	MaxChatLength = 100

	// Placeholder replaces denylisted words in chat.
	Placeholder = "pony"
)

// DefaultTerms is the built-in denylist. Entries are regular expressions;
// the last one strips inline emote links like "[](/emote)".
var DefaultTerms = []string{
	"follar", "mierda", "puto", "puta", "maricon", "hijo de puta",
	"coño", "verga", "pija", "orto",
	`\[\]\(/[a-zA-Z0-9\-_]+\)`,
}

// Filter applies a case-insensitive denylist.
type Filter struct {
	deny        *regexp.Regexp
	placeholder string
	maxChat     int
}

// New compiles a filter from denylist terms.
func New(terms []string, placeholder string) (*Filter, error) {
	f := &Filter{placeholder: placeholder, maxChat: MaxChatLength}
	if len(terms) == 0 {
		return f, nil
	}
	re, err := regexp.Compile("(?i)(?:" + strings.Join(terms, "|") + ")")
	if err != nil {
		return nil, fmt.Errorf("filter: compile denylist: %w", err)
	}
	f.deny = re
	return f, nil
}

// Default returns the filter built from DefaultTerms.
func Default() *Filter {
	f, err := New(DefaultTerms, Placeholder)
	if err != nil {
		panic(err)
	}
	return f
}

// Chat truncates to MaxChatLength characters, replaces denylisted words
// with the placeholder and trims surrounding whitespace.
func (f *Filter) Chat(s string) string {
	s = truncate(s, f.maxChat)
	if f.deny != nil {
		// A replacement can join its neighbours into a new match.
		for range 8 {
			next := f.deny.ReplaceAllLiteralString(s, f.placeholder)
			if next == s {
				break
			}
			s = next
		}
		if f.deny.MatchString(s) {
			s = f.deny.ReplaceAllLiteralString(s, "")
		}
	}
	s = truncate(s, f.maxChat)
	return strings.TrimSpace(s)
}

// Profane reports whether s contains a denylisted word.
func (f *Filter) Profane(s string) bool {
	return f.deny != nil && f.deny.MatchString(s)
}

// Text strips control characters and surrounding whitespace from free-form
// text such as reasons and private messages.
func Text(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
