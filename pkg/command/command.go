// Package command parses console commands ("/kick bob spamming") into a
// name, whitespace-separated arguments and the raw remainder.
package command

import (
	"strconv"
	"strings"
	"unicode"
)

// DefaultQueryCount is how many entries modlog and modmsgs return when no
// count is given.
const DefaultQueryCount = 10

// Command is a parsed console command.
type Command struct {
	Name string
	Args []string
	// Rest is everything after the name with surrounding whitespace removed.
	Rest string
}

// Parse splits command text on any run of whitespace. A leading slash is
// ignored.
func Parse(text string) Command {
	name, rest := cutField(strings.TrimPrefix(strings.TrimSpace(text), "/"))
	return Command{
		Name: name,
		Args: strings.Fields(rest),
		Rest: rest,
	}
}

// cutField returns the first whitespace-separated field of s and the
// trimmed text after it.
func cutField(s string) (field, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// String reassembles the command text without the leading slash.
func (c Command) String() string {
	if c.Rest == "" {
		return c.Name
	}
	return c.Name + " " + c.Rest
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Split returns the first argument and the text after it, e.g. the nick and
// the reason of "kick bob spamming again".
func (c Command) Split() (first, rest string) {
	return cutField(c.Rest)
}

// Query is the "[count] [filter]" argument form of modlog and modmsgs.
type Query struct {
	Count  int
	Filter string
}

// ParseQuery reads a count and an optional filter. A missing, unparsable or
// non-positive count falls back to DefaultQueryCount; the filter is the
// second argument either way.
func (c Command) ParseQuery() Query {
	q := Query{Count: DefaultQueryCount, Filter: c.Arg(1)}
	if n, err := strconv.Atoi(c.Arg(0)); err == nil && n > 0 {
		q.Count = n
	}
	return q
}
