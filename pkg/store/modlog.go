package store

import (
	"fmt"
	"time"

	"github.com/NicolasHaas/goplace/pkg/model"
)

// ModLog is the append-only moderation log, persisted as {"log": [...]}.
// It is owned by the server loop and not safe for concurrent use.
type ModLog struct {
	path    string
	now     func() time.Time
	entries []model.LogEntry
}

type modLogFile struct {
	Log []model.LogEntry `json:"log"`
}

// OpenModLog loads the log at path. An empty path keeps the log in memory.
func OpenModLog(path string) (*ModLog, error) {
	l := &ModLog{path: path, now: func() time.Time { return time.Now().UTC() }}
	if path == "" {
		return l, nil
	}
	var f modLogFile
	if err := readJSON(path, &f); err != nil {
		return nil, fmt.Errorf("store: load mod log: %w", err)
	}
	l.entries = f.Log
	return l, nil
}

// SetClock replaces the clock used to date new entries.
func (l *ModLog) SetClock(now func() time.Time) {
	l.now = now
}

// Append dates and records an entry, then persists the whole log.
func (l *ModLog) Append(e model.LogEntry) error {
	if e.Date.IsZero() {
		e.Date = l.now()
	}
	l.entries = append(l.entries, e)
	if l.path == "" {
		return nil
	}
	if err := writeJSON(l.path, modLogFile{Log: l.entries}); err != nil {
		return fmt.Errorf("store: save mod log: %w", err)
	}
	return nil
}

// Last returns up to n entries, newest first. A non-empty filter keeps only
// entries of that type.
func (l *ModLog) Last(n int, filter model.LogType) []model.LogEntry {
	if n <= 0 {
		return []model.LogEntry{}
	}
	out := make([]model.LogEntry, 0, min(n, len(l.entries)))
	for i := len(l.entries) - 1; i >= 0 && len(out) < n; i-- {
		if filter != "" && l.entries[i].Type != filter {
			continue
		}
		out = append(out, l.entries[i])
	}
	return out
}

// Len returns the number of entries.
func (l *ModLog) Len() int {
	return len(l.entries)
}
