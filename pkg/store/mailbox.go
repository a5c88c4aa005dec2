package store

import (
	"fmt"
	"time"

	"github.com/NicolasHaas/goplace/pkg/model"
)

// Mailbox holds user reports and copies of warnings for moderators,
// persisted as {"messages": [...]}. It is owned by the server loop and not
// safe for concurrent use.
type Mailbox struct {
	path     string
	now      func() time.Time
	messages []model.MailboxEntry
}

type mailboxFile struct {
	Messages []model.MailboxEntry `json:"messages"`
}

// OpenMailbox loads the mailbox at path. An empty path keeps it in memory.
func OpenMailbox(path string) (*Mailbox, error) {
	m := &Mailbox{path: path, now: func() time.Time { return time.Now().UTC() }}
	if path == "" {
		return m, nil
	}
	var f mailboxFile
	if err := readJSON(path, &f); err != nil {
		return nil, fmt.Errorf("store: load mailbox: %w", err)
	}
	m.messages = f.Messages
	return m, nil
}

// SetClock replaces the clock used to date new messages.
func (m *Mailbox) SetClock(now func() time.Time) {
	m.now = now
}

// Append dates and records a message, then persists the whole mailbox.
func (m *Mailbox) Append(e model.MailboxEntry) error {
	if e.Date.IsZero() {
		e.Date = m.now()
	}
	m.messages = append(m.messages, e)
	if m.path == "" {
		return nil
	}
	if err := writeJSON(m.path, mailboxFile{Messages: m.messages}); err != nil {
		return fmt.Errorf("store: save mailbox: %w", err)
	}
	return nil
}

// Last returns up to n messages, newest first. A non-empty filter keeps
// messages about or from that nick.
func (m *Mailbox) Last(n int, filter string) []model.MailboxEntry {
	if n <= 0 {
		return []model.MailboxEntry{}
	}
	out := make([]model.MailboxEntry, 0, min(n, len(m.messages)))
	for i := len(m.messages) - 1; i >= 0 && len(out) < n; i-- {
		e := m.messages[i]
		if filter != "" && e.Nick != filter && e.From != filter {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of messages.
func (m *Mailbox) Len() int {
	return len(m.messages)
}
