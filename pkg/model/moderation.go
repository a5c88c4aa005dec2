package model

import "time"

// LogType is the kind of a moderation log entry.
type LogType string

const (
	LogBan       LogType = "ban"
	LogUnban     LogType = "unban"
	LogKick      LogType = "kick"
	LogWarn      LogType = "warn"
	LogMove      LogType = "move"
	LogBroadcast LogType = "broadcast"
)

// Alias is a connected session caught by an IP sweep.
type Alias struct {
	Nick  string  `json:"nick"`
	Room  *string `json:"room"`
	State Object  `json:"state"`
}

// LogEntry is one moderator action. Only the fields of its type are set.
type LogEntry struct {
	Type    LogType   `json:"type"`
	Date    time.Time `json:"date"`
	Mod     string    `json:"mod"`
	IP      string    `json:"IP,omitempty"`
	Aliases []Alias   `json:"aliases,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Nick    string    `json:"nick,omitempty"`
	OldRoom *string   `json:"old_room,omitempty"`
	NewRoom string    `json:"new_room,omitempty"`
	State   *Object   `json:"state,omitempty"`
	Msg     string    `json:"msg,omitempty"`
}

// MailType is the kind of a moderation mailbox entry.
type MailType string

const (
	MailUserReport MailType = "user_report"
	MailWarn       MailType = "warn"
)

// MailboxEntry is a user report or a warning copy for moderators.
type MailboxEntry struct {
	Type   MailType  `json:"type"`
	Date   time.Time `json:"date"`
	From   string    `json:"from"`
	Nick   string    `json:"nick"`
	Reason string    `json:"reason"`
}
