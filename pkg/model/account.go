package model

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	MinNickLength = 3
	MaxNickLength = 18
)

var ErrNickTooShort = fmt.Errorf("nick must be at least %d characters", MinNickLength)
var ErrNickTooLong = fmt.Errorf("nick must not exceed %d characters", MaxNickLength)
var ErrNickInvalidChars = errors.New("nick must contain only alphanumeric characters or underscores")

// Account is a registered user.
type Account struct {
	Nick            string    `json:"nick" yaml:"nick"`
	Email           string    `json:"email" yaml:"email"`
	Special         Special   `json:"special" yaml:"special"`
	Friends         []string  `json:"friends" yaml:"friends,omitempty"`
	House           House     `json:"house" yaml:"house"`
	Warnings        []Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	AvatarInventory []string  `json:"avatar_inventory" yaml:"avatar_inventory,omitempty"`
	Inventory       []string  `json:"inventory" yaml:"inventory,omitempty"`
	BypassHash      []byte    `json:"-" yaml:"-"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
}

// Warning is a moderator warning waiting to be shown to its recipient.
type Warning struct {
	ModNick    string  `json:"mod_nick" yaml:"mod_nick"`
	ModSpecial Special `json:"mod_special" yaml:"mod_special"`
	Reason     string  `json:"reason" yaml:"reason"`
}

// HasFriend reports whether nick is in the account's friend list.
func (a *Account) HasFriend(nick string) bool {
	return slices.Contains(a.Friends, nick)
}

// Clone returns a deep copy so callers can't alias the owner's slices.
func (a *Account) Clone() *Account {
	c := *a
	c.Friends = slices.Clone(a.Friends)
	c.Warnings = slices.Clone(a.Warnings)
	c.AvatarInventory = slices.Clone(a.AvatarInventory)
	c.Inventory = slices.Clone(a.Inventory)
	c.BypassHash = slices.Clone(a.BypassHash)
	return &c
}

// ValidateNick checks that a nick is 3-18 ASCII alphanumeric or underscore
// characters. Returns nil on success or a descriptive error.
func ValidateNick(nick string) error {
	if len(nick) < MinNickLength {
		return ErrNickTooShort
	}
	if len(nick) > MaxNickLength {
		return ErrNickTooLong
	}
	for _, r := range nick {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return ErrNickInvalidChars
		}
	}
	return nil
}
