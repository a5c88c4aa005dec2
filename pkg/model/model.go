// Package model defines the core domain types for goplace.
package model

import (
	"encoding/json"
	"errors"
)

var ErrInvalidSpecial = errors.New("invalid special status: must be none, moderator or creator")

// Special is an account's privilege status.
type Special int

const (
	SpecialNone      Special = iota // Regular user
	SpecialModerator                // Can kick, ban, warn, move and broadcast
	SpecialCreator                  // Moderator who can also toggle the global mute
)

func (s Special) String() string {
	switch s {
	case SpecialNone:
		return "none"
	case SpecialModerator:
		return "moderator"
	case SpecialCreator:
		return "creator"
	default:
		return "unknown"
	}
}

// ParseSpecial converts a string to a Special.
func ParseSpecial(s string) (Special, error) {
	switch s {
	case "", "none", "null":
		return SpecialNone, nil
	case "moderator":
		return SpecialModerator, nil
	case "creator":
		return SpecialCreator, nil
	default:
		return SpecialNone, ErrInvalidSpecial
	}
}

// Valid returns true if the status is a recognised value.
func (s Special) Valid() bool {
	return s >= SpecialNone && s <= SpecialCreator
}

// IsModerator reports whether the status carries moderator rights.
// The creator counts as a moderator.
func (s Special) IsModerator() bool {
	return s == SpecialModerator || s == SpecialCreator
}

// MarshalJSON encodes regular users as null and the rest by name,
// which is what clients key their nickname styling on.
func (s Special) MarshalJSON() ([]byte, error) {
	if s == SpecialNone || !s.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(s.String())
}

func (s *Special) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = SpecialNone
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSpecial(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML writes the status by name in exported documents.
func (s Special) MarshalYAML() (any, error) {
	return s.String(), nil
}
