package model

import (
	"errors"
	"fmt"
	"strings"
)

// RoomKind distinguishes configured, ephemeral and per-account rooms.
type RoomKind string

const (
	RoomReal      RoomKind = "real"
	RoomEphemeral RoomKind = "ephemeral"
	RoomHouse     RoomKind = "house"
)

// HousePrefix addresses a user's house: "house " + nick.
const HousePrefix = "house "

const (
	DefaultThumbnail        = "/media/rooms/cave-thumb.png"
	DefaultBackgroundData   = "/media/rooms/cave.png"
	DefaultBackgroundWidth  = 960
	DefaultBackgroundHeight = 660
)

var (
	ErrRoomNameEmpty  = errors.New("room name must not be empty")
	ErrRoomNameSpaces = errors.New("room name must not contain spaces")
	ErrRoomBounds     = errors.New("room background must have non-negative width and height")
)

// Background describes the image (or iframe) a room is drawn on.
// Occupant positions are clamped to Width x Height.
type Background struct {
	Data   string  `json:"data" yaml:"data"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	IFrame bool    `json:"iframe,omitempty" yaml:"iframe,omitempty"`
}

// Widget is an iframe overlay placed on top of a room background.
type Widget struct {
	Type   string  `json:"type" yaml:"type"`
	Left   float64 `json:"left" yaml:"left"`
	Top    float64 `json:"top" yaml:"top"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Src    string  `json:"src" yaml:"src"`
}

// Room is the descriptor sent to clients on a room change.
type Room struct {
	Kind       RoomKind   `json:"type" yaml:"type,omitempty"`
	Name       string     `json:"name" yaml:"name"`
	NameFull   string     `json:"name_full" yaml:"name_full"`
	UserNoun   string     `json:"user_noun" yaml:"user_noun,omitempty"`
	UserNick   string     `json:"user_nick,omitempty" yaml:"-"`
	Background Background `json:"background" yaml:"background"`
	Widgets    []Widget   `json:"widgets,omitempty" yaml:"widgets,omitempty"`
	Thumbnail  string     `json:"thumbnail" yaml:"thumbnail,omitempty"`
	Unlisted   bool       `json:"unlisted,omitempty" yaml:"unlisted,omitempty"`
	Locked     bool       `json:"locked,omitempty" yaml:"-"`
	UserCount  int        `json:"user_count" yaml:"-"`
}

// House is the part of a house room persisted with its owner's account.
type House struct {
	Locked     bool       `json:"locked" yaml:"locked"`
	Background Background `json:"background" yaml:"background"`
	Thumbnail  string     `json:"thumbnail" yaml:"thumbnail"`
}

// RoomListing is one entry of the aggregated room list.
type RoomListing struct {
	Type      RoomKind `json:"type"`
	Name      string   `json:"name"`
	NameFull  string   `json:"name_full"`
	UserCount int      `json:"user_count"`
	UserNoun  string   `json:"user_noun"`
	UserNick  string   `json:"user_nick,omitempty"`
	Thumbnail string   `json:"thumbnail"`
}

// DefaultBackground is used for new ephemeral rooms, new houses and
// background resets.
func DefaultBackground() Background {
	return Background{
		Data:   DefaultBackgroundData,
		Width:  DefaultBackgroundWidth,
		Height: DefaultBackgroundHeight,
	}
}

// DefaultHouse is the house every account starts with.
func DefaultHouse() House {
	return House{Background: DefaultBackground(), Thumbnail: DefaultThumbnail}
}

// HouseName returns the room name of nick's house.
func HouseName(nick string) string {
	return HousePrefix + nick
}

// HouseOwner extracts the owner from a house room name.
func HouseOwner(name string) (string, bool) {
	if !strings.HasPrefix(name, HousePrefix) {
		return "", false
	}
	return name[len(HousePrefix):], true
}

// NewEphemeral returns a fresh ephemeral room owned by owner.
func NewEphemeral(name, owner string) Room {
	return Room{
		Kind:       RoomEphemeral,
		Name:       name,
		NameFull:   name,
		UserNoun:   "ponies",
		UserNick:   owner,
		Background: DefaultBackground(),
		Thumbnail:  DefaultThumbnail,
	}
}

// HouseRoom builds the descriptor of nick's house.
func HouseRoom(nick string, h House) Room {
	return Room{
		Kind:       RoomHouse,
		Name:       HouseName(nick),
		NameFull:   nick + "'s house",
		UserNoun:   "ponies",
		UserNick:   nick,
		Background: h.Background,
		Thumbnail:  h.Thumbnail,
		Locked:     h.Locked,
	}
}

// Validate checks a configured room.
func (r Room) Validate() error {
	if r.Name == "" {
		return ErrRoomNameEmpty
	}
	if strings.Contains(r.Name, " ") {
		return fmt.Errorf("room %q: %w", r.Name, ErrRoomNameSpaces)
	}
	if r.Background.Width < 0 || r.Background.Height < 0 {
		return fmt.Errorf("room %q: %w", r.Name, ErrRoomBounds)
	}
	return nil
}

// Listing summarises the room for the room list.
func (r Room) Listing(count int) RoomListing {
	return RoomListing{
		Type:      r.Kind,
		Name:      r.Name,
		NameFull:  r.NameFull,
		UserCount: count,
		UserNoun:  r.UserNoun,
		UserNick:  r.UserNick,
		Thumbnail: r.Thumbnail,
	}
}
