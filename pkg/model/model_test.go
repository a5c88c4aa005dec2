package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateNick(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "pony123", nil},
		{"valid with underscore", "my_pony", nil},
		{"valid min length", "abc", nil},
		{"valid max length", strings.Repeat("a", MaxNickLength), nil},
		{"empty", "", ErrNickTooShort},
		{"too short", "ab", ErrNickTooShort},
		{"too long", strings.Repeat("a", MaxNickLength+1), ErrNickTooLong},
		{"contains hyphen", "my-pony", ErrNickInvalidChars},
		{"contains space", "has space", ErrNickInvalidChars},
		{"contains dot", "pony.name", ErrNickInvalidChars},
		{"unicode letter", "ñoño", ErrNickInvalidChars},
		{"tab character", "pony\tname", ErrNickInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNick(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateNick(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSpecialValid(t *testing.T) {
	tests := []struct {
		name    string
		special Special
		want    bool
	}{
		{"none", SpecialNone, true},
		{"moderator", SpecialModerator, true},
		{"creator", SpecialCreator, true},
		{"negative", Special(-1), false},
		{"three", Special(3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.special.Valid(); got != tt.want {
				t.Errorf("Special(%d).Valid() = %v, want %v", tt.special, got, tt.want)
			}
		})
	}
}

func TestParseSpecial(t *testing.T) {
	tests := []struct {
		input   string
		want    Special
		wantErr bool
	}{
		{"creator", SpecialCreator, false},
		{"moderator", SpecialModerator, false},
		{"none", SpecialNone, false},
		{"", SpecialNone, false},
		{"admin", SpecialNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSpecial(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSpecial(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSpecial(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSpecialIsModerator(t *testing.T) {
	if SpecialNone.IsModerator() {
		t.Error("none must not be a moderator")
	}
	if !SpecialModerator.IsModerator() || !SpecialCreator.IsModerator() {
		t.Error("moderator and creator must be moderators")
	}
}

func TestSpecialJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Special{"a": SpecialNone, "b": SpecialCreator})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(data), `{"a":null,"b":"creator"}`; got != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}

	var back map[string]Special
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(map[string]Special{"a": SpecialNone, "b": SpecialCreator}, back); diff != "" {
		t.Errorf("Unmarshal mismatch (-want +got):\n%s", diff)
	}
}

func TestObjectClamp(t *testing.T) {
	tests := []struct {
		name          string
		x, y          float64
		width, height float64
		wantX, wantY  float64
	}{
		{"inside", 10, 20, 960, 660, 10, 20},
		{"negative", -5, -1, 960, 660, 0, 0},
		{"beyond", 1000, 700, 960, 660, 960, 660},
		{"zero sized room", 10, 10, 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := Object{X: tt.x, Y: tt.y}
			obj.Clamp(tt.width, tt.height)
			if obj.X != tt.wantX || obj.Y != tt.wantY {
				t.Errorf("Clamp = (%v,%v), want (%v,%v)", obj.X, obj.Y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestHouseOwner(t *testing.T) {
	owner, ok := HouseOwner(HouseName("alice"))
	if !ok || owner != "alice" {
		t.Errorf("HouseOwner(house alice) = %q, %v", owner, ok)
	}
	if _, ok := HouseOwner("library"); ok {
		t.Error("library must not be a house")
	}
}

func TestRoomValidate(t *testing.T) {
	tests := []struct {
		name    string
		room    Room
		wantErr bool
	}{
		{"valid", Room{Name: "ponyville", Background: DefaultBackground()}, false},
		{"empty name", Room{}, true},
		{"space", Room{Name: "pony ville"}, true},
		{"negative width", Room{Name: "x", Background: Background{Width: -1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.room.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAccountClone(t *testing.T) {
	a := &Account{Nick: "alice", Friends: []string{"bob"}}
	c := a.Clone()
	c.Friends[0] = "carol"
	if a.Friends[0] != "bob" {
		t.Error("Clone must not alias the friend list")
	}
	if !a.HasFriend("bob") || a.HasFriend("carol") {
		t.Error("HasFriend mismatch")
	}
}
