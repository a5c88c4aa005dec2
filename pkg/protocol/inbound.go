package protocol

import (
	"encoding/json"
	"errors"

	"github.com/NicolasHaas/goplace/pkg/model"
)

// Inbound is a frame received from a client.
type Inbound interface {
	Type() string
	// Accept calls the Handler method for the frame's kind.
	Accept(h Handler)
	validate() error
}

// Handler has one method per inbound kind. Adding a kind breaks every
// implementation until it handles the new frame.
type Handler interface {
	Login(*Login)
	StateUpdate(*StateUpdate)
	ConsoleCommand(*ConsoleCommand)
	RoomChange(*RoomChangeRequest)
	RoomList(*RoomListRequest)
	ProfileGet(*ProfileGet)
	PrivMsg(*PrivMsgSend)
	DeleteAccount(*DeleteAccount)
	FriendAdd(*FriendAdd)
	FriendRemove(*FriendRemove)
	ChangeRoomBackground(*ChangeRoomBackground)
	UserReport(*UserReport)
}

var inboundKinds = map[string]func() Inbound{
	"login":                  func() Inbound { return &Login{} },
	"update":                 func() Inbound { return &StateUpdate{} },
	"console_command":        func() Inbound { return &ConsoleCommand{} },
	"room_change":            func() Inbound { return &RoomChangeRequest{} },
	"room_list":              func() Inbound { return &RoomListRequest{} },
	"profile_get":            func() Inbound { return &ProfileGet{} },
	"priv_msg":               func() Inbound { return &PrivMsgSend{} },
	"delete_account":         func() Inbound { return &DeleteAccount{} },
	"friend_add":             func() Inbound { return &FriendAdd{} },
	"friend_remove":          func() Inbound { return &FriendRemove{} },
	"change_room_background": func() Inbound { return &ChangeRoomBackground{} },
	"user_report":            func() Inbound { return &UserReport{} },
}

var (
	errMissingObj  = errors.New("missing obj")
	errMissingNick = errors.New("missing nick")
	errMissingName = errors.New("missing name")
	errMissingBg   = errors.New("missing bg_name")
	errBadMode     = errors.New("unknown login mode")
)

// LoginMode selects how a login frame authenticates.
type LoginMode string

const (
	LoginCreate   LoginMode = "create"
	LoginExisting LoginMode = "existing"
	LoginBypass   LoginMode = "bypass"
)

// Login is the only frame accepted during the handshake.
type Login struct {
	Mode      LoginMode    `json:"mode"`
	Nick      string       `json:"nick"`
	Assertion string       `json:"assertion"`
	Bypass    string       `json:"bypass"`
	Obj       model.Object `json:"obj"`
}

func (*Login) Type() string       { return "login" }
func (m *Login) Accept(h Handler) { h.Login(m) }
func (m *Login) validate() error {
	switch m.Mode {
	case LoginCreate, LoginExisting, LoginBypass:
		return nil
	default:
		return errBadMode
	}
}

// StateUpdate replaces the sender's state blob.
type StateUpdate struct {
	Obj *model.Object `json:"obj"`
}

func (*StateUpdate) Type() string       { return "update" }
func (m *StateUpdate) Accept(h Handler) { h.StateUpdate(m) }
func (m *StateUpdate) validate() error {
	if m.Obj == nil {
		return errMissingObj
	}
	return nil
}

// ConsoleCommand carries slash-command text without the leading slash.
type ConsoleCommand struct {
	Cmd string `json:"cmd"`
}

func (*ConsoleCommand) Type() string       { return "console_command" }
func (m *ConsoleCommand) Accept(h Handler) { h.ConsoleCommand(m) }
func (*ConsoleCommand) validate() error    { return nil }

// RoomChangeRequest asks to move to a named room.
type RoomChangeRequest struct {
	Name string `json:"name"`
}

func (*RoomChangeRequest) Type() string       { return "room_change" }
func (m *RoomChangeRequest) Accept(h Handler) { h.RoomChange(m) }
func (m *RoomChangeRequest) validate() error {
	if m.Name == "" {
		return errMissingName
	}
	return nil
}

// RoomListRequest asks for the aggregated room list.
type RoomListRequest struct{}

func (*RoomListRequest) Type() string       { return "room_list" }
func (m *RoomListRequest) Accept(h Handler) { h.RoomList(m) }
func (*RoomListRequest) validate() error    { return nil }

// ProfileGet asks for a user's profile.
type ProfileGet struct {
	Nick string `json:"nick"`
}

func (*ProfileGet) Type() string       { return "profile_get" }
func (m *ProfileGet) Accept(h Handler) { h.ProfileGet(m) }
func (m *ProfileGet) validate() error  { return requireNick(m.Nick) }

// PrivMsgSend is a private message to another user.
type PrivMsgSend struct {
	Nick string `json:"nick"`
	Msg  string `json:"msg"`
}

func (*PrivMsgSend) Type() string       { return "priv_msg" }
func (m *PrivMsgSend) Accept(h Handler) { h.PrivMsg(m) }
func (m *PrivMsgSend) validate() error  { return requireNick(m.Nick) }

// DeleteAccount deletes the sender's account.
type DeleteAccount struct{}

func (*DeleteAccount) Type() string       { return "delete_account" }
func (m *DeleteAccount) Accept(h Handler) { h.DeleteAccount(m) }
func (*DeleteAccount) validate() error    { return nil }

// FriendAdd adds a nick to the sender's friend list.
type FriendAdd struct {
	Nick string `json:"nick"`
}

func (*FriendAdd) Type() string       { return "friend_add" }
func (m *FriendAdd) Accept(h Handler) { h.FriendAdd(m) }
func (m *FriendAdd) validate() error  { return requireNick(m.Nick) }

// FriendRemove removes a nick from the sender's friend list.
type FriendRemove struct {
	Nick string `json:"nick"`
}

func (*FriendRemove) Type() string       { return "friend_remove" }
func (m *FriendRemove) Accept(h Handler) { h.FriendRemove(m) }
func (m *FriendRemove) validate() error  { return requireNick(m.Nick) }

// ChangeRoomBackground sets an owned room's background from an inventory
// item. A JSON null bg_name resets to the default background.
type ChangeRoomBackground struct {
	Room   string
	BgName string
	Reset  bool

	present bool
}

func (*ChangeRoomBackground) Type() string       { return "change_room_background" }
func (m *ChangeRoomBackground) Accept(h Handler) { h.ChangeRoomBackground(m) }
func (m *ChangeRoomBackground) validate() error {
	if !m.present {
		return errMissingBg
	}
	return nil
}

func (m *ChangeRoomBackground) UnmarshalJSON(data []byte) error {
	var raw struct {
		Room   string          `json:"room"`
		BgName json.RawMessage `json:"bg_name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Room = raw.Room
	switch {
	case len(raw.BgName) == 0:
		m.present = false
	case string(raw.BgName) == "null":
		m.present, m.Reset = true, true
	default:
		if err := json.Unmarshal(raw.BgName, &m.BgName); err != nil {
			return err
		}
		m.present = true
	}
	return nil
}

// UserReport flags a user for moderator attention.
type UserReport struct {
	Nick   string `json:"nick"`
	Reason string `json:"reason"`
}

func (*UserReport) Type() string       { return "user_report" }
func (m *UserReport) Accept(h Handler) { h.UserReport(m) }
func (m *UserReport) validate() error  { return requireNick(m.Nick) }

func requireNick(nick string) error {
	if nick == "" {
		return errMissingNick
	}
	return nil
}
