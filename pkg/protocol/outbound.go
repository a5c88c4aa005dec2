package protocol

import (
	"github.com/NicolasHaas/goplace/pkg/catalog"
	"github.com/NicolasHaas/goplace/pkg/model"
)

// Outbound is a frame sent to a client.
type Outbound interface {
	Type() string
	outbound()
}

// KickReason tells a client why it was disconnected.
type KickReason string

const (
	KickProtocolError    KickReason = "protocol_error"
	KickBadNick          KickReason = "bad_nick"
	KickAlreadyAccount   KickReason = "already_account"
	KickAlreadyEmail     KickReason = "already_email"
	KickBadLogin         KickReason = "bad_login"
	KickNoAssocAccount   KickReason = "no_assoc_account"
	KickAccountInUse     KickReason = "account_in_use"
	KickAccountDeleted   KickReason = "account_deleted"
	KickKick             KickReason = "kick"
	KickBan              KickReason = "ban"
	KickNoSuchRoom       KickReason = "no_such_room"
	KickUpdate           KickReason = "update"
	KickHandshakeTimeout KickReason = "handshake_timeout"
)

// Appear announces an occupant. Joining is false when the receiver is the
// one entering and the occupant was already there.
type Appear struct {
	Nick    string        `json:"nick"`
	Obj     model.Object  `json:"obj"`
	Special model.Special `json:"special"`
	Joining bool          `json:"joining"`
}

// Update relays an occupant's new state.
type Update struct {
	Nick string       `json:"nick"`
	Obj  model.Object `json:"obj"`
}

// Die announces that an occupant left the room.
type Die struct {
	Nick string `json:"nick"`
}

// RoomChange carries the descriptor of the room just entered.
type RoomChange struct {
	Data model.Room `json:"data"`
}

type RoomList struct {
	List      []model.RoomListing `json:"list"`
	UserCount int                 `json:"user_count"`
	ModCount  int                 `json:"mod_count"`
}

type AvatarList struct {
	List map[string]any `json:"list"`
}

type InventoryItemList struct {
	List map[string]catalog.Item `json:"list"`
}

// AccountState is the logged-in user's own account snapshot.
type AccountState struct {
	Nick            string        `json:"nick"`
	Special         model.Special `json:"special"`
	AvatarInventory []string      `json:"avatar_inventory"`
	Inventory       []string      `json:"inventory"`
	Friends         []string      `json:"friends"`
}

type Profile struct {
	Data          model.Profile `json:"data"`
	ModeratorMode bool          `json:"moderator_mode"`
}

type PrivMsg struct {
	FromNick    string        `json:"from_nick"`
	FromSpecial model.Special `json:"from_special"`
	Msg         string        `json:"msg"`
}

// PrivMsgFail reports that the recipient of a private message is offline.
type PrivMsgFail struct {
	Nick string `json:"nick"`
}

type Broadcast struct {
	Msg string `json:"msg"`
}

// ConsoleMsg is a line of console output for the receiving user only.
type ConsoleMsg struct {
	Msg string `json:"msg"`
}

type ModWarning struct {
	ModNick    string        `json:"mod_nick"`
	ModSpecial model.Special `json:"mod_special"`
	Reason     string        `json:"reason"`
}

// KickDetails names who removed whom and why.
type KickDetails struct {
	ModNick       string        `json:"mod_nick"`
	ModSpecial    model.Special `json:"mod_special"`
	KickeeNick    string        `json:"kickee_nick"`
	KickeeSpecial model.Special `json:"kickee_special"`
	Reason        string        `json:"reason"`
}

type KickNotice struct {
	KickDetails
}

type KickbanNotice struct {
	KickDetails
}

type ModLog struct {
	Cmd   string           `json:"cmd"`
	Items []model.LogEntry `json:"items"`
}

type ModMsgs struct {
	Cmd      string               `json:"cmd"`
	Messages []model.MailboxEntry `json:"messages"`
}

type Help struct {
	Lines []string `json:"lines"`
}

// Kick is the last frame a client receives before the server closes the
// connection.
type Kick struct {
	Reason KickReason `json:"reason"`
	Msg    string     `json:"msg,omitempty"`
}

func (Appear) Type() string            { return "appear" }
func (Update) Type() string            { return "update" }
func (Die) Type() string               { return "die" }
func (RoomChange) Type() string        { return "room_change" }
func (RoomList) Type() string          { return "room_list" }
func (AvatarList) Type() string        { return "avatar_list" }
func (InventoryItemList) Type() string { return "inventory_item_list" }
func (AccountState) Type() string      { return "account_state" }
func (Profile) Type() string           { return "profile" }
func (PrivMsg) Type() string           { return "priv_msg" }
func (PrivMsgFail) Type() string       { return "priv_msg_fail" }
func (Broadcast) Type() string         { return "broadcast" }
func (ConsoleMsg) Type() string        { return "console_msg" }
func (ModWarning) Type() string        { return "mod_warning" }
func (KickNotice) Type() string        { return "kick_notice" }
func (KickbanNotice) Type() string     { return "kickban_notice" }
func (ModLog) Type() string            { return "mod_log" }
func (ModMsgs) Type() string           { return "mod_msgs" }
func (Help) Type() string              { return "help" }
func (Kick) Type() string              { return "kick" }

func (Appear) outbound()            {}
func (Update) outbound()            {}
func (Die) outbound()               {}
func (RoomChange) outbound()        {}
func (RoomList) outbound()          {}
func (AvatarList) outbound()        {}
func (InventoryItemList) outbound() {}
func (AccountState) outbound()      {}
func (Profile) outbound()           {}
func (PrivMsg) outbound()           {}
func (PrivMsgFail) outbound()       {}
func (Broadcast) outbound()         {}
func (ConsoleMsg) outbound()        {}
func (ModWarning) outbound()        {}
func (KickNotice) outbound()        {}
func (KickbanNotice) outbound()     {}
func (ModLog) outbound()            {}
func (ModMsgs) outbound()           {}
func (Help) outbound()              {}
func (Kick) outbound()              {}
