package server

import (
	"errors"
	"strings"

	"github.com/NicolasHaas/goplace/pkg/directory"
	"github.com/NicolasHaas/goplace/pkg/filter"
	"github.com/NicolasHaas/goplace/pkg/model"
	"github.com/NicolasHaas/goplace/pkg/protocol"
)

// sessionHandler handles frames from a logged-in connection.
type sessionHandler struct {
	s *Server
	c *conn
}

var _ protocol.Handler = (*sessionHandler)(nil)

func (h *sessionHandler) Login(*protocol.Login) {
	h.s.kick(h.c, protocol.KickProtocolError, "")
}

func (h *sessionHandler) StateUpdate(m *protocol.StateUpdate) {
	s, sess := h.s, h.c.sess
	obj := *m.Obj
	obj.Chat = s.filter.Chat(obj.Chat)
	if sess.Room != "" {
		obj.Clamp(s.rooms.Bounds(sess.Room))
	}
	if s.globalMute {
		obj.Chat = sess.Obj.Chat
	}
	sess.Obj = obj
	if sess.Room != "" {
		s.broadcastRoom(sess.Room, protocol.Update{Nick: sess.Nick, Obj: obj}, h.c)
	}
}

func (h *sessionHandler) ConsoleCommand(m *protocol.ConsoleCommand) {
	h.s.runCommand(h.c, m.Cmd)
}

func (h *sessionHandler) RoomChange(m *protocol.RoomChangeRequest) {
	s := h.s
	if !strings.Contains(m.Name, " ") {
		s.changeRoom(h.c, m.Name)
		return
	}
	owner, ok := model.HouseOwner(m.Name)
	if !ok {
		s.kick(h.c, protocol.KickProtocolError, "")
		return
	}
	if !s.canEnterHouse(h.c.sess.Nick, owner) {
		s.notice(h.c, "That house is locked.")
		return
	}
	s.changeRoom(h.c, m.Name)
}

func (h *sessionHandler) RoomList(*protocol.RoomListRequest) {
	h.s.send(h.c, h.s.roomList())
}

func (h *sessionHandler) ProfileGet(m *protocol.ProfileGet) {
	h.s.sendProfile(h.c, m.Nick, h.s.dir.IsModerator(h.c.sess.Nick))
}

func (s *Server) sendProfile(c *conn, nick string, moderatorMode bool) {
	p, ok := s.dir.Profile(nick)
	if !ok {
		s.notice(c, noSuchUser(nick))
		return
	}
	s.send(c, protocol.Profile{Data: p, ModeratorMode: moderatorMode})
}

func (h *sessionHandler) PrivMsg(m *protocol.PrivMsgSend) {
	s, sess := h.s, h.c.sess
	target := s.connFor(m.Nick)
	if target == nil {
		s.send(h.c, protocol.PrivMsgFail{Nick: m.Nick})
		return
	}
	s.send(target, protocol.PrivMsg{
		FromNick:    sess.Nick,
		FromSpecial: s.dir.Special(sess.Nick),
		Msg:         filter.Text(m.Msg),
	})
}

func (h *sessionHandler) DeleteAccount(*protocol.DeleteAccount) {
	s, nick := h.s, h.c.sess.Nick
	if err := s.dir.DeleteAccount(nick); err != nil {
		s.storeFailed("accounts", err)
	}
	h.c.log.Info("account deleted", "nick", nick)
	s.kick(h.c, protocol.KickAccountDeleted, "")
}

func (h *sessionHandler) FriendAdd(m *protocol.FriendAdd) {
	h.s.changeFriends(h.c, m.Nick, h.s.dir.AddFriend)
}

func (h *sessionHandler) FriendRemove(m *protocol.FriendRemove) {
	h.s.changeFriends(h.c, m.Nick, h.s.dir.RemoveFriend)
}

func (s *Server) changeFriends(c *conn, friend string, op func(nick, friend string) error) {
	err := op(c.sess.Nick, friend)
	switch {
	case errors.Is(err, directory.ErrNoSuchAccount):
		s.notice(c, noSuchUser(friend))
		return
	case err != nil:
		s.storeFailed("accounts", err)
	}
	s.sendAccountState(c)
}

func (h *sessionHandler) ChangeRoomBackground(m *protocol.ChangeRoomBackground) {
	s, c, nick := h.s, h.c, h.c.sess.Nick

	owner, isHouse := model.HouseOwner(m.Room)
	if isHouse {
		if owner != nick {
			s.notice(c, "You can only change the background of your own rooms.")
			return
		}
	} else {
		room, ok := s.rooms.Lookup(m.Room)
		switch {
		case !ok:
			s.kick(c, protocol.KickNoSuchRoom, "")
			return
		case room.Kind == model.RoomReal:
			s.notice(c, "You can't change the background of a public room.")
			return
		case room.UserNick != nick:
			s.notice(c, "You can only change the background of your own rooms.")
			return
		}
	}

	bg, thumbnail := model.DefaultBackground(), model.DefaultThumbnail
	if !m.Reset {
		var ok bool
		bg, thumbnail, ok = s.catalog.Background(m.BgName)
		if !ok {
			s.kick(c, protocol.KickProtocolError, "")
			return
		}
	}
	if err := s.rooms.SetBackground(m.Room, bg, thumbnail); err != nil {
		s.storeFailed("accounts", err)
	}

	what := "Room"
	if isHouse {
		what = "House"
	}
	if m.Reset {
		s.notice(c, what+" background reset.")
	} else {
		s.notice(c, what+" background changed.")
	}
	for _, sess := range s.dir.InRoom(m.Room) {
		s.changeRoom(s.conns[sess.ID], m.Room)
	}
}

func (h *sessionHandler) UserReport(m *protocol.UserReport) {
	s, nick := h.s, h.c.sess.Nick
	err := s.mailbox.Append(model.MailboxEntry{
		Type:   model.MailUserReport,
		From:   nick,
		Nick:   m.Nick,
		Reason: filter.Text(m.Reason),
	})
	if err != nil {
		s.storeFailed("mailbox", err)
	}
	h.c.log.Info("user reported", "nick", nick, "reported", m.Nick)
	for _, sess := range s.dir.Sessions() {
		if s.dir.IsModerator(sess.Nick) {
			s.notice(s.conns[sess.ID], "New moderator report. Use /modmsgs to read it.")
		}
	}
}
