package server

import (
	"errors"
	"fmt"

	"github.com/NicolasHaas/goplace/pkg/model"
	"github.com/NicolasHaas/goplace/pkg/protocol"
	"github.com/NicolasHaas/goplace/pkg/rooms"
)

// roomList is the room_list frame for the current state.
func (s *Server) roomList() protocol.RoomList {
	return protocol.RoomList{
		List:      s.rooms.List(s.dir.Occupancy()),
		UserCount: s.dir.UserCount(),
		ModCount:  s.dir.ModCount(),
	}
}

// canEnterHouse reports whether nick may enter owner's house.
func (s *Server) canEnterHouse(nick, owner string) bool {
	return nick == owner || !s.dir.IsHouseLocked(owner) || s.dir.IsModerator(nick)
}

// changeRoom moves c's session into the named room, creating an ephemeral
// room if nothing by that name exists. Callers check house locks.
func (s *Server) changeRoom(c *conn, name string) {
	if c == nil || c.sess == nil || c.state != stateActive {
		return
	}
	sess := c.sess
	room, err := s.rooms.Resolve(name, sess.Nick)
	if err != nil {
		if owner, ok := model.HouseOwner(name); ok && errors.Is(err, rooms.ErrNoSuchRoom) {
			s.notice(c, noSuchUser(owner))
			return
		}
		s.kick(c, protocol.KickProtocolError, "")
		return
	}

	old := sess.Room
	if old != "" {
		s.broadcastRoom(old, protocol.Die{Nick: sess.Nick}, c)
	}
	sess.Room = room.Name
	s.send(c, protocol.RoomChange{Data: room})
	sess.Obj.Clamp(room.Background.Width, room.Background.Height)

	special := s.dir.Special(sess.Nick)
	for _, other := range s.dir.InRoom(room.Name) {
		if other == sess {
			continue
		}
		s.send(c, protocol.Appear{
			Nick:    other.Nick,
			Obj:     other.Obj,
			Special: s.dir.Special(other.Nick),
			Joining: false,
		})
		s.send(s.conns[other.ID], protocol.Appear{
			Nick:    sess.Nick,
			Obj:     sess.Obj,
			Special: special,
			Joining: true,
		})
	}

	// Join before Leave so rejoining the same ephemeral room keeps it.
	s.rooms.Join(room.Name)
	if old != "" {
		s.rooms.Leave(old)
		s.updateRoomMetrics(old)
	}
	s.updateRoomMetrics(room.Name)
	s.metrics.RoomChanges.Inc()

	s.send(c, s.roomList())
	c.log.Debug("room change", "nick", sess.Nick, "from", old, "to", room.Name)
}

// updateRoomMetrics refreshes the occupancy gauge of room. Houses are not
// tracked by the room catalog, so their occupancy comes from the sessions.
func (s *Server) updateRoomMetrics(room string) {
	n := s.rooms.Count(room)
	if _, house := model.HouseOwner(room); house {
		n = len(s.dir.InRoom(room))
	}
	if n > 0 {
		s.metrics.RoomOccupancy.WithLabelValues(room).Set(float64(n))
	} else {
		s.metrics.RoomOccupancy.DeleteLabelValues(room)
	}
	s.metrics.EphemeralRooms.Set(float64(s.rooms.EphemeralCount()))
}

func noSuchUser(nick string) string {
	return fmt.Sprintf("There is no user named %q.", nick)
}
