package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/NicolasHaas/goplace/pkg/logging"
	"github.com/NicolasHaas/goplace/pkg/model"
	"github.com/NicolasHaas/goplace/pkg/protocol"
)

// Transport is the hub's handle on a client connection.
type Transport interface {
	// Send queues a text frame without blocking. It reports false if the
	// frame was dropped.
	Send(data []byte) bool
	// Close flushes queued frames and closes the connection. It is safe to
	// call more than once.
	Close()
	RemoteIP() string
}

type connState int

const (
	stateHandshaking connState = iota
	stateVerifying
	stateActive
	stateClosed
)

func (st connState) String() string {
	switch st {
	case stateHandshaking:
		return "handshaking"
	case stateVerifying:
		return "verifying"
	case stateActive:
		return "active"
	default:
		return "closed"
	}
}

// conn is one client connection as seen by the hub. Only the hub touches
// it.
type conn struct {
	id    string
	t     Transport
	ip    string
	state connState
	sess  *model.Session
	log   *slog.Logger

	cancelVerify context.CancelFunc
	timer        *time.Timer
	limiter      *rate.Limiter
}

// open registers a new connection in the handshaking state. It returns nil
// once the server is shutting down.
func (s *Server) open(t Transport) *conn {
	if s.stopping {
		return nil
	}
	c := &conn{
		id: uuid.NewString(),
		t:  t,
		ip: t.RemoteIP(),
	}
	c.log = logging.Component("session").With("conn", c.id, "ip", c.ip)
	if s.cfg.FrameRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(s.cfg.FrameRate), max(s.cfg.FrameBurst, 1))
	}
	if d := s.cfg.HandshakeTimeout; d > 0 {
		c.timer = time.AfterFunc(d, func() {
			s.post(func() {
				if c.state == stateHandshaking || c.state == stateVerifying {
					s.kick(c, protocol.KickHandshakeTimeout, "")
				}
			})
		})
	}
	s.conns[c.id] = c
	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ConnectionsActive.Inc()
	c.log.Info("connection accepted")
	return c
}

// receive handles one inbound frame.
func (s *Server) receive(c *conn, data []byte, text bool) {
	if c.state == stateClosed {
		return
	}
	if !text {
		s.kick(c, protocol.KickProtocolError, "")
		return
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		c.log.Debug("bad frame", "state", c.state, "err", err)
		s.kick(c, protocol.KickProtocolError, "")
		return
	}
	s.metrics.FramesIn.WithLabelValues(msg.Type()).Inc()

	switch c.state {
	case stateVerifying:
		s.send(c, protocol.ConsoleMsg{Msg: "Not yet logged in."})
		s.drop(c)
	case stateHandshaking:
		login, ok := msg.(*protocol.Login)
		if !ok {
			s.kick(c, protocol.KickProtocolError, "")
			return
		}
		s.login(c, login)
	case stateActive:
		if c.limiter != nil && !c.limiter.Allow() {
			s.metrics.FramesLimited.Inc()
			s.notice(c, "You're sending too fast, slow down.")
			return
		}
		msg.Accept(&sessionHandler{s: s, c: c})
	}
}

// closed handles the peer going away.
func (s *Server) closed(c *conn) {
	if c.state == stateClosed {
		return
	}
	c.log.Info("peer disconnected")
	s.cleanup(c)
}

// send encodes and queues msg for c.
func (s *Server) send(c *conn, msg protocol.Outbound) {
	if c == nil || c.state == stateClosed {
		return
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		c.log.Error("encode frame", "type", msg.Type(), "err", err)
		return
	}
	s.sendRaw(c, data)
}

func (s *Server) sendRaw(c *conn, data []byte) {
	if c == nil || c.state == stateClosed {
		return
	}
	if !c.t.Send(data) {
		s.metrics.SendDropped.Inc()
		return
	}
	s.metrics.FramesOut.Inc()
}

// notice sends a console line to c.
func (s *Server) notice(c *conn, line string) {
	s.send(c, protocol.ConsoleMsg{Msg: line})
}

// connFor returns the connection of nick's live session.
func (s *Server) connFor(nick string) *conn {
	sess, ok := s.dir.Session(nick)
	if !ok {
		return nil
	}
	return s.conns[sess.ID]
}

// broadcastRoom sends msg to every session in room except skip.
func (s *Server) broadcastRoom(room string, msg protocol.Outbound, skip *conn) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("encode frame", "type", msg.Type(), "err", err)
		return
	}
	for _, sess := range s.dir.InRoom(room) {
		if c := s.conns[sess.ID]; c != skip {
			s.sendRaw(c, data)
		}
	}
}

// broadcastAll sends msg to every logged-in session.
func (s *Server) broadcastAll(msg protocol.Outbound) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("encode frame", "type", msg.Type(), "err", err)
		return
	}
	for _, sess := range s.dir.Sessions() {
		s.sendRaw(s.conns[sess.ID], data)
	}
}

// kick sends a kick frame and closes c.
func (s *Server) kick(c *conn, reason protocol.KickReason, msg string) {
	if c.state == stateClosed {
		return
	}
	s.send(c, protocol.Kick{Reason: reason, Msg: msg})
	s.metrics.Kicks.WithLabelValues(string(reason)).Inc()
	c.log.Info("kicked", "reason", reason)
	s.drop(c)
}

// drop closes c without a kick frame.
func (s *Server) drop(c *conn) {
	c.t.Close()
	s.cleanup(c)
}

// cleanup releases everything c holds. It runs once per connection.
func (s *Server) cleanup(c *conn) {
	if c.state == stateClosed {
		return
	}
	prev := c.state
	c.state = stateClosed
	if c.cancelVerify != nil {
		c.cancelVerify()
		c.cancelVerify = nil
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	delete(s.conns, c.id)
	s.metrics.ConnectionsActive.Dec()

	if prev != stateActive || c.sess == nil {
		return
	}
	sess := c.sess
	s.dir.Disconnect(sess)
	s.metrics.SessionsActive.Dec()
	if sess.Room != "" {
		s.broadcastRoom(sess.Room, protocol.Die{Nick: sess.Nick}, c)
		s.rooms.Leave(sess.Room)
		s.updateRoomMetrics(sess.Room)
	}
	c.log.Info("user disconnected", "nick", sess.Nick)
}
