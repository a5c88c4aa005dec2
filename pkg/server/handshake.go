package server

import (
	"context"
	"errors"

	"github.com/NicolasHaas/goplace/pkg/crypto"
	"github.com/NicolasHaas/goplace/pkg/directory"
	"github.com/NicolasHaas/goplace/pkg/identity"
	"github.com/NicolasHaas/goplace/pkg/model"
	"github.com/NicolasHaas/goplace/pkg/protocol"
)

// login handles the handshake frame.
func (s *Server) login(c *conn, m *protocol.Login) {
	switch m.Mode {
	case protocol.LoginCreate:
		if model.ValidateNick(m.Nick) != nil || s.filter.Profane(m.Nick) {
			s.reject(c, protocol.KickBadNick)
			return
		}
		if s.dir.HasAccount(m.Nick) {
			s.reject(c, protocol.KickAlreadyAccount)
			return
		}
		s.verify(c, m.Assertion, func(res identity.Result) {
			if !res.OK {
				s.reject(c, protocol.KickBadLogin)
				return
			}
			if err := s.dir.CreateAccount(m.Nick, res.Email); err != nil {
				switch {
				case errors.Is(err, directory.ErrEmailTaken):
					s.reject(c, protocol.KickAlreadyEmail)
				case errors.Is(err, directory.ErrNickTaken):
					s.reject(c, protocol.KickAlreadyAccount)
				default:
					c.log.Error("create account", "nick", m.Nick, "err", err)
					s.storeFailed("accounts", err)
					s.reject(c, protocol.KickBadLogin)
				}
				return
			}
			c.log.Info("account created", "nick", m.Nick)
			s.complete(c, m.Nick, m)
		})

	case protocol.LoginExisting:
		s.verify(c, m.Assertion, func(res identity.Result) {
			if !res.OK {
				s.reject(c, protocol.KickBadLogin)
				return
			}
			nick, ok := s.dir.NickForEmail(res.Email)
			if !ok {
				s.reject(c, protocol.KickNoAssocAccount)
				return
			}
			s.complete(c, nick, m)
		})

	case protocol.LoginBypass:
		if s.dir.Online(m.Nick) {
			s.reject(c, protocol.KickAccountInUse)
			return
		}
		hash, _ := s.dir.BypassHash(m.Nick)
		secret := m.Bypass
		s.offHub(c, func(context.Context) (identity.Result, error) {
			return identity.Result{OK: crypto.CheckSecret(hash, secret)}, nil
		}, func(res identity.Result) {
			if !res.OK {
				s.reject(c, protocol.KickBadLogin)
				return
			}
			s.complete(c, m.Nick, m)
		})

	default:
		s.kick(c, protocol.KickProtocolError, "")
	}
}

// verify checks an identity assertion off the hub.
func (s *Server) verify(c *conn, assertion string, then func(identity.Result)) {
	s.offHub(c, func(ctx context.Context) (identity.Result, error) {
		return s.verifier.Verify(ctx, assertion)
	}, then)
}

// offHub runs check on its own goroutine and then on the hub with the
// result, unless the connection has moved on in the meantime. The
// connection stays in stateVerifying until then runs.
func (s *Server) offHub(c *conn, check func(context.Context) (identity.Result, error), then func(identity.Result)) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if d := s.cfg.VerifyTimeout; d > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, d)
	} else {
		ctx, cancel = context.WithCancel(s.ctx)
	}
	c.state = stateVerifying
	c.cancelVerify = cancel

	go func() {
		defer cancel()
		res, err := check(ctx)
		s.post(func() {
			if c.state != stateVerifying {
				return
			}
			c.state = stateHandshaking
			c.cancelVerify = nil
			if err != nil {
				c.log.Warn("login check failed", "err", err)
				res = identity.Result{}
			}
			then(res)
		})
	}()
}

// reject ends a handshake with a kick.
func (s *Server) reject(c *conn, reason protocol.KickReason) {
	s.metrics.LoginFailures.WithLabelValues(string(reason)).Inc()
	s.kick(c, reason, "")
}

// complete turns a handshaking connection into a live session in the lobby
// and sends the login burst.
func (s *Server) complete(c *conn, nick string, m *protocol.Login) {
	if s.dir.Online(nick) {
		s.reject(c, protocol.KickAccountInUse)
		return
	}
	obj := m.Obj
	obj.Chat = s.filter.Chat(obj.Chat)
	sess := &model.Session{
		ID:          c.id,
		Nick:        nick,
		Obj:         obj,
		IP:          c.ip,
		ConnectedAt: s.now(),
	}
	if err := s.dir.Connect(sess); err != nil {
		reason := protocol.KickBadLogin
		if errors.Is(err, directory.ErrAccountInUse) {
			reason = protocol.KickAccountInUse
		}
		s.reject(c, reason)
		return
	}
	c.sess = sess
	c.state = stateActive
	if c.timer != nil {
		c.timer.Stop()
	}
	s.metrics.Logins.WithLabelValues(string(m.Mode)).Inc()
	s.metrics.SessionsActive.Inc()

	s.send(c, s.roomList())
	s.send(c, protocol.AvatarList{List: s.catalog.Avatars})
	s.send(c, protocol.InventoryItemList{List: s.catalog.Items})
	s.sendAccountState(c)

	warnings, err := s.dir.TakeWarnings(nick)
	if err != nil {
		s.storeFailed("accounts", err)
	}
	for _, w := range warnings {
		s.send(c, protocol.ModWarning{ModNick: w.ModNick, ModSpecial: w.ModSpecial, Reason: w.Reason})
	}
	c.log.Info("user connected", "nick", nick, "mode", m.Mode)
}

func (s *Server) sendAccountState(c *conn) {
	a, ok := s.dir.Account(c.sess.Nick)
	if !ok {
		return
	}
	s.send(c, protocol.AccountState{
		Nick:            a.Nick,
		Special:         a.Special,
		AvatarInventory: nonNil(a.AvatarInventory),
		Inventory:       nonNil(a.Inventory),
		Friends:         nonNil(a.Friends),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
