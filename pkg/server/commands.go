package server

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/NicolasHaas/goplace/pkg/command"
	"github.com/NicolasHaas/goplace/pkg/filter"
	"github.com/NicolasHaas/goplace/pkg/model"
	"github.com/NicolasHaas/goplace/pkg/protocol"
	"github.com/NicolasHaas/goplace/pkg/rbac"
)

type commandFunc func(s *Server, c *conn, cmd command.Command, p rbac.Privileges)

type commandSpec struct {
	perm rbac.Permission
	run  commandFunc
}

var commands = map[string]commandSpec{
	"help":      {rbac.PermUser, (*Server).cmdHelp},
	"profile":   {rbac.PermUser, (*Server).cmdProfile},
	"join":      {rbac.PermUser, (*Server).cmdJoin},
	"list":      {rbac.PermUser, (*Server).cmdList},
	"empty":     {rbac.PermUser, (*Server).cmdEmpty},
	"lock":      {rbac.PermUser, (*Server).cmdLock},
	"unlock":    {rbac.PermUser, (*Server).cmdUnlock},
	"modhelp":   {rbac.PermModerate, (*Server).cmdModHelp},
	"kick":      {rbac.PermModerate, (*Server).cmdKick},
	"kickban":   {rbac.PermModerate, (*Server).cmdKickban},
	"unban":     {rbac.PermModerate, (*Server).cmdUnban},
	"warn":      {rbac.PermModerate, (*Server).cmdWarn},
	"move":      {rbac.PermModerate, (*Server).cmdMove},
	"aliases":   {rbac.PermModerate, (*Server).cmdAliases},
	"broadcast": {rbac.PermModerate, (*Server).cmdBroadcast},
	"modlog":    {rbac.PermModerate, (*Server).cmdModLog},
	"modmsgs":   {rbac.PermModerate, (*Server).cmdModMsgs},
	"mute":      {rbac.PermGlobalMute, (*Server).cmdMute},
}

var userHelp = []string{
	"User commands: 1) profile, 2) list, 3) join",
	"1. profile - shows someone's profile, e.g. /profile somepony",
	"2. list - lists the available rooms, e.g. /list",
	"3. join - enters a room, e.g. /join library. A room that doesn't exist is created as an ephemeral room. You can also visit houses, e.g. /join house somepony",
	"House commands: 1) empty, 2) lock, 3) unlock",
	"1. empty - sends everyone else out of your house, e.g. /empty",
	"2. lock - stops others from entering your house, e.g. /lock",
	"3. unlock - lets everyone into your house again, e.g. /unlock",
}

var modHelp = []string{
	"Moderator commands: 1) kick, 2) kickban, 3) warn, 4) unban, 5) broadcast, 6) aliases, 7) move, 8) modlog, 9) modmsgs",
	"1. kick & 2. kickban - kick disconnects someone and every alias on their IP, e.g. /kick somepony. kickban also bans the IP. Both take an optional reason, e.g. /kick somepony Don't spam the chat!",
	"3. warn - formally warns someone. They see it right away if online, otherwise at their next login, e.g. /warn somepony Stop spamming. Final warning.",
	"4. unban - lifts an IP ban, e.g. /unban 192.168.1.1",
	"5. broadcast - sends a message to everyone on the server, e.g. /broadcast Hello everypony!",
	"6. aliases - lists the users sharing someone's IP, e.g. /aliases somepony",
	"7. move - forces a user into a room, e.g. /move canterlot somepony",
	"8. modlog - shows moderator activity. Takes an optional count (10 by default) and type filter (ban/unban/kick/warn/move/broadcast), e.g. /modlog 25 unban",
	"9. modmsgs - shows reports and warnings. Takes an optional count (10 by default) and nick filter, e.g. /modmsgs 25 somepony",
	"See also: /help",
}

// runCommand parses and runs a console command for c. Commands the issuer
// may not run look unknown.
func (s *Server) runCommand(c *conn, text string) {
	cmd := command.Parse(text)
	p := rbac.For(s.dir.Special(c.sess.Nick), s.globalMute)
	spec, ok := commands[cmd.Name]
	if !ok || !rbac.HasPermission(p, spec.perm) {
		s.metrics.Commands.WithLabelValues("unknown").Inc()
		s.notice(c, "Unknown command.")
		return
	}
	s.metrics.Commands.WithLabelValues(cmd.Name).Inc()
	spec.run(s, c, cmd, p)
}

func (s *Server) cmdHelp(c *conn, _ command.Command, p rbac.Privileges) {
	s.send(c, protocol.Help{Lines: userHelp})
	if p.IsMod {
		s.notice(c, "See also: /modhelp")
	}
}

func (s *Server) cmdModHelp(c *conn, _ command.Command, _ rbac.Privileges) {
	s.send(c, protocol.Help{Lines: modHelp})
}

func (s *Server) cmdProfile(c *conn, cmd command.Command, p rbac.Privileges) {
	nick := cmd.Arg(0)
	if nick == "" {
		s.notice(c, "Usage: /profile <nick>")
		return
	}
	s.sendProfile(c, nick, p.IsMod)
}

func (s *Server) cmdJoin(c *conn, cmd command.Command, _ rbac.Privileges) {
	name := strings.Join(cmd.Args, " ")
	switch {
	case name == "":
		s.notice(c, "Usage: /join <room>")
		return
	case strings.Contains(name, " "):
		owner, ok := model.HouseOwner(name)
		if !ok {
			s.notice(c, "Room names can't contain spaces.")
			return
		}
		if !s.canEnterHouse(c.sess.Nick, owner) {
			s.notice(c, "That house is locked.")
			return
		}
	}
	s.changeRoom(c, name)
}

func (s *Server) cmdList(c *conn, _ command.Command, _ rbac.Privileges) {
	list := s.rooms.List(s.dir.Occupancy())
	names := make([]string, 0, len(list))
	for _, r := range list {
		if r.Type == model.RoomEphemeral {
			names = append(names, r.Name+" (ephemeral)")
		} else {
			names = append(names, r.Name)
		}
	}
	s.notice(c, fmt.Sprintf("%d rooms available: %s", len(list), strings.Join(names, ", ")))
}

func (s *Server) cmdEmpty(c *conn, _ command.Command, _ rbac.Privileges) {
	nick := c.sess.Nick
	count := 0
	for _, sess := range s.dir.InRoom(model.HouseName(nick)) {
		if sess.Nick == nick {
			continue
		}
		s.changeRoom(s.conns[sess.ID], s.cfg.DefaultRoom)
		s.notice(c, fmt.Sprintf("Removed %q from your house.", sess.Nick))
		s.notice(s.conns[sess.ID], fmt.Sprintf("%q sent you out of their house.", nick))
		count++
	}
	if count == 0 {
		s.notice(c, "There is nobody in your house.")
		return
	}
	s.notice(c, fmt.Sprintf("Removed %d users from your house.", count))
}

func (s *Server) cmdLock(c *conn, _ command.Command, _ rbac.Privileges) {
	changed, err := s.dir.SetHouseLocked(c.sess.Nick, true)
	if err != nil {
		s.storeFailed("accounts", err)
	}
	if changed {
		s.notice(c, "Your house is now locked. Use /unlock to unlock it.")
	} else {
		s.notice(c, "Your house is already locked. Use /unlock to unlock it.")
	}
}

func (s *Server) cmdUnlock(c *conn, _ command.Command, _ rbac.Privileges) {
	changed, err := s.dir.SetHouseLocked(c.sess.Nick, false)
	if err != nil {
		s.storeFailed("accounts", err)
	}
	if changed {
		s.notice(c, "Your house is now unlocked. Use /lock to lock it.")
	} else {
		s.notice(c, "Your house is already unlocked. Use /lock to lock it.")
	}
}

func (s *Server) cmdKick(c *conn, cmd command.Command, _ rbac.Privileges) {
	s.sweepAliases(c, cmd, false)
}

func (s *Server) cmdKickban(c *conn, cmd command.Command, _ rbac.Privileges) {
	s.sweepAliases(c, cmd, true)
}

// sweepAliases kicks the target and every session sharing its IP, banning
// the IP first when ban is set. One log entry covers the whole sweep.
func (s *Server) sweepAliases(c *conn, cmd command.Command, ban bool) {
	target, reason := cmd.Split()
	if target == "" {
		s.notice(c, "Usage: /"+cmd.Name+" <nick> [reason]")
		return
	}
	targetSess, ok := s.dir.Session(target)
	if !ok {
		s.notice(c, noSuchUser(target))
		return
	}
	if ban && s.dir.IsModerator(target) {
		s.notice(c, "You can't kickban other moderators.")
		return
	}
	mod := c.sess
	modSpecial := s.dir.Special(mod.Nick)
	ip := targetSess.IP
	reason = filter.Text(reason)

	kickReason, logType := protocol.KickKick, model.LogKick
	if ban {
		kickReason, logType = protocol.KickBan, model.LogBan
		if _, err := s.bans.Ban(ip); err != nil {
			s.storeFailed("bans", err)
		}
		s.metrics.Bans.Inc()
		s.notice(c, "Banned IP "+ip+".")
	}

	var aliases []model.Alias
	for _, sess := range s.dir.Sessions() {
		if sess.IP != ip {
			continue
		}
		ac := s.conns[sess.ID]
		if ac == nil || ac.state == stateClosed {
			continue
		}
		alias := model.Alias{Nick: sess.Nick, State: sess.Obj}
		if sess.Room != "" {
			room := sess.Room
			alias.Room = &room
		}
		aliases = append(aliases, alias)

		details := protocol.KickDetails{
			ModNick:       mod.Nick,
			ModSpecial:    modSpecial,
			KickeeNick:    sess.Nick,
			KickeeSpecial: s.dir.Special(sess.Nick),
			Reason:        reason,
		}
		s.kick(ac, kickReason, reason)
		s.notice(c, fmt.Sprintf("Kicked alias %q of the user with IP %s.", sess.Nick, ip))
		if sess.Room != "" {
			var notice protocol.Outbound = protocol.KickNotice{KickDetails: details}
			if ban {
				notice = protocol.KickbanNotice{KickDetails: details}
			}
			s.broadcastRoom(sess.Room, notice, nil)
		}
	}

	s.appendLog(model.LogEntry{
		Type:    logType,
		Mod:     mod.Nick,
		IP:      ip,
		Aliases: aliases,
		Reason:  reason,
	})
	c.log.Info("alias sweep", "mod", mod.Nick, "ip", ip, "ban", ban, "aliases", len(aliases))
}

func (s *Server) cmdUnban(c *conn, cmd command.Command, _ rbac.Privileges) {
	ip := cmd.Arg(0)
	if ip == "" {
		s.notice(c, "Usage: /unban <ip>")
		return
	}
	removed, err := s.bans.Unban(ip)
	if err != nil {
		s.storeFailed("bans", err)
	}
	if !removed {
		s.notice(c, "IP "+ip+" is not banned.")
		return
	}
	s.notice(c, "Unbanned IP "+ip+".")
	s.appendLog(model.LogEntry{Type: model.LogUnban, Mod: c.sess.Nick, IP: ip})
}

func (s *Server) cmdWarn(c *conn, cmd command.Command, _ rbac.Privileges) {
	target, reason := cmd.Split()
	reason = filter.Text(reason)
	if target == "" || reason == "" {
		s.notice(c, "/warn needs a nick and a reason.")
		return
	}
	if !s.dir.HasAccount(target) {
		s.notice(c, noSuchUser(target))
		return
	}
	mod := c.sess.Nick
	w := model.Warning{ModNick: mod, ModSpecial: s.dir.Special(mod), Reason: reason}
	if tc := s.connFor(target); tc != nil {
		s.send(tc, protocol.ModWarning{ModNick: w.ModNick, ModSpecial: w.ModSpecial, Reason: w.Reason})
		s.notice(c, fmt.Sprintf("%q has been warned and will see the warning right away.", target))
	} else {
		if err := s.dir.AddWarning(target, w); err != nil {
			s.storeFailed("accounts", err)
		}
		s.notice(c, fmt.Sprintf("%q has been warned and will see the warning at their next login.", target))
	}
	s.appendLog(model.LogEntry{Type: model.LogWarn, Mod: mod, Nick: target, Reason: reason})
	if err := s.mailbox.Append(model.MailboxEntry{Type: model.MailWarn, From: mod, Nick: target, Reason: reason}); err != nil {
		s.storeFailed("mailbox", err)
	}
}

func (s *Server) cmdMove(c *conn, cmd command.Command, _ rbac.Privileges) {
	room, target := cmd.Split()
	if room == "" || target == "" {
		s.notice(c, "/move needs a room and a nick.")
		return
	}
	tc := s.connFor(target)
	if tc == nil {
		s.notice(c, noSuchUser(target))
		return
	}
	if s.dir.IsModerator(target) {
		s.notice(c, "You can't move other moderators.")
		return
	}
	entry := model.LogEntry{Type: model.LogMove, Mod: c.sess.Nick, Nick: target, NewRoom: room}
	if old := tc.sess.Room; old != "" {
		entry.OldRoom = &old
	}
	state := tc.sess.Obj
	entry.State = &state
	s.appendLog(entry)

	s.changeRoom(tc, room)
	s.notice(tc, "You were moved by "+c.sess.Nick+".")
}

func (s *Server) cmdAliases(c *conn, cmd command.Command, _ rbac.Privileges) {
	target := cmd.Arg(0)
	if target == "" {
		s.notice(c, "Usage: /aliases <nick>")
		return
	}
	ts, ok := s.dir.Session(target)
	if !ok {
		s.notice(c, noSuchUser(target))
		return
	}
	aliases := s.dir.Aliases(ts.IP)
	s.notice(c, fmt.Sprintf("The user with IP %s has these aliases:", ts.IP))
	for i, a := range aliases {
		s.notice(c, fmt.Sprintf("%d. %q", i+1, a.Nick))
	}
	s.notice(c, fmt.Sprintf("(%d aliases in total)", len(aliases)))
}

func (s *Server) cmdBroadcast(c *conn, cmd command.Command, _ rbac.Privileges) {
	msg := filter.Text(cmd.Rest)
	if msg == "" {
		s.notice(c, "Usage: /broadcast <message>")
		return
	}
	s.broadcastAll(protocol.Broadcast{Msg: msg})
	s.notice(c, "Message sent.")
	s.appendLog(model.LogEntry{Type: model.LogBroadcast, Mod: c.sess.Nick, Msg: msg})
	c.log.Info("broadcast", "mod", c.sess.Nick, "msg", msg)
}

func (s *Server) cmdModLog(c *conn, cmd command.Command, _ rbac.Privileges) {
	q := cmd.ParseQuery()
	items := s.modLog.Last(q.Count, model.LogType(q.Filter))
	line := fmt.Sprintf("Showing %d log items", len(items))
	if q.Filter != "" {
		line += fmt.Sprintf(" of type %q", q.Filter)
	}
	s.notice(c, line)
	s.send(c, protocol.ModLog{Cmd: cmd.String(), Items: items})
}

func (s *Server) cmdModMsgs(c *conn, cmd command.Command, _ rbac.Privileges) {
	q := cmd.ParseQuery()
	messages := s.mailbox.Last(q.Count, q.Filter)
	line := fmt.Sprintf("Showing %d messages", len(messages))
	if q.Filter != "" {
		line += fmt.Sprintf(" involving %q", q.Filter)
	}
	s.notice(c, line)
	s.send(c, protocol.ModMsgs{Cmd: cmd.String(), Messages: messages})
}

func (s *Server) cmdMute(c *conn, _ command.Command, _ rbac.Privileges) {
	name := strings.ToUpper(c.sess.Nick)
	var msg string
	if s.globalMute {
		msg = "** " + name + " HAS LIFTED THE GLOBAL MUTE - YOU CAN TALK AND BE HEARD AGAIN **"
	} else {
		msg = "** NOTE: " + name + " HAS MUTED EVERYONE - YOU CAN TALK, BUT NOBODY WILL HEAR YOU **"
	}
	s.globalMute = !s.globalMute
	s.broadcastAll(protocol.Broadcast{Msg: msg})
	c.log.Info("global mute", "by", c.sess.Nick, "muted", s.globalMute)
}

// appendLog records a moderator action.
func (s *Server) appendLog(e model.LogEntry) {
	if err := s.modLog.Append(e); err != nil {
		s.storeFailed("modlog", err)
	}
}

// storeFailed reports a persistence failure. The in-memory change stands.
func (s *Server) storeFailed(name string, err error) {
	s.metrics.StoreErrors.WithLabelValues(name).Inc()
	slog.Error("store write failed", "store", name, "err", err)
}
