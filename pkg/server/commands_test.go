package server

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/goplace/pkg/model"
)

func TestUnprivilegedCommandsLookUnknown(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice", "10.0.0.1")
	bob := h.login("bob", "10.0.0.2")

	for _, cmd := range []string{"kick bob", "kickban bob", "mute", "modlog", "broadcast hi", "dance"} {
		alice.command(cmd)
		assert.Equal(t, []string{"Unknown command."}, notices(alice.take()), cmd)
	}
	assert.Equal(t, stateActive, bob.c.state)
	assert.Equal(t, float64(6), testutil.ToFloat64(h.s.metrics.Commands.WithLabelValues("unknown")))
}

func TestHelp(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice", "10.0.0.1")
	h.account("mod", model.SpecialModerator)
	mod := h.login("mod", "10.0.0.2")

	alice.command("help")
	frames := alice.take()
	require.Len(t, frames, 1)
	assert.Equal(t, "help", frames[0].typ())
	assert.Len(t, frames[0]["lines"], len(userHelp))

	mod.command("/help")
	assert.Equal(t, []string{"help", "console_msg"}, typesOf(mod.take()))

	mod.command("modhelp")
	frames = mod.take()
	require.Len(t, frames, 1)
	assert.Len(t, frames[0]["lines"], len(modHelp))
}

// kickbanSetup puts a moderator and three users in two rooms. bob and carol
// share an IP.
func kickbanSetup(t *testing.T) (h *harness, mod, bob, carol, dave *client) {
	h = newHarness(t)
	h.account("mod", model.SpecialModerator)
	mod = h.login("mod", "10.0.0.1")
	bob = h.login("bob", "10.0.0.66")
	carol = h.login("carol", "10.0.0.66")
	dave = h.login("dave", "10.0.0.3")
	mod.join("ponyville")
	bob.join("ponyville")
	carol.join("canterlot")
	dave.join("canterlot")
	for _, cl := range []*client{mod, bob, carol, dave} {
		cl.take()
	}
	return h, mod, bob, carol, dave
}

func TestKickban(t *testing.T) {
	h, mod, bob, carol, dave := kickbanSetup(t)

	mod.command("kickban bob being rude")

	assert.True(t, h.s.bans.IsBanned("10.0.0.66"))
	for _, cl := range []*client{bob, carol} {
		frames := cl.take()
		require.Len(t, frames, 1, cl.nick)
		assert.Equal(t, "kick", frames[0].typ())
		assert.Equal(t, "ban", frames[0].str("reason"))
		assert.Equal(t, "being rude", frames[0].str("msg"))
		assert.True(t, cl.t.closed)
		assert.False(t, h.s.dir.Online(cl.nick))
	}

	frames := mod.take()
	assert.Equal(t, []string{
		"Banned IP 10.0.0.66.",
		`Kicked alias "bob" of the user with IP 10.0.0.66.`,
		`Kicked alias "carol" of the user with IP 10.0.0.66.`,
	}, notices(frames))
	assert.Len(t, only(t, frames, "die"), 1)
	kb := only(t, frames, "kickban_notice")
	require.Len(t, kb, 1)
	assert.Equal(t, "mod", kb[0].str("mod_nick"))
	assert.Equal(t, "moderator", kb[0].str("mod_special"))
	assert.Equal(t, "bob", kb[0].str("kickee_nick"))
	assert.Equal(t, "being rude", kb[0].str("reason"))

	frames = dave.take()
	assert.Equal(t, []string{"die", "kickban_notice"}, typesOf(frames))
	assert.Equal(t, "carol", frames[1].str("kickee_nick"))

	ponyville, canterlot := "ponyville", "canterlot"
	want := []model.LogEntry{{
		Type: model.LogBan,
		Date: h.at,
		Mod:  "mod",
		IP:   "10.0.0.66",
		Aliases: []model.Alias{
			{Nick: "bob", Room: &ponyville, State: model.Object{X: 10, Y: 20, ImgName: "derpy"}},
			{Nick: "carol", Room: &canterlot, State: model.Object{X: 10, Y: 20, ImgName: "derpy"}},
		},
		Reason: "being rude",
	}}
	if diff := cmp.Diff(want, h.s.modLog.Last(10, "")); diff != "" {
		t.Errorf("mod log mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, h.s.rooms.Count("ponyville"))
	assert.Equal(t, 1, h.s.rooms.Count("canterlot"))
	assert.Equal(t, float64(2), testutil.ToFloat64(h.s.metrics.Kicks.WithLabelValues("ban")))
}

func TestKick(t *testing.T) {
	h, mod, bob, carol, dave := kickbanSetup(t)

	mod.command("kick carol")

	assert.False(t, h.s.bans.IsBanned("10.0.0.66"))
	for _, cl := range []*client{bob, carol} {
		frames := cl.take()
		require.Len(t, frames, 1, cl.nick)
		assert.Equal(t, "kick", frames[0].str("reason"))
		_, hasMsg := frames[0]["msg"]
		assert.False(t, hasMsg)
	}
	assert.Len(t, only(t, mod.take(), "kick_notice"), 1)
	assert.Len(t, only(t, dave.take(), "kick_notice"), 1)

	entries := h.s.modLog.Last(10, model.LogKick)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Aliases, 2)
	assert.Empty(t, entries[0].Reason)
}

func TestKickRefusals(t *testing.T) {
	h := newHarness(t)
	h.account("mod", model.SpecialModerator)
	mod := h.login("mod", "10.0.0.1")
	h.account("other", model.SpecialModerator)
	other := h.login("other", "10.0.0.2")
	h.account("offline", model.SpecialNone)

	mod.command("kickban other")
	assert.Equal(t, []string{"You can't kickban other moderators."}, notices(mod.take()))
	assert.Equal(t, stateActive, other.c.state)

	mod.command("kick offline")
	assert.Equal(t, []string{`There is no user named "offline".`}, notices(mod.take()))

	mod.command("kick")
	assert.Equal(t, []string{"Usage: /kick <nick> [reason]"}, notices(mod.take()))
	assert.Equal(t, 0, h.s.modLog.Len())
}

func TestGlobalMute(t *testing.T) {
	h := newHarness(t)
	h.account("boss", model.SpecialCreator)
	boss := h.login("boss", "10.0.0.1")
	h.account("mod", model.SpecialModerator)
	mod := h.login("mod", "10.0.0.2")
	alice := h.login("alice", "10.0.0.3")

	mod.command("mute")
	assert.Equal(t, []string{"Unknown command."}, notices(mod.take()))

	boss.command("mute")
	assert.True(t, h.s.globalMute)
	for _, cl := range []*client{boss, mod, alice} {
		frames := cl.take()
		require.Len(t, frames, 1)
		assert.Equal(t, "** NOTE: BOSS HAS MUTED EVERYONE - YOU CAN TALK, BUT NOBODY WILL HEAR YOU **", frames[0].str("msg"))
	}

	// Moderators lose their commands while muted; the creator keeps them.
	mod.command("kick alice")
	assert.Equal(t, []string{"Unknown command."}, notices(mod.take()))
	assert.Equal(t, stateActive, alice.c.state)
	boss.command("broadcast still here")
	assert.Equal(t, []string{"Message sent."}, notices(boss.take()))

	boss.command("mute")
	assert.False(t, h.s.globalMute)
	frames := alice.take()
	assert.Equal(t, "** BOSS HAS LIFTED THE GLOBAL MUTE - YOU CAN TALK AND BE HEARD AGAIN **", frames[len(frames)-1].str("msg"))

	mod.command("kick alice")
	assert.Equal(t, stateClosed, alice.c.state)
}

func TestWarn(t *testing.T) {
	h := newHarness(t)
	h.account("mod", model.SpecialModerator)
	mod := h.login("mod", "10.0.0.1")
	bob := h.login("bob", "10.0.0.2")
	h.account("carol", model.SpecialNone)

	mod.command("warn bob stop spamming")
	frames := bob.take()
	require.Len(t, frames, 1)
	assert.Equal(t, "mod_warning", frames[0].typ())
	assert.Equal(t, "mod", frames[0].str("mod_nick"))
	assert.Equal(t, "stop spamming", frames[0].str("reason"))
	assert.Equal(t, []string{`"bob" has been warned and will see the warning right away.`}, notices(mod.take()))

	mod.command("warn carol final warning")
	assert.Equal(t, []string{`"carol" has been warned and will see the warning at their next login.`}, notices(mod.take()))
	a, _ := h.s.dir.Account("carol")
	assert.Equal(t, []model.Warning{{ModNick: "mod", ModSpecial: model.SpecialModerator, Reason: "final warning"}}, a.Warnings)

	assert.Len(t, h.s.modLog.Last(10, model.LogWarn), 2)
	mails := h.s.mailbox.Last(10, "carol")
	require.Len(t, mails, 1)
	assert.Equal(t, model.MailWarn, mails[0].Type)
	assert.Equal(t, "mod", mails[0].From)

	mod.command("warn bob")
	assert.Equal(t, []string{"/warn needs a nick and a reason."}, notices(mod.take()))
	mod.command("warn nobody hello")
	assert.Equal(t, []string{`There is no user named "nobody".`}, notices(mod.take()))
	assert.Equal(t, 2, h.s.modLog.Len())
}

func TestMove(t *testing.T) {
	h := newHarness(t)
	h.account("mod", model.SpecialModerator)
	mod := h.login("mod", "10.0.0.1")
	bob := h.login("bob", "10.0.0.2")
	h.account("other", model.SpecialModerator)
	h.login("other", "10.0.0.3")
	bob.join("ponyville")
	bob.take()

	mod.command("move canterlot bob")

	frames := bob.take()
	assert.Equal(t, []string{"room_change", "room_list", "console_msg"}, typesOf(frames))
	assert.Equal(t, "You were moved by mod.", frames[2].str("msg"))
	assert.Equal(t, "canterlot", mustSession(t, h, "bob").Room)

	entries := h.s.modLog.Last(10, model.LogMove)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].OldRoom)
	assert.Equal(t, "ponyville", *entries[0].OldRoom)
	assert.Equal(t, "canterlot", entries[0].NewRoom)
	assert.Equal(t, "bob", entries[0].Nick)
	require.NotNil(t, entries[0].State)
	assert.Equal(t, float64(10), entries[0].State.X)

	mod.command("move canterlot other")
	assert.Equal(t, []string{"You can't move other moderators."}, notices(mod.take()))
	mod.command("move canterlot")
	assert.Equal(t, []string{"/move needs a room and a nick."}, notices(mod.take()))
}

func TestAliases(t *testing.T) {
	h, mod, _, _, _ := kickbanSetup(t)

	mod.command("aliases carol")
	assert.Equal(t, []string{
		"The user with IP 10.0.0.66 has these aliases:",
		`1. "bob"`,
		`2. "carol"`,
		"(2 aliases in total)",
	}, notices(mod.take()))
	assert.Equal(t, 0, h.s.modLog.Len())
}

func TestBroadcastAndModLog(t *testing.T) {
	h := newHarness(t)
	h.account("mod", model.SpecialModerator)
	mod := h.login("mod", "10.0.0.1")
	alice := h.login("alice", "10.0.0.2")

	mod.command("broadcast Hello everypony!")
	frames := alice.take()
	require.Len(t, frames, 1)
	assert.Equal(t, "broadcast", frames[0].typ())
	assert.Equal(t, "Hello everypony!", frames[0].str("msg"))
	assert.Equal(t, []string{"broadcast", "console_msg"}, typesOf(mod.take()))

	mod.command("unban 10.9.9.9")
	assert.Equal(t, []string{"IP 10.9.9.9 is not banned."}, notices(mod.take()))
	_, err := h.s.bans.Ban("10.9.9.9")
	require.NoError(t, err)
	mod.command("unban 10.9.9.9")
	assert.Equal(t, []string{"Unbanned IP 10.9.9.9."}, notices(mod.take()))
	assert.False(t, h.s.bans.IsBanned("10.9.9.9"))

	mod.command("modlog 5 broadcast")
	frames = mod.take()
	assert.Equal(t, []string{`Showing 1 log items of type "broadcast"`}, notices(frames))
	logs := only(t, frames, "mod_log")
	require.Len(t, logs, 1)
	assert.Equal(t, "modlog 5 broadcast", logs[0].str("cmd"))
	items := logs[0]["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Hello everypony!", frame(items[0].(map[string]any)).str("msg"))

	mod.command("modlog")
	frames = mod.take()
	assert.Equal(t, []string{"Showing 2 log items"}, notices(frames))
}

func TestModMsgs(t *testing.T) {
	h := newHarness(t)
	h.account("mod", model.SpecialModerator)
	mod := h.login("mod", "10.0.0.1")
	alice := h.login("alice", "10.0.0.2")
	alice.send(map[string]any{"type": "user_report", "nick": "bob", "reason": "rude"})
	alice.send(map[string]any{"type": "user_report", "nick": "carol", "reason": "spam"})
	mod.take()

	mod.command("modmsgs 10 bob")
	frames := mod.take()
	assert.Equal(t, []string{`Showing 1 messages involving "bob"`}, notices(frames))
	msgs := only(t, frames, "mod_msgs")
	require.Len(t, msgs, 1)
	assert.Equal(t, "modmsgs 10 bob", msgs[0].str("cmd"))
	assert.Len(t, msgs[0]["messages"], 1)

	mod.command("modmsgs x")
	assert.Equal(t, []string{"Showing 2 messages"}, notices(mod.take()))
}

func TestEmptyHouse(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice", "10.0.0.1")
	bob := h.login("bob", "10.0.0.2")

	alice.command("empty")
	assert.Equal(t, []string{"There is nobody in your house."}, notices(alice.take()))

	alice.command("join house alice")
	bob.command("join house alice")
	alice.take()
	bob.take()

	alice.command("empty")
	assert.Equal(t, []string{`Removed "bob" from your house.`, "Removed 1 users from your house."}, notices(alice.take()))
	assert.Equal(t, []string{`"alice" sent you out of their house.`}, notices(bob.take()))
	assert.Equal(t, "ponyville", mustSession(t, h, "bob").Room)
	assert.Equal(t, "house alice", mustSession(t, h, "alice").Room)
}

func TestJoinAndList(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice", "10.0.0.1")

	alice.command("join library")
	assert.Equal(t, "library", mustSession(t, h, "alice").Room)
	alice.take()

	alice.command("list")
	assert.Equal(t, []string{"3 rooms available: library (ephemeral), ponyville, canterlot"}, notices(alice.take()))

	alice.command("join two words")
	assert.Equal(t, []string{"Room names can't contain spaces."}, notices(alice.take()))
	alice.command("join")
	assert.Equal(t, []string{"Usage: /join <room>"}, notices(alice.take()))

	h.login("bob", "10.0.0.2")
	_, err := h.s.dir.SetHouseLocked("bob", true)
	require.NoError(t, err)
	alice.command("join house bob")
	assert.Equal(t, []string{"That house is locked."}, notices(alice.take()))
	assert.Equal(t, "library", mustSession(t, h, "alice").Room)
}

func TestJoinToleratesExtraWhitespace(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice", "10.0.0.1")
	h.login("bob", "10.0.0.2")

	tests := []struct {
		cmd  string
		want string
	}{
		{"join house  bob", "house bob"},
		{"join\thouse\tbob", "house bob"},
		{"join   canterlot ", "canterlot"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			alice.command(tt.cmd)
			assert.Empty(t, notices(alice.take()))
			assert.Equal(t, tt.want, mustSession(t, h, "alice").Room)
		})
	}
}

func TestProfileCommand(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice", "10.0.0.1")

	alice.command("profile alice")
	frames := alice.take()
	require.Len(t, frames, 1)
	assert.Equal(t, "profile", frames[0].typ())
	assert.Equal(t, "alice", frames[0].obj("data").str("nick"))

	alice.command("profile")
	assert.Equal(t, []string{"Usage: /profile <nick>"}, notices(alice.take()))
}
