package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/goplace/pkg/model"
)

func TestBanStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.json")
	bans, err := OpenBans(path)
	require.NoError(t, err)
	assert.False(t, bans.IsBanned("10.0.0.1"))

	added, err := bans.Ban("10.0.0.1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = bans.Ban("10.0.0.1")
	require.NoError(t, err)
	assert.False(t, added, "second ban of the same ip is a no-op")

	_, err = bans.Ban("10.0.0.2")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"IPs":["10.0.0.1","10.0.0.2"]}`, string(data))

	removed, err := bans.Unban("10.0.0.1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = bans.Unban("10.0.0.1")
	require.NoError(t, err)
	assert.False(t, removed)

	reopened, err := OpenBans(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.2"}, reopened.List())
	assert.True(t, reopened.IsBanned("10.0.0.2"))
}

func TestBanStoreWriteFailureKeepsBan(t *testing.T) {
	dir := t.TempDir()
	bans, err := OpenBans(filepath.Join(dir, "missing", "bans.json"))
	require.NoError(t, err)

	_, err = bans.Ban("10.0.0.1")
	require.Error(t, err)
	assert.True(t, bans.IsBanned("10.0.0.1"))
}

func TestOpenBansRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := OpenBans(path)
	require.Error(t, err)
}

func TestModLogLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod-log.json")
	log, err := OpenModLog(path)
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	log.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	types := []model.LogType{model.LogKick, model.LogBan, model.LogKick, model.LogUnban, model.LogKick}
	for i, typ := range types {
		require.NoError(t, log.Append(model.LogEntry{Type: typ, Mod: "mod", Reason: string(rune('a' + i))}))
	}

	tests := []struct {
		name        string
		n           int
		filter      model.LogType
		wantReasons []string
	}{
		{"last two", 2, "", []string{"e", "d"}},
		{"more than stored", 50, "", []string{"e", "d", "c", "b", "a"}},
		{"filtered", 10, model.LogKick, []string{"e", "c", "a"}},
		{"filtered limited", 1, model.LogKick, []string{"e"}},
		{"no match", 10, model.LogWarn, []string{}},
		{"zero", 0, "", []string{}},
		{"negative", -3, "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := log.Last(tt.n, tt.filter)
			reasons := make([]string, 0, len(got))
			for _, e := range got {
				reasons = append(reasons, e.Reason)
			}
			assert.Equal(t, tt.wantReasons, reasons)
		})
	}

	last := log.Last(1, "")
	require.Len(t, last, 1)
	assert.Equal(t, base.Add(5*time.Minute), last[0].Date)

	reopened, err := OpenModLog(path)
	require.NoError(t, err)
	assert.Equal(t, 5, reopened.Len())
	assert.Equal(t, log.Last(5, ""), reopened.Last(5, ""))
}

func TestModLogFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod-log.json")
	log, err := OpenModLog(path)
	require.NoError(t, err)
	log.SetClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) })

	require.NoError(t, log.Append(model.LogEntry{Type: model.LogUnban, Mod: "mod", IP: "10.0.0.1"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"log":[{"type":"unban","date":"2024-01-01T00:00:00Z","mod":"mod","IP":"10.0.0.1"}]}`, string(data))
}

func TestMailboxLast(t *testing.T) {
	box, err := OpenMailbox(filepath.Join(t.TempDir(), "mod-messages.json"))
	require.NoError(t, err)

	entries := []model.MailboxEntry{
		{Type: model.MailUserReport, From: "alice", Nick: "bob", Reason: "1"},
		{Type: model.MailWarn, From: "mod", Nick: "carol", Reason: "2"},
		{Type: model.MailUserReport, From: "bob", Nick: "dave", Reason: "3"},
	}
	for _, e := range entries {
		require.NoError(t, box.Append(e))
	}

	reasons := func(es []model.MailboxEntry) []string {
		out := []string{}
		for _, e := range es {
			out = append(out, e.Reason)
		}
		return out
	}

	assert.Equal(t, []string{"3", "2", "1"}, reasons(box.Last(10, "")))
	assert.Equal(t, []string{"3", "1"}, reasons(box.Last(10, "bob")), "filter matches nick or from")
	assert.Equal(t, []string{"3"}, reasons(box.Last(1, "bob")))
	assert.Equal(t, []string{}, reasons(box.Last(10, "zed")))
	assert.Equal(t, 3, box.Len())
}

func TestInMemoryStores(t *testing.T) {
	bans, err := OpenBans("")
	require.NoError(t, err)
	_, err = bans.Ban("1.2.3.4")
	require.NoError(t, err)

	log, err := OpenModLog("")
	require.NoError(t, err)
	require.NoError(t, log.Append(model.LogEntry{Type: model.LogBroadcast, Msg: "hi"}))
	assert.False(t, log.Last(1, "")[0].Date.IsZero())
}
