package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/goplace/pkg/model"
)

func TestServeHTTPRefusals(t *testing.T) {
	tests := []struct {
		name     string
		origin   string
		protocol string
		banned   bool
		want     int
		reason   string
	}{
		{name: "foreign origin", origin: "http://evil.test", protocol: "ponyplace", want: http.StatusForbidden, reason: "origin"},
		{name: "missing origin", protocol: "ponyplace", want: http.StatusForbidden, reason: "origin"},
		{name: "banned ip", origin: "http://goplace.test", protocol: "ponyplace", banned: true, want: http.StatusForbidden, reason: "banned"},
		{name: "no subprotocol", origin: "http://goplace.test", want: http.StatusBadRequest, reason: "subprotocol"},
		{name: "wrong subprotocol", origin: "http://goplace.test", protocol: "chat", want: http.StatusBadRequest, reason: "subprotocol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *Config, _ *Dependencies) {
				c.AllowedOrigin = "http://goplace.test"
			})
			if tt.banned {
				_, err := h.s.bans.Ban("192.0.2.1")
				require.NoError(t, err)
			}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Connection", "Upgrade")
			req.Header.Set("Upgrade", "websocket")
			req.Header.Set("Sec-WebSocket-Version", "13")
			req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.protocol != "" {
				req.Header.Set("Sec-WebSocket-Protocol", tt.protocol)
			}
			rec := httptest.NewRecorder()

			h.s.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, float64(1), testutil.ToFloat64(h.s.metrics.Rejected.WithLabelValues(tt.reason)))
			assert.Empty(t, h.s.conns)
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed string
		missing bool
		origin  string
		want    bool
	}{
		{name: "any origin", origin: "http://a.test", want: true},
		{name: "exact match", allowed: "http://a.test", origin: "http://a.test", want: true},
		{name: "mismatch", allowed: "http://a.test", origin: "http://b.test", want: false},
		{name: "missing refused", allowed: "http://a.test", want: false},
		{name: "missing allowed", allowed: "http://a.test", missing: true, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{cfg: Config{AllowedOrigin: tt.allowed, AllowMissingOrigin: tt.missing}}
			assert.Equal(t, tt.want, s.originAllowed(tt.origin))
		})
	}
}

func startServer(t *testing.T, h *harness) string {
	t.Helper()
	require.NoError(t, h.s.Start())
	t.Cleanup(h.s.Shutdown)
	return "ws://" + h.s.Addr().String() + "/"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{
		Subprotocols:     []string{"ponyplace"},
		HandshakeTimeout: 5 * time.Second,
	}
	header := http.Header{"Origin": []string{"http://goplace.test"}}
	ws, resp, err := dialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "ponyplace", ws.Subprotocol())
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestWebsocketSession(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Dependencies) {
		c.ListenAddr = "127.0.0.1:0"
	})
	h.account("alice", model.SpecialNone)
	h.account("bob", model.SpecialNone)
	url := startServer(t, h)

	alice := dial(t, url)
	require.NoError(t, alice.WriteJSON(loginFrame("existing", "", "alice@example.com")))
	var got []string
	for range 4 {
		got = append(got, readFrame(t, alice).typ())
	}
	assert.Equal(t, []string{"room_list", "avatar_list", "inventory_item_list", "account_state"}, got)

	require.NoError(t, alice.WriteJSON(map[string]any{"type": "room_change", "name": "ponyville"}))
	f := readFrame(t, alice)
	assert.Equal(t, "room_change", f.typ())
	assert.Equal(t, "ponyville", f.obj("data").str("name"))
	assert.Equal(t, "room_list", readFrame(t, alice).typ())

	bob := dial(t, url)
	require.NoError(t, bob.WriteJSON(loginFrame("existing", "", "bob@example.com")))
	for range 4 {
		readFrame(t, bob)
	}
	require.NoError(t, bob.WriteJSON(map[string]any{"type": "room_change", "name": "ponyville"}))
	f = readFrame(t, alice)
	assert.Equal(t, "appear", f.typ())
	assert.Equal(t, "bob", f.str("nick"))

	require.NoError(t, bob.Close())
	f = readFrame(t, alice)
	assert.Equal(t, "die", f.typ())
	assert.Equal(t, "bob", f.str("nick"))

	h.s.Shutdown()
	f = readFrame(t, alice)
	assert.Equal(t, "kick", f.typ())
	assert.Equal(t, "update", f.str("reason"))
	_, _, err := alice.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestShutdownWithConnectionsArriving(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Dependencies) {
		c.ListenAddr = "127.0.0.1:0"
	})
	url := startServer(t, h)

	const settled = 6
	var clients []*websocket.Conn
	for range settled {
		clients = append(clients, dial(t, url))
	}
	require.Eventually(t, func() bool {
		n := 0
		_ = h.s.Do(func() { n = len(h.s.conns) })
		return n == settled
	}, 5*time.Second, 10*time.Millisecond)

	// More connections keep arriving while the server stops.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dialer := websocket.Dialer{Subprotocols: []string{"ponyplace"}, HandshakeTimeout: time.Second}
			header := http.Header{"Origin": []string{"http://goplace.test"}}
			for {
				select {
				case <-stop:
					return
				default:
				}
				ws, resp, err := dialer.Dial(url, header)
				if err != nil {
					return
				}
				_ = resp.Body.Close()
				_ = ws.Close()
			}
		}()
	}

	start := time.Now()
	h.s.Shutdown()
	assert.Less(t, time.Since(start), 4*time.Second, "shutdown waited for writers that were never started")
	close(stop)
	wg.Wait()

	for _, ws := range clients {
		f := readFrame(t, ws)
		assert.Equal(t, "kick", f.typ())
		assert.Equal(t, "update", f.str("reason"))
	}
}

func TestWebsocketOversizedFrame(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Dependencies) {
		c.ListenAddr = "127.0.0.1:0"
		c.MaxFrameSize = 64
	})
	url := startServer(t, h)
	ws := dial(t, url)

	big := make([]byte, 256)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, big))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		var n int
		_ = h.s.Do(func() { n = len(h.s.conns) })
		return n == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMetricsMux(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "10.0.0.1")
	srv := httptest.NewServer(h.s.metricsMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "goplace_sessions_active 1")
	assert.Contains(t, string(body), `goplace_logins_total{mode="existing"} 1`)
}

func TestLoadOrGenerateTLS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()

	first, err := loadOrGenerateTLS(cfg)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cfg.DataDir, "server.crt"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "server.key"))

	second, err := loadOrGenerateTLS(cfg)
	require.NoError(t, err)
	assert.Equal(t, first.Certificate, second.Certificate)
}
