package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/goplace/pkg/protocol"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// ServeHTTP checks the origin and the IP ban list, then upgrades to a
// websocket and pumps frames to and from the hub.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)
	origin := r.Header.Get("Origin")
	switch {
	case !s.originAllowed(origin):
		s.refuse(w, http.StatusForbidden, "origin", "ip", ip, "origin", origin)
		return
	case s.bans.IsBanned(ip):
		s.refuse(w, http.StatusForbidden, "banned", "ip", ip)
		return
	case !slices.Contains(websocket.Subprotocols(r), protocol.Subprotocol):
		s.refuse(w, http.StatusBadRequest, "subprotocol", "ip", ip)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.Rejected.WithLabelValues("upgrade").Inc()
		slog.Debug("websocket upgrade failed", "ip", ip, "err", err)
		return
	}
	ws.SetReadLimit(s.cfg.MaxFrameSize)
	t := newWSTransport(ws, ip, s.cfg.SendBuffer)

	// The writer is registered on the hub, so it is counted before Shutdown
	// marks the server as stopping and waits for the writers.
	var c *conn
	err = s.Do(func() {
		if c = s.open(t); c == nil {
			return
		}
		s.pumps.Add(1)
		go func() {
			defer s.pumps.Done()
			t.writePump()
		}()
	})
	if err != nil {
		t.Close()
		_ = ws.Close()
		return
	}
	if c == nil {
		_ = ws.Close()
		return
	}

	t.readPump(func(data []byte, text bool) {
		s.post(func() { s.receive(c, data, text) })
	})
	t.Close()
	s.post(func() { s.closed(c) })
}

func (s *Server) refuse(w http.ResponseWriter, status int, reason string, args ...any) {
	s.metrics.Rejected.WithLabelValues(reason).Inc()
	slog.Info("connection rejected", append([]any{"reason", reason}, args...)...)
	http.Error(w, http.StatusText(status), status)
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return s.cfg.AllowMissingOrigin
	}
	return s.cfg.AllowedOrigin == "" || origin == s.cfg.AllowedOrigin
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// wsTransport adapts a websocket connection to Transport. Frames queue on a
// bounded channel drained by writePump.
type wsTransport struct {
	ws   *websocket.Conn
	ip   string
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSTransport(ws *websocket.Conn, ip string, buffer int) *wsTransport {
	return &wsTransport{
		ws:   ws,
		ip:   ip,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (t *wsTransport) Send(data []byte) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.send <- data:
		return true
	default:
		return false
	}
}

func (t *wsTransport) Close() {
	t.once.Do(func() { close(t.done) })
}

func (t *wsTransport) RemoteIP() string {
	return t.ip
}

// readPump delivers frames until the connection fails or closes.
func (t *wsTransport) readPump(onFrame func(data []byte, text bool)) {
	_ = t.ws.SetReadDeadline(time.Now().Add(pongWait))
	t.ws.SetPongHandler(func(string) error {
		return t.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, data, err := t.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Debug("websocket read", "ip", t.ip, "err", err)
			}
			return
		}
		onFrame(data, mt == websocket.TextMessage)
	}
}

// writePump writes queued frames and pings. Once closed it flushes what is
// queued, sends a close frame and closes the socket.
func (t *wsTransport) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.Close()
		_ = t.ws.Close()
	}()

	for {
		select {
		case data := <-t.send:
			if err := t.write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := t.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-t.done:
			t.flush()
			_ = t.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (t *wsTransport) flush() {
	for {
		select {
		case data := <-t.send:
			if err := t.write(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (t *wsTransport) write(messageType int, data []byte) error {
	_ = t.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return t.ws.WriteMessage(messageType, data)
}
