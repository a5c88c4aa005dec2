package server

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics tracks server runtime statistics. Each Server registers its
// collectors on its own registry.
type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	ConnectionsTotal  prometheus.Counter
	ConnectionsActive prometheus.Gauge
	Rejected          *prometheus.CounterVec // by reason: origin, banned, upgrade
	Logins            *prometheus.CounterVec // by mode
	LoginFailures     *prometheus.CounterVec // by kick reason
	SessionsActive    prometheus.Gauge
	FramesIn          *prometheus.CounterVec // by frame type
	FramesLimited     prometheus.Counter
	FramesOut         prometheus.Counter
	SendDropped       prometheus.Counter
	Kicks             *prometheus.CounterVec // by kick reason
	Bans              prometheus.Counter
	Commands          *prometheus.CounterVec // by command name
	RoomChanges       prometheus.Counter
	RoomOccupancy     *prometheus.GaugeVec // by room
	EphemeralRooms    prometheus.Gauge
	StoreErrors       *prometheus.CounterVec // by store
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),
		registry:  reg,
		ConnectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "goplace_connections_total",
			Help: "Websocket connections accepted.",
		}),
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "goplace_connections_active",
			Help: "Open websocket connections, logged in or not.",
		}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goplace_connections_rejected_total",
			Help: "Connection attempts refused before the upgrade.",
		}, []string{"reason"}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goplace_logins_total",
			Help: "Completed logins.",
		}, []string{"mode"}),
		LoginFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goplace_login_failures_total",
			Help: "Handshakes rejected.",
		}, []string{"reason"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "goplace_sessions_active",
			Help: "Logged-in sessions.",
		}),
		FramesIn: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goplace_frames_in_total",
			Help: "Inbound frames decoded.",
		}, []string{"type"}),
		FramesLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "goplace_frames_rate_limited_total",
			Help: "Inbound frames dropped by the per-connection rate limit.",
		}),
		FramesOut: f.NewCounter(prometheus.CounterOpts{
			Name: "goplace_frames_out_total",
			Help: "Outbound frames queued.",
		}),
		SendDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "goplace_send_dropped_total",
			Help: "Outbound frames dropped because a send buffer was full.",
		}),
		Kicks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goplace_kicks_total",
			Help: "Connections closed with a kick frame.",
		}, []string{"reason"}),
		Bans: f.NewCounter(prometheus.CounterOpts{
			Name: "goplace_bans_total",
			Help: "IP bans issued.",
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goplace_commands_total",
			Help: "Console commands handled.",
		}, []string{"command"}),
		RoomChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "goplace_room_changes_total",
			Help: "Room changes performed.",
		}),
		RoomOccupancy: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goplace_room_occupancy",
			Help: "Sessions per room.",
		}, []string{"room"}),
		EphemeralRooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "goplace_ephemeral_rooms",
			Help: "Ephemeral rooms currently open.",
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goplace_store_errors_total",
			Help: "Failed store writes.",
		}, []string{"store"}),
	}
	return m
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsSnapshot is a point-in-time summary for the periodic log line.
type MetricsSnapshot struct {
	Uptime            string
	ConnectionsActive int64
	ConnectionsTotal  int64
	Sessions          int64
	FramesOut         int64
	SendDropped       int64
	EphemeralRooms    int64
}

// Snapshot reads the scalar collectors.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Uptime:            time.Since(m.startTime).Truncate(time.Second).String(),
		ConnectionsActive: int64(value(m.ConnectionsActive)),
		ConnectionsTotal:  int64(value(m.ConnectionsTotal)),
		Sessions:          int64(value(m.SessionsActive)),
		FramesOut:         int64(value(m.FramesOut)),
		SendDropped:       int64(value(m.SendDropped)),
		EphemeralRooms:    int64(value(m.EphemeralRooms)),
	}
}

// LogSummary writes a metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ConnectionsActive,
		"total_connections", s.ConnectionsTotal,
		"sessions", s.Sessions,
		"frames_out", s.FramesOut,
		"send_dropped", s.SendDropped,
		"ephemeral_rooms", s.EphemeralRooms,
	)
}

// StartPeriodicLog logs a summary every interval until done is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}

// value reads the current value of a counter or gauge.
func value(c prometheus.Metric) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	if g := pb.GetGauge(); g != nil {
		return g.GetValue()
	}
	return pb.GetCounter().GetValue()
}
