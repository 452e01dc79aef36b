package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocket metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "steamrail_ws_connections",
			Help: "Currently open websocket connections",
		},
	)

	MessagesBroadcast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steamrail_chat_messages_total",
			Help: "Chat messages accepted and broadcast",
		},
	)

	MessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steamrail_chat_messages_dropped_total",
			Help: "Chat messages rejected by validation",
		},
	)

	ChatPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steamrail_chat_persist_failures_total",
			Help: "Best-effort chat log writes that failed",
		},
	)

	// Session metrics
	SessionsRotated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steamrail_sessions_rotated_total",
			Help: "Session token rotations",
		},
	)

	SessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steamrail_sessions_expired_total",
			Help: "Sessions removed by the idle sweep",
		},
	)

	ClientTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steamrail_client_timeouts_total",
			Help: "Connections closed for missing heartbeats",
		},
	)

	// HTTP/business metrics
	VisitsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steamrail_visits_total",
			Help: "Visit counter increments served",
		},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steamrail_auth_failures_total",
			Help: "Failed Discord OAuth exchanges",
		},
	)
)
