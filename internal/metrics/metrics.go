package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalwise_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "legalwise_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "legalwise_chat_active_connections",
			Help: "Users with a registered chat connection",
		},
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalwise_chat_frames_received_total",
			Help: "Inbound chat frames",
		},
		[]string{"type"}, // "message", "typing" or "malformed"
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "legalwise_chat_messages_sent_total",
			Help: "Chat messages persisted",
		},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalwise_chat_deliveries_total",
			Help: "Outbound frame deliveries",
		},
		[]string{"result"}, // "delivered" or "offline"
	)

	DispatchDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "legalwise_chat_dispatch_dropped_total",
			Help: "Notifications rejected because the dispatch queue was full",
		},
	)

	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalwise_chat_sessions_closed_total",
			Help: "Chat sessions closed",
		},
		[]string{"reason"},
	)
)
