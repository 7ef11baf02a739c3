package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_live_connections",
		Help: "Number of registered live transport connections.",
	})

	PushesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_pushes_delivered_total",
		Help: "Events delivered to live connections.",
	})

	PushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_push_failures_total",
		Help: "Per-connection push failures, isolated from fan-out.",
	})

	LocationPoints = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_location_points_total",
		Help: "Location points accepted and persisted.",
	})

	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_sessions_opened_total",
		Help: "Tracking sessions opened.",
	})

	SessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_sessions_closed_total",
		Help: "Tracking sessions closed, sweeps included.",
	})
)
