package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DispatchTotal counts finished Dispatch calls by outcome.
var DispatchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "forward_dispatch_total",
		Help: "Total dispatch calls by outcome",
	},
	[]string{"outcome"},
)

// DispatchDuration observes how long each Dispatch call took.
var DispatchDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "forward_dispatch_duration_seconds",
		Help:    "Duration of dispatch calls in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
	[]string{"outcome"},
)

// PayloadBytes observes payload sizes sent to and received from workers.
var PayloadBytes = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "forward_payload_bytes",
		Help:    "Payload size in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	},
	[]string{"direction"},
)

// ActiveWorkers tracks the current pool size.
var ActiveWorkers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "forward_workers_active",
		Help: "Workers currently registered in the pool",
	},
)

// WorkerConnectionsTotal counts accepted worker connections.
var WorkerConnectionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "forward_worker_connections_total",
		Help: "Total worker connections accepted",
	},
)

// WorkerDisconnectsTotal counts closed worker connections by reason.
var WorkerDisconnectsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "forward_worker_disconnects_total",
		Help: "Total worker disconnections by reason",
	},
	[]string{"reason"},
)

// LateRepliesTotal counts replies that arrived with no caller waiting.
var LateRepliesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "forward_late_replies_total",
		Help: "Replies discarded because no request was pending",
	},
)

// InvalidFramesTotal counts ignored inbound frames by kind.
var InvalidFramesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "forward_invalid_frames_total",
		Help: "Inbound worker frames ignored by kind",
	},
	[]string{"kind"},
)

// PingFailuresTotal counts liveness probes that could not be written.
var PingFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "forward_ping_failures_total",
		Help: "Heartbeat pings that failed to send",
	},
)
