package metrics

import (
	"goforward/forward-server/internal/dispatcher"
	"goforward/pkg/types"

	"github.com/google/uuid"
)

// Collector adapta los eventos del gateway a los collectors de Prometheus.
// Implementa dispatcher.Observer y wsserver.Observer.
type Collector struct{}

func NewCollector() *Collector {
	return &Collector{}
}

// ObserveDispatch records the outcome, latency and payload sizes of a dispatch.
func (c *Collector) ObserveDispatch(res dispatcher.Result) {
	outcome := string(res.Outcome)
	DispatchTotal.WithLabelValues(outcome).Inc()
	DispatchDuration.WithLabelValues(outcome).Observe(res.Duration.Seconds())
	PayloadBytes.WithLabelValues("in").Observe(float64(res.InputBytes))
	if res.Outcome == dispatcher.OutcomeOK {
		PayloadBytes.WithLabelValues("out").Observe(float64(res.OutputBytes))
	}
}

// WorkerJoined sets the pool size gauge after a registration.
func (c *Collector) WorkerJoined(_ types.WorkerInfo, poolSize int) {
	WorkerConnectionsTotal.Inc()
	ActiveWorkers.Set(float64(poolSize))
}

// WorkerLeft sets the pool size gauge and counts the disconnect reason.
func (c *Collector) WorkerLeft(_ types.WorkerInfo, poolSize int, reason string) {
	WorkerDisconnectsTotal.WithLabelValues(reason).Inc()
	ActiveWorkers.Set(float64(poolSize))
}

// WorkerAlive is a no-op; liveness is visible through the disconnect reasons.
func (c *Collector) WorkerAlive(types.WorkerInfo) {}

// IncLateReply counts a discarded reply.
func (c *Collector) IncLateReply(uuid.UUID) {
	LateRepliesTotal.Inc()
}

// IncInvalidFrame counts an ignored inbound frame.
func (c *Collector) IncInvalidFrame(kind string) {
	InvalidFramesTotal.WithLabelValues(kind).Inc()
}

// IncPingFailure counts a heartbeat ping that could not be written.
func (c *Collector) IncPingFailure() {
	PingFailuresTotal.Inc()
}
