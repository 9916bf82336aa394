package reqactor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/proof-actor/metrics"
)

// Metrics holds the request actor metrics.
type Metrics struct {
	ActionsTotal      *prometheus.CounterVec
	TransitionsTotal  *prometheus.CounterVec
	RechecksTotal     *prometheus.CounterVec
	SignalRetries     prometheus.Counter
	ProvingDuration   *prometheus.HistogramVec
	ProvingInFlight   prometheus.Gauge
	ProvingQueued     prometheus.Gauge
	TaskPanicsTotal   prometheus.Counter
	Halted            prometheus.Gauge
	DroppedCompletion prometheus.Counter
}

// NewMetrics registers the actor metrics on the process registry.
func NewMetrics() *Metrics {
	return newMetrics(metrics.NewComponentRegistry("prover", "actor"))
}

// NewMetricsWith registers the actor metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetrics(metrics.NewComponentRegistryWith(reg, "prover", "actor"))
}

func newMetrics(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		ActionsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "actions_total",
			Help: "External actions handled, by action and result",
		}, []string{"action", "result"}),

		TransitionsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "status_transitions_total",
			Help: "Status writes issued by the actor, by request kind and target status",
		}, []string{"kind", "status"}),

		RechecksTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "rechecks_total",
			Help: "Internal rechecks processed, by observed status",
		}, []string{"status"}),

		SignalRetries: reg.NewCounter(prometheus.CounterOpts{
			Name: "signal_retries_total",
			Help: "Recheck signals retried because the internal queue was full",
		}),

		ProvingDuration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proving_duration_seconds",
			Help:    "Engine invocation duration",
			Buckets: metrics.ProvingBuckets,
		}, []string{"kind", "result"}),

		ProvingInFlight: reg.NewGauge(prometheus.GaugeOpts{
			Name: "proving_in_flight",
			Help: "Engine invocations holding an admission permit",
		}),

		ProvingQueued: reg.NewGauge(prometheus.GaugeOpts{
			Name: "proving_queued",
			Help: "Proving tasks waiting for an admission permit",
		}),

		TaskPanicsTotal: reg.NewCounter(prometheus.CounterOpts{
			Name: "task_panics_total",
			Help: "Proving tasks that terminated abnormally",
		}),

		Halted: reg.NewGauge(prometheus.GaugeOpts{
			Name: "halted",
			Help: "1 once the actor stopped admitting new work",
		}),

		DroppedCompletion: reg.NewCounter(prometheus.CounterOpts{
			Name: "dropped_completions_total",
			Help: "Proving results discarded because the request left work-in-progress",
		}),
	}
}

// The recorders below accept a nil receiver so the actor runs without metrics.

func (m *Metrics) recordAction(action, result string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(action, result).Inc()
}

func (m *Metrics) recordTransition(kind, status string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) recordRecheck(status string) {
	if m == nil {
		return
	}
	m.RechecksTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) recordSignalRetry() {
	if m == nil {
		return
	}
	m.SignalRetries.Inc()
}

func (m *Metrics) recordProving(kind, result string, seconds float64) {
	if m == nil {
		return
	}
	m.ProvingDuration.WithLabelValues(kind, result).Observe(seconds)
}

func (m *Metrics) recordGate(stats GateStats) {
	if m == nil {
		return
	}
	m.ProvingInFlight.Set(float64(stats.InUse))
	m.ProvingQueued.Set(float64(stats.Waiting))
}

func (m *Metrics) recordPanic() {
	if m == nil {
		return
	}
	m.TaskPanicsTotal.Inc()
}

func (m *Metrics) recordHalt() {
	if m == nil {
		return
	}
	m.Halted.Set(1)
}

func (m *Metrics) recordDroppedCompletion() {
	if m == nil {
		return
	}
	m.DroppedCompletion.Inc()
}
