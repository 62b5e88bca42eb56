// Package metrics exposes Prometheus instrumentation for the orchestration
// core. All metrics live under the "stratum" namespace. A nil *Metrics is a
// valid no-op collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	instanceTransitions *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec
	nodeRetries         *prometheus.CounterVec
	compensationSteps   *prometheus.CounterVec
	rollbacks           *prometheus.CounterVec
	pendingApprovals    prometheus.Gauge
	checkpointSaves     *prometheus.CounterVec
}

// New registers the collectors with the given registry. A nil registry uses
// the default registerer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		instanceTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratum",
			Name:      "instance_transitions_total",
			Help:      "Instance lifecycle transitions by resulting status",
		}, []string{"status"}),

		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stratum",
			Name:      "node_duration_seconds",
			Help:      "Node execution duration from dispatch to outcome",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60},
		}, []string{"node_type", "status"}),

		nodeRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratum",
			Name:      "node_retries_total",
			Help:      "Node execution retry attempts",
		}, []string{"node_type"}),

		compensationSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratum",
			Name:      "compensation_steps_total",
			Help:      "Compensation steps by outcome",
		}, []string{"status"}),

		rollbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratum",
			Name:      "deployment_rollbacks_total",
			Help:      "Canary rollbacks by trigger kind",
		}, []string{"automatic"}),

		pendingApprovals: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "stratum",
			Name:      "pending_approvals",
			Help:      "Approvals currently waiting for a human decision",
		}),

		checkpointSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratum",
			Name:      "checkpoint_saves_total",
			Help:      "Checkpoint writes by outcome",
		}, []string{"status"}),
	}
}

func (m *Metrics) InstanceTransition(status string) {
	if m == nil {
		return
	}

	m.instanceTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveNode(nodeType, status string, duration time.Duration) {
	if m == nil {
		return
	}

	m.nodeDuration.WithLabelValues(nodeType, status).Observe(duration.Seconds())
}

func (m *Metrics) NodeRetried(nodeType string) {
	if m == nil {
		return
	}

	m.nodeRetries.WithLabelValues(nodeType).Inc()
}

func (m *Metrics) CompensationStep(status string) {
	if m == nil {
		return
	}

	m.compensationSteps.WithLabelValues(status).Inc()
}

func (m *Metrics) RollbackFired(automatic bool) {
	if m == nil {
		return
	}

	label := "false"
	if automatic {
		label = "true"
	}

	m.rollbacks.WithLabelValues(label).Inc()
}

func (m *Metrics) SetPendingApprovals(count int) {
	if m == nil {
		return
	}

	m.pendingApprovals.Set(float64(count))
}

func (m *Metrics) CheckpointSaved(err error) {
	if m == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}

	m.checkpointSaves.WithLabelValues(status).Inc()
}
