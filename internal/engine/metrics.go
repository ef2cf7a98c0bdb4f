package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomePartial   = "partial"
	outcomeSkipped   = "skipped"
	outcomeRejected  = "rejected"
)

// Metrics exposes engine activity to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	running    prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chronotask",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Task mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chronotask",
			Subsystem: "engine",
			Name:      "running_tasks",
			Help:      "Tasks currently running in memory.",
		}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.running} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) setRunning(n int) {
	if m == nil {
		return
	}
	m.running.Set(float64(n))
}
