package screenshot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var stepBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

// Pipeline outcome labels
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRequeued  = "requeued"
	OutcomeDropped   = "dropped"
)

// Metrics holds the screenshot service's Prometheus collectors
type Metrics struct {
	pipelineResults *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers the screenshot collectors
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pipelineResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libra",
			Subsystem: "screenshot",
			Name:      "pipeline_results_total",
			Help:      "Number of screenshot pipeline outcomes",
		}, []string{"outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "libra",
			Subsystem: "screenshot",
			Name:      "step_duration_seconds",
			Help:      "Latency distribution of pipeline steps",
			Buckets:   stepBuckets,
		}, []string{"step"}),
	}

	reg.MustRegister(m.pipelineResults, m.stepDuration)

	return m
}

// RecordOutcome records one pipeline outcome
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.pipelineResults.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// RecordStep records one step execution
func (m *Metrics) RecordStep(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.With(prometheus.Labels{"step": step}).Observe(duration.Seconds())
}
