package dispatcher

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Dispatch outcome labels
const (
	OutcomeForwarded      = "forwarded"
	OutcomeWorkerNotFound = "worker_not_found"
	OutcomeFailed         = "failed"
)

// Metrics holds the dispatcher's Prometheus collectors
type Metrics struct {
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	dispatchResults *prometheus.CounterVec
	resolveResults  *prometheus.CounterVec
}

// NewMetrics creates and registers the dispatcher collectors
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libra",
			Subsystem: "dispatcher",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "libra",
			Subsystem: "dispatcher",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   durationBuckets,
		}, []string{"method", "route", "status"}),
		dispatchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libra",
			Subsystem: "dispatcher",
			Name:      "dispatch_results_total",
			Help:      "Number of worker dispatch outcomes",
		}, []string{"outcome"}),
		resolveResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libra",
			Subsystem: "dispatcher",
			Name:      "custom_domain_resolutions_total",
			Help:      "Number of custom-domain resolution outcomes",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.requestTotal, m.requestDuration, m.dispatchResults, m.resolveResults)

	return m
}

// RecordRequest records one handled HTTP request
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestDuration.With(labels).Observe(duration.Seconds())
}

// RecordDispatch records one worker dispatch outcome
func (m *Metrics) RecordDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatchResults.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// RecordResolve records one custom-domain resolution outcome
func (m *Metrics) RecordResolve(outcome string) {
	if m == nil {
		return
	}
	m.resolveResults.With(prometheus.Labels{"outcome": outcome}).Inc()
}
