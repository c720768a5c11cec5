package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics records ledger API activity.
type LendingMetrics struct {
	requests     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations prometheus.Counter
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the lazily-initialised metrics registry for the lending
// service.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total ledger API requests segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total ledger API errors segmented by operation and status code.",
			}, []string{"operation", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lending",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for ledger API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Count of successful liquidations.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.requests,
			lendingRegistry.errors,
			lendingRegistry.latency,
			lendingRegistry.liquidations,
		)
	})
	return lendingRegistry
}

// ObserveRequest records one completed request.
func (m *LendingMetrics) ObserveRequest(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveError records one failed request with its HTTP status.
func (m *LendingMetrics) ObserveError(operation, status string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(operation, status).Inc()
}

// ObserveLiquidation counts a successful liquidation.
func (m *LendingMetrics) ObserveLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}
