// Package monitoring provides the zap logger, Prometheus metrics and OpenTelemetry tracing of the service.
package monitoring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/constants"
)

// Metrics manages the Prometheus metrics and implements service.Metrics.
type Metrics struct {
	PseudonymsCreated   *prometheus.CounterVec
	Collisions          *prometheus.CounterVec
	CapacityExhausted   *prometheus.CounterVec
	AccessCacheLookups  *prometheus.CounterVec
	BatchItems          *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PseudonymsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psn_pseudonyms_created_total",
				Help: "Total number of pseudonyms stored.",
			},
			[]string{"algorithm"},
		),
		Collisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psn_pseudonym_collisions_total",
				Help: "Total number of generated pseudonyms rejected as duplicates.",
			},
			[]string{"algorithm"},
		),
		CapacityExhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psn_capacity_exhausted_total",
				Help: "Total number of allocations that used up the retry budget.",
			},
			[]string{"domain"},
		),
		AccessCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psn_access_cache_lookups_total",
				Help: "Access path cache lookups by result.",
			},
			[]string{"result"},
		),
		BatchItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psn_batch_items_total",
				Help: "Batch items by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psn_http_requests_total",
				Help: "HTTP requests by route and status.",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "psn_http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

func (m *Metrics) RecordPseudonymCreated(algorithm constants.Algorithm) {
	m.PseudonymsCreated.WithLabelValues(string(algorithm)).Inc()
}

func (m *Metrics) RecordCollision(algorithm constants.Algorithm) {
	m.Collisions.WithLabelValues(string(algorithm)).Inc()
}

func (m *Metrics) RecordCapacityExhausted(domain string) {
	m.CapacityExhausted.WithLabelValues(domain).Inc()
}

func (m *Metrics) RecordAccessCacheLookup(result string) {
	m.AccessCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordBatchItems(operation string, succeeded, ignored int) {
	m.BatchItems.WithLabelValues(operation, "succeeded").Add(float64(succeeded))
	m.BatchItems.WithLabelValues(operation, "ignored").Add(float64(ignored))
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, seconds float64) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(seconds)
}

var _ service.Metrics = (*Metrics)(nil)
