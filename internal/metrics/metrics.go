package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels the terminal state of a proxied or lookup request.
type Outcome string

const (
	// OutcomeRelayed means the upstream accepted and its reply was relayed.
	OutcomeRelayed Outcome = "relayed"
	// OutcomeRejected means the upstream replied non-2xx and that reply was relayed.
	OutcomeRejected Outcome = "rejected"
	// OutcomeInvalid means the caller's request failed shape validation.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeError means the request failed before a reply could be relayed.
	OutcomeError Outcome = "error"
	// OutcomeServed means a lookup was answered from local state.
	OutcomeServed Outcome = "served"
)

// CacheResult labels the result of a best-effort cache write.
type CacheResult string

const (
	CacheResultStored  CacheResult = "stored"
	CacheResultSkipped CacheResult = "skipped"
	CacheResultError   CacheResult = "error"
)

// Recorder publishes Prometheus metrics for gateway activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	ingestRequests *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	lookupRequests *prometheus.CounterVec
	lookupLatency  *prometheus.HistogramVec

	cacheWrites *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	ingestRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agrigate",
		Subsystem: "ingest",
		Name:      "requests_total",
		Help:      "Total ingestion requests proxied to the upstream backend.",
	}, []string{"category", "outcome", "status_code"})

	ingestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agrigate",
		Subsystem: "ingest",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed ingestion requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"category", "outcome"})

	lookupRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agrigate",
		Subsystem: "lookup",
		Name:      "requests_total",
		Help:      "Total score, description, and sector lookup requests.",
	}, []string{"kind", "outcome", "status_code"})

	lookupLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agrigate",
		Subsystem: "lookup",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed lookup requests.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind", "outcome"})

	cacheWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agrigate",
		Subsystem: "cache",
		Name:      "writes_total",
		Help:      "Best-effort cache writes performed after successful forwards.",
	}, []string{"store", "result"})

	reg.MustRegister(ingestRequests, ingestLatency, lookupRequests, lookupLatency, cacheWrites)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:       reg,
		handler:        handler,
		ingestRequests: ingestRequests,
		ingestLatency:  ingestLatency,
		lookupRequests: lookupRequests,
		lookupLatency:  lookupLatency,
		cacheWrites:    cacheWrites,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveIngest records the outcome and latency for a completed ingestion request.
func (r *Recorder) ObserveIngest(category string, outcome Outcome, statusCode int, duration time.Duration) {
	if r == nil {
		return
	}
	categoryLabel := normalizeLabel(category)
	outcomeLabel := normalizeLabel(string(outcome))
	r.ingestRequests.WithLabelValues(categoryLabel, outcomeLabel, statusLabel(statusCode)).Inc()
	r.ingestLatency.WithLabelValues(categoryLabel, outcomeLabel).Observe(duration.Seconds())
}

// ObserveLookup records the outcome and latency for a score, description, or
// sector lookup request.
func (r *Recorder) ObserveLookup(kind string, outcome Outcome, statusCode int, duration time.Duration) {
	if r == nil {
		return
	}
	kindLabel := normalizeLabel(kind)
	outcomeLabel := normalizeLabel(string(outcome))
	r.lookupRequests.WithLabelValues(kindLabel, outcomeLabel, statusLabel(statusCode)).Inc()
	r.lookupLatency.WithLabelValues(kindLabel, outcomeLabel).Observe(duration.Seconds())
}

// ObserveCacheWrite records the result of a best-effort cache write.
func (r *Recorder) ObserveCacheWrite(store string, result CacheResult) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheResultError)
	}
	r.cacheWrites.WithLabelValues(normalizeLabel(store), resultLabel).Inc()
}

func statusLabel(statusCode int) string {
	if statusCode <= 0 {
		return "unknown"
	}
	return strconv.Itoa(statusCode)
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
