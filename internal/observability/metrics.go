package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fqdata_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fqdata_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	resolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fqdata_resolve_total",
			Help: "Dataset resolutions by outcome (local, cache_hit, fetched, error).",
		},
		[]string{"outcome"},
	)
	resolveDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fqdata_resolve_duration_seconds",
			Help:    "Time to resolve a descriptor to a local file, including downloads.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"outcome"},
	)

	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fqdata_queries_total",
			Help: "Queries by mode (filtered, unfiltered) and status.",
		},
		[]string{"mode", "status"},
	)
	queryPhaseDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fqdata_query_phase_duration_seconds",
			Help:    "Duration of each query phase.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	filterKeys = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fqdata_filter_keys",
			Help:    "Number of normalized keys per filtered query.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
	scratchCleanupFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fqdata_scratch_cleanup_failures_total",
			Help: "Scratch table drops that failed; each one closes the data source.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		resolveTotal,
		resolveDurationSeconds,
		queriesTotal,
		queryPhaseDurationSeconds,
		filterKeys,
		scratchCleanupFailuresTotal,
	)
}

func ObserveResolve(outcome string, elapsed time.Duration) {
	resolveTotal.WithLabelValues(outcome).Inc()
	resolveDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func ObserveQuery(mode, status string) {
	queriesTotal.WithLabelValues(mode, status).Inc()
}

func ObserveQueryPhase(phase string, elapsed time.Duration) {
	queryPhaseDurationSeconds.WithLabelValues(phase).Observe(elapsed.Seconds())
}

func ObserveFilterKeys(n int) {
	filterKeys.Observe(float64(n))
}

func IncrementScratchCleanupFailure() {
	scratchCleanupFailuresTotal.Inc()
}
