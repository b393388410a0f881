package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search pipeline Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailscope",
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"mode", "status"}, // status: "ok" / "degraded" / "error"
	)

	SearchRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailscope",
			Name:      "search_request_duration_seconds",
			Help:      "End-to-end search request duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	SearchStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailscope",
			Name:      "search_stage_duration_seconds",
			Help:      "Per-stage search pipeline duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"stage"},
	)

	SearchCollectionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailscope",
			Name:      "search_collection_errors_total",
			Help:      "Per-collection vector search failures",
		},
		[]string{"collection"},
	)

	SearchResultsReturned = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailscope",
			Name:      "search_results_returned",
			Help:      "Number of results returned per request",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		},
		[]string{"mode"},
	)

	CacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailscope",
			Name:      "cache_operations_total",
			Help:      "Cache hits and misses per namespace",
		},
		[]string{"namespace", "result"},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchRequestDuration)
	prometheus.MustRegister(SearchStageDuration)
	prometheus.MustRegister(SearchCollectionErrors)
	prometheus.MustRegister(SearchResultsReturned)
	prometheus.MustRegister(CacheOperationsTotal)
	searchMetricsRegistered = true
}
