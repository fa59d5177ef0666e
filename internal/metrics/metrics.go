package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	SearchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "search_requests_total",
		Help:      "Total search requests by response source.",
	}, []string{"source"})

	CacheSufficientTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "cache_sufficient_total",
		Help:      "Searches answered from cache without an upstream fallback.",
	})

	FallbackFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "fallback_fetches_total",
		Help:      "Upstream fallback fetches by outcome (ok, error, skipped).",
	}, []string{"outcome"})

	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "upstream_requests_total",
		Help:      "Requests to the upstream catalog provider by operation and status.",
	}, []string{"operation", "status"})

	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog",
		Name:      "upstream_request_duration_seconds",
		Help:      "Upstream catalog provider request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"operation"})

	UpstreamAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "catalog",
		Name:      "upstream_available",
		Help:      "Whether the upstream provider is available (1) or blocked by circuit breaker (0).",
	})

	QueryLockContentionTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "query_lock_contention_total",
		Help:      "Fallback fetches skipped because an identical query was already in flight.",
	})

	FranchiseCountLookupsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "franchise_count_lookups_total",
		Help:      "Upstream franchise-count lookups made by the completeness estimator.",
	})

	EntriesUpsertedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "entries_upserted_total",
		Help:      "Catalog entries persisted from upstream fetches.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SearchRequestsTotal,
		CacheSufficientTotal,
		FallbackFetchesTotal,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		UpstreamAvailable,
		QueryLockContentionTotal,
		FranchiseCountLookupsTotal,
		EntriesUpsertedTotal,
	)
}
