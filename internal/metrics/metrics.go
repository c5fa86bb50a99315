// Package metrics declares the process-wide Prometheus collectors. They are
// registered once at package init through promauto, so constructors and tests
// can be created any number of times without duplicate registration panics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recengine_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Content API
	ContentAPIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_content_api_requests_total",
			Help: "Content API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: ok, error, cache_hit, breaker_open
	)

	ContentAPIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recengine_content_api_duration_seconds",
			Help:    "Content API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Recommendations
	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_recommendation_requests_total",
			Help: "Smart recommendation requests",
		},
		[]string{"cold_start"},
	)

	RecommendationItems = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recengine_recommendation_items",
			Help:    "Items returned per recommendation category",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
		[]string{"category"},
	)

	SubQueryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_recommendation_subquery_failures_total",
			Help: "Recommendation sub-queries that failed and contributed no items",
		},
		[]string{"category"},
	)

	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recengine_recommendation_duration_seconds",
			Help:    "Time to assemble smart recommendations",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Recommendation cache
	CacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_cache_reads_total",
			Help: "Filtered recommendation cache reads",
		},
		[]string{"result"}, // hit, prefetch, top_up
	)

	CacheUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recengine_cache_users",
			Help: "Users with a populated recommendation cache",
		},
	)

	// Taste profile
	TasteProfileRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_taste_profile_rebuilds_total",
			Help: "Taste profile rebuilds by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	TasteProfileIncrementalUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_taste_profile_incremental_updates_total",
			Help: "Single interaction taste profile updates",
		},
		[]string{"outcome"},
	)

	// DNA queue
	DNAQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recengine_dna_queue_items",
			Help: "Items in the content DNA queue by state",
		},
		[]string{"state"},
	)

	DNAComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_dna_computations_total",
			Help: "Content DNA computation attempts by outcome",
		},
		[]string{"outcome"}, // success, retry, abandoned
	)

	// Events
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_events_consumed_total",
			Help: "Watchlist events consumed",
		},
		[]string{"action", "outcome"},
	)
)

// ObserveSince records the elapsed time since start on a histogram.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
