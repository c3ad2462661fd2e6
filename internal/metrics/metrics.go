// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	listingsTotal              *prometheus.CounterVec
	searchPagesTotal           *prometheus.CounterVec
	likesLookupsTotal          *prometheus.CounterVec
	snapshotsTotal             *prometheus.CounterVec
	formatAttemptsTotal        *prometheus.CounterVec
	formatRecordsTotal         *prometheus.CounterVec
	providerDurationSeconds    *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		listingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_listings_total",
				Help: "Total number of listings scraped, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		searchPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_search_pages_total",
				Help: "Total number of search result pages crawled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		likesLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_likes_lookups_total",
				Help: "Total number of headless like counter lookups, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		snapshotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_snapshots_total",
				Help: "Total number of snapshots written, labeled by kind.",
			},
			[]string{"kind"},
		)

		formatAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_format_attempts_total",
				Help: "Total number of provider attempts, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		formatRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_format_records_total",
				Help: "Total number of records reformatted or dropped.",
			},
			[]string{"outcome"},
		)

		providerDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_provider_request_duration_seconds",
				Help:    "Histogram of text-generation request latencies, labeled by provider.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"key"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveListing counts a scraped listing.
func ObserveListing(outcome string) {
	Init()
	listingsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSearchPage counts a crawled search results page.
func ObserveSearchPage(outcome string) {
	Init()
	searchPagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveLikesLookup counts a headless like counter lookup.
func ObserveLikesLookup(outcome string) {
	Init()
	likesLookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSnapshot counts a written snapshot of the given kind (page, final, interrupted, error).
func ObserveSnapshot(kind string) {
	Init()
	snapshotsTotal.WithLabelValues(kind).Inc()
}

// ObserveFormatAttempt records one provider attempt and its latency.
func ObserveFormatAttempt(provider, outcome string, duration time.Duration) {
	Init()
	formatAttemptsTotal.WithLabelValues(provider, outcome).Inc()
	providerDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveFormatRecord counts a record that was formatted or dropped.
func ObserveFormatRecord(outcome string) {
	Init()
	formatRecordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(key string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(key).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
