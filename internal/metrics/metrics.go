// Package metrics exposes Prometheus collectors for the job crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerBytesTotal             *prometheus.CounterVec
	crawlerFetchAttemptsTotal     *prometheus.CounterVec
	crawlerRecordsTotal           *prometheus.CounterVec
	crawlerRunsTotal              *prometheus.CounterVec
	crawlerRunDurationSeconds     prometheus.Histogram
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	analyticsCacheTotal           *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of listing pages fetched, labeled by category and outcome.",
			},
			[]string{"category", "outcome"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_attempts_total",
				Help: "Fetch attempts, labeled by outcome (ok, rate_limited, error).",
			},
			[]string{"outcome"},
		)

		crawlerRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_records_total",
				Help: "Records handled by the deduplicating writer, labeled by collection and result.",
			},
			[]string{"collection", "result"},
		)

		crawlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Crawl runs, labeled by trigger and final state.",
			},
			[]string{"trigger", "state"},
		)

		crawlerRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_run_duration_seconds",
				Help:    "Histogram of full crawl run durations.",
				Buckets: []float64{30, 60, 120, 300, 600, 1200, 3600},
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		analyticsCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_cache_requests_total",
				Help: "Aggregate cache lookups, labeled by result (hit, miss, error).",
			},
			[]string{"result"},
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

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records one listing page outcome for category.
func ObservePage(category, outcome string) {
	Init()
	crawlerPagesTotal.WithLabelValues(category, outcome).Inc()
}

// ObserveFetch records a fetch attempt and the bytes it returned.
func ObserveFetch(site, outcome string, bytesFetched int) {
	Init()
	crawlerFetchAttemptsTotal.WithLabelValues(outcome).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveRecords adds n records with the given result for collection.
func ObserveRecords(collection, result string, n int) {
	Init()
	if n <= 0 {
		return
	}
	crawlerRecordsTotal.WithLabelValues(collection, result).Add(float64(n))
}

// ObserveRun records a finished crawl run.
func ObserveRun(trigger, state string, duration time.Duration) {
	Init()
	crawlerRunsTotal.WithLabelValues(trigger, state).Inc()
	if duration > 0 {
		crawlerRunDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveCache records an aggregate cache lookup result.
func ObserveCache(result string) {
	Init()
	analyticsCacheTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
