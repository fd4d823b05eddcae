// Package metrics exposes Prometheus collectors for the llms.txt service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmstxt_pages_total",
			Help: "Total number of pages processed, labeled by site and status.",
		},
		[]string{"site", "status"},
	)

	contentBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmstxt_content_bytes_total",
			Help: "Total bytes of scraped page content stored, labeled by site.",
		},
		[]string{"site"},
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

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmstxt_jobs_total",
			Help: "Total number of crawl jobs reaching a terminal status.",
		},
		[]string{"status"},
	)

	rateLimitDeniedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llmstxt_rate_limit_denied_total",
			Help: "Total scrape attempts denied by the shared rate limiter.",
		},
	)

	batchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmstxt_batch_duration_seconds",
			Help:    "Histogram of batch-processor invocation durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	fileDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmstxt_file_downloads_total",
			Help: "Total generated file downloads, labeled by file type.",
		},
		[]string{"file_type"},
	)
)

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

// ObservePage records one processed page and its stored content size.
func ObservePage(site string, status string, contentBytes int) {
	sanitizedSite := SanitizeSite(site)
	pagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if contentBytes > 0 {
		contentBytesTotal.WithLabelValues(sanitizedSite).Add(float64(contentBytes))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the terminal job counter for the given status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDenied counts a scrape attempt blocked by the limiter.
func ObserveRateLimitDenied() {
	rateLimitDeniedTotal.Inc()
}

// ObserveBatch records the duration of one batch-processor invocation.
func ObserveBatch(outcome string, duration time.Duration) {
	batchDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveDownload counts a generated file download.
func ObserveDownload(fileType string) {
	fileDownloadsTotal.WithLabelValues(fileType).Inc()
}
