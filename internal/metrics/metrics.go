// Package metrics holds the Prometheus collectors exported on /metrics
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Requests rejected by the per-IP rate limiter",
		},
		[]string{"endpoint"},
	)

	SSEActiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_active_clients",
			Help: "Number of connected live feed clients",
		},
	)

	// Scraping pipeline
	ScraperRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_runs_total",
			Help: "Scraper runs by source and outcome",
		},
		[]string{"source", "status"},
	)

	ScraperDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_duration_seconds",
			Help:    "Duration of a scraper run in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source"},
	)

	ScraperItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_items_total",
			Help: "Items returned by scrapers",
		},
		[]string{"source"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications delivered by channel and alert type",
		},
		[]string{"channel", "type"},
	)
)

// RecordAPIRequest records one served request
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordScraperRun records the outcome of one scraper run
func RecordScraperRun(source string, items int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ScraperRuns.WithLabelValues(source, status).Inc()
	ScraperDuration.WithLabelValues(source).Observe(duration.Seconds())
	ScraperItems.WithLabelValues(source).Add(float64(items))
}

// RecordNotification counts a delivered notification
func RecordNotification(channel, alertType string) {
	NotificationsSent.WithLabelValues(channel, alertType).Inc()
}
