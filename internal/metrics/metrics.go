// Package metrics defines the Prometheus metrics exported by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Provider metrics (geocoder, weather, forecast)
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderDurationSeconds *prometheus.HistogramVec

	// Report metrics
	ReportsTotal *prometheus.CounterVec

	// Webhook metrics
	WebhookDurationSeconds *prometheus.HistogramVec
	WebhookRequestsTotal   *prometheus.CounterVec

	// Delivery metrics
	DeliveriesTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Cache metrics (last-location store)
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheSize        *prometheus.GaugeVec

	// Rate limiter metrics
	RateLimiterWaitDuration *prometheus.HistogramVec
	RateLimiterDropped      *prometheus.CounterVec
	RateLimiterUsers        *prometheus.GaugeVec

	// Singleflight metrics
	SingleflightDedupTotal *prometheus.CounterVec

	// Background job metrics
	JobDurationSeconds *prometheus.HistogramVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		ProviderRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbot_provider_requests_total",
				Help: "Total number of external provider requests by provider and status",
			},
			[]string{"provider", "status"}, // status: success, error, timeout, payload_error
		),

		ProviderDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wxbot_provider_duration_seconds",
				Help:    "External provider request duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}, // Capped by the 10s lookup timeout
			},
			[]string{"provider"}, // provider: nominatim, openweather_current, openweather_forecast
		),

		ReportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbot_reports_total",
				Help: "Total number of composed reports by kind and outcome",
			},
			[]string{"kind", "outcome"}, // kind: location, forecast; outcome: complete, degraded, invalid
		),

		WebhookDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wxbot_webhook_duration_seconds",
				Help:    "Inbound event processing duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"platform", "event_type"},
		),

		WebhookRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbot_webhook_requests_total",
				Help: "Total number of inbound events by platform, event type and status",
			},
			[]string{"platform", "event_type", "status"}, // status: success, error, reply_error
		),

		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbot_deliveries_total",
				Help: "Total number of outbound message deliveries by platform, target and status",
			},
			[]string{"platform", "target", "status"}, // target: user, operator
		),

		HTTPErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbot_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"}, // error_type: invalid_signature, bad_request, forbidden
		),

		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbot_cache_hits_total",
				Help: "Total number of cache hits by cache",
			},
			[]string{"cache"},
		),

		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbot_cache_misses_total",
				Help: "Total number of cache misses by cache",
			},
			[]string{"cache"},
		),

		CacheSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wxbot_cache_entries",
				Help: "Current number of entries by cache",
			},
			[]string{"cache"},
		),

		RateLimiterWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wxbot_rate_limiter_wait_duration_seconds",
				Help:    "Time spent waiting for rate limiter token by limiter type",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"limiter_type"}, // limiter_type: geocoder, global
		),

		RateLimiterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbot_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: user, global, geocoder
		),

		RateLimiterUsers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wxbot_rate_limiter_active_keys",
				Help: "Number of keys currently tracked by a keyed rate limiter",
			},
			[]string{"limiter_type"},
		),

		SingleflightDedupTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbot_singleflight_dedup_total",
				Help: "Total number of provider calls that shared an in-flight result",
			},
			[]string{"provider"},
		),

		JobDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wxbot_job_duration_seconds",
				Help:    "Background job duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"job"},
		),
	}
}

// RecordProviderRequest records one provider call with its outcome
func (m *Metrics) RecordProviderRequest(provider, status string, duration float64) {
	m.ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
	m.ProviderDurationSeconds.WithLabelValues(provider).Observe(duration)
}

// RecordReport records a composed report
func (m *Metrics) RecordReport(kind, outcome string) {
	m.ReportsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordWebhook records an inbound event
func (m *Metrics) RecordWebhook(platform, eventType, status string, duration float64) {
	m.WebhookRequestsTotal.WithLabelValues(platform, eventType, status).Inc()
	m.WebhookDurationSeconds.WithLabelValues(platform, eventType).Observe(duration)
}

// RecordDelivery records an outbound message delivery
func (m *Metrics) RecordDelivery(platform, target, status string) {
	m.DeliveriesTotal.WithLabelValues(platform, target, status).Inc()
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, module string) {
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(cache string) {
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(cache string) {
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// SetCacheSize records the current size of a cache
func (m *Metrics) SetCacheSize(cache string, size int) {
	m.CacheSize.WithLabelValues(cache).Set(float64(size))
}

// RecordRateLimiterWait records time spent waiting for rate limiter
func (m *Metrics) RecordRateLimiterWait(limiterType string, duration float64) {
	m.RateLimiterWaitDuration.WithLabelValues(limiterType).Observe(duration)
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// SetRateLimiterUsers records how many keys a keyed limiter tracks
func (m *Metrics) SetRateLimiterUsers(limiterType string, count int) {
	m.RateLimiterUsers.WithLabelValues(limiterType).Set(float64(count))
}

// RecordSingleflightDedup records a deduplicated request
func (m *Metrics) RecordSingleflightDedup(provider string) {
	m.SingleflightDedupTotal.WithLabelValues(provider).Inc()
}

// RecordJob records a background job run
func (m *Metrics) RecordJob(job string, duration float64) {
	m.JobDurationSeconds.WithLabelValues(job).Observe(duration)
}
