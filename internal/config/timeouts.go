// Package config provides centralized timeout constants for the application.
//
// Constraints these values are tuned against:
//   - Provider lookups (Nominatim, OpenWeatherMap) must never stall a reply;
//     each lookup batch is bounded by LookupTimeout.
//   - LINE reply tokens should be used quickly; Telegram has no reply token
//     but users expect an answer within seconds.
//   - Nominatim's usage policy allows at most one request per second.
package config

import "time"

// Provider timeouts
const (
	// LookupTimeout bounds one pipeline run: geocoder, current weather and forecast
	// share this deadline because they run concurrently.
	LookupTimeout = 10 * time.Second

	// ProviderDialTimeout is the TCP connect timeout for provider HTTP clients.
	ProviderDialTimeout = 5 * time.Second

	// ProviderIdleConnTimeout is how long idle provider connections stay pooled.
	ProviderIdleConnTimeout = 90 * time.Second
)

// Webhook timeouts
const (
	// WebhookProcessing is the timeout for processing a single inbound event,
	// including the pipeline run, store access and reply delivery.
	// Must exceed LookupTimeout so a degraded report can still be delivered.
	WebhookProcessing = 30 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout for webhook requests.
	// Should be short since platforms send small JSON payloads.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout.
	WebhookHTTPWrite = 15 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second

	// ReadinessCheckTimeout bounds the store ping in /readyz.
	ReadinessCheckTimeout = 3 * time.Second
)

// Telegram
const (
	// TelegramPollTimeout is the long-poll timeout in seconds passed to getUpdates.
	TelegramPollTimeout = 60

	// TelegramWebhookRegistration caps the total time spent registering the webhook at startup.
	TelegramWebhookRegistration = 2 * time.Minute
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 5 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Background job intervals
const (
	// LocationCleanupInterval is how often expired last-location entries are deleted.
	LocationCleanupInterval = time.Hour

	// MetricsUpdateInterval is how often store size metrics are updated.
	MetricsUpdateInterval = 5 * time.Minute

	// RateLimiterCleanupInterval is how often inactive user rate limiters are cleaned.
	RateLimiterCleanupInterval = 5 * time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the default timeout for graceful server shutdown.
	GracefulShutdown = 30 * time.Second

	// SentryFlush bounds how long shutdown waits for buffered error events.
	SentryFlush = 2 * time.Second
)
