// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Core (Required)
	EnvOpenWeatherAPIKey = "WXBOT_OPENWEATHER_API_KEY"

	// Providers
	EnvOpenWeatherBaseURL = "WXBOT_OPENWEATHER_BASE_URL"
	EnvGeocoderURL        = "WXBOT_GEOCODER_URL"
	EnvGeocoderUserAgent  = "WXBOT_GEOCODER_USER_AGENT"
	EnvGeocoderRPS        = "WXBOT_GEOCODER_RPS"
	EnvLookupTimeout      = "WXBOT_LOOKUP_TIMEOUT"
	EnvDefaultLanguage    = "WXBOT_LANGUAGE"
	EnvStaticMapURL       = "WXBOT_STATIC_MAP_URL"
	EnvStaticMapEnabled   = "WXBOT_STATIC_MAP_ENABLED"

	// LINE Platform
	EnvLineChannelAccessToken = "WXBOT_LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "WXBOT_LINE_CHANNEL_SECRET"
	EnvLineOperatorID         = "WXBOT_LINE_OPERATOR_ID"

	// Telegram Platform
	EnvTelegramToken      = "WXBOT_TELEGRAM_BOT_TOKEN"
	EnvTelegramOwnerID    = "WXBOT_TELEGRAM_OWNER_ID"
	EnvTelegramMode       = "WXBOT_TELEGRAM_MODE"
	EnvTelegramWebhookURL = "WXBOT_TELEGRAM_WEBHOOK_URL"

	// Server
	EnvPort            = "WXBOT_PORT"
	EnvLogLevel        = "WXBOT_LOG_LEVEL"
	EnvShutdownTimeout = "WXBOT_SHUTDOWN_TIMEOUT"

	// Location Store
	EnvLocationStore      = "WXBOT_LOCATION_STORE"
	EnvDataDir            = "WXBOT_DATA_DIR"
	EnvLocationTTL        = "WXBOT_LOCATION_TTL"
	EnvLocationMaxEntries = "WXBOT_LOCATION_MAX_ENTRIES"
	EnvRedisURL           = "WXBOT_REDIS_URL"

	// Webhook
	EnvWebhookTimeout = "WXBOT_WEBHOOK_TIMEOUT"

	// Rate Limits
	EnvGlobalRateRPS  = "WXBOT_GLOBAL_RATE_RPS"
	EnvUserRateBurst  = "WXBOT_USER_RATE_BURST"
	EnvUserRateRefill = "WXBOT_USER_RATE_REFILL"

	// Sentry Feature
	EnvSentryDSN         = "WXBOT_SENTRY_DSN"
	EnvSentryEnvironment = "WXBOT_SENTRY_ENVIRONMENT"
	EnvSentrySampleRate  = "WXBOT_SENTRY_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackToken    = "WXBOT_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "WXBOT_BETTERSTACK_ENDPOINT"

	// Metrics Auth Feature
	EnvMetricsUsername = "WXBOT_METRICS_USERNAME"
	EnvMetricsPassword = "WXBOT_METRICS_PASSWORD"
)
