// Package config provides application configuration management.
// It loads settings from environment variables (after an optional .env file)
// and validates them per run mode (server or one-shot CLI).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ValidationMode selects which settings are required.
type ValidationMode int

const (
	// ServerMode requires at least one messaging platform.
	ServerMode ValidationMode = iota
	// CLIMode only requires provider settings.
	CLIMode
)

// Location store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Telegram update delivery modes.
const (
	TelegramPolling = "polling"
	TelegramWebhook = "webhook"
)

// DefaultStaticMapURL is the Yandex static map used when none is configured.
const DefaultStaticMapURL = "https://static-maps.yandex.ru/1.x/?ll={lon},{lat}&size=450,300&z=14&l=map&pt={lon},{lat},pm2rdm"

// Config holds all application configuration
type Config struct {
	// Providers
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string
	GeocoderURL        string
	GeocoderUserAgent  string
	GeocoderRPS        float64 // Nominatim policy: max 1 request per second
	LookupTimeout      time.Duration
	DefaultLanguage    string
	StaticMapURL       string // Template with {lat}/{lon}; empty disables map images

	// LINE Platform (both or neither)
	LineChannelToken  string
	LineChannelSecret string
	LineOperatorID    string // Receives mirrored reports via push; empty disables

	// Telegram Platform
	TelegramToken      string
	TelegramOwnerID    int64  // Receives mirrored reports; 0 disables
	TelegramMode       string // "polling" or "webhook"
	TelegramWebhookURL string // Public base URL, required in webhook mode

	// Metrics Authentication
	MetricsUsername string
	MetricsPassword string // Empty = no auth

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Location Store
	LocationStore      string // "sqlite" or "redis"
	DataDir            string
	LocationTTL        time.Duration
	LocationMaxEntries int
	RedisURL           string

	// Observability
	SentryDSN           string
	SentryEnvironment   string
	SentrySampleRate    float64
	BetterStackToken    string
	BetterStackEndpoint string

	// Bot Configuration (embedded)
	Bot BotConfig
}

// BotConfig holds bot-specific configuration
type BotConfig struct {
	// Timeouts
	WebhookTimeout time.Duration // Timeout for processing one inbound event (see config/timeouts.go)

	// Rate Limits (Token Bucket Algorithm)
	UserRateBurst  float64 // Maximum burst tokens per user
	UserRateRefill float64 // Tokens refilled per second
	GlobalRateRPS  float64 // Outbound platform API calls per second

	// LINE API Constraints
	MaxMessagesPerReply int // LINE API limit: 5
	MaxEventsPerWebhook int
}

// Load reads configuration for server mode.
func Load() (*Config, error) {
	return LoadForMode(ServerMode)
}

// LoadForMode reads configuration from environment variables.
// It attempts to load .env file first, then reads from env vars.
func LoadForMode(mode ValidationMode) (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		OpenWeatherAPIKey:  getEnv(EnvOpenWeatherAPIKey, ""),
		OpenWeatherBaseURL: getEnv(EnvOpenWeatherBaseURL, "https://api.openweathermap.org/data/2.5"),
		GeocoderURL:        getEnv(EnvGeocoderURL, "https://nominatim.openstreetmap.org/reverse"),
		GeocoderUserAgent:  getEnv(EnvGeocoderUserAgent, "wxbot-go/1.0 (+https://github.com/garyellow/wxbot-go)"),
		GeocoderRPS:        getFloatEnv(EnvGeocoderRPS, 1.0),
		LookupTimeout:      getDurationEnv(EnvLookupTimeout, LookupTimeout),
		DefaultLanguage:    getEnv(EnvDefaultLanguage, "en"),
		StaticMapURL:       getEnv(EnvStaticMapURL, DefaultStaticMapURL),

		LineChannelToken:  getEnv(EnvLineChannelAccessToken, ""),
		LineChannelSecret: getEnv(EnvLineChannelSecret, ""),
		LineOperatorID:    getEnv(EnvLineOperatorID, ""),

		TelegramToken:      getEnv(EnvTelegramToken, ""),
		TelegramOwnerID:    getInt64Env(EnvTelegramOwnerID, 0),
		TelegramMode:       strings.ToLower(getEnv(EnvTelegramMode, TelegramPolling)),
		TelegramWebhookURL: strings.TrimRight(getEnv(EnvTelegramWebhookURL, ""), "/"),

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),

		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),

		LocationStore:      strings.ToLower(getEnv(EnvLocationStore, StoreSQLite)),
		DataDir:            getEnv(EnvDataDir, getDefaultDataDir()),
		LocationTTL:        getDurationEnv(EnvLocationTTL, 24*time.Hour),
		LocationMaxEntries: getIntEnv(EnvLocationMaxEntries, 10000),
		RedisURL:           getEnv(EnvRedisURL, ""),

		SentryDSN:           getEnv(EnvSentryDSN, ""),
		SentryEnvironment:   getEnv(EnvSentryEnvironment, "production"),
		SentrySampleRate:    getFloatEnv(EnvSentrySampleRate, 1.0),
		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),

		Bot: BotConfig{
			WebhookTimeout:      getDurationEnv(EnvWebhookTimeout, WebhookProcessing),
			UserRateBurst:       getFloatEnv(EnvUserRateBurst, 5.0),
			UserRateRefill:      getFloatEnv(EnvUserRateRefill, 0.2), // 1 per 5s
			GlobalRateRPS:       getFloatEnv(EnvGlobalRateRPS, 80.0),
			MaxMessagesPerReply: 5,
			MaxEventsPerWebhook: 100,
		},
	}

	if !getBoolEnv(EnvStaticMapEnabled, true) {
		cfg.StaticMapURL = ""
	}

	if err := cfg.Validate(mode); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate(mode ValidationMode) error {
	var errs []error

	if c.OpenWeatherAPIKey == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvOpenWeatherAPIKey))
	}
	if c.GeocoderURL == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvGeocoderURL))
	}
	if c.GeocoderUserAgent == "" {
		errs = append(errs, fmt.Errorf("%s is required by the Nominatim usage policy", EnvGeocoderUserAgent))
	}
	if c.GeocoderRPS <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvGeocoderRPS, c.GeocoderRPS))
	}
	if c.LookupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvLookupTimeout, c.LookupTimeout))
	}
	if c.StaticMapURL != "" && !strings.Contains(c.StaticMapURL, "{lat}") {
		errs = append(errs, fmt.Errorf("%s must contain a {lat} placeholder", EnvStaticMapURL))
	}

	if mode == ServerMode {
		errs = append(errs, c.validateServer()...)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *Config) validateServer() []error {
	var errs []error

	if (c.LineChannelToken == "") != (c.LineChannelSecret == "") {
		errs = append(errs, fmt.Errorf("%s and %s must be set together", EnvLineChannelAccessToken, EnvLineChannelSecret))
	}
	if !c.HasLine() && !c.HasTelegram() {
		errs = append(errs, errors.New("at least one platform (LINE or Telegram) must be configured"))
	}
	if c.HasTelegram() {
		if !slices.Contains([]string{TelegramPolling, TelegramWebhook}, c.TelegramMode) {
			errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", EnvTelegramMode, TelegramPolling, TelegramWebhook, c.TelegramMode))
		}
		if c.TelegramMode == TelegramWebhook && !strings.HasPrefix(c.TelegramWebhookURL, "https://") {
			errs = append(errs, fmt.Errorf("%s must be an https URL in webhook mode", EnvTelegramWebhookURL))
		}
	}
	if c.Port == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvPort))
	}

	switch c.LocationStore {
	case StoreSQLite:
		if c.DataDir == "" {
			errs = append(errs, fmt.Errorf("%s is required", EnvDataDir))
		}
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("%s is required when %s=redis", EnvRedisURL, EnvLocationStore))
		}
	default:
		errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", EnvLocationStore, StoreSQLite, StoreRedis, c.LocationStore))
	}
	if c.LocationTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvLocationTTL, c.LocationTTL))
	}
	if c.LocationMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvLocationMaxEntries, c.LocationMaxEntries))
	}
	if err := c.Bot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bot config: %w", err))
	}

	return errs
}

// Validate checks bot limits.
func (b *BotConfig) Validate() error {
	var errs []error
	if b.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvWebhookTimeout, b.WebhookTimeout))
	}
	if b.UserRateBurst <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvUserRateBurst, b.UserRateBurst))
	}
	if b.UserRateRefill <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvUserRateRefill, b.UserRateRefill))
	}
	if b.GlobalRateRPS <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvGlobalRateRPS, b.GlobalRateRPS))
	}
	if b.MaxMessagesPerReply <= 0 || b.MaxEventsPerWebhook <= 0 {
		errs = append(errs, errors.New("message and event limits must be positive"))
	}
	return errors.Join(errs...)
}

// HasLine reports whether the LINE transport is configured.
func (c *Config) HasLine() bool {
	return c.LineChannelToken != "" && c.LineChannelSecret != ""
}

// HasTelegram reports whether the Telegram transport is configured.
func (c *Config) HasTelegram() bool {
	return c.TelegramToken != ""
}

// TelegramUsesWebhook reports whether Telegram updates arrive over HTTP.
func (c *Config) TelegramUsesWebhook() bool {
	return c.HasTelegram() && c.TelegramMode == TelegramWebhook
}

// Platforms lists the configured messaging platforms.
func (c *Config) Platforms() []string {
	var platforms []string
	if c.HasLine() {
		platforms = append(platforms, "line")
	}
	if c.HasTelegram() {
		platforms = append(platforms, "telegram")
	}
	return platforms
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "locations.db")
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}
