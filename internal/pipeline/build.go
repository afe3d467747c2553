package pipeline

import (
	"fmt"

	"github.com/garyellow/wxbot-go/internal/buildinfo"
	"github.com/garyellow/wxbot-go/internal/config"
	"github.com/garyellow/wxbot-go/internal/geocode"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/metrics"
	"github.com/garyellow/wxbot-go/internal/provider"
	"github.com/garyellow/wxbot-go/internal/ratelimit"
	"github.com/garyellow/wxbot-go/internal/timezone"
	"github.com/garyellow/wxbot-go/internal/weather"
)

// FromConfig wires the provider clients, the time zone resolver and the
// service from application config. Used by the server and the report CLI.
func FromConfig(cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (*Service, error) {
	zones, err := timezone.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("time zone finder: %w", err)
	}

	geocoderHTTP := provider.New(provider.Options{
		Name:      geocode.ProviderName,
		Timeout:   cfg.LookupTimeout,
		UserAgent: cfg.GeocoderUserAgent,
		Limiter:   ratelimit.New(1, cfg.GeocoderRPS),
		Metrics:   m,
	})

	userAgent := "wxbot-go/" + buildinfo.Version
	currentHTTP := provider.New(provider.Options{
		Name:      weather.ProviderCurrent,
		Timeout:   cfg.LookupTimeout,
		UserAgent: userAgent,
		Metrics:   m,
	})
	forecastHTTP := provider.New(provider.Options{
		Name:      weather.ProviderForecast,
		Timeout:   cfg.LookupTimeout,
		UserAgent: userAgent,
		Metrics:   m,
	})

	return NewService(
		geocode.NewClient(geocoderHTTP, cfg.GeocoderURL, log),
		weather.NewClient(currentHTTP, forecastHTTP, cfg.OpenWeatherBaseURL, cfg.OpenWeatherAPIKey, m, log),
		zones,
		Config{
			LookupTimeout:   cfg.LookupTimeout,
			DefaultLanguage: cfg.DefaultLanguage,
			StaticMapURL:    cfg.StaticMapURL,
		},
		m,
		log,
	), nil
}
