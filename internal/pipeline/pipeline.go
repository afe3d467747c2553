// Package pipeline turns a coordinate into a weather report: validate,
// run the address, current weather and forecast lookups concurrently,
// resolve local time, then compose.
package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/wxbot-go/internal/config"
	"github.com/garyellow/wxbot-go/internal/geo"
	"github.com/garyellow/wxbot-go/internal/geocode"
	"github.com/garyellow/wxbot-go/internal/locale"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/metrics"
	"github.com/garyellow/wxbot-go/internal/report"
	"github.com/garyellow/wxbot-go/internal/weather"
)

// Report kinds and outcomes for metrics.
const (
	KindFull     = "full"
	KindForecast = "forecast"

	OutcomeComplete = "complete"
	OutcomeDegraded = "degraded"
	OutcomeInvalid  = "invalid"
)

// AddressResolver reverse-geocodes a coordinate. Implementations fail soft.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, coord geo.Coordinate, languageHint string) geocode.Address
}

// WeatherSource provides current conditions and the short forecast. Implementations fail soft.
type WeatherSource interface {
	CurrentWeather(ctx context.Context, coord geo.Coordinate, lang string) weather.Current
	ShortForecast(ctx context.Context, coord geo.Coordinate, lang string) weather.Forecast
}

// ZoneResolver returns the current time in the zone at a coordinate.
type ZoneResolver interface {
	Now(coord geo.Coordinate) time.Time
}

// Config holds pipeline settings.
type Config struct {
	LookupTimeout   time.Duration
	DefaultLanguage string
	StaticMapURL    string // Template with {lat}/{lon}; empty disables
}

// Service runs the location-to-report pipeline.
type Service struct {
	geocoder AddressResolver
	weather  WeatherSource
	zones    ZoneResolver
	cfg      Config
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewService creates a pipeline service. m may be nil.
func NewService(geocoder AddressResolver, source WeatherSource, zones ZoneResolver, cfg Config, m *metrics.Metrics, log *logger.Logger) *Service {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = config.LookupTimeout
	}
	return &Service{
		geocoder: geocoder,
		weather:  source,
		zones:    zones,
		cfg:      cfg,
		metrics:  m,
		log:      log.WithModule("pipeline"),
	}
}

// Request is one location event.
type Request struct {
	Latitude  float64
	Longitude float64
	Requester string
	Language  string // User language hint; empty uses the default
}

// Report validates the coordinate and builds the full report.
// The only error is an invalid coordinate (errors.ErrInvalidCoordinate),
// returned before any lookup is made. Lookup failures become placeholders.
func (s *Service) Report(ctx context.Context, req Request) (report.Report, geo.Coordinate, error) {
	coord, err := geo.NewCoordinate(req.Latitude, req.Longitude)
	if err != nil {
		s.record(KindFull, OutcomeInvalid)
		return report.Report{}, geo.Coordinate{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	lang := locale.ProviderLanguage(req.Language, s.cfg.DefaultLanguage)

	var (
		addr geocode.Address
		cur  weather.Current
		fc   weather.Forecast
	)
	// Lookups fail soft and never return an error, so no sibling is canceled.
	var g errgroup.Group
	g.Go(func() error {
		addr = s.geocoder.ResolveAddress(ctx, coord, lang)
		return nil
	})
	g.Go(func() error {
		cur = s.weather.CurrentWeather(ctx, coord, lang)
		return nil
	})
	g.Go(func() error {
		fc = s.weather.ShortForecast(ctx, coord, lang)
		return nil
	})
	_ = g.Wait()

	outcome := OutcomeComplete
	if !addr.Available || !cur.Available || !fc.Available {
		outcome = OutcomeDegraded
		s.log.WarnContext(ctx, "Report degraded",
			"coordinate", coord.String(),
			"address", addr.Available,
			"weather", cur.Available,
			"forecast", fc.Available,
		)
	}
	s.record(KindFull, outcome)

	return report.Compose(s.input(coord, req.Requester, req.Language, addr, cur, &fc)), coord, nil
}

// ForecastReport builds the forecast-only report for an already validated coordinate.
func (s *Service) ForecastReport(ctx context.Context, coord geo.Coordinate, requester, language string) report.Report {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	fc := s.weather.ShortForecast(ctx, coord, locale.ProviderLanguage(language, s.cfg.DefaultLanguage))

	outcome := OutcomeComplete
	if !fc.Available {
		outcome = OutcomeDegraded
	}
	s.record(KindForecast, outcome)

	in := s.input(coord, requester, language, geocode.Address{}, weather.Current{}, &fc)
	in.MapURL = ""
	return report.ComposeForecast(in)
}

func (s *Service) input(coord geo.Coordinate, requester, language string, addr geocode.Address, cur weather.Current, fc *weather.Forecast) report.Input {
	return report.Input{
		Coordinate: coord,
		Requester:  requester,
		Address:    addr,
		Current:    cur,
		Forecast:   fc,
		LocalTime:  s.zones.Now(coord),
		Messages:   locale.Lookup(language, s.cfg.DefaultLanguage),
		MapURL:     report.StaticMapURL(s.cfg.StaticMapURL, coord),
	}
}

func (s *Service) record(kind, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordReport(kind, outcome)
	}
}
