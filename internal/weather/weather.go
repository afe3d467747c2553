// Package weather fetches current conditions and the short-range forecast
// from the OpenWeatherMap 2.5 API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/garyellow/wxbot-go/internal/geo"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/metrics"
	"github.com/garyellow/wxbot-go/internal/provider"
)

// Provider names for logs and metrics.
const (
	ProviderCurrent  = "weather"
	ProviderForecast = "forecast"
)

// ForecastEntries is the number of 3-hour steps kept (about 12 hours).
const ForecastEntries = 4

// Current is a snapshot of present conditions. The zero value is "unavailable".
type Current struct {
	Description  string
	TemperatureC float64
	FeelsLikeC   float64
	HumidityPct  int
	WindSpeed    float64 // m/s
	Available    bool
}

// ForecastEntry is one 3-hour forecast step.
type ForecastEntry struct {
	Time         time.Time // UTC
	Label        string    // Provider timestamp text, UTC ("2006-01-02 15:04:05")
	Description  string
	TemperatureC float64
	WindSpeed    float64
}

// Forecast holds up to ForecastEntries steps in provider order.
type Forecast struct {
	Entries   []ForecastEntry
	Available bool
}

// Client talks to OpenWeatherMap. Identical concurrent lookups share one request.
type Client struct {
	current  *provider.Client
	forecast *provider.Client
	baseURL  string
	apiKey   string
	group    singleflight.Group
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewClient creates a weather client. baseURL is the API root, for example
// https://api.openweathermap.org/data/2.5.
func NewClient(current, forecast *provider.Client, baseURL, apiKey string, m *metrics.Metrics, log *logger.Logger) *Client {
	return &Client{
		current:  current,
		forecast: forecast,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		metrics:  m,
		log:      log.WithModule("weather"),
	}
}

// codOK reports whether OpenWeatherMap's in-body status is absent or 200.
// /weather sends it as a number and /forecast as a string.
func codOK(raw json.RawMessage) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	n, err := strconv.Atoi(strings.Trim(string(raw), `"`))
	return err == nil && n == 200
}

type condition struct {
	Description string `json:"description"`
}

type wind struct {
	Speed float64 `json:"speed"`
}

type currentResponse struct {
	Cod     json.RawMessage `json:"cod"`
	Message any             `json:"message"`
	Weather []condition     `json:"weather"`
	Main    *struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind wind `json:"wind"`
}

// Validate implements provider.Validator.
func (r *currentResponse) Validate() error {
	if !codOK(r.Cod) {
		return fmt.Errorf("cod %s: %v", string(r.Cod), r.Message)
	}
	if r.Main == nil {
		return fmt.Errorf("missing main section")
	}
	return nil
}

type forecastResponse struct {
	Cod     json.RawMessage `json:"cod"`
	Message any             `json:"message"`
	List    *[]struct {
		Dt      int64       `json:"dt"`
		DtTxt   string      `json:"dt_txt"`
		Weather []condition `json:"weather"`
		Main    struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Wind wind `json:"wind"`
	} `json:"list"`
}

// Validate implements provider.Validator.
func (r *forecastResponse) Validate() error {
	if !codOK(r.Cod) {
		return fmt.Errorf("cod %s: %v", string(r.Cod), r.Message)
	}
	if r.List == nil {
		return fmt.Errorf("missing list section")
	}
	return nil
}

func describe(conds []condition) string {
	if len(conds) == 0 {
		return ""
	}
	return conds[0].Description
}

func (c *Client) params(coord geo.Coordinate, lang string) url.Values {
	lat, lon := coord.Query()
	v := url.Values{
		"lat":   {lat},
		"lon":   {lon},
		"appid": {c.apiKey},
		"units": {"metric"},
	}
	if lang != "" {
		v.Set("lang", lang)
	}
	return v
}

// shared runs fn once per key among concurrent callers. The fetch is detached
// from any single caller's cancellation and bounded by the provider client
// timeout; each caller stops waiting when its own ctx ends.
func (c *Client) shared(ctx context.Context, providerName, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(providerName+"|"+key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Shared && c.metrics != nil {
			c.metrics.RecordSingleflightDedup(providerName)
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CurrentWeather returns present conditions at coord. lang selects the
// description language. Failures yield Current{Available: false}.
func (c *Client) CurrentWeather(ctx context.Context, coord geo.Coordinate, lang string) Current {
	v, err := c.shared(ctx, ProviderCurrent, coord.Key()+"|"+lang, func(ctx context.Context) (any, error) {
		var resp currentResponse
		if err := c.current.GetJSON(ctx, c.baseURL+"/weather", c.params(coord, lang), &resp); err != nil {
			return Current{}, err
		}
		return Current{
			Description:  describe(resp.Weather),
			TemperatureC: resp.Main.Temp,
			FeelsLikeC:   resp.Main.FeelsLike,
			HumidityPct:  int(math.Round(resp.Main.Humidity)),
			WindSpeed:    resp.Wind.Speed,
			Available:    true,
		}, nil
	})
	if err != nil {
		c.log.WithError(err).WarnContext(ctx, "Current weather lookup failed", "coordinate", coord.String())
		return Current{}
	}
	return v.(Current)
}

// ShortForecast returns the first ForecastEntries steps of the 5-day/3-hour
// forecast at coord. Failures yield Forecast{Available: false}.
func (c *Client) ShortForecast(ctx context.Context, coord geo.Coordinate, lang string) Forecast {
	v, err := c.shared(ctx, ProviderForecast, coord.Key()+"|"+lang, func(ctx context.Context) (any, error) {
		var resp forecastResponse
		if err := c.forecast.GetJSON(ctx, c.baseURL+"/forecast", c.params(coord, lang), &resp); err != nil {
			return Forecast{}, err
		}

		list := *resp.List
		n := min(len(list), ForecastEntries)
		entries := make([]ForecastEntry, 0, n)
		for _, item := range list[:n] {
			at := time.Unix(item.Dt, 0).UTC()
			label := item.DtTxt
			if label == "" {
				label = at.Format(time.DateTime)
			}
			entries = append(entries, ForecastEntry{
				Time:         at,
				Label:        label,
				Description:  describe(item.Weather),
				TemperatureC: item.Main.Temp,
				WindSpeed:    item.Wind.Speed,
			})
		}
		return Forecast{Entries: entries, Available: true}, nil
	})
	if err != nil {
		c.log.WithError(err).WarnContext(ctx, "Forecast lookup failed", "coordinate", coord.String())
		return Forecast{}
	}
	return v.(Forecast)
}
