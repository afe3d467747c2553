package pipeline

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/wxbot-go/internal/errors"
	"github.com/garyellow/wxbot-go/internal/geo"
	"github.com/garyellow/wxbot-go/internal/geocode"
	"github.com/garyellow/wxbot-go/internal/locale"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/metrics"
	"github.com/garyellow/wxbot-go/internal/provider"
	"github.com/garyellow/wxbot-go/internal/weather"
)

type fakeGeocoder struct {
	calls atomic.Int32
	addr  geocode.Address
	lang  atomic.Value
}

func (f *fakeGeocoder) ResolveAddress(_ context.Context, _ geo.Coordinate, hint string) geocode.Address {
	f.calls.Add(1)
	f.lang.Store(hint)
	return f.addr
}

type fakeWeather struct {
	currentCalls  atomic.Int32
	forecastCalls atomic.Int32
	current       weather.Current
	forecast      weather.Forecast
}

func (f *fakeWeather) CurrentWeather(context.Context, geo.Coordinate, string) weather.Current {
	f.currentCalls.Add(1)
	return f.current
}

func (f *fakeWeather) ShortForecast(context.Context, geo.Coordinate, string) weather.Forecast {
	f.forecastCalls.Add(1)
	return f.forecast
}

type fixedZone struct{ loc *time.Location }

func (z fixedZone) Now(geo.Coordinate) time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).In(z.loc)
}

func chisinauZone(t *testing.T) fixedZone {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Chisinau")
	require.NoError(t, err)
	return fixedZone{loc: loc}
}

func discard() *logger.Logger {
	return logger.NewWithWriter("error", io.Discard)
}

func TestReport_InvalidCoordinateMakesNoCalls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		lat, lon float64
	}{
		{"latitude above range", 91, 0},
		{"latitude below range", -90.5, 0},
		{"longitude above range", 0, 181},
		{"longitude below range", 0, -180.01},
		{"NaN", math.NaN(), 0},
		{"infinite", 0, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := &fakeGeocoder{}
			w := &fakeWeather{}
			m := metrics.New(prometheus.NewRegistry())
			svc := NewService(g, w, chisinauZone(t), Config{}, m, discard())

			_, _, err := svc.Report(context.Background(), Request{Latitude: tt.lat, Longitude: tt.lon})
			require.Error(t, err)
			assert.True(t, errors.IsInvalidCoordinate(err))
			assert.Zero(t, g.calls.Load())
			assert.Zero(t, w.currentCalls.Load())
			assert.Zero(t, w.forecastCalls.Load())
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsTotal.WithLabelValues(KindFull, OutcomeInvalid)))
		})
	}
}

func TestReport_Complete(t *testing.T) {
	t.Parallel()

	g := &fakeGeocoder{addr: geocode.Address{DisplayName: "Chișinău, Moldova", Available: true}}
	w := &fakeWeather{
		current:  weather.Current{Description: "clear sky", TemperatureC: 22.1, FeelsLikeC: 21.5, HumidityPct: 40, WindSpeed: 3.2, Available: true},
		forecast: weather.Forecast{Available: true, Entries: []weather.ForecastEntry{{Time: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC), Description: "few clouds", TemperatureC: 24}}},
	}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(g, w, chisinauZone(t), Config{DefaultLanguage: "en", StaticMapURL: "https://map/?c={lat},{lon}"}, m, discard())

	r, coord, err := svc.Report(context.Background(), Request{Latitude: 47.0105, Longitude: 28.8638, Requester: "@alice"})
	require.NoError(t, err)

	assert.Equal(t, geo.Coordinate{Latitude: 47.0105, Longitude: 28.8638}, coord)
	assert.Contains(t, r.Text, "Chișinău, Moldova")
	assert.Contains(t, r.Text, "22.1°C")
	assert.Contains(t, r.Text, "clear sky")
	assert.Contains(t, r.Text, "2025-06-01 15:00:00 (EEST)")
	assert.Contains(t, r.Text, "few clouds")
	assert.Contains(t, r.Mirror, "@alice")
	assert.Equal(t, "https://map/?c=47.0105,28.8638", r.MapURL)
	assert.Equal(t, "en", g.lang.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsTotal.WithLabelValues(KindFull, OutcomeComplete)))
}

func TestReport_AllLookupsFail(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(&fakeGeocoder{}, &fakeWeather{}, chisinauZone(t), Config{}, m, discard())

	r, _, err := svc.Report(context.Background(), Request{Latitude: 47.0105, Longitude: 28.8638})
	require.NoError(t, err)

	msgs := locale.Default()
	assert.Contains(t, r.Text, msgs.AddressUnavailable)
	assert.Contains(t, r.Text, msgs.WeatherUnavailable)
	assert.Contains(t, r.Text, msgs.ForecastUnavailable)
	assert.Contains(t, r.Text, "2025-06-01 15:00:00")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsTotal.WithLabelValues(KindFull, OutcomeDegraded)))
}

func TestReport_LanguageHint(t *testing.T) {
	t.Parallel()

	g := &fakeGeocoder{}
	svc := NewService(g, &fakeWeather{}, chisinauZone(t), Config{DefaultLanguage: "en"}, nil, discard())

	r, _, err := svc.Report(context.Background(), Request{Latitude: 47, Longitude: 28, Language: "ru-RU"})
	require.NoError(t, err)
	assert.Equal(t, "ru", g.lang.Load())
	assert.Contains(t, r.Text, "Не удалось определить адрес")
}

type blockingGeocoder struct{}

func (b *blockingGeocoder) ResolveAddress(ctx context.Context, _ geo.Coordinate, _ string) geocode.Address {
	<-ctx.Done()
	return geocode.Address{}
}

func TestReport_LookupsRunConcurrentlyAndAreBounded(t *testing.T) {
	t.Parallel()

	w := &fakeWeather{current: weather.Current{Description: "clear sky", TemperatureC: 22.1, Available: true}}
	svc := NewService(&blockingGeocoder{}, w, chisinauZone(t), Config{LookupTimeout: 50 * time.Millisecond}, nil, discard())

	start := time.Now()
	r, _, err := svc.Report(context.Background(), Request{Latitude: 47.0105, Longitude: 28.8638})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, r.Text, locale.Default().AddressUnavailable)
	assert.Contains(t, r.Text, "22.1°C")
}

// slowWeather answers after a delay and reports whether its context was still live.
type slowWeather struct {
	delay    time.Duration
	canceled atomic.Bool
}

func (s *slowWeather) wait(ctx context.Context) {
	time.Sleep(s.delay)
	if ctx.Err() != nil {
		s.canceled.Store(true)
	}
}

func (s *slowWeather) CurrentWeather(ctx context.Context, _ geo.Coordinate, _ string) weather.Current {
	s.wait(ctx)
	return weather.Current{Description: "clear sky", TemperatureC: 22.1, Available: true}
}

func (s *slowWeather) ShortForecast(ctx context.Context, _ geo.Coordinate, _ string) weather.Forecast {
	s.wait(ctx)
	return weather.Forecast{Available: true}
}

func TestReport_FailedLookupDoesNotCancelOthers(t *testing.T) {
	t.Parallel()

	w := &slowWeather{delay: 30 * time.Millisecond}
	svc := NewService(&fakeGeocoder{}, w, chisinauZone(t), Config{LookupTimeout: time.Second}, nil, discard())

	r, _, err := svc.Report(context.Background(), Request{Latitude: 47.0105, Longitude: 28.8638})
	require.NoError(t, err)
	assert.False(t, w.canceled.Load())
	assert.Contains(t, r.Text, locale.Default().AddressUnavailable)
	assert.Contains(t, r.Text, "22.1°C")
	assert.NotContains(t, r.Text, locale.Default().ForecastUnavailable)
}

func TestForecastReport(t *testing.T) {
	t.Parallel()

	g := &fakeGeocoder{}
	w := &fakeWeather{forecast: weather.Forecast{Available: true, Entries: []weather.ForecastEntry{{Time: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC), Description: "drizzle", TemperatureC: 18}}}}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(g, w, chisinauZone(t), Config{StaticMapURL: "https://map/{lat}"}, m, discard())

	r := svc.ForecastReport(context.Background(), geo.Coordinate{Latitude: 47.0105, Longitude: 28.8638}, "@bob", "")
	assert.Contains(t, r.Text, "drizzle")
	assert.Empty(t, r.MapURL)
	assert.Zero(t, g.calls.Load())
	assert.Zero(t, w.currentCalls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsTotal.WithLabelValues(KindForecast, OutcomeComplete)))
}

// End to end over HTTP: the geocoder times out while weather still renders.
func TestReport_HTTPProvidersGeocoderTimeout(t *testing.T) {
	t.Parallel()

	geoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer geoSrv.Close()

	owm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/weather"):
			_, _ = w.Write([]byte(`{"cod":200,"weather":[{"description":"clear sky"}],"main":{"temp":22.1,"feels_like":21.5,"humidity":40},"wind":{"speed":3.2}}`))
		case strings.HasSuffix(r.URL.Path, "/forecast"):
			_, _ = w.Write([]byte(`{"cod":"200","message":0}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer owm.Close()

	log := discard()
	geocoder := geocode.NewClient(provider.New(provider.Options{Name: geocode.ProviderName, Timeout: 100 * time.Millisecond}), geoSrv.URL, log)
	wx := weather.NewClient(
		provider.New(provider.Options{Name: weather.ProviderCurrent, Timeout: time.Second}),
		provider.New(provider.Options{Name: weather.ProviderForecast, Timeout: time.Second}),
		owm.URL, "key", nil, log)
	svc := NewService(geocoder, wx, chisinauZone(t), Config{}, nil, log)

	r, _, err := svc.Report(context.Background(), Request{Latitude: 47.0105, Longitude: 28.8638, Requester: "@alice"})
	require.NoError(t, err)

	msgs := locale.Default()
	assert.Contains(t, r.Text, msgs.AddressUnavailable)
	assert.Contains(t, r.Text, "22.1°C")
	assert.Contains(t, r.Text, "clear sky")
	assert.Contains(t, r.Text, msgs.ForecastUnavailable, "forecast without list is unavailable")
}
