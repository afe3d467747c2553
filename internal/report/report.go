// Package report composes the text reply for a location request.
// Composition is pure: the same input always yields byte-identical text,
// and unavailable lookups render as placeholders instead of failing.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyellow/wxbot-go/internal/geo"
	"github.com/garyellow/wxbot-go/internal/geocode"
	"github.com/garyellow/wxbot-go/internal/locale"
	"github.com/garyellow/wxbot-go/internal/weather"
)

// Time layouts used in reports.
const (
	LocalTimeLayout = "2006-01-02 15:04:05 (MST)"
	ForecastLayout  = "2006-01-02 15:04"
)

// Input is everything the composer needs. LocalTime must already be in the
// zone resolved for Coordinate; forecast entry times are shown in that zone.
type Input struct {
	Coordinate geo.Coordinate
	Requester  string // "@username" or "ID:123"
	Address    geocode.Address
	Current    weather.Current
	Forecast   *weather.Forecast // nil omits the forecast block
	LocalTime  time.Time
	Messages   *locale.Messages // nil uses the default language
	MapURL     string
}

// Report is the composed output.
type Report struct {
	Text   string // Reply to the requester
	Mirror string // Operator copy
	MapURL string // Static map image, empty if disabled
}

// Compose builds the full report: coordinates, address, local time,
// current weather and (when present) the forecast.
func Compose(in Input) Report {
	m := messages(in)

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %.5f\n", m.Latitude, in.Coordinate.Latitude)
	fmt.Fprintf(&b, "%s: %.5f\n\n", m.Longitude, in.Coordinate.Longitude)

	b.WriteString(m.Address + ": ")
	if in.Address.Available {
		b.WriteString(in.Address.DisplayName)
	} else {
		b.WriteString(m.AddressUnavailable)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s: %s\n\n", m.LocalTime, in.LocalTime.Format(LocalTimeLayout))

	writeCurrent(&b, m, in.Current)

	if in.Forecast != nil {
		b.WriteString("\n\n")
		writeForecast(&b, m, *in.Forecast, in.LocalTime.Location())
	}

	return build(in, m, b.String())
}

// ComposeForecast builds the forecast-only report served for a remembered location.
func ComposeForecast(in Input) Report {
	m := messages(in)

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %.5f\n", m.Latitude, in.Coordinate.Latitude)
	fmt.Fprintf(&b, "%s: %.5f\n", m.Longitude, in.Coordinate.Longitude)
	fmt.Fprintf(&b, "%s: %s\n\n", m.LocalTime, in.LocalTime.Format(LocalTimeLayout))

	fc := weather.Forecast{}
	if in.Forecast != nil {
		fc = *in.Forecast
	}
	writeForecast(&b, m, fc, in.LocalTime.Location())

	return build(in, m, b.String())
}

func messages(in Input) *locale.Messages {
	if in.Messages != nil {
		return in.Messages
	}
	return locale.Default()
}

func build(in Input, m *locale.Messages, body string) Report {
	header := m.Received
	if in.Requester != "" {
		header = in.Requester + ", " + m.Received
	}
	return Report{
		Text:   header + "\n" + body,
		Mirror: fmt.Sprintf(m.MirrorHeader, requesterOrUnknown(in.Requester)) + "\n" + body,
		MapURL: in.MapURL,
	}
}

func requesterOrUnknown(r string) string {
	if r == "" {
		return "?"
	}
	return r
}

func writeCurrent(b *strings.Builder, m *locale.Messages, cur weather.Current) {
	if !cur.Available {
		b.WriteString(m.WeatherUnavailable)
		return
	}
	if cur.Description != "" {
		fmt.Fprintf(b, "%s %s\n", m.Conditions, cur.Description)
	}
	fmt.Fprintf(b, "%s: %.1f°C\n", m.Temperature, cur.TemperatureC)
	fmt.Fprintf(b, "%s: %.1f°C\n", m.FeelsLike, cur.FeelsLikeC)
	fmt.Fprintf(b, "%s: %d%%\n", m.Humidity, cur.HumidityPct)
	fmt.Fprintf(b, "%s: %.1f %s", m.Wind, cur.WindSpeed, m.WindUnit)
}

func writeForecast(b *strings.Builder, m *locale.Messages, fc weather.Forecast, loc *time.Location) {
	if !fc.Available {
		b.WriteString(m.ForecastUnavailable)
		return
	}
	b.WriteString(m.ForecastHeader)
	if len(fc.Entries) == 0 {
		b.WriteString("\n" + m.ForecastEmpty)
		return
	}
	for _, e := range fc.Entries {
		fmt.Fprintf(b, "\n🕒 %s — %s, 🌡 %.1f°C, 💨 %.1f %s",
			e.Time.In(loc).Format(ForecastLayout), e.Description, e.TemperatureC, e.WindSpeed, m.WindUnit)
	}
}

// StaticMapURL fills the {lat} and {lon} placeholders of a map image URL
// template. An empty template disables map images.
func StaticMapURL(template string, c geo.Coordinate) string {
	if template == "" {
		return ""
	}
	lat, lon := c.Query()
	return strings.NewReplacer("{lat}", lat, "{lon}", lon).Replace(template)
}
