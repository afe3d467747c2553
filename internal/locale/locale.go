// Package locale holds every user-visible string and picks a message set
// from a user's language code.
package locale

import (
	"strings"

	"golang.org/x/text/language"
)

// Messages is one language's user-visible text.
type Messages struct {
	Tag language.Tag

	// Bot commands
	Greeting         string
	LocationButton   string
	Help             string
	UnknownCommand   string
	NeedLocation     string
	RateLimited      string
	InvalidLocation  string
	ProcessingFailed string
	StartedNotice    string // %s = requester

	// Report labels
	Received       string // "{requester}, ✅ Received:"
	Latitude       string
	Longitude      string
	Address        string
	LocalTime      string
	Conditions     string
	Temperature    string
	FeelsLike      string
	Humidity       string
	Wind           string
	WindUnit       string
	ForecastHeader string
	ForecastEmpty  string
	MirrorHeader   string // %s = requester

	// Placeholders for unavailable sections
	AddressUnavailable  string
	WeatherUnavailable  string
	ForecastUnavailable string
}

var english = Messages{
	Tag:              language.English,
	Greeting:         "Hi! Share your location and I will send you the weather there 👇",
	LocationButton:   "📍 Send my location",
	Help:             "Send me a location and I will reply with the address, local time, current weather and a 12-hour forecast.\n\nCommands:\n/start - show the location button\n/forecast - forecast for your last location\n/help - this message",
	UnknownCommand:   "Sorry, I don't know that command. Try /help.",
	NeedLocation:     "Send your location first using the button from /start.",
	RateLimited:      "⏳ Too many requests. Please wait a moment and try again.",
	InvalidLocation:  "❌ That location has invalid coordinates. Please send it again.",
	ProcessingFailed: "⚠️ Something went wrong while preparing your report. Please try again.",
	StartedNotice:    "👤 User %s pressed /start",

	Received:       "✅ Received:",
	Latitude:       "🌍 Latitude",
	Longitude:      "🌍 Longitude",
	Address:        "📍 Location",
	LocalTime:      "🕒 Local time",
	Conditions:     "🌤",
	Temperature:    "🌡 Temperature",
	FeelsLike:      "🤔 Feels like",
	Humidity:       "💧 Humidity",
	Wind:           "💨 Wind",
	WindUnit:       "m/s",
	ForecastHeader: "📊 Forecast (next 12 h):",
	ForecastEmpty:  "No forecast entries available.",
	MirrorHeader:   "📬 Report for %s",

	AddressUnavailable:  "⚠️ Could not determine the address",
	WeatherUnavailable:  "⚠️ Could not get the current weather",
	ForecastUnavailable: "⚠️ Could not get the forecast",
}

var russian = Messages{
	Tag:              language.Russian,
	Greeting:         "Привет! Поделись своим местоположением👇",
	LocationButton:   "📍 Отправить геолокацию",
	Help:             "Отправь мне геолокацию, и я пришлю адрес, местное время, текущую погоду и прогноз на 12 часов.\n\nКоманды:\n/start - показать кнопку геолокации\n/forecast - прогноз для последней геолокации\n/help - эта справка",
	UnknownCommand:   "Извини, я не знаю такую команду.",
	NeedLocation:     "Сначала отправьте своё местоположение с помощью кнопки /start.",
	RateLimited:      "⏳ Слишком много запросов. Подожди немного и попробуй снова.",
	InvalidLocation:  "❌ Некорректные координаты. Отправь геолокацию ещё раз.",
	ProcessingFailed: "⚠️ Произошла ошибка при обработке локации.",
	StartedNotice:    "👤 Пользователь %s нажал /start",

	Received:       "✅ Получено:",
	Latitude:       "🌍 Широта",
	Longitude:      "🌍 Долгота",
	Address:        "📍 Местоположение",
	LocalTime:      "🕒 Местное время",
	Conditions:     "🌤",
	Temperature:    "🌡 Температура",
	FeelsLike:      "🤔 Ощущается как",
	Humidity:       "💧 Влажность",
	Wind:           "💨 Ветер",
	WindUnit:       "м/с",
	ForecastHeader: "📊 Прогноз погоды (на 12 ч):",
	ForecastEmpty:  "Нет данных прогноза.",
	MirrorHeader:   "📬 Отчёт для %s",

	AddressUnavailable:  "⚠️ Не удалось определить адрес",
	WeatherUnavailable:  "⚠️ Не удалось получить погоду",
	ForecastUnavailable: "⚠️ Не удалось получить прогноз",
}

// supported lists message sets; the first is the fallback.
var supported = []*Messages{&english, &russian}

var matcher = language.NewMatcher([]language.Tag{english.Tag, russian.Tag})

// Lookup returns the message set best matching any of the given language
// codes (e.g. Telegram's language_code, then the configured default).
// Unknown or empty codes yield English.
func Lookup(codes ...string) *Messages {
	var nonEmpty []string
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	if len(nonEmpty) == 0 {
		return supported[0]
	}

	_, idx := language.MatchStrings(matcher, nonEmpty...)
	return supported[idx]
}

// Default returns the fallback message set.
func Default() *Messages {
	return supported[0]
}

// Code returns the base language code ("en", "ru").
func (m *Messages) Code() string {
	base, _ := m.Tag.Base()
	return base.String()
}

// ProviderLanguage derives the lang/accept-language value sent to providers
// from a user hint, falling back to the configured default.
func ProviderLanguage(hint, fallback string) string {
	for _, c := range []string{hint, fallback} {
		tag, err := language.Parse(strings.TrimSpace(c))
		if err != nil || tag == language.Und {
			continue
		}
		base, conf := tag.Base()
		if conf == language.No {
			continue
		}
		return base.String()
	}
	return Default().Code()
}
