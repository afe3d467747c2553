package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/garyellow/wxbot-go/internal/config"
	"github.com/garyellow/wxbot-go/internal/ctxutil"
	"github.com/garyellow/wxbot-go/internal/errors"
	"github.com/garyellow/wxbot-go/internal/geo"
	"github.com/garyellow/wxbot-go/internal/locale"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/metrics"
	"github.com/garyellow/wxbot-go/internal/pipeline"
	"github.com/garyellow/wxbot-go/internal/ratelimit"
	"github.com/garyellow/wxbot-go/internal/report"
	"github.com/garyellow/wxbot-go/internal/sentry"
	"github.com/garyellow/wxbot-go/internal/storage"
)

// lastLocationCache labels last-location hit/miss metrics.
const lastLocationCache = "last_location"

// ReportService builds reports. Implemented by *pipeline.Service.
type ReportService interface {
	Report(ctx context.Context, req pipeline.Request) (report.Report, geo.Coordinate, error)
	ForecastReport(ctx context.Context, coord geo.Coordinate, requester, language string) report.Report
}

// Processor handles bot operations for every transport.
type Processor struct {
	reports     ReportService
	store       storage.LocationStore
	userLimiter *ratelimit.KeyedLimiter
	logger      *logger.Logger
	metrics     *metrics.Metrics

	webhookTimeout  time.Duration
	defaultLanguage string
}

// ProcessorConfig holds configuration for creating a new Processor.
type ProcessorConfig struct {
	Reports         ReportService
	Store           storage.LocationStore  // Optional; /forecast needs it
	UserLimiter     *ratelimit.KeyedLimiter // Optional
	Logger          *logger.Logger
	Metrics         *metrics.Metrics // Optional
	BotConfig       *config.BotConfig
	DefaultLanguage string
}

// NewProcessor creates a new event processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	timeout := config.WebhookProcessing
	if cfg.BotConfig != nil && cfg.BotConfig.WebhookTimeout > 0 {
		timeout = cfg.BotConfig.WebhookTimeout
	}
	return &Processor{
		reports:         cfg.Reports,
		store:           cfg.Store,
		userLimiter:     cfg.UserLimiter,
		logger:          cfg.Logger.WithModule("bot"),
		metrics:         cfg.Metrics,
		webhookTimeout:  timeout,
		defaultLanguage: cfg.DefaultLanguage,
	}
}

// begin injects tracing values and bounds processing time.
func (p *Processor) begin(ctx context.Context, ev Event) (context.Context, context.CancelFunc) {
	ctx = ctxutil.WithPlatform(ctx, ev.Platform)
	ctx = ctxutil.WithChatID(ctx, ev.ChatID)
	ctx = ctxutil.WithUserID(ctx, ev.UserID)
	return context.WithTimeout(ctxutil.PreserveTracing(ctx), p.webhookTimeout)
}

func (p *Processor) messages(ev Event) *locale.Messages {
	return locale.Lookup(ev.Language, p.defaultLanguage)
}

// operatorMessages is the language of mirrored notices.
func (p *Processor) operatorMessages() *locale.Messages {
	return locale.Lookup(p.defaultLanguage)
}

// allow applies the per-user rate limit.
func (p *Processor) allow(ctx context.Context, ev Event) bool {
	if p.userLimiter == nil || p.userLimiter.Allow(ev.UserKey()) {
		return true
	}
	p.logger.WarnContext(ctx, "User rate limit exceeded")
	return false
}

// Start greets the user with a location button and notifies the operator.
func (p *Processor) Start(ctx context.Context, ev Event) Outcome {
	ctx, cancel := p.begin(ctx, ev)
	defer cancel()

	p.logger.InfoContext(ctx, "User started the bot")
	m := p.messages(ev)
	return Outcome{
		Replies: []Reply{{Text: m.Greeting, LocationButton: m.LocationButton}},
		Mirror:  []Reply{{Text: fmt.Sprintf(p.operatorMessages().StartedNotice, ev.Requester())}},
	}
}

// Help explains usage.
func (p *Processor) Help(_ context.Context, ev Event) Outcome {
	m := p.messages(ev)
	return Outcome{
		Replies: []Reply{{Text: m.Help, LocationButton: m.LocationButton}},
	}
}

// Unknown answers unrecognized commands.
func (p *Processor) Unknown(_ context.Context, ev Event) Outcome {
	return Outcome{
		Replies: []Reply{{Text: p.messages(ev).UnknownCommand}},
	}
}

// Location builds the full report for a shared location and remembers it for /forecast.
func (p *Processor) Location(ctx context.Context, ev Event, lat, lon float64) Outcome {
	ctx, cancel := p.begin(ctx, ev)
	defer cancel()

	m := p.messages(ev)
	if !p.allow(ctx, ev) {
		return Outcome{Replies: []Reply{{Text: m.RateLimited}}}
	}

	rep, coord, err := p.reports.Report(ctx, pipeline.Request{
		Latitude:  lat,
		Longitude: lon,
		Requester: ev.Requester(),
		Language:  ev.Language,
	})
	if err != nil {
		if errors.IsInvalidCoordinate(err) {
			p.logger.WithError(err).InfoContext(ctx, "Rejected invalid coordinate")
			return Outcome{Replies: []Reply{{Text: m.InvalidLocation}}}
		}
		p.logger.WithError(err).ErrorContext(ctx, "Report failed")
		sentry.CaptureExceptionWithContext(ctx, err)
		return Outcome{Replies: []Reply{{Text: m.ProcessingFailed}}}
	}

	p.remember(ctx, ev, coord)

	return Outcome{
		Replies: []Reply{{Text: rep.Text, ImageURL: rep.MapURL, RemoveKeyboard: true}},
		Mirror:  []Reply{{Text: rep.Mirror, ImageURL: rep.MapURL}},
	}
}

func (p *Processor) remember(ctx context.Context, ev Event, coord geo.Coordinate) {
	key := ev.UserKey()
	if p.store == nil || key == "" {
		return
	}
	if err := p.store.SaveLastLocation(ctx, key, coord); err != nil {
		p.logger.WithError(err).WarnContext(ctx, "Failed to save last location")
	}
}

// Forecast sends the forecast for the user's last shared location.
func (p *Processor) Forecast(ctx context.Context, ev Event) Outcome {
	ctx, cancel := p.begin(ctx, ev)
	defer cancel()

	m := p.messages(ev)
	if !p.allow(ctx, ev) {
		return Outcome{Replies: []Reply{{Text: m.RateLimited}}}
	}

	needLocation := Outcome{Replies: []Reply{{Text: m.NeedLocation, LocationButton: m.LocationButton}}}
	key := ev.UserKey()
	if p.store == nil || key == "" {
		return needLocation
	}

	coord, ok, err := p.store.GetLastLocation(ctx, key)
	if err != nil {
		p.logger.WithError(err).ErrorContext(ctx, "Failed to load last location")
		return Outcome{Replies: []Reply{{Text: m.ProcessingFailed}}}
	}
	if !ok {
		if p.metrics != nil {
			p.metrics.RecordCacheMiss(lastLocationCache)
		}
		return needLocation
	}
	if p.metrics != nil {
		p.metrics.RecordCacheHit(lastLocationCache)
	}

	rep := p.reports.ForecastReport(ctx, coord, ev.Requester(), ev.Language)
	return Outcome{Replies: []Reply{{Text: rep.Text}}}
}

// Dispatch routes a text command to its operation. CommandNone yields an empty outcome.
func (p *Processor) Dispatch(ctx context.Context, ev Event, cmd Command) Outcome {
	switch cmd {
	case CommandStart:
		return p.Start(ctx, ev)
	case CommandHelp:
		return p.Help(ctx, ev)
	case CommandForecast:
		return p.Forecast(ctx, ev)
	case CommandUnknown:
		return p.Unknown(ctx, ev)
	}
	return Outcome{}
}
