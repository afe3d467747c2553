// Package telegram is the Telegram Bot API transport. Updates arrive by long
// polling or through a webhook; both paths share the same routing and delivery.
package telegram

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/cenkalti/backoff/v4"
	"github.com/garyellow/wxbot-go/internal/bot"
	"github.com/garyellow/wxbot-go/internal/config"
	"github.com/garyellow/wxbot-go/internal/ctxutil"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/metrics"
	"github.com/garyellow/wxbot-go/internal/ratelimit"
	"github.com/garyellow/wxbot-go/internal/sentry"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxCaptionLength is Telegram's photo caption limit in UTF-16 code units.
const MaxCaptionLength = 1024

// Delivery targets for metrics.
const (
	targetChat  = "chat"
	targetOwner = "owner"
)

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Processor runs bot operations. Implemented by *bot.Processor.
type Processor interface {
	Dispatch(ctx context.Context, ev bot.Event, cmd bot.Command) bot.Outcome
	Location(ctx context.Context, ev bot.Event, lat, lon float64) bot.Outcome
}

// Bot handles Telegram updates.
type Bot struct {
	api         API
	token       string
	ownerID     int64
	processor   Processor
	metrics     *metrics.Metrics
	logger      *logger.Logger
	rateLimiter *ratelimit.Limiter
	wg          sync.WaitGroup
}

// Config holds configuration for creating a new Bot.
type Config struct {
	API       API
	Token     string // Also the webhook path secret
	OwnerID   int64  // Receives mirrored reports; 0 disables
	Processor Processor
	BotConfig *config.BotConfig
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

// NewAPI connects to the Bot API and verifies the token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return api, nil
}

// New creates a Bot.
func New(cfg Config) (*Bot, error) {
	if cfg.API == nil || cfg.Processor == nil {
		return nil, errors.New("telegram: api and processor are required")
	}
	if cfg.Token == "" {
		return nil, errors.New("telegram: token is required")
	}

	rps := 25.0 // Telegram allows about 30 messages per second overall
	if cfg.BotConfig != nil && cfg.BotConfig.GlobalRateRPS > 0 && cfg.BotConfig.GlobalRateRPS < rps {
		rps = cfg.BotConfig.GlobalRateRPS
	}

	return &Bot{
		api:         cfg.API,
		token:       cfg.Token,
		ownerID:     cfg.OwnerID,
		processor:   cfg.Processor,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.WithModule("telegram"),
		rateLimiter: ratelimit.New(rps, rps),
	}, nil
}

// WebhookPath is the route the webhook is served on, relative to the public URL.
func (b *Bot) WebhookPath() string {
	return "/webhook/telegram/" + b.token
}

// RegisterWebhook points Telegram at publicURL, retrying with exponential
// backoff until config.TelegramWebhookRegistration elapses or ctx ends.
func (b *Bot) RegisterWebhook(ctx context.Context, publicURL string) error {
	wh, err := tgbotapi.NewWebhook(publicURL + b.WebhookPath())
	if err != nil {
		return fmt.Errorf("build webhook config: %w", err)
	}

	attempt := 0
	operation := func() error {
		attempt++
		if _, err := b.api.Request(wh); err != nil {
			b.logger.WithError(err).WithField("attempt", attempt).Warn("setWebhook failed")
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = config.TelegramWebhookRegistration
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("register telegram webhook: %w", err)
	}
	b.logger.Info("Telegram webhook registered")
	return nil
}

// Poll receives updates by long polling until ctx is canceled.
func (b *Bot) Poll(ctx context.Context) {
	// getUpdates is refused while a webhook is set.
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.logger.WithError(err).Warn("Failed to delete webhook before polling")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = config.TelegramPollTimeout
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Telegram long polling started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Telegram long polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.dispatch(update)
		}
	}
}

// Handle is the Gin handler for the webhook endpoint.
func (b *Bot) Handle(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(b.token)) != 1 {
		c.Status(http.StatusNotFound)
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		b.logger.WithError(err).Warn("Invalid Telegram update")
		c.Status(http.StatusBadRequest)
		return
	}

	c.Status(http.StatusOK)
	b.dispatch(update)
}

// dispatch processes an update in the background so polling and webhooks never block.
func (b *Bot) dispatch(update tgbotapi.Update) {
	b.wg.Go(func() {
		ctx := ctxutil.WithRequestID(context.Background(), "tg-"+strconv.Itoa(update.UpdateID))
		defer func() {
			if r := recover(); r != nil {
				b.logger.WithField("panic", r).Error("Panic in Telegram update processing")
				sentry.CapturePanic(ctx, r)
			}
		}()
		b.process(ctx, update)
	})
}

func (b *Bot) process(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	start := time.Now()

	ev := bot.Event{
		Platform: bot.PlatformTelegram,
		ChatID:   strconv.FormatInt(msg.Chat.ID, 10),
	}
	if msg.From != nil {
		ev.UserID = strconv.FormatInt(msg.From.ID, 10)
		ev.Username = msg.From.UserName
		ev.Language = msg.From.LanguageCode
	}
	ctx = ctxutil.WithPlatform(ctx, bot.PlatformTelegram)
	log := b.logger.WithField("update_id", update.UpdateID)

	var (
		outcome   bot.Outcome
		eventType string
	)
	switch {
	case msg.Location != nil:
		eventType = "location"
		outcome = b.processor.Location(ctx, ev, msg.Location.Latitude, msg.Location.Longitude)
	default:
		cmd := bot.ParseCommand(msg.Text)
		if cmd == bot.CommandNone {
			return
		}
		eventType = "command"
		outcome = b.processor.Dispatch(ctx, ev, cmd)
	}

	status := "success"
	if !b.deliver(ctx, log, msg.Chat.ID, targetChat, outcome.Replies) {
		status = "reply_error"
	}
	if b.ownerID != 0 {
		b.deliver(ctx, log, b.ownerID, targetOwner, outcome.Mirror)
	}

	if b.metrics != nil {
		b.metrics.RecordWebhook(bot.PlatformTelegram, eventType, status, time.Since(start).Seconds())
	}
	log.WithField("event_type", eventType).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Update processed")
}

// deliver sends replies to one chat. It reports false if any send failed.
func (b *Bot) deliver(ctx context.Context, log *logger.Logger, chatID int64, target string, replies []bot.Reply) bool {
	ok := true
	for _, r := range replies {
		for _, c := range render(chatID, r) {
			if err := b.send(ctx, c, target); err != nil {
				// A photo Telegram cannot fetch must not swallow its caption.
				if photo, isPhoto := c.(tgbotapi.PhotoConfig); isPhoto && photo.Caption != "" {
					log.WithError(err).Warn("Failed to send photo; falling back to text")
					fallback := tgbotapi.NewMessage(chatID, photo.Caption)
					fallback.ReplyMarkup = photo.ReplyMarkup
					if err := b.send(ctx, fallback, target); err == nil {
						continue
					}
				}
				log.WithError(err).WithField("target", target).Error("Failed to send message")
				ok = false
			}
		}
	}
	return ok
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable, target string) error {
	if !b.rateLimiter.Allow() {
		if b.metrics != nil {
			b.metrics.RecordRateLimiterDrop("global")
		}
		if err := b.rateLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	_, err := b.api.Send(c)
	if b.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		b.metrics.RecordDelivery(bot.PlatformTelegram, target, status)
	}
	return err
}

// render turns one reply into Telegram messages. A map becomes a photo
// captioned with the text when the text fits; the keyboard rides on the last message.
func render(chatID int64, r bot.Reply) []tgbotapi.Chattable {
	var markup any
	switch {
	case r.LocationButton != "":
		kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonLocation(r.LocationButton),
		))
		kb.OneTimeKeyboard = true
		kb.ResizeKeyboard = true
		markup = kb
	case r.RemoveKeyboard:
		markup = tgbotapi.NewRemoveKeyboard(true)
	}

	var out []tgbotapi.Chattable
	text := r.Text
	if r.ImageURL != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(r.ImageURL))
		if captionLength(text) <= MaxCaptionLength {
			photo.Caption = text
			text = ""
		}
		if text == "" && markup != nil {
			photo.ReplyMarkup = markup
		}
		out = append(out, photo)
	}
	if text != "" {
		msg := tgbotapi.NewMessage(chatID, text)
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		out = append(out, msg)
	}
	return out
}

// captionLength counts text the way Telegram does: astral characters such as
// emoji take two units.
func captionLength(text string) int {
	return len(utf16.Encode([]rune(text)))
}

// Shutdown waits for in-flight updates to finish.
// It returns an error if the context is canceled before completion.
func (b *Bot) Shutdown(ctx context.Context) error {
	c := make(chan struct{})
	go func() {
		defer close(c)
		b.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
