// Package line is the LINE Messaging API transport: it verifies webhook
// signatures, turns LINE events into bot operations and delivers the
// resulting replies and operator mirrors.
package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/garyellow/wxbot-go/internal/bot"
	"github.com/garyellow/wxbot-go/internal/config"
	"github.com/garyellow/wxbot-go/internal/ctxutil"
	"github.com/garyellow/wxbot-go/internal/lineutil"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/metrics"
	"github.com/garyellow/wxbot-go/internal/ratelimit"
	"github.com/garyellow/wxbot-go/internal/sentry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// Delivery targets for metrics.
const (
	targetChat     = "chat"
	targetOperator = "operator"
)

// Client is the subset of the Messaging API the handler calls.
// *messaging_api.MessagingApiAPI satisfies it.
type Client interface {
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
	PushMessage(req *messaging_api.PushMessageRequest, xLineRetryKey string) (*messaging_api.PushMessageResponse, error)
}

// loadingAnimator is implemented by the real API client.
type loadingAnimator interface {
	ShowLoadingAnimation(req *messaging_api.ShowLoadingAnimationRequest) (*map[string]interface{}, error)
}

// Processor runs bot operations. Implemented by *bot.Processor.
type Processor interface {
	Dispatch(ctx context.Context, ev bot.Event, cmd bot.Command) bot.Outcome
	Location(ctx context.Context, ev bot.Event, lat, lon float64) bot.Outcome
}

// Handler handles LINE webhook events
type Handler struct {
	channelSecret string
	client        Client
	operatorID    string
	metrics       *metrics.Metrics
	logger        *logger.Logger
	processor     Processor
	rateLimiter   *ratelimit.Limiter // Outbound API calls
	wg            sync.WaitGroup

	maxMessagesPerReply int
	maxEventsPerWebhook int
}

// HandlerConfig holds configuration for creating a new Handler
type HandlerConfig struct {
	ChannelSecret string
	Client        Client
	OperatorID    string // Receives mirrored reports; empty disables
	BotConfig     *config.BotConfig
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
	Processor     Processor
}

// NewClient creates the Messaging API client for a channel access token.
func NewClient(channelToken string) (*messaging_api.MessagingApiAPI, error) {
	client, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}
	return client, nil
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.ChannelSecret == "" {
		return nil, errors.New("line: channel secret is required")
	}
	if cfg.Client == nil || cfg.Processor == nil {
		return nil, errors.New("line: client and processor are required")
	}

	botCfg := cfg.BotConfig
	if botCfg == nil {
		botCfg = &config.BotConfig{}
	}

	maxMessages := botCfg.MaxMessagesPerReply
	if maxMessages <= 0 || maxMessages > lineutil.MaxMessagesPerReply {
		maxMessages = lineutil.MaxMessagesPerReply
	}

	rps := botCfg.GlobalRateRPS
	if rps <= 0 {
		rps = 80
	}

	return &Handler{
		channelSecret:       cfg.ChannelSecret,
		client:              cfg.Client,
		operatorID:          cfg.OperatorID,
		metrics:             cfg.Metrics,
		logger:              cfg.Logger.WithModule("line"),
		processor:           cfg.Processor,
		rateLimiter:         ratelimit.New(rps, rps),
		maxMessagesPerReply: maxMessages,
		maxEventsPerWebhook: botCfg.MaxEventsPerWebhook,
	}, nil
}

// Handle is the Gin handler for the webhook endpoint
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	// LINE expects 200 before the reply is ready.
	c.Status(http.StatusOK)

	if h.maxEventsPerWebhook > 0 && len(cb.Events) > h.maxEventsPerWebhook {
		h.logger.WithField("event_count", len(cb.Events)).
			WithField("limit", h.maxEventsPerWebhook).
			Warn("Too many events in webhook batch; truncating")
		cb.Events = cb.Events[:h.maxEventsPerWebhook]
	}

	// The request is done once we return.
	events := make([]webhook.EventInterface, len(cb.Events))
	copy(events, cb.Events)

	h.wg.Go(func() {
		ctx := context.Background()
		defer func() {
			if r := recover(); r != nil {
				h.logger.WithField("panic", r).Error("Panic in async event processing")
				sentry.CapturePanic(ctx, r)
			}
		}()

		for _, event := range events {
			h.processEvent(ctx, event)
		}
	})
}

// processEvent runs one webhook event and delivers its outcome.
func (h *Handler) processEvent(ctx context.Context, event webhook.EventInterface) {
	start := time.Now()

	eventID, replyToken, source, redelivery := eventMeta(event)
	ctx = ctxutil.WithPlatform(ctx, bot.PlatformLine)
	log := h.logger
	if eventID != "" {
		ctx = ctxutil.WithRequestID(ctx, eventID)
		log = log.WithRequestID(eventID)
	}
	if redelivery {
		log = log.WithField("is_redelivery", true)
	}

	ev := bot.Event{
		Platform: bot.PlatformLine,
		ChatID:   chatID(source),
		UserID:   userID(source),
	}

	var (
		outcome   bot.Outcome
		eventType string
	)
	switch e := event.(type) {
	case webhook.FollowEvent:
		eventType = "follow"
		outcome = h.processor.Dispatch(ctx, ev, bot.CommandStart)
	case webhook.MessageEvent:
		switch m := e.Message.(type) {
		case webhook.LocationMessageContent:
			eventType = "location"
			h.showLoading(log, ev.ChatID, source)
			outcome = h.processor.Location(ctx, ev, m.Latitude, m.Longitude)
		case webhook.TextMessageContent:
			eventType = "text"
			cmd := bot.ParseCommand(m.Text)
			if cmd == bot.CommandNone {
				if !isPersonalChat(source) {
					return
				}
				cmd = bot.CommandUnknown
			}
			outcome = h.processor.Dispatch(ctx, ev, cmd)
		default:
			log.WithField("message_type", e.Message.GetType()).Debug("Unsupported message type")
			return
		}
	default:
		log.WithField("event_type", fmt.Sprintf("%T", e)).Debug("Unsupported event type")
		return
	}

	status := "success"
	if !h.reply(ctx, log, replyToken, outcome.Replies) {
		status = "reply_error"
	}
	h.mirror(ctx, log, outcome.Mirror)

	if h.metrics != nil {
		h.metrics.RecordWebhook(bot.PlatformLine, eventType, status, time.Since(start).Seconds())
	}
	log.WithField("event_type", eventType).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Event processed")
}

// reply sends replies with the event's reply token. It reports false only on a failed send.
func (h *Handler) reply(ctx context.Context, log *logger.Logger, replyToken string, replies []bot.Reply) bool {
	messages := h.buildMessages(replies)
	if len(messages) == 0 {
		return true
	}
	if replyToken == "" {
		log.Debug("Empty reply token, skipping reply")
		return true
	}

	h.throttle(ctx, log)
	_, err := h.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	h.recordDelivery(targetChat, err)
	if err != nil {
		if strings.Contains(err.Error(), "Invalid reply token") {
			log.WithError(err).Debug("Reply token already used or invalid")
		} else {
			log.WithError(err).Error("Failed to send reply")
		}
		return false
	}
	return true
}

// mirror pushes a copy of the outcome to the operator.
func (h *Handler) mirror(ctx context.Context, log *logger.Logger, replies []bot.Reply) {
	if h.operatorID == "" {
		return
	}
	messages := h.buildMessages(replies)
	if len(messages) == 0 {
		return
	}

	h.throttle(ctx, log)
	_, err := h.client.PushMessage(&messaging_api.PushMessageRequest{
		To:       h.operatorID,
		Messages: messages,
	}, uuid.NewString())
	h.recordDelivery(targetOperator, err)
	if err != nil {
		log.WithError(err).Warn("Failed to mirror report to operator")
	}
}

// buildMessages renders replies as LINE messages. An image goes before its
// text; LINE only accepts HTTPS image URLs.
func (h *Handler) buildMessages(replies []bot.Reply) []messaging_api.MessageInterface {
	var (
		messages []messaging_api.MessageInterface
		button   string
	)
	for _, r := range replies {
		if strings.HasPrefix(r.ImageURL, "https://") {
			messages = append(messages, lineutil.NewImageMessage(r.ImageURL, ""))
		}
		if r.Text != "" {
			messages = append(messages, lineutil.NewTextMessage(r.Text))
		}
		if r.LocationButton != "" {
			button = r.LocationButton
		}
	}

	if len(messages) > h.maxMessagesPerReply {
		h.logger.WithField("message_count", len(messages)).
			WithField("limit", h.maxMessagesPerReply).
			Warn("Message count exceeds limit; truncating")
		messages = messages[:h.maxMessagesPerReply]
	}
	if button != "" {
		lineutil.AddQuickReplyToMessages(messages, lineutil.QuickReplyItem{
			Action: lineutil.NewLocationAction(button),
		})
	}
	return messages
}

func (h *Handler) throttle(ctx context.Context, log *logger.Logger) {
	if h.rateLimiter.Allow() {
		return
	}
	log.Warn("Global rate limit exceeded; waiting")
	if h.metrics != nil {
		h.metrics.RecordRateLimiterDrop("global")
	}
	_ = h.rateLimiter.Wait(ctx)
}

func (h *Handler) recordDelivery(target string, err error) {
	if h.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	h.metrics.RecordDelivery(bot.PlatformLine, target, status)
}

// showLoading starts the typing indicator in personal chats. LINE allows 5-60s in steps of 5.
func (h *Handler) showLoading(log *logger.Logger, chat string, source webhook.SourceInterface) {
	la, ok := h.client.(loadingAnimator)
	if !ok || chat == "" || !isPersonalChat(source) {
		return
	}
	if _, err := la.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chat,
		LoadingSeconds: 20,
	}); err != nil {
		log.WithError(err).Warn("Failed to show loading animation")
	}
}

// eventMeta extracts the routing fields of supported events.
func eventMeta(event webhook.EventInterface) (eventID, replyToken string, source webhook.SourceInterface, redelivery bool) {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.WebhookEventId, e.ReplyToken, e.Source, e.DeliveryContext != nil && e.DeliveryContext.IsRedelivery
	case webhook.FollowEvent:
		return e.WebhookEventId, e.ReplyToken, e.Source, e.DeliveryContext != nil && e.DeliveryContext.IsRedelivery
	}
	return "", "", nil, false
}

// Shutdown waits for all async event processing to complete.
// It returns an error if the context is canceled before completion.
func (h *Handler) Shutdown(ctx context.Context) error {
	c := make(chan struct{})
	go func() {
		defer close(c)
		h.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
