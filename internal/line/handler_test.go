package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/garyellow/wxbot-go/internal/bot"
	"github.com/garyellow/wxbot-go/internal/config"
	"github.com/garyellow/wxbot-go/internal/lineutil"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_channel_secret"

type fakeClient struct {
	mu      sync.Mutex
	replies []*messaging_api.ReplyMessageRequest
	pushes  []*messaging_api.PushMessageRequest
	keys    []string
}

func (f *fakeClient) ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, req)
	return &messaging_api.ReplyMessageResponse{}, nil
}

func (f *fakeClient) PushMessage(req *messaging_api.PushMessageRequest, key string) (*messaging_api.PushMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, req)
	f.keys = append(f.keys, key)
	return &messaging_api.PushMessageResponse{}, nil
}

type call struct {
	cmd      bot.Command
	lat, lon float64
	ev       bot.Event
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeProcessor) Dispatch(_ context.Context, ev bot.Event, cmd bot.Command) bot.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, call{cmd: cmd, ev: ev})
	f.mu.Unlock()
	return bot.Outcome{Replies: []bot.Reply{{Text: "hello " + string(cmd), LocationButton: "Send location"}}}
}

func (f *fakeProcessor) Location(_ context.Context, ev bot.Event, lat, lon float64) bot.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, call{cmd: "location", ev: ev, lat: lat, lon: lon})
	f.mu.Unlock()
	return bot.Outcome{
		Replies: []bot.Reply{{Text: "report", ImageURL: "https://maps.example/map.png", RemoveKeyboard: true}},
		Mirror:  []bot.Reply{{Text: "mirror", ImageURL: "https://maps.example/map.png"}},
	}
}

func setupHandler(t *testing.T, operator string) (*Handler, *fakeClient, *fakeProcessor) {
	t.Helper()
	client := &fakeClient{}
	proc := &fakeProcessor{}
	h, err := NewHandler(HandlerConfig{
		ChannelSecret: testSecret,
		Client:        client,
		OperatorID:    operator,
		BotConfig: &config.BotConfig{
			GlobalRateRPS:       100,
			MaxMessagesPerReply: 5,
			MaxEventsPerWebhook: 100,
		},
		Metrics:   metrics.New(prometheus.NewRegistry()),
		Logger:    logger.NewWithWriter("error", &bytes.Buffer{}),
		Processor: proc,
	})
	require.NoError(t, err)
	return h, client, proc
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func post(t *testing.T, h *Handler, body []byte, signature string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook/line", h.Handle)

	req := httptest.NewRequest(http.MethodPost, "/webhook/line", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", signature)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
	return w.Code
}

func TestNewHandler_RequiresSecret(t *testing.T) {
	t.Parallel()
	_, err := NewHandler(HandlerConfig{
		Client:    &fakeClient{},
		Processor: &fakeProcessor{},
		BotConfig: &config.BotConfig{},
		Logger:    logger.NewWithWriter("error", &bytes.Buffer{}),
	})
	assert.Error(t, err)
}

func TestNewHandler_NilBotConfigUsesDefaults(t *testing.T) {
	t.Parallel()
	h, err := NewHandler(HandlerConfig{
		ChannelSecret: testSecret,
		Client:        &fakeClient{},
		Processor:     &fakeProcessor{},
		Logger:        logger.NewWithWriter("error", &bytes.Buffer{}),
	})
	require.NoError(t, err)
	assert.Equal(t, lineutil.MaxMessagesPerReply, h.maxMessagesPerReply)
	assert.Zero(t, h.maxEventsPerWebhook)
	assert.NotNil(t, h.rateLimiter)
}

func TestHandle_InvalidSignature(t *testing.T) {
	t.Parallel()
	h, client, _ := setupHandler(t, "")

	code := post(t, h, []byte(`{"destination":"U0","events":[]}`), "invalid_signature")

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Empty(t, client.replies)
}

func TestHandle_LocationMessage(t *testing.T) {
	t.Parallel()
	h, client, proc := setupHandler(t, "Uoperator")

	body := []byte(`{"destination":"U0","events":[{
		"type":"message","mode":"active","timestamp":1700000000000,
		"webhookEventId":"01HEVENT","deliveryContext":{"isRedelivery":false},
		"replyToken":"reply-token-1",
		"source":{"type":"user","userId":"U123"},
		"message":{"type":"location","id":"1","title":"here","address":"Chisinau","latitude":47.0245,"longitude":28.8323}
	}]}`)

	require.Equal(t, http.StatusOK, post(t, h, body, sign(body)))

	require.Len(t, proc.calls, 1)
	assert.Equal(t, bot.Command("location"), proc.calls[0].cmd)
	assert.InDelta(t, 47.0245, proc.calls[0].lat, 1e-9)
	assert.InDelta(t, 28.8323, proc.calls[0].lon, 1e-9)
	assert.Equal(t, "U123", proc.calls[0].ev.UserID)
	assert.Equal(t, bot.PlatformLine, proc.calls[0].ev.Platform)

	require.Len(t, client.replies, 1)
	reply := client.replies[0]
	assert.Equal(t, "reply-token-1", reply.ReplyToken)
	require.Len(t, reply.Messages, 2)
	img, ok := reply.Messages[0].(*messaging_api.ImageMessage)
	require.True(t, ok, "image goes first")
	assert.Equal(t, "https://maps.example/map.png", img.OriginalContentUrl)
	assert.Equal(t, img.OriginalContentUrl, img.PreviewImageUrl)
	text, ok := reply.Messages[1].(*messaging_api.TextMessage)
	require.True(t, ok)
	assert.Equal(t, "report", text.Text)

	require.Len(t, client.pushes, 1)
	assert.Equal(t, "Uoperator", client.pushes[0].To)
	assert.Len(t, client.pushes[0].Messages, 2)
	assert.NotEmpty(t, client.keys[0])
}

func TestHandle_NoOperatorNoMirror(t *testing.T) {
	t.Parallel()
	h, client, _ := setupHandler(t, "")

	body := []byte(`{"destination":"U0","events":[{
		"type":"message","mode":"active","timestamp":1,"webhookEventId":"e1",
		"replyToken":"rt","source":{"type":"user","userId":"U1"},
		"message":{"type":"location","id":"1","latitude":1.5,"longitude":2.5}
	}]}`)
	require.Equal(t, http.StatusOK, post(t, h, body, sign(body)))

	assert.Len(t, client.replies, 1)
	assert.Empty(t, client.pushes)
}

func TestHandle_TextRouting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		source  string
		text    string
		wantCmd bot.Command
		called  bool
	}{
		{"start in personal chat", `{"type":"user","userId":"U1"}`, "/start", bot.CommandStart, true},
		{"forecast in group", `{"type":"group","groupId":"G1","userId":"U1"}`, "/forecast", bot.CommandForecast, true},
		{"free text in personal chat", `{"type":"user","userId":"U1"}`, "what's up", bot.CommandUnknown, true},
		{"free text in group is ignored", `{"type":"group","groupId":"G1","userId":"U1"}`, "what's up", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, client, proc := setupHandler(t, "")

			body := []byte(`{"destination":"U0","events":[{
				"type":"message","mode":"active","timestamp":1,"webhookEventId":"e1",
				"replyToken":"rt","source":` + tt.source + `,
				"message":{"type":"text","id":"1","text":"` + tt.text + `","quoteToken":"q"}
			}]}`)
			require.Equal(t, http.StatusOK, post(t, h, body, sign(body)))

			if !tt.called {
				assert.Empty(t, proc.calls)
				assert.Empty(t, client.replies)
				return
			}
			require.Len(t, proc.calls, 1)
			assert.Equal(t, tt.wantCmd, proc.calls[0].cmd)
			require.Len(t, client.replies, 1)

			msg, ok := client.replies[0].Messages[0].(*messaging_api.TextMessage)
			require.True(t, ok)
			require.NotNil(t, msg.QuickReply, "location button becomes a quick reply")
			_, isLocation := msg.QuickReply.Items[0].Action.(*messaging_api.LocationAction)
			assert.True(t, isLocation)
		})
	}
}

func TestHandle_FollowStarts(t *testing.T) {
	t.Parallel()
	h, client, proc := setupHandler(t, "")

	body := []byte(`{"destination":"U0","events":[{
		"type":"follow","mode":"active","timestamp":1,"webhookEventId":"e1",
		"replyToken":"rt","source":{"type":"user","userId":"U1"},"follow":{"isUnblocked":false}
	}]}`)
	require.Equal(t, http.StatusOK, post(t, h, body, sign(body)))

	require.Len(t, proc.calls, 1)
	assert.Equal(t, bot.CommandStart, proc.calls[0].cmd)
	assert.Len(t, client.replies, 1)
}

func TestBuildMessages_TruncatesAndSkipsPlainHTTP(t *testing.T) {
	t.Parallel()
	h, _, _ := setupHandler(t, "")

	msgs := h.buildMessages([]bot.Reply{{Text: "a", ImageURL: "http://insecure/map.png"}})
	require.Len(t, msgs, 1)
	_, ok := msgs[0].(*messaging_api.TextMessage)
	assert.True(t, ok)

	var many []bot.Reply
	for range 8 {
		many = append(many, bot.Reply{Text: "x"})
	}
	assert.Len(t, h.buildMessages(many), 5)
}

func TestHandlerShutdown(t *testing.T) {
	t.Parallel()
	h, _, _ := setupHandler(t, "")

	ctx := context.Background()
	assert.NoError(t, h.Shutdown(ctx))
	assert.NoError(t, h.Shutdown(ctx))
}
