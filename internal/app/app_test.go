package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/garyellow/wxbot-go/internal/config"
	"github.com/garyellow/wxbot-go/internal/geo"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/metrics"
	"github.com/garyellow/wxbot-go/internal/storage"
	"github.com/garyellow/wxbot-go/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTelegramAPI struct{}

func (stubTelegramAPI) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	return tgbotapi.Message{}, nil
}

func (stubTelegramAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (stubTelegramAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (stubTelegramAPI) StopReceivingUpdates() {}

func init() {
	newTelegramAPI = func(string) (telegram.API, error) { return stubTelegramAPI{}, nil }
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		OpenWeatherAPIKey:  "test-key",
		OpenWeatherBaseURL: "http://127.0.0.1:1",
		GeocoderURL:        "http://127.0.0.1:1/reverse",
		GeocoderUserAgent:  "wxbot-go-test",
		GeocoderRPS:        1,
		LookupTimeout:      time.Second,
		DefaultLanguage:    "en",
		LineChannelToken:   "line-token",
		LineChannelSecret:  "line-secret",
		TelegramToken:      "123:abc",
		TelegramMode:       config.TelegramWebhook,
		TelegramWebhookURL: "https://bot.example.com",
		MetricsUsername:    "prometheus",
		MetricsPassword:    "secret",
		Port:               "0",
		LogLevel:           "error",
		ShutdownTimeout:    time.Second,
		LocationStore:      config.StoreSQLite,
		DataDir:            t.TempDir(),
		LocationTTL:        time.Hour,
		LocationMaxEntries: 100,
		Bot: config.BotConfig{
			WebhookTimeout:      5 * time.Second,
			UserRateBurst:       5,
			UserRateRefill:      1,
			GlobalRateRPS:       10,
			MaxMessagesPerReply: 5,
			MaxEventsPerWebhook: 100,
		},
	}
}

// setupTestApp wires an Application without opening the network.
func setupTestApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()

	store, err := storage.Open(context.Background(), cfg)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	app, err := build(cfg, logger.NewWithWriter("error", &bytes.Buffer{}), store, registry, metrics.New(registry))
	require.NoError(t, err)
	t.Cleanup(func() {
		app.userLimiter.Stop()
		_ = store.Close()
	})
	return app
}

func serve(app *Application, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func TestLivenessCheck(t *testing.T) {
	app := setupTestApp(t, testConfig(t))

	w := serve(app, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	app := setupTestApp(t, testConfig(t))

	w := serve(app, http.MethodGet, "/livez", http.Header{"X-Request-Id": {"abc-123"}})
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
}

func TestReadinessCheck(t *testing.T) {
	cfg := testConfig(t)
	app := setupTestApp(t, cfg)
	require.NoError(t, app.store.SaveLastLocation(context.Background(), "line:U1", geo.Coordinate{Latitude: 1, Longitude: 2}))

	w := serve(app, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "sqlite", body["store"])
	assert.EqualValues(t, 1, body["locations"])
	assert.ElementsMatch(t, []any{"line", "telegram"}, body["platforms"])
}

func TestReadinessCheck_StoreClosed(t *testing.T) {
	app := setupTestApp(t, testConfig(t))
	require.NoError(t, app.store.Close())

	w := serve(app, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRootRedirects(t *testing.T) {
	app := setupTestApp(t, testConfig(t))

	w := serve(app, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, projectURL, w.Header().Get("Location"))
}

func TestWebhookRoutes(t *testing.T) {
	app := setupTestApp(t, testConfig(t))

	// Unsigned LINE request reaches the handler and fails signature check.
	w := serve(app, http.MethodPost, "/webhook/line", http.Header{"X-Line-Signature": {"bad"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(app, http.MethodPost, "/webhook/telegram/wrong", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(app, http.MethodPost, "/webhook/telegram/123:abc", http.Header{"Content-Type": {"application/json"}})
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, app.telegramBot.Shutdown(context.Background()))
}

func TestWebhookRoutes_PlatformsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.LineChannelToken = ""
	cfg.LineChannelSecret = ""
	cfg.TelegramMode = config.TelegramPolling
	app := setupTestApp(t, cfg)

	assert.Nil(t, app.lineHandler)
	assert.NotNil(t, app.telegramBot)
	assert.Equal(t, http.StatusNotFound, serve(app, http.MethodPost, "/webhook/line", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(app, http.MethodPost, "/webhook/telegram/123:abc", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	app := setupTestApp(t, testConfig(t))

	assert.Equal(t, http.StatusUnauthorized, serve(app, http.MethodGet, "/metrics", nil).Code)

	w := serve(app, http.MethodGet, "/metrics", http.Header{"Authorization": {basic("prometheus", "secret")}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRunLocationCleanup(t *testing.T) {
	cfg := testConfig(t)
	cfg.LocationTTL = time.Nanosecond
	app := setupTestApp(t, cfg)
	ctx := context.Background()

	require.NoError(t, app.store.SaveLastLocation(ctx, "telegram:7", geo.Coordinate{Latitude: 1, Longitude: 2}))
	time.Sleep(2 * time.Millisecond)

	app.runLocationCleanup(ctx)
	n, err := app.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
