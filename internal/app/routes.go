package app

import (
	"context"
	"net/http"

	"github.com/garyellow/wxbot-go/internal/config"
	"github.com/garyellow/wxbot-go/internal/sentry"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const projectURL = "https://github.com/garyellow/wxbot-go"

// setupRouter builds the gin engine with middleware and all routes.
func (a *Application) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if sentry.IsEnabled() {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(a.logger, a.metrics))

	router.GET("/", a.redirectToProject)
	router.HEAD("/", a.redirectToProject)
	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)

	if a.lineHandler != nil {
		router.POST("/webhook/line", a.lineHandler.Handle)
	}
	if a.telegramBot != nil && a.cfg.TelegramUsesWebhook() {
		router.POST("/webhook/telegram/:secret", a.telegramBot.Handle)
	}

	router.GET("/metrics",
		metricsAuthMiddleware(a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	return router
}

func (a *Application) redirectToProject(c *gin.Context) {
	c.Redirect(http.StatusTemporaryRedirect, projectURL)
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessCheck pings the location store and reports its size and the enabled platforms.
func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheckTimeout)
	defer cancel()

	if err := a.store.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: location store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "location store unavailable",
		})
		return
	}

	body := gin.H{
		"status":    "ready",
		"store":     a.cfg.LocationStore,
		"platforms": a.cfg.Platforms(),
	}
	if n, err := a.store.Count(ctx); err == nil {
		body["locations"] = n
	} else {
		a.logger.WithError(err).Warn("Failed to count locations for readiness")
	}
	c.JSON(http.StatusOK, body)
}
