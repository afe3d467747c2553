package app

import (
	"time"

	"github.com/garyellow/wxbot-go/internal/ctxutil"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDHeaders are checked in order for an upstream request ID.
var requestIDHeaders = []string{"X-Request-Id", "X-Correlation-Id"}

// securityHeadersMiddleware adds security headers to responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Next()
	}
}

// requestID returns the upstream request ID or a fresh UUID.
func requestID(c *gin.Context) string {
	for _, h := range requestIDHeaders {
		if id := c.GetHeader(h); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// loggingMiddleware tags the request context with a request ID and logs the
// result: 5xx=Error, other 4xx=Warn, everything else=Debug.
func loggingMiddleware(log *logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		id := requestID(c)
		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), id))
		c.Header("X-Request-Id", id)

		c.Next()

		status := c.Writer.Status()
		// Telegram's webhook path carries the bot token.
		if route := c.FullPath(); route != "" {
			path = route
		}
		entry := log.WithRequestID(id).
			WithField("http_method", method).
			WithField("http_path", path).
			WithField("http_status", status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("client_ip", c.ClientIP())

		switch {
		case status >= 500:
			entry.Error("HTTP request failed")
			if m != nil {
				m.RecordHTTPError("server_error", "http")
			}
		case status >= 400 && status != 404:
			entry.Warn("HTTP request rejected")
		default:
			entry.Debug("HTTP request completed")
		}
	}
}
