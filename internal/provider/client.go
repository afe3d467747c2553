// Package provider is the shared HTTP plumbing for external lookup services
// (reverse geocoder, weather). It performs single GET requests with a JSON
// response, classifies failures and records metrics. It never retries.
package provider

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/garyellow/wxbot-go/internal/config"
	"github.com/garyellow/wxbot-go/internal/errors"
	"github.com/garyellow/wxbot-go/internal/metrics"
	"github.com/garyellow/wxbot-go/internal/ratelimit"
)

// maxBodyBytes caps provider responses; real payloads are a few KB.
const maxBodyBytes = 1 << 20

// Metric status labels.
const (
	StatusSuccess      = "success"
	StatusError        = "error"
	StatusTimeout      = "timeout"
	StatusPayloadError = "payload_error"
)

// Validator is implemented by response payloads that carry their own
// success indicator (e.g. OpenWeatherMap's "cod" field).
type Validator interface {
	Validate() error
}

// Options configures a Client.
type Options struct {
	Name      string // Provider name for errors and metrics (e.g., "geocoder")
	Timeout   time.Duration
	UserAgent string
	Limiter   *ratelimit.Limiter // Optional outbound rate limit
	Metrics   *metrics.Metrics   // Optional
}

// Client performs JSON GET requests against one provider.
type Client struct {
	name       string
	httpClient *http.Client
	userAgent  string
	limiter    *ratelimit.Limiter
	metrics    *metrics.Metrics
}

// New creates a provider client with pooled connections.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = config.LookupTimeout
	}
	return &Client{
		name: opts.Name,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: config.ProviderDialTimeout,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     config.ProviderIdleConnTimeout,
			},
		},
		userAgent: opts.UserAgent,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// GetJSON issues one GET to endpoint with params and decodes the body into out.
// Any failure is returned as *errors.ProviderError (wrapping ErrLookupUnavailable):
// transport errors, timeouts, non-2xx statuses, invalid JSON, and payloads whose
// Validate method fails.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	start := time.Now()

	statusCode, err := c.do(ctx, endpoint, params, out)
	status := classify(err)
	if c.metrics != nil {
		c.metrics.RecordProviderRequest(c.name, status, time.Since(start).Seconds())
	}
	if err != nil {
		return errors.NewProviderError(c.name, statusCode, err)
	}
	return nil
}

type payloadError struct{ err error }

func (e *payloadError) Error() string { return e.err.Error() }
func (e *payloadError) Unwrap() error { return e.err }

func (c *Client) do(ctx context.Context, endpoint string, params url.Values, out any) (int, error) {
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("waiting for rate limiter: %w", err)
		}
		if c.metrics != nil {
			c.metrics.RecordRateLimiterWait(c.name, time.Since(waitStart).Seconds())
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("parse endpoint: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, &payloadError{fmt.Errorf("decode body: %w", err)}
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return resp.StatusCode, &payloadError{err}
		}
	}
	return resp.StatusCode, nil
}

func classify(err error) string {
	if err == nil {
		return StatusSuccess
	}
	var pe *payloadError
	if stderrors.As(err, &pe) {
		return StatusPayloadError
	}
	if IsTimeout(err) {
		return StatusTimeout
	}
	return StatusError
}

// IsTimeout reports whether err came from a deadline or a network timeout.
func IsTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
