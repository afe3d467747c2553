// Package geocode resolves coordinates to human-readable addresses using the
// Nominatim reverse geocoding API.
package geocode

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/garyellow/wxbot-go/internal/geo"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/provider"
)

// ProviderName labels geocoder requests in logs and metrics.
const ProviderName = "geocoder"

// Address is the result of a reverse lookup. The zero value is "unavailable".
type Address struct {
	DisplayName string
	Available   bool
}

// Client is a Nominatim reverse geocoder.
type Client struct {
	http     *provider.Client
	endpoint string
	log      *logger.Logger
}

// NewClient creates a geocoder for endpoint (e.g. https://nominatim.openstreetmap.org/reverse).
// The provider client should carry the shared 1 req/s limiter and a User-Agent,
// both required by the Nominatim usage policy.
func NewClient(pc *provider.Client, endpoint string, log *logger.Logger) *Client {
	return &Client{
		http:     pc,
		endpoint: endpoint,
		log:      log.WithModule("geocode"),
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Validate implements provider.Validator.
func (r *reverseResponse) Validate() error {
	if r.Error != "" {
		return fmt.Errorf("nominatim: %s", r.Error)
	}
	if strings.TrimSpace(r.DisplayName) == "" {
		return fmt.Errorf("nominatim: empty display_name")
	}
	return nil
}

// ResolveAddress returns the address at c. languageHint is sent as accept-language.
// Failures are logged and yield Address{Available: false}; no error is returned.
func (c *Client) ResolveAddress(ctx context.Context, coord geo.Coordinate, languageHint string) Address {
	lat, lon := coord.Query()
	params := url.Values{
		"lat":    {lat},
		"lon":    {lon},
		"format": {"json"},
	}
	if languageHint != "" {
		params.Set("accept-language", languageHint)
	}

	var resp reverseResponse
	if err := c.http.GetJSON(ctx, c.endpoint, params, &resp); err != nil {
		c.log.WithError(err).WarnContext(ctx, "Reverse geocoding failed", "coordinate", coord.String())
		return Address{}
	}
	return Address{DisplayName: strings.TrimSpace(resp.DisplayName), Available: true}
}
