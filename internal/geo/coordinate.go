// Package geo defines the validated coordinate value shared by every lookup.
package geo

import (
	"fmt"
	"math"
	"strconv"

	"github.com/garyellow/wxbot-go/internal/errors"
)

// Coordinate is a validated WGS84 point. Construct it with NewCoordinate.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// NewCoordinate validates lat/lon and returns the coordinate.
// The returned error wraps errors.ErrInvalidCoordinate.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	if err := checkRange("latitude", lat, 90); err != nil {
		return Coordinate{}, err
	}
	if err := checkRange("longitude", lon, 180); err != nil {
		return Coordinate{}, err
	}
	return Coordinate{Latitude: lat, Longitude: lon}, nil
}

func checkRange(field string, v, limit float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.NewValidationError(field, "must be a finite number")
	}
	if math.Abs(v) > limit {
		return errors.NewValidationError(field, fmt.Sprintf("%s outside [-%g, %g]", strconv.FormatFloat(v, 'f', -1, 64), limit, limit))
	}
	return nil
}

// String renders the coordinate as "lat,lon" with 5 decimals (about 1 m).
func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Latitude, c.Longitude)
}

// Key returns a coarser "lat,lon" form (4 decimals, about 11 m) for
// deduplicating concurrent lookups of the same place.
func (c Coordinate) Key() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

// Query formats lat and lon for provider query strings.
func (c Coordinate) Query() (lat, lon string) {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64), strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}
