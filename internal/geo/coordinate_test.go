package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/wxbot-go/internal/errors"
)

func TestNewCoordinate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
		field   string
	}{
		{"chisinau", 47.0105, 28.8638, false, ""},
		{"origin", 0, 0, false, ""},
		{"north pole", 90, 0, false, ""},
		{"antimeridian", -45, -180, false, ""},
		{"latitude too high", 90.0001, 0, true, "latitude"},
		{"latitude too low", -91, 10, true, "latitude"},
		{"longitude too high", 10, 180.5, true, "longitude"},
		{"longitude too low", 10, -200, true, "longitude"},
		{"latitude NaN", math.NaN(), 0, true, "latitude"},
		{"longitude +Inf", 0, math.Inf(1), true, "longitude"},
		{"longitude -Inf", 0, math.Inf(-1), true, "longitude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := NewCoordinate(tt.lat, tt.lon)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.lat, c.Latitude)
				assert.Equal(t, tt.lon, c.Longitude)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.IsInvalidCoordinate(err))
			var verr *errors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, Coordinate{}, c)
		})
	}
}

func TestCoordinate_Formatting(t *testing.T) {
	t.Parallel()

	c, err := NewCoordinate(47.0105, 28.8638)
	require.NoError(t, err)

	assert.Equal(t, "47.01050,28.86380", c.String())
	assert.Equal(t, "47.0105,28.8638", c.Key())

	lat, lon := c.Query()
	assert.Equal(t, "47.0105", lat)
	assert.Equal(t, "28.8638", lon)
}

func TestCoordinate_KeyGroupsNearbyPoints(t *testing.T) {
	t.Parallel()

	a, _ := NewCoordinate(47.01051, 28.86381)
	b, _ := NewCoordinate(47.01049, 28.86379)
	assert.Equal(t, a.Key(), b.Key())
}
