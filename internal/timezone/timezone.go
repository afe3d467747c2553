// Package timezone resolves the local time at a coordinate from an embedded
// time-zone polygon table.
package timezone

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // Zone rules for minimal container images

	"github.com/ringsaturn/tzf"

	"github.com/garyellow/wxbot-go/internal/geo"
)

// Finder maps a point to an IANA zone name. Implemented by tzf.F.
type Finder interface {
	GetTimezoneName(lng float64, lat float64) string
}

// Resolver returns local time for coordinates. Zones that cannot be found
// or loaded fall back to UTC, so a time is always produced.
type Resolver struct {
	finder Finder
	now    func() time.Time
	zones  sync.Map // zone name -> *time.Location
}

// NewResolver creates a resolver backed by tzf's embedded dataset.
func NewResolver() (*Resolver, error) {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, fmt.Errorf("load time zone data: %w", err)
	}
	return NewResolverWithFinder(finder, time.Now), nil
}

// NewResolverWithFinder creates a resolver with a custom finder and clock.
func NewResolverWithFinder(finder Finder, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{finder: finder, now: now}
}

// ZoneName returns the IANA zone name at coord, or "" if none is found.
func (r *Resolver) ZoneName(coord geo.Coordinate) string {
	if r.finder == nil {
		return ""
	}
	return r.finder.GetTimezoneName(coord.Longitude, coord.Latitude)
}

// Location returns the zone at coord, or UTC.
func (r *Resolver) Location(coord geo.Coordinate) *time.Location {
	name := r.ZoneName(coord)
	if name == "" {
		return time.UTC
	}
	if loc, ok := r.zones.Load(name); ok {
		return loc.(*time.Location)
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	r.zones.Store(name, loc)
	return loc
}

// Now returns the current instant in the zone at coord.
func (r *Resolver) Now(coord geo.Coordinate) time.Time {
	return r.now().In(r.Location(coord))
}
