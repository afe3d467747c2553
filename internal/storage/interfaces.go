// Package storage persists each user's last shared location so that
// /forecast can be answered without a new location message.
// Entries expire after a TTL and the SQLite backend bounds the total count.
package storage

import (
	"context"

	"github.com/garyellow/wxbot-go/internal/geo"
)

// LocationStore defines last-location operations.
// Keys are "platform:userID" strings. Implementations are safe for concurrent use.
type LocationStore interface {
	// SaveLastLocation upserts the user's location and refreshes its expiry.
	SaveLastLocation(ctx context.Context, key string, coord geo.Coordinate) error
	// GetLastLocation returns the location, or ok=false if missing or expired.
	GetLastLocation(ctx context.Context, key string) (coord geo.Coordinate, ok bool, err error)
	// DeleteExpired purges expired entries and returns how many were removed.
	DeleteExpired(ctx context.Context) (int64, error)
	// Count returns the number of stored (possibly expired) entries.
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time interface checks.
var (
	_ LocationStore = (*DB)(nil)
	_ LocationStore = (*RedisStore)(nil)
)
