package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyellow/wxbot-go/internal/geo"
)

// SaveLastLocation upserts the location and evicts the oldest entries beyond MaxEntries.
func (db *DB) SaveLastLocation(ctx context.Context, key string, coord geo.Coordinate) error {
	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO last_locations (user_key, latitude, longitude, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_key) DO UPDATE SET
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, key, coord.Latitude, coord.Longitude, db.now().Unix()); err != nil {
		return fmt.Errorf("failed to save location: %w", err)
	}

	if db.maxEntries > 0 {
		// Ties on updated_at are broken by rowid so the newest insert survives.
		evict := `
		DELETE FROM last_locations WHERE rowid IN (
			SELECT rowid FROM last_locations
			ORDER BY updated_at DESC, rowid DESC
			LIMIT -1 OFFSET ?
		)
		`
		if _, err := tx.ExecContext(ctx, evict, db.maxEntries); err != nil {
			return fmt.Errorf("failed to evict locations: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit location: %w", err)
	}
	return nil
}

// GetLastLocation returns the user's last location if present and not expired.
func (db *DB) GetLastLocation(ctx context.Context, key string) (geo.Coordinate, bool, error) {
	query := `SELECT latitude, longitude FROM last_locations WHERE user_key = ? AND updated_at > ?`

	var lat, lon float64
	err := db.reader.QueryRowContext(ctx, query, key, db.ttlCutoff()).Scan(&lat, &lon)
	if errors.Is(err, sql.ErrNoRows) {
		return geo.Coordinate{}, false, nil
	}
	if err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("failed to get location: %w", err)
	}

	coord, err := geo.NewCoordinate(lat, lon)
	if err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("stored location for %s: %w", key, err)
	}
	return coord, true, nil
}

// DeleteExpired removes entries older than the TTL.
func (db *DB) DeleteExpired(ctx context.Context) (int64, error) {
	if db.ttl <= 0 {
		return 0, nil
	}

	result, err := db.writer.ExecContext(ctx, "DELETE FROM last_locations WHERE updated_at <= ?", db.ttlCutoff())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired locations: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of stored entries.
func (db *DB) Count(ctx context.Context) (int, error) {
	var count int
	if err := db.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM last_locations").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count locations: %w", err)
	}
	return count, nil
}
