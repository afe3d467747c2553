package storage

import (
	"context"
	"fmt"

	"github.com/garyellow/wxbot-go/internal/config"
)

// Open creates the location store selected by cfg.LocationStore.
func Open(ctx context.Context, cfg *config.Config) (LocationStore, error) {
	switch cfg.LocationStore {
	case config.StoreRedis:
		return NewRedisStore(ctx, cfg.RedisURL, cfg.LocationTTL)
	case config.StoreSQLite, "":
		return New(ctx, cfg.SQLitePath(), Options{
			TTL:        cfg.LocationTTL,
			MaxEntries: cfg.LocationMaxEntries,
		})
	default:
		return nil, fmt.Errorf("unknown location store %q", cfg.LocationStore)
	}
}
