package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/garyellow/wxbot-go/internal/geo"
)

const redisKeyPrefix = "wxbot:location:"

// RedisStore keeps last locations as Redis hashes with native expiry.
// The entry bound is left to the server's maxmemory eviction policy.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects using a redis:// URL and verifies the connection.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// SaveLastLocation writes the hash and resets its expiry in one transaction.
func (s *RedisStore) SaveLastLocation(ctx context.Context, key string, coord geo.Coordinate) error {
	rkey := redisKeyPrefix + key
	values := map[string]any{
		"latitude":   strconv.FormatFloat(coord.Latitude, 'f', -1, 64),
		"longitude":  strconv.FormatFloat(coord.Longitude, 'f', -1, 64),
		"updated_at": time.Now().Unix(),
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, rkey, values)
		if s.ttl > 0 {
			pipe.Expire(ctx, rkey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save location: %w", err)
	}
	return nil
}

// GetLastLocation returns the stored location; expired keys are already gone.
func (s *RedisStore) GetLastLocation(ctx context.Context, key string) (geo.Coordinate, bool, error) {
	fields, err := s.client.HGetAll(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("redis get location: %w", err)
	}
	if len(fields) == 0 {
		return geo.Coordinate{}, false, nil
	}

	lat, err := strconv.ParseFloat(fields["latitude"], 64)
	if err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("redis location latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(fields["longitude"], 64)
	if err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("redis location longitude: %w", err)
	}

	coord, err := geo.NewCoordinate(lat, lon)
	if err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("stored location for %s: %w", key, err)
	}
	return coord, true, nil
}

// DeleteExpired is a no-op: Redis expires keys itself.
func (s *RedisStore) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

// Count scans the key prefix. Intended for periodic metrics, not hot paths.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 500).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
