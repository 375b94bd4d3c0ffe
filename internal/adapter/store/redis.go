package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/trace-alert-service/internal/domain"
)

// RedisStore keeps the coordinate under LocationKey in Redis.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: LocationKey}
}

// Load reads the stored coordinate.
func (s *RedisStore) Load(ctx context.Context) (domain.Coordinate, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Coordinate{}, false, nil
	}
	if err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	c, err := decode(data)
	if err != nil {
		return domain.Coordinate{}, false, err
	}
	return c, true, nil
}

// Save writes the coordinate without expiry.
func (s *RedisStore) Save(ctx context.Context, c domain.Coordinate) error {
	data, err := encode(c)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Clear deletes the stored coordinate.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", s.key, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
