package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// EntryTTL is optional. Zero means entries live until explicitly replaced
	// or deleted, which is the contract the snapshot keys rely on.
	EntryTTL time.Duration
}

// RedisStore is a distributed KeyValueStore backed by Redis. Values are
// stored as JSON.
type RedisStore[V any] struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	ttl         time.Duration
}

// NewRedisStore creates and connects a new RedisStore. It pings the Redis
// server to ensure connectivity before returning.
func NewRedisStore[V any](
	ctx context.Context,
	cfg *RedisConfig,
	logger zerolog.Logger,
) (*RedisStore[V], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisStore[V]{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
		ttl:         cfg.EntryTTL,
	}, nil
}

// Has reports whether a value is present for the key.
func (s *RedisStore[V]) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.redisClient.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed for key %s: %w", key, err)
	}
	return n > 0, nil
}

// Get retrieves and unmarshals the value for the key. A redis.Nil reply is a
// normal miss, not an error.
func (s *RedisStore[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	cachedData, err := s.redisClient.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}
	var value V
	if err := json.Unmarshal([]byte(cachedData), &value); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal cached data for key %s: %w", key, err)
	}
	return value, true, nil
}

// Set marshals the value to JSON and stores it, replacing any previous value.
func (s *RedisStore[V]) Set(ctx context.Context, key string, value V) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal data for key %s: %w", key, err)
	}
	if err := s.redisClient.Set(ctx, key, jsonData, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s in redis: %w", key, err)
	}
	return nil
}

// Delete removes the key from Redis.
func (s *RedisStore[V]) Delete(ctx context.Context, key string) error {
	if err := s.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed for key %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore[V]) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}
