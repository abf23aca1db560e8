// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/lessonmedia/internal/resource"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string // Redis server address (host:port)
	Password  string // Redis password (optional)
	DB        int    // Redis database number
	KeyPrefix string
}

// RedisStore is a Redis-backed DescriptorStore.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis descriptor store")

	return newRedisStoreWithClient(client, cfg.KeyPrefix, logger), nil
}

func newRedisStoreWithClient(client *redis.Client, prefix string, logger zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "lessonmedia"
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

// Load reads a descriptor. Missing keys return ErrStoreMiss.
func (s *RedisStore) Load(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	key := storeKey(s.prefix, kind, id)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStoreMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	d, err := decodeDescriptor(raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable descriptor")
		_ = s.client.Del(ctx, key).Err()
		return nil, ErrStoreMiss
	}
	return d, nil
}

// Save writes a descriptor with the given TTL. Non-positive TTLs are ignored.
func (s *RedisStore) Save(ctx context.Context, d resource.Descriptor, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	buf, err := encodeDescriptor(d)
	if err != nil {
		return err
	}
	key := storeKey(s.prefix, d.Kind, d.ID)
	if err := s.client.Set(ctx, key, buf, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes a descriptor.
func (s *RedisStore) Delete(ctx context.Context, kind resource.Kind, id string) error {
	return s.client.Del(ctx, storeKey(s.prefix, kind, id)).Err()
}

// Ping checks if Redis is available.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
