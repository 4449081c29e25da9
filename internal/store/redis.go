package store

/*
greenlink — finds URLs and domains in source code and checks them for green hosting
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/x-stp/greenlink/internal/cache"
	"github.com/x-stp/greenlink/internal/metrics"
)

const (
	backendRedis = "redis"
	// maxUpdateAttempts bounds optimistic retries when another writer touches the key
	// between WATCH and EXEC.
	maxUpdateAttempts = 8
	// RedisKey is the key holding the blob.
	RedisKey = "greenlink:" + cache.StorageKey
)

// Connect builds a Redis client from a redis:// URL or a plain host:port.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	if redisURL == "" {
		return nil, errors.New("redis address is empty")
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisStore keeps the cache blob in a single Redis string.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: RedisKey}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Load returns nil, nil when the key does not exist.
func (s *RedisStore) Load(ctx context.Context) (data []byte, err error) {
	started := time.Now()
	defer func() { metrics.GetMetrics().RecordStoreOp(backendRedis, "load", started, err) }()

	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return raw, nil
}

// Save stores the blob without a TTL; entries expire individually on read.
func (s *RedisStore) Save(ctx context.Context, data []byte) (err error) {
	started := time.Now()
	defer func() { metrics.GetMetrics().RecordStoreOp(backendRedis, "save", started, err) }()

	if err = s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Update replaces the blob under WATCH, retrying when another client changed the key
// before the transaction committed.
func (s *RedisStore) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) (err error) {
	started := time.Now()
	defer func() { metrics.GetMetrics().RecordStoreOp(backendRedis, "update", started, err) }()

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, s.key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis get %s: %w", s.key, err)
		}
		data, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err = s.client.Watch(ctx, txf, s.key)
		if !errors.Is(err, redis.TxFailedErr) {
			if err != nil {
				return fmt.Errorf("redis update %s: %w", s.key, err)
			}
			return nil
		}
	}
	return fmt.Errorf("redis update %s: gave up after %d attempts: %w", s.key, maxUpdateAttempts, err)
}

// Clear deletes the key.
func (s *RedisStore) Clear(ctx context.Context) (err error) {
	started := time.Now()
	defer func() { metrics.GetMetrics().RecordStoreOp(backendRedis, "clear", started, err) }()

	if err = s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", s.key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
