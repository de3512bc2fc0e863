// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements the [Cache] contract using go-redis.
//
// # Atomicity
//
// GETDEL gives single-command read-and-delete for token consumption; INCR
// gives lost-update-free counting for throttle counters. Both are the exact
// primitives the core's concurrency model relies on.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed [Cache].
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

/*
Get retrieves the raw value under key.

Returns:
  - []byte: Stored value
  - error: ErrCacheMiss when absent, connectivity errors otherwise
*/
func (cache *RedisCache) Get(context context.Context, key string) ([]byte, error) {
	value, err := cache.client.Get(context, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis_cache_get_failed: %w", err)
	}
	return value, nil
}

/*
Set stores value under key with the given TTL.

Returns:
  - error: Execution errors
*/
func (cache *RedisCache) Set(context context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.client.Set(context, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis_cache_set_failed: %w", err)
	}
	return nil
}

/*
Delete removes key. Deleting an absent key is not an error.

Returns:
  - error: Execution errors
*/
func (cache *RedisCache) Delete(context context.Context, key string) error {
	if err := cache.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_cache_delete_failed: %w", err)
	}
	return nil
}

/*
GetDel atomically retrieves and removes the value under key.

Description: Single-use token consumption hinges on this being ONE command;
a racing duplicate consumption observes ErrCacheMiss, never a second value.

Returns:
  - []byte: Stored value
  - error: ErrCacheMiss when absent, connectivity errors otherwise
*/
func (cache *RedisCache) GetDel(context context.Context, key string) ([]byte, error) {
	value, err := cache.client.GetDel(context, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis_cache_getdel_failed: %w", err)
	}
	return value, nil
}

/*
Incr atomically increments the counter under key.

Description: The TTL is armed only when the increment created the key, so the
throttle window starts at the first failure and the count naturally restarts
at 1 once the window lapses.

Returns:
  - int64: Post-increment counter value
  - error: Execution errors
*/
func (cache *RedisCache) Incr(context context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := cache.client.Incr(context, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis_cache_incr_failed: %w", err)
	}

	if count == 1 {
		if err := cache.client.Expire(context, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("redis_cache_incr_expire_failed: %w", err)
		}
	}

	return count, nil
}

/*
Expire replaces the TTL of an existing key.

Returns:
  - error: Execution errors
*/
func (cache *RedisCache) Expire(context context.Context, key string, ttl time.Duration) error {
	if err := cache.client.Expire(context, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis_cache_expire_failed: %w", err)
	}
	return nil
}
