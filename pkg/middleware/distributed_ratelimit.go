package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// maxTxRetries bounds optimistic transaction retries on a contended key
const maxTxRetries = 8

// RedisStore shares rate limit records across instances. Each key expires
// with its window so stale identifiers do not accumulate.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

// Update runs fn inside a WATCH/MULTI transaction, retrying when another
// instance modified the key concurrently.
func (s *RedisStore) Update(ctx context.Context, key string, now time.Time, window time.Duration, fn UpdateFunc) (*RateLimitRecord, error) {
	redisKey := s.key(key)
	var result *RateLimitRecord

	txf := func(tx *redis.Tx) error {
		current, err := readRecord(ctx, tx, redisKey)
		if err != nil {
			return err
		}

		next, changed := fn(current)
		result = next
		if !changed {
			result = current
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, redisKey)
				return nil
			}
			data, err := json.Marshal(next)
			if err != nil {
				return err
			}
			ttl := window - now.Sub(next.WindowStart)
			if ttl <= 0 || ttl > window {
				ttl = window
			}
			pipe.Set(ctx, redisKey, data, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, txf, redisKey)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return nil, fmt.Errorf("redis error: %w", redis.TxFailedErr)
}

func readRecord(ctx context.Context, tx *redis.Tx, redisKey string) (*RateLimitRecord, error) {
	data, err := tx.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec RateLimitRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt entry is treated as absent and overwritten
		return nil, nil
	}
	return &rec, nil
}

// Delete removes one identifier
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.redis.Del(ctx, s.key(key)).Err()
}

// DeleteAll removes every key under this store's prefix
func (s *RedisStore) DeleteAll(ctx context.Context) error {
	iter := s.redis.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.redis.Del(ctx, keys...).Err()
}

// RedisStoreFactory names each limiter's keyspace under prefix
func RedisStoreFactory(redisClient *redis.Client, prefix string) StoreFactory {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return func(name string) RateLimitStore {
		return NewRedisStore(redisClient, prefix+":"+name)
	}
}
