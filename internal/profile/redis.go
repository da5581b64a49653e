package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBackend wraps failures of the cache backend.
var ErrBackend = errors.New("profile cache backend unavailable")

// RedisCache stores entries as JSON under "<prefix>:<accountID>" and the
// account's generation under "<prefix>:<accountID>:gen". The TTL bounds how
// long an entry can outlive a lost invalidation.
type RedisCache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache returns a Redis-backed Cache.
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "profile"
	}
	return &RedisCache{redis: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(accountID string) string {
	return c.prefix + ":" + accountID
}

func (c *RedisCache) genKey(accountID string) string {
	return c.key(accountID) + ":gen"
}

func (c *RedisCache) Get(ctx context.Context, accountID string) (Entry, bool, error) {
	data, err := c.redis.Get(ctx, c.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// A corrupt entry is as good as a miss; drop it so the next read repopulates.
		_ = c.redis.Del(ctx, c.key(accountID)).Err()
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (c *RedisCache) Generation(ctx context.Context, accountID string) (int64, error) {
	gen, err := c.redis.Get(ctx, c.genKey(accountID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return gen, nil
}

func (c *RedisCache) Put(ctx context.Context, accountID string, gen int64, entry Entry) (bool, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("encode profile entry: %w", err)
	}

	genKey := c.genKey(accountID)
	stored := false
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(accountID), data, c.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		stored = true
		return nil
	}, genKey)

	// An invalidation landed between WATCH and EXEC.
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return stored, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, accountID string) error {
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey(accountID))
		pipe.Del(ctx, c.key(accountID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}
