// Package dedupe short-circuits webhook redeliveries that were already handled.
//
// The tracker is an optimization only: the store rejects duplicate message
// ids on its own, so a lost or failed mark never duplicates a message.
package dedupe

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Tracker remembers provider message ids that completed the pipeline.
type Tracker interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	Mark(ctx context.Context, messageID string) error
}

const keyPrefix = "inbox:webhook:processed:"

// RedisTracker stores processed ids as expiring Redis keys.
type RedisTracker struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisTracker connects to addr and verifies the connection.
func NewRedisTracker(ctx context.Context, addr string, ttl time.Duration) (*RedisTracker, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisTracker{rdb: rdb, ttl: ttl}, nil
}

// Seen reports whether messageID was marked within the TTL.
func (t *RedisTracker) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := t.rdb.Exists(ctx, keyPrefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Mark records messageID as processed.
func (t *RedisTracker) Mark(ctx context.Context, messageID string) error {
	if err := t.rdb.Set(ctx, keyPrefix+messageID, time.Now().UTC().Format(time.RFC3339), t.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (t *RedisTracker) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (t *RedisTracker) Close() error {
	return t.rdb.Close()
}

// Nop is used when no Redis is configured. It never reports a message as seen.
type Nop struct{}

func (Nop) Seen(context.Context, string) (bool, error) { return false, nil }
func (Nop) Mark(context.Context, string) error         { return nil }
