package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/adsync-ai/adsync/internal/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Client struct {
	*redis.Client
}

func NewClient(cfg *config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr()).Msg("Redis connected successfully")

	return &Client{client}, nil
}

// Rate limiting
func (c *Client) RateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	pipe := c.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, err
	}

	count := int(incr.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= limit, remaining, nil
}

// Distributed lock primitives. Every mutating operation is conditioned on
// the caller's token still matching the stored value; there is no
// unconditional delete or extend.

func (c *Client) SetIfAbsent(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, key, token, ttl).Result()
}

var compareAndExtendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// CompareAndExtend atomically verifies ownership and refreshes the TTL in a
// single server-side round trip.
func (c *Client) CompareAndExtend(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	result, err := compareAndExtendScript.Run(ctx, c.Client, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

var compareAndDeleteScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// CompareAndDelete atomically verifies ownership and deletes the key.
func (c *Client) CompareAndDelete(ctx context.Context, key, token string) (bool, error) {
	result, err := compareAndDeleteScript.Run(ctx, c.Client, []string{key}, token).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}
