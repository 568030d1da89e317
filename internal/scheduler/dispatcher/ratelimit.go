package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgredis "github.com/adsync-ai/adsync/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// SlidingWindowLimiter implements sliding window rate limiting over Redis.
type SlidingWindowLimiter struct {
	redis      *pkgredis.Client
	keyPrefix  string
	limit      int
	windowSize time.Duration
}

func NewSlidingWindowLimiter(redis *pkgredis.Client, keyPrefix string, limit int, windowSize time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:      redis,
		keyPrefix:  keyPrefix,
		limit:      limit,
		windowSize: windowSize,
	}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) bool {
	fullKey := l.keyPrefix + ":" + key
	now := time.Now()
	windowStart := now.Add(-l.windowSize)

	pipe := l.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, fullKey, "-inf", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, fullKey)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return true // Allow on error
	}

	if int(countCmd.Val()) >= l.limit {
		return false
	}

	pipe = l.redis.Pipeline()
	pipe.ZAdd(ctx, fullKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, fullKey, l.windowSize*2)
	_, _ = pipe.Exec(ctx)

	return true
}

// LocalLimiter is an in-memory token bucket limiter, used when Redis is not
// wired (single-instance deployments, tests). Each key gets its own bucket
// refilled at limit events per window.
type LocalLimiter struct {
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

func NewLocalLimiter(limit int, windowSize time.Duration) *LocalLimiter {
	return &LocalLimiter{
		limit:    rate.Limit(float64(limit) / windowSize.Seconds()),
		burst:    limit,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}
