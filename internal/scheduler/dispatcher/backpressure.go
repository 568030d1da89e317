package dispatcher

import (
	"context"
	"sync/atomic"
	"time"

	pkgredis "github.com/adsync-ai/adsync/internal/pkg/redis"
	"github.com/rs/zerolog/log"
)

// BackpressureMonitor pauses dispatch when the broker queue backs up, and
// resumes once the depth falls below half the bound.
type BackpressureMonitor struct {
	redis         *pkgredis.Client
	queueKey      string
	maxDepth      int64
	checkInterval time.Duration
	currentDepth  atomic.Int64
	isPaused      atomic.Bool
	onDepth       func(int64)
}

func NewBackpressureMonitor(redis *pkgredis.Client, queueKey string, maxDepth int64) *BackpressureMonitor {
	return &BackpressureMonitor{
		redis:         redis,
		queueKey:      queueKey,
		maxDepth:      maxDepth,
		checkInterval: 5 * time.Second,
	}
}

// OnDepth registers a callback invoked with the observed queue depth on
// every check. Set it before Start.
func (m *BackpressureMonitor) OnDepth(fn func(int64)) {
	m.onDepth = fn
}

func (m *BackpressureMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *BackpressureMonitor) check(ctx context.Context) {
	depth, err := m.redis.LLen(ctx, m.queueKey).Result()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to check queue depth")
		return
	}

	m.currentDepth.Store(depth)
	if m.onDepth != nil {
		m.onDepth(depth)
	}

	wasPaused := m.isPaused.Load()

	if depth >= m.maxDepth {
		if !wasPaused {
			m.isPaused.Store(true)
			log.Warn().
				Int64("depth", depth).
				Int64("max", m.maxDepth).
				Msg("Backpressure: pausing dispatch")
		}
	} else if depth < m.maxDepth/2 {
		if wasPaused {
			m.isPaused.Store(false)
			log.Info().
				Int64("depth", depth).
				Msg("Backpressure: resuming dispatch")
		}
	}
}

func (m *BackpressureMonitor) ShouldPause() bool {
	return m.isPaused.Load()
}

func (m *BackpressureMonitor) QueueDepth() int64 {
	return m.currentDepth.Load()
}
