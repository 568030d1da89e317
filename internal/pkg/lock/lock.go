package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store is the minimal atomic key-value contract a lock needs. All three
// operations must be atomic server-side; CompareAndExtend and
// CompareAndDelete must verify the token and mutate in a single round trip.
type Store interface {
	SetIfAbsent(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	CompareAndExtend(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, token string) (bool, error)
}

const (
	DefaultTTL           = 60 * time.Second
	DefaultRetryInterval = 250 * time.Millisecond
)

type Option func(*Lock)

func WithTTL(ttl time.Duration) Option {
	return func(l *Lock) { l.ttl = ttl }
}

func WithHeartbeatInterval(interval time.Duration) Option {
	return func(l *Lock) { l.heartbeatEvery = interval }
}

func WithRetryInterval(interval time.Duration) Option {
	return func(l *Lock) { l.retryEvery = interval }
}

// Lock is a named mutual-exclusion token held in a shared store. Ownership
// is identified by an opaque token unique to this holder; a heartbeat
// goroutine extends the TTL while held. If the heartbeat ever finds the key
// no longer carries this holder's token, the lock transitions to lost and
// the heartbeat stops without attempting reacquisition.
type Lock struct {
	store Store
	key   string
	token string

	ttl            time.Duration
	heartbeatEvery time.Duration
	retryEvery     time.Duration

	held atomic.Bool
	lost atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(store Store, key string, opts ...Option) *Lock {
	l := &Lock{
		store:      store,
		key:        key,
		token:      uuid.New().String(),
		ttl:        DefaultTTL,
		retryEvery: DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.heartbeatEvery <= 0 {
		l.heartbeatEvery = l.ttl / 3
	}
	if l.heartbeatEvery >= l.ttl {
		adjusted := l.ttl / 2
		log.Warn().
			Str("key", l.key).
			Dur("heartbeat", l.heartbeatEvery).
			Dur("ttl", l.ttl).
			Dur("adjusted", adjusted).
			Msg("Lock heartbeat interval >= TTL, adjusting down")
		l.heartbeatEvery = adjusted
	}
	return l
}

// Acquire attempts a set-if-absent with expiry, retrying with a fixed
// backoff until timeout elapses. On success the heartbeat starts and
// held=true is returned. Never blocks past the timeout.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		acquired, err := l.store.SetIfAbsent(ctx, l.key, l.token, l.ttl)
		if err != nil {
			return false, err
		}
		if acquired {
			l.held.Store(true)
			l.lost.Store(false)
			l.startHeartbeat()
			log.Debug().Str("key", l.key).Msg("Lock acquired")
			return true, nil
		}

		if time.Now().Add(l.retryEvery).After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(l.retryEvery):
		}
	}
}

// TryAcquire is a single non-blocking acquisition attempt.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	acquired, err := l.store.SetIfAbsent(ctx, l.key, l.token, l.ttl)
	if err != nil || !acquired {
		return false, err
	}
	l.held.Store(true)
	l.lost.Store(false)
	l.startHeartbeat()
	return true, nil
}

func (l *Lock) startHeartbeat() {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go l.heartbeatLoop(ctx, done)
}

func (l *Lock) heartbeatLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			extended, err := l.store.CompareAndExtend(ctx, l.key, l.token, l.ttl)
			if err != nil {
				// Transient store error: ownership is unknown, keep trying
				// until the TTL decides.
				log.Warn().Err(err).Str("key", l.key).Msg("Lock heartbeat failed")
				continue
			}
			if !extended {
				log.Warn().Str("key", l.key).Msg("Lock ownership lost")
				l.lost.Store(true)
				l.held.Store(false)
				return
			}
		}
	}
}

func (l *Lock) stopHeartbeat() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Release stops the heartbeat and deletes the key only if this holder still
// owns it. Returns false when the lock had already expired or been taken by
// another holder; that is a no-op, not an error.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	l.stopHeartbeat()

	if !l.held.Load() {
		return false, nil
	}
	l.held.Store(false)

	released, err := l.store.CompareAndDelete(ctx, l.key, l.token)
	if err != nil {
		return false, err
	}
	if released {
		log.Debug().Str("key", l.key).Msg("Lock released")
	}
	return released, nil
}

// ForceStop halts the heartbeat without touching the underlying key,
// leaving the lock to expire passively. Intended for fault injection in
// tests only.
func (l *Lock) ForceStop() {
	l.stopHeartbeat()
}

// Held reports whether this holder believes it currently owns the lock.
// Business logic must check Lost cooperatively before continuing
// privileged work.
func (l *Lock) Held() bool {
	return l.held.Load()
}

// Lost reports whether a heartbeat discovered that ownership was taken
// away (TTL expiry plus reacquisition by another holder).
func (l *Lock) Lost() bool {
	return l.lost.Load()
}

// Token exposes the owner token, for diagnostics.
func (l *Lock) Token() string {
	return l.token
}
