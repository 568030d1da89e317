package leader

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/adsync-ai/adsync/internal/pkg/lock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Election elects a single active fire engine among scheduler replicas.
// Followers keep polling TryAcquire so a crashed leader is replaced within
// one TTL.
type Election struct {
	store    lock.Store
	key      string
	identity string
	ttl      time.Duration
	isLeader atomic.Bool
}

func NewElection(store lock.Store, key string, ttl time.Duration) *Election {
	return &Election{
		store:    store,
		key:      key,
		identity: uuid.New().String(),
		ttl:      ttl,
	}
}

func (e *Election) TryAcquire(ctx context.Context) (bool, error) {
	if e.isLeader.Load() {
		return true, nil
	}

	acquired, err := e.store.SetIfAbsent(ctx, e.key, e.identity, e.ttl)
	if err != nil {
		return false, err
	}

	if acquired {
		e.isLeader.Store(true)
		log.Info().
			Str("identity", e.identity).
			Str("key", e.key).
			Msg("Leadership acquired")
	}

	return acquired, nil
}

// Extend renews the leadership TTL. Returning false means leadership was
// lost; the caller must stop scanning before the next due pass.
func (e *Election) Extend(ctx context.Context) bool {
	if !e.isLeader.Load() {
		return false
	}

	extended, err := e.store.CompareAndExtend(ctx, e.key, e.identity, e.ttl)
	if err != nil {
		log.Error().Err(err).Msg("Failed to extend leadership")
		e.isLeader.Store(false)
		return false
	}

	if !extended {
		log.Warn().Str("identity", e.identity).Msg("Lost leadership, lock expired or taken over")
		e.isLeader.Store(false)
		return false
	}

	return true
}

func (e *Election) Release(ctx context.Context) error {
	if !e.isLeader.Load() {
		return nil
	}

	_, err := e.store.CompareAndDelete(ctx, e.key, e.identity)
	e.isLeader.Store(false)

	if err != nil {
		log.Error().Err(err).Msg("Failed to release leadership")
		return err
	}

	log.Info().Str("identity", e.identity).Msg("Leadership released")
	return nil
}

func (e *Election) IsLeader() bool {
	return e.isLeader.Load()
}

func (e *Election) Identity() string {
	return e.identity
}
