package lock

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store with real TTL expiry semantics.
type memStore struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
	}
}

func (s *memStore) expireLocked(key string) {
	if exp, ok := s.expires[key]; ok && time.Now().After(exp) {
		delete(s.values, key)
		delete(s.expires, key)
	}
}

func (s *memStore) SetIfAbsent(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(key)
	if _, exists := s.values[key]; exists {
		return false, nil
	}
	s.values[key] = token
	s.expires[key] = time.Now().Add(ttl)
	return true, nil
}

func (s *memStore) CompareAndExtend(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(key)
	if s.values[key] != token {
		return false, nil
	}
	s.expires[key] = time.Now().Add(ttl)
	return true, nil
}

func (s *memStore) CompareAndDelete(_ context.Context, key, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(key)
	if s.values[key] != token {
		return false, nil
	}
	delete(s.values, key)
	delete(s.expires, key)
	return true, nil
}

// overwrite simulates another holder clobbering the key.
func (s *memStore) overwrite(key, token string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = token
	s.expires[key] = time.Now().Add(ttl)
}

func (s *memStore) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(key)
	return s.values[key]
}

func (s *memStore) expiry(key string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expires[key]
}

func TestLock_MutualExclusion(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	first := New(store, "sync:ws1", WithTTL(time.Second))
	second := New(store, "sync:ws1", WithTTL(time.Second))

	held, err := first.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !held {
		t.Fatal("first holder should acquire")
	}

	held, err = second.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if held {
		t.Fatal("second holder must not acquire while first holds")
	}

	if _, err := first.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	held, err = second.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !held {
		t.Fatal("second holder should acquire after release")
	}
	second.ForceStop()
}

func TestLock_AcquireTimesOut(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	first := New(store, "sync:ws2", WithTTL(time.Minute))
	if held, _ := first.Acquire(ctx, 0); !held {
		t.Fatal("first holder should acquire")
	}
	defer first.Release(ctx)

	second := New(store, "sync:ws2",
		WithTTL(time.Minute),
		WithRetryInterval(10*time.Millisecond),
	)

	start := time.Now()
	held, err := second.Acquire(ctx, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if held {
		t.Fatal("second holder must time out")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Acquire blocked too long: %v", elapsed)
	}
}

func TestLock_HeartbeatExtendsTTL(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	l := New(store, "sync:ws3",
		WithTTL(200*time.Millisecond),
		WithHeartbeatInterval(40*time.Millisecond),
	)
	if held, _ := l.Acquire(ctx, 0); !held {
		t.Fatal("should acquire")
	}
	defer l.Release(ctx)

	before := store.expiry("sync:ws3")
	time.Sleep(120 * time.Millisecond)
	after := store.expiry("sync:ws3")

	if !after.After(before) {
		t.Fatal("heartbeat should have extended the TTL")
	}
	if l.Lost() {
		t.Fatal("lock should not be lost while heartbeating")
	}
}

func TestLock_HeartbeatDetectsLoss(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	l := New(store, "sync:ws4",
		WithTTL(time.Second),
		WithHeartbeatInterval(20*time.Millisecond),
	)
	if held, _ := l.Acquire(ctx, 0); !held {
		t.Fatal("should acquire")
	}

	// Another holder clobbers the key mid-heartbeat.
	store.overwrite("sync:ws4", "intruder-token", time.Minute)
	intruderExpiry := store.expiry("sync:ws4")

	deadline := time.Now().Add(time.Second)
	for !l.Lost() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !l.Lost() {
		t.Fatal("heartbeat should detect ownership loss")
	}
	if l.Held() {
		t.Fatal("lock must not report held after loss")
	}
	if store.expiry("sync:ws4") != intruderExpiry {
		t.Fatal("lost holder must not extend the intruder's TTL")
	}
}

func TestLock_ReleaseNotOwnerIsNoop(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	l := New(store, "sync:ws5",
		WithTTL(time.Second),
		WithHeartbeatInterval(100*time.Millisecond),
	)
	if held, _ := l.Acquire(ctx, 0); !held {
		t.Fatal("should acquire")
	}

	store.overwrite("sync:ws5", "intruder-token", time.Minute)

	released, err := l.Release(ctx)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released {
		t.Fatal("release by a non-owner must be a no-op")
	}
	if got := store.get("sync:ws5"); got != "intruder-token" {
		t.Fatalf("intruder's lock was clobbered: %q", got)
	}
}

func TestLock_HeartbeatIntervalAutoAdjust(t *testing.T) {
	store := newMemStore()

	l := New(store, "sync:ws6",
		WithTTL(10*time.Second),
		WithHeartbeatInterval(10*time.Second), // misconfigured: equal to TTL
	)

	if l.heartbeatEvery >= l.ttl {
		t.Fatalf("heartbeat interval %v not adjusted below TTL %v", l.heartbeatEvery, l.ttl)
	}
	if l.heartbeatEvery > l.ttl/2 {
		t.Fatalf("adjusted interval %v should be at most ttl/2", l.heartbeatEvery)
	}
}

func TestLock_ForceStopLeavesKey(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	l := New(store, "sync:ws7", WithTTL(time.Minute))
	if held, _ := l.Acquire(ctx, 0); !held {
		t.Fatal("should acquire")
	}

	l.ForceStop()

	if got := store.get("sync:ws7"); got != l.Token() {
		t.Fatal("ForceStop must not release the underlying key")
	}
}
