// Package circuitbreaker provides a per-host breaker for outbound provider
// calls. A host that keeps failing is cut off for a cooldown period, then
// probed with a limited number of trial requests before traffic resumes.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen    = errors.New("circuit breaker is open")
	ErrTooManyRequest = errors.New("too many requests")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	Name             string
	MaxRequests      uint32        // trial requests admitted while half-open
	Interval         time.Duration // closed-state window before counts reset
	Timeout          time.Duration // open-state cooldown before probing
	FailureThreshold uint32        // consecutive failures that open the circuit
	SuccessThreshold uint32        // consecutive probe successes that close it
}

func (c *Config) applyDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Interval == 0 {
		c.Interval = 60 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}
}

type counters struct {
	requests      uint32
	consecSuccess uint32
	consecFailure uint32
}

func (c *counters) success() {
	c.consecSuccess++
	c.consecFailure = 0
}

func (c *counters) failure() {
	c.consecFailure++
	c.consecSuccess = 0
}

// CircuitBreaker tracks request outcomes for one host. Generations guard
// against a slow request reporting into a window that has since rolled over.
type CircuitBreaker struct {
	config Config

	mu         sync.Mutex
	state      State
	counts     counters
	expiry     time.Time
	generation uint64
}

func New(config Config) *CircuitBreaker {
	config.applyDefaults()
	cb := &CircuitBreaker{config: config, state: StateClosed}
	cb.rollWindow(time.Now())
	return cb
}

func (cb *CircuitBreaker) Name() string { return cb.config.Name }

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	state, _ := cb.observe(time.Now())
	return state
}

// ExecuteWithContext runs req under the breaker. It returns ErrCircuitOpen
// while the host is cut off and ErrTooManyRequest when the half-open probe
// budget is spent.
func (cb *CircuitBreaker) ExecuteWithContext(ctx context.Context, req func(context.Context) (interface{}, error)) (interface{}, error) {
	generation, err := cb.admit()
	if err != nil {
		return nil, err
	}

	defer func() {
		if e := recover(); e != nil {
			cb.report(generation, false)
			panic(e)
		}
	}()

	result, err := req(ctx)
	cb.report(generation, err == nil)
	return result, err
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, generation := cb.observe(time.Now())

	if state == StateOpen {
		return generation, ErrCircuitOpen
	}
	if state == StateHalfOpen && cb.counts.requests >= cb.config.MaxRequests {
		return generation, ErrTooManyRequest
	}

	cb.counts.requests++
	return generation, nil
}

func (cb *CircuitBreaker) report(before uint64, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, generation := cb.observe(now)
	if generation != before {
		return
	}

	switch {
	case success:
		cb.counts.success()
		if state == StateHalfOpen && cb.counts.consecSuccess >= cb.config.SuccessThreshold {
			cb.transition(StateClosed, now)
		}
	case state == StateHalfOpen:
		// A failed probe sends the circuit straight back to open.
		cb.transition(StateOpen, now)
	default:
		cb.counts.failure()
		if cb.counts.consecFailure >= cb.config.FailureThreshold {
			cb.transition(StateOpen, now)
		}
	}
}

// observe applies any due timer transitions and returns the effective state.
func (cb *CircuitBreaker) observe(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.rollWindow(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.transition(StateHalfOpen, now)
		}
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) transition(state State, now time.Time) {
	if cb.state == state {
		return
	}
	cb.state = state
	cb.rollWindow(now)
}

func (cb *CircuitBreaker) rollWindow(now time.Time) {
	cb.generation++
	cb.counts = counters{}

	switch cb.state {
	case StateClosed:
		cb.expiry = now.Add(cb.config.Interval)
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	default:
		cb.expiry = time.Time{}
	}
}

// Manager hands out one breaker per key, typically the target host.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   Config
}

func NewManager(defaultConfig Config) *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		config:   defaultConfig,
	}
}

func (m *Manager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[name]; ok {
		return cb
	}

	config := m.config
	config.Name = name
	cb = New(config)
	m.breakers[name] = cb
	return cb
}

func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]State, len(m.breakers))
	for name, cb := range m.breakers {
		states[name] = cb.State()
	}
	return states
}
