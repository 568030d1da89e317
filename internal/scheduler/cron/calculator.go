package cron

import (
	"fmt"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Calculator computes cron occurrences in a schedule's configured timezone
// and returns them in UTC. Parsed expressions are cached per schedule.
type Calculator struct {
	parser   *Parser
	cache    map[string]*cacheEntry
	cacheTTL time.Duration
	mu       sync.RWMutex
}

type cacheEntry struct {
	schedule   cronlib.Schedule
	expression string
	cachedAt   time.Time
}

func NewCalculator() *Calculator {
	return &Calculator{
		parser:   NewParser(),
		cache:    make(map[string]*cacheEntry),
		cacheTTL: 10 * time.Minute,
	}
}

// NextAfter returns the first occurrence of expression strictly after the
// given instant, evaluated in the named IANA timezone and converted to UTC.
// Computing from the due-for time rather than from "now" is what keeps
// recurring schedules drift-free.
func (c *Calculator) NextAfter(cacheKey, expression, timezone string, after time.Time) (time.Time, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}

	schedule, err := c.getSchedule(cacheKey, expression)
	if err != nil {
		return time.Time{}, err
	}

	return schedule.Next(after.In(loc)).UTC(), nil
}

// NextNAfter returns the next n occurrences after the given instant, for
// schedule previews.
func (c *Calculator) NextNAfter(expression, timezone string, after time.Time, n int) ([]time.Time, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, err
		}
	}

	schedule, err := c.parser.Parse(expression)
	if err != nil {
		return nil, err
	}

	runs := make([]time.Time, n)
	current := after.In(loc)

	for i := 0; i < n; i++ {
		current = schedule.Next(current)
		runs[i] = current.UTC()
	}

	return runs, nil
}

func (c *Calculator) getSchedule(cacheKey, expression string) (cronlib.Schedule, error) {
	c.mu.RLock()
	entry, exists := c.cache[cacheKey]
	c.mu.RUnlock()

	if exists && entry.expression == expression && time.Since(entry.cachedAt) < c.cacheTTL {
		return entry.schedule, nil
	}

	schedule, err := c.parser.Parse(expression)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[cacheKey] = &cacheEntry{
		schedule:   schedule,
		expression: expression,
		cachedAt:   time.Now(),
	}
	c.mu.Unlock()

	return schedule, nil
}

func (c *Calculator) Invalidate(cacheKey string) {
	c.mu.Lock()
	delete(c.cache, cacheKey)
	c.mu.Unlock()
}

func (c *Calculator) Validate(expression string) error {
	return c.parser.Validate(expression)
}
