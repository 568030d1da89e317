package clock

import "time"

// Clock separates the two time sources the scheduler relies on: wall time
// for business due-time decisions and a monotonic reading for scan
// throttling. The two must never be compared against each other.
type Clock interface {
	// Now returns the current wall-clock time in UTC.
	Now() time.Time

	// Monotonic returns a reading that only moves forward, unaffected by
	// wall-clock adjustments. Only meaningful relative to other readings
	// from the same Clock.
	Monotonic() time.Duration
}

type realClock struct {
	start time.Time
}

func New() Clock {
	return &realClock{start: time.Now()}
}

func (c *realClock) Now() time.Time {
	return time.Now().UTC()
}

func (c *realClock) Monotonic() time.Duration {
	return time.Since(c.start)
}
