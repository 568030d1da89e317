package metrics

import (
	"sync/atomic"
	"time"
)

// Collector aggregates fire-engine counters without locking the scan path.
type Collector struct {
	scansTotal     atomic.Int64
	firedTotal     atomic.Int64
	misfiresTotal  atomic.Int64
	dupClaimsTotal atomic.Int64
	failedTotal    atomic.Int64
	deferredTotal  atomic.Int64
	recoveredTotal atomic.Int64

	queueDepth      atomic.Int64
	activeSchedules atomic.Int64

	lastScanDuration atomic.Int64 // milliseconds
	avgScanDuration  atomic.Int64 // milliseconds

	isLeader  atomic.Bool
	startedAt time.Time
}

func NewCollector() *Collector {
	return &Collector{
		startedAt: time.Now(),
	}
}

func (c *Collector) IncScans() {
	c.scansTotal.Add(1)
}

func (c *Collector) IncFired(n int64) {
	c.firedTotal.Add(n)
}

func (c *Collector) IncMisfires(n int64) {
	c.misfiresTotal.Add(n)
}

func (c *Collector) IncDupClaims(n int64) {
	c.dupClaimsTotal.Add(n)
}

func (c *Collector) IncFailed(n int64) {
	c.failedTotal.Add(n)
}

func (c *Collector) IncDeferred(n int64) {
	c.deferredTotal.Add(n)
}

func (c *Collector) IncRecovered(n int64) {
	c.recoveredTotal.Add(n)
}

func (c *Collector) SetQueueDepth(depth int64) {
	c.queueDepth.Store(depth)
}

func (c *Collector) SetActiveSchedules(count int64) {
	c.activeSchedules.Store(count)
}

func (c *Collector) SetLeader(isLeader bool) {
	c.isLeader.Store(isLeader)
}

func (c *Collector) RecordScanDuration(d time.Duration) {
	ms := d.Milliseconds()
	c.lastScanDuration.Store(ms)

	// Simple moving average
	old := c.avgScanDuration.Load()
	if old == 0 {
		c.avgScanDuration.Store(ms)
	} else {
		c.avgScanDuration.Store((old + ms) / 2)
	}
}

type Snapshot struct {
	ScansTotal       int64         `json:"scans_total"`
	FiredTotal       int64         `json:"fired_total"`
	MisfiresTotal    int64         `json:"misfires_total"`
	DupClaimsTotal   int64         `json:"dup_claims_total"`
	FailedTotal      int64         `json:"failed_total"`
	DeferredTotal    int64         `json:"deferred_total"`
	RecoveredTotal   int64         `json:"recovered_total"`
	QueueDepth       int64         `json:"queue_depth"`
	ActiveSchedules  int64         `json:"active_schedules"`
	LastScanDuration int64         `json:"last_scan_duration_ms"`
	AvgScanDuration  int64         `json:"avg_scan_duration_ms"`
	IsLeader         bool          `json:"is_leader"`
	Uptime           time.Duration `json:"uptime"`
}

func (c *Collector) Snapshot() *Snapshot {
	return &Snapshot{
		ScansTotal:       c.scansTotal.Load(),
		FiredTotal:       c.firedTotal.Load(),
		MisfiresTotal:    c.misfiresTotal.Load(),
		DupClaimsTotal:   c.dupClaimsTotal.Load(),
		FailedTotal:      c.failedTotal.Load(),
		DeferredTotal:    c.deferredTotal.Load(),
		RecoveredTotal:   c.recoveredTotal.Load(),
		QueueDepth:       c.queueDepth.Load(),
		ActiveSchedules:  c.activeSchedules.Load(),
		LastScanDuration: c.lastScanDuration.Load(),
		AvgScanDuration:  c.avgScanDuration.Load(),
		IsLeader:         c.isLeader.Load(),
		Uptime:           time.Since(c.startedAt),
	}
}

func (c *Collector) Reset() {
	c.scansTotal.Store(0)
	c.firedTotal.Store(0)
	c.misfiresTotal.Store(0)
	c.dupClaimsTotal.Store(0)
	c.failedTotal.Store(0)
	c.deferredTotal.Store(0)
	c.recoveredTotal.Store(0)
}
