package poller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/adsync-ai/adsync/internal/domain/repositories"
	"github.com/adsync-ai/adsync/internal/pkg/clock"
	"github.com/adsync-ai/adsync/internal/scheduler/cron"
	"github.com/adsync-ai/adsync/internal/scheduler/dispatcher"
	"github.com/adsync-ai/adsync/internal/scheduler/metrics"
	"github.com/adsync-ai/adsync/internal/scheduler/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Dispatcher is the slice of the dispatcher the fire engine needs.
type Dispatcher interface {
	Allow(ctx context.Context, workspaceID uuid.UUID) bool
	Publish(ctx context.Context, in dispatcher.FireInput) (string, error)
}

// Poller is the fire engine: a single-threaded tick loop that scans due
// schedules and hands each occurrence to the dispatcher at most once.
// Scan throttling runs on the monotonic clock; business due-time decisions
// run on wall-clock UTC. The two are never mixed.
type Poller struct {
	store        store.ScheduleStore
	dispatcher   Dispatcher
	calculator   *cron.Calculator
	clock        clock.Clock
	backpressure *dispatcher.BackpressureMonitor
	collector    *metrics.Collector

	batchSize       int
	refreshInterval time.Duration
	minIntervalS    int
	jitterFn        func(max time.Duration) time.Duration

	// Next allowed scan, as a monotonic reading.
	nextScanAt time.Duration

	// Metrics
	pollCount   atomic.Int64
	firedCount  atomic.Int64
	misfires    atomic.Int64
	dupClaims   atomic.Int64
	lastPollAt  atomic.Value // time.Time
	lastPollDur atomic.Int64 // milliseconds
}

const DefaultMinIntervalSeconds = 60

// DefaultMisfireGraceSeconds bounds catch-up for schedules that leave
// misfire_grace_s at zero. Without a floor, a scheduler that was down for
// hours would replay every missed occurrence one per tick.
const DefaultMisfireGraceSeconds = 300

func NewPoller(
	scheduleStore store.ScheduleStore,
	disp Dispatcher,
	calc *cron.Calculator,
	clk clock.Clock,
	batchSize int,
	refreshInterval time.Duration,
) *Poller {
	p := &Poller{
		store:           scheduleStore,
		dispatcher:      disp,
		calculator:      calc,
		clock:           clk,
		batchSize:       batchSize,
		refreshInterval: refreshInterval,
		minIntervalS:    DefaultMinIntervalSeconds,
		jitterFn: func(max time.Duration) time.Duration {
			return time.Duration(rand.Int63n(int64(max) + 1))
		},
	}
	p.lastPollAt.Store(time.Time{})
	return p
}

func (p *Poller) SetBackpressure(bp *dispatcher.BackpressureMonitor) {
	p.backpressure = bp
}

// SetCollector mirrors the poller's counters into the shared scheduler
// collector for the diagnostics endpoint.
func (p *Poller) SetCollector(c *metrics.Collector) {
	p.collector = c
}

func (p *Poller) SetMinInterval(seconds int) {
	if seconds > 0 {
		p.minIntervalS = seconds
	}
}

// SetJitterFn replaces the jitter source; tests use a fixed value.
func (p *Poller) SetJitterFn(fn func(max time.Duration) time.Duration) {
	p.jitterFn = fn
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.clock.Monotonic() < p.nextScanAt {
				continue
			}
			p.Scan(ctx)
			p.nextScanAt = p.clock.Monotonic() + p.refreshInterval
		}
	}
}

// Scan runs one fire-engine pass: fetch due schedules and handle each row
// independently inside a single scan transaction. A failure on one row
// rolls back that row alone; a failure of the scan itself is logged and the
// next tick retries.
func (p *Poller) Scan(ctx context.Context) {
	if p.backpressure != nil && p.backpressure.ShouldPause() {
		log.Debug().Msg("Skipping scan due to backpressure")
		return
	}

	start := time.Now()
	p.pollCount.Add(1)
	now := p.clock.Now()

	due, err := p.store.GetDue(ctx, now, p.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch due schedules")
		return
	}

	if len(due) == 0 {
		p.recordPoll(start)
		return
	}

	fired := 0
	skipped := 0

	err = p.store.Transact(ctx, func(tx store.ScheduleStore) error {
		for _, sched := range due {
			rowErr := tx.Transact(ctx, func(row store.ScheduleStore) error {
				return p.fireOne(ctx, row, sched, now)
			})
			switch {
			case rowErr == nil:
				fired++
			case repositories.IsDuplicateKey(rowErr):
				// Another fire engine already claimed this occurrence.
				p.dupClaims.Add(1)
				if p.collector != nil {
					p.collector.IncDupClaims(1)
				}
				skipped++
				log.Debug().
					Str("schedule_id", sched.ID.String()).
					Msg("Occurrence already claimed")
			default:
				skipped++
				if p.collector != nil {
					p.collector.IncFailed(1)
				}
				log.Error().
					Err(rowErr).
					Str("schedule_id", sched.ID.String()).
					Str("task_name", sched.TaskName).
					Msg("Failed to fire schedule")
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Scan transaction failed")
	}

	p.recordPoll(start)

	if fired > 0 || skipped > 0 {
		log.Info().
			Int("handled", fired).
			Int("skipped", skipped).
			Int("total", len(due)).
			Dur("duration", time.Since(start)).
			Msg("Scan completed")
	}
}

func (p *Poller) fireOne(ctx context.Context, tx store.ScheduleStore, sched *store.Schedule, now time.Time) error {
	dueFor := sched.NextFireAt
	if sched.Type == models.ScheduleTypeOneoff {
		dueFor = sched.OneoffRunAt
	}

	// First run: synthesize the initial fire time.
	if dueFor == nil {
		next := p.initialNext(sched, now)
		if next == nil || next.After(now) {
			return tx.UpdateNextFire(ctx, sched.ID, next)
		}
		dueFor = next
	}

	if dueFor.After(now) {
		return nil // not yet due
	}

	graceS := sched.MisfireGraceS
	if graceS <= 0 {
		graceS = DefaultMisfireGraceSeconds
	}
	if dueFor.Before(now.Add(-time.Duration(graceS) * time.Second)) {
		return p.skipMisfire(ctx, tx, sched, *dueFor, graceS)
	}

	if !p.dispatcher.Allow(ctx, sched.WorkspaceID) {
		if p.collector != nil {
			p.collector.IncDeferred(1)
		}
		return nil // deferred; state unchanged, retried next tick
	}

	// Jitter only delays queue delivery; the recorded due-for time and the
	// idempotency key are unaffected.
	var delay time.Duration
	if sched.JitterS > 0 {
		delay = p.jitterFn(time.Duration(sched.JitterS) * time.Second)
	}

	key := IdempotencyKey(sched.TaskName, sched.WorkspaceID, *dueFor, sched.Params)

	run := &models.ScheduleRun{
		ScheduleID:     &sched.ID,
		WorkspaceID:    sched.WorkspaceID,
		TaskName:       sched.TaskName,
		ScheduledFor:   *dueFor,
		Status:         models.RunStatusEnqueued,
		IdempotencyKey: key,
		Stats:          models.JSON{"params": map[string]interface{}(sched.Params)},
	}
	if err := tx.CreateRun(ctx, run); err != nil {
		return err
	}

	brokerID, err := p.dispatcher.Publish(ctx, dispatcher.FireInput{
		Schedule:       sched,
		DueFor:         *dueFor,
		IdempotencyKey: key,
		Delay:          delay,
	})
	if err != nil {
		// Row savepoint rolls back, removing the claim; the next tick
		// retries with state unchanged.
		return fmt.Errorf("publish: %w", err)
	}

	if err := tx.UpdateRunEnqueued(ctx, run.ID, brokerID, p.clock.Now()); err != nil {
		return err
	}

	p.firedCount.Add(1)
	if p.collector != nil {
		p.collector.IncFired(1)
	}

	if sched.Type == models.ScheduleTypeOneoff {
		// One-off fires exactly once, then deactivates itself.
		if err := tx.RecordFired(ctx, sched.ID, now, nil); err != nil {
			return err
		}
		return tx.DisableSchedule(ctx, sched.ID)
	}

	// Advance from the due-for time, not from now, to avoid drift.
	next := p.advanceFrom(sched, *dueFor)
	return tx.RecordFired(ctx, sched.ID, now, next)
}

// skipMisfire abandons an occurrence discovered beyond the grace period:
// the skip is recorded in the run ledger and next-fire-at advances past the
// stale occurrence without dispatching it.
func (p *Poller) skipMisfire(ctx context.Context, tx store.ScheduleStore, sched *store.Schedule, dueFor time.Time, graceS int) error {
	p.misfires.Add(1)
	if p.collector != nil {
		p.collector.IncMisfires(1)
	}

	key := IdempotencyKey(sched.TaskName, sched.WorkspaceID, dueFor, sched.Params)
	errCode := models.RunErrorMisfire
	errMsg := fmt.Sprintf("occurrence %s missed beyond grace period of %ds",
		dueFor.Format(time.RFC3339), graceS)

	run := &models.ScheduleRun{
		ScheduleID:     &sched.ID,
		WorkspaceID:    sched.WorkspaceID,
		TaskName:       sched.TaskName,
		ScheduledFor:   dueFor,
		Status:         models.RunStatusFailed,
		ErrorCode:      &errCode,
		ErrorMessage:   &errMsg,
		IdempotencyKey: key,
		Stats:          models.JSON{"params": map[string]interface{}(sched.Params)},
	}
	if err := tx.CreateRun(ctx, run); err != nil {
		return err
	}

	log.Warn().
		Str("schedule_id", sched.ID.String()).
		Str("task_name", sched.TaskName).
		Time("due_for", dueFor).
		Msg("Skipping misfired occurrence")

	if sched.Type == models.ScheduleTypeOneoff {
		return tx.DisableSchedule(ctx, sched.ID)
	}
	return tx.UpdateNextFire(ctx, sched.ID, p.advanceFrom(sched, dueFor))
}

// initialNext synthesizes the first fire time for a schedule without one:
// interval fires immediately, crontab computes the next occurrence from
// now in the schedule's timezone, oneoff uses its configured timestamp.
func (p *Poller) initialNext(sched *store.Schedule, now time.Time) *time.Time {
	switch sched.Type {
	case models.ScheduleTypeInterval:
		if sched.IntervalSeconds < p.minIntervalS {
			return nil
		}
		return &now
	case models.ScheduleTypeCrontab:
		next, err := p.calculator.NextAfter(sched.ID.String(), sched.CronExpression, sched.Timezone, now)
		if err != nil {
			log.Warn().
				Err(err).
				Str("schedule_id", sched.ID.String()).
				Str("cron", sched.CronExpression).
				Msg("Cannot compute initial fire time")
			return nil
		}
		return &next
	case models.ScheduleTypeOneoff:
		return sched.OneoffRunAt
	}
	return nil
}

// advanceFrom computes the occurrence after dueFor. A nil result means the
// schedule idles (bad cron, interval below the minimum).
func (p *Poller) advanceFrom(sched *store.Schedule, dueFor time.Time) *time.Time {
	switch sched.Type {
	case models.ScheduleTypeInterval:
		if sched.IntervalSeconds < p.minIntervalS {
			log.Warn().
				Str("schedule_id", sched.ID.String()).
				Int("interval_seconds", sched.IntervalSeconds).
				Int("minimum", p.minIntervalS).
				Msg("Interval below minimum, schedule idles")
			return nil
		}
		next := dueFor.Add(time.Duration(sched.IntervalSeconds) * time.Second)
		return &next
	case models.ScheduleTypeCrontab:
		next, err := p.calculator.NextAfter(sched.ID.String(), sched.CronExpression, sched.Timezone, dueFor)
		if err != nil {
			log.Warn().
				Err(err).
				Str("schedule_id", sched.ID.String()).
				Str("cron", sched.CronExpression).
				Msg("Cannot compute next fire time")
			return nil
		}
		return &next
	}
	return nil
}

func (p *Poller) recordPoll(start time.Time) {
	p.lastPollAt.Store(time.Now())
	p.lastPollDur.Store(time.Since(start).Milliseconds())
	if p.collector != nil {
		p.collector.IncScans()
		p.collector.RecordScanDuration(time.Since(start))
	}
}

// ScanOnce is a test/ops hook bypassing the refresh throttle.
func (p *Poller) ScanOnce(ctx context.Context) {
	p.Scan(ctx)
}

type Stats struct {
	PollCount     int64
	FiredTotal    int64
	MisfiresTotal int64
	DupClaims     int64
	LastPollAt    time.Time
	LastPollDurMs int64
}

func (p *Poller) Stats() Stats {
	lastPoll := p.lastPollAt.Load().(time.Time)
	return Stats{
		PollCount:     p.pollCount.Load(),
		FiredTotal:    p.firedCount.Load(),
		MisfiresTotal: p.misfires.Load(),
		DupClaims:     p.dupClaims.Load(),
		LastPollAt:    lastPoll,
		LastPollDurMs: p.lastPollDur.Load(),
	}
}

// IdempotencyKey derives the deterministic dedupe token for one occurrence:
// sha256 over task name, workspace, the due-for epoch, and the canonical
// JSON of the params.
func IdempotencyKey(taskName string, workspaceID uuid.UUID, dueFor time.Time, params models.JSON) string {
	raw, _ := json.Marshal(params)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", taskName, workspaceID, dueFor.Unix(), raw)))
	return hex.EncodeToString(sum[:])
}
