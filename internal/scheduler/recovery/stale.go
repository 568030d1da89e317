package recovery

import (
	"context"
	"time"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/adsync-ai/adsync/internal/pkg/clock"
	"github.com/adsync-ai/adsync/internal/scheduler/cron"
	"github.com/adsync-ai/adsync/internal/scheduler/metrics"
	"github.com/adsync-ai/adsync/internal/scheduler/store"
	"github.com/rs/zerolog/log"
)

// StaleRecovery repairs schedules whose next fire time fell far behind,
// usually after extended downtime. Instead of letting the fire engine skip
// one missed occurrence per tick, it recomputes the next fire from the
// current time in one step.
type StaleRecovery struct {
	store      store.ScheduleStore
	calculator *cron.Calculator
	clock      clock.Clock
	threshold  time.Duration
	interval   time.Duration
	collector  *metrics.Collector
}

func NewStaleRecovery(
	scheduleStore store.ScheduleStore,
	calculator *cron.Calculator,
	clk clock.Clock,
	threshold time.Duration,
) *StaleRecovery {
	return &StaleRecovery{
		store:      scheduleStore,
		calculator: calculator,
		clock:      clk,
		threshold:  threshold,
		interval:   5 * time.Minute,
	}
}

// SetCollector mirrors recovery counts into the shared scheduler collector.
func (r *StaleRecovery) SetCollector(c *metrics.Collector) {
	r.collector = c
}

func (r *StaleRecovery) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run once on start so recovery happens before the first scan burst.
	r.Recover(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Recover(ctx)
		}
	}
}

func (r *StaleRecovery) Recover(ctx context.Context) {
	now := r.clock.Now()

	if r.collector != nil {
		if active, err := r.store.CountEnabled(ctx); err == nil {
			r.collector.SetActiveSchedules(active)
		}
	}

	stale, err := r.store.GetStale(ctx, now, r.threshold)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch stale schedules")
		return
	}
	if len(stale) == 0 {
		return
	}

	recovered := 0
	for _, sched := range stale {
		next, err := r.nextFromNow(sched, now)
		if err != nil {
			log.Error().
				Err(err).
				Str("schedule_id", sched.ID.String()).
				Msg("Failed to recompute next fire for stale schedule")
			continue
		}

		if next == nil {
			if err := r.store.DisableSchedule(ctx, sched.ID); err != nil {
				log.Error().
					Err(err).
					Str("schedule_id", sched.ID.String()).
					Msg("Failed to disable stale schedule")
				continue
			}
		} else if err := r.store.UpdateNextFire(ctx, sched.ID, next); err != nil {
			log.Error().
				Err(err).
				Str("schedule_id", sched.ID.String()).
				Msg("Failed to update stale schedule")
			continue
		}

		recovered++
		log.Warn().
			Str("schedule_id", sched.ID.String()).
			Str("task_name", sched.TaskName).
			Interface("old_next_fire", sched.NextFireAt).
			Interface("new_next_fire", next).
			Msg("Recovered stale schedule")
	}

	if recovered > 0 {
		if r.collector != nil {
			r.collector.IncRecovered(int64(recovered))
		}
		log.Info().
			Int("recovered", recovered).
			Int("total_stale", len(stale)).
			Msg("Stale schedule recovery completed")
	}
}

// nextFromNow skips all missed occurrences at once. A nil result with no
// error means the schedule has nothing left to do and is disabled.
func (r *StaleRecovery) nextFromNow(sched *store.Schedule, now time.Time) (*time.Time, error) {
	switch sched.Type {
	case models.ScheduleTypeInterval:
		next := now.Add(time.Duration(sched.IntervalSeconds) * time.Second)
		return &next, nil
	case models.ScheduleTypeCrontab:
		next, err := r.calculator.NextAfter(sched.ID.String(), sched.CronExpression, sched.Timezone, now)
		if err != nil {
			return nil, err
		}
		return &next, nil
	case models.ScheduleTypeOneoff:
		// A stale oneoff already missed its single shot.
		return nil, nil
	}
	return nil, nil
}
