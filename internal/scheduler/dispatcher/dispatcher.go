package dispatcher

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/adsync-ai/adsync/internal/pkg/queue"
	"github.com/adsync-ai/adsync/internal/scheduler/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Dispatcher publishes fire-engine occurrences to the task queue. Publish
// failures are not retried here; the poller logs and skips, leaving the
// schedule state untouched so the next tick retries.
type Dispatcher struct {
	publisher     queue.Publisher
	globalLimiter RateLimiter
	wsLimiter     RateLimiter

	// Metrics
	dispatched atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
}

func NewDispatcher(publisher queue.Publisher, globalLimiter, wsLimiter RateLimiter) *Dispatcher {
	return &Dispatcher{
		publisher:     publisher,
		globalLimiter: globalLimiter,
		wsLimiter:     wsLimiter,
	}
}

// Allow checks the global and per-workspace dispatch rate limits.
func (d *Dispatcher) Allow(ctx context.Context, workspaceID uuid.UUID) bool {
	if d.globalLimiter != nil && !d.globalLimiter.Allow(ctx, "global") {
		d.skipped.Add(1)
		return false
	}
	if d.wsLimiter != nil {
		wsKey := fmt.Sprintf("workspace:%s", workspaceID)
		if !d.wsLimiter.Allow(ctx, wsKey) {
			d.skipped.Add(1)
			return false
		}
	}
	return true
}

type FireInput struct {
	Schedule       *store.Schedule
	DueFor         time.Time
	IdempotencyKey string
	Delay          time.Duration
}

// Publish sends one occurrence to the schedule's resolved queue and returns
// the broker task id.
func (d *Dispatcher) Publish(ctx context.Context, in FireInput) (string, error) {
	payload := map[string]interface{}{
		"workspace_id":    in.Schedule.WorkspaceID.String(),
		"schedule_id":     in.Schedule.ID.String(),
		"idempotency_key": in.IdempotencyKey,
		"scheduled_for":   in.DueFor.Format(time.RFC3339),
		"params":          map[string]interface{}(in.Schedule.Params),
	}

	brokerID, err := d.publisher.Publish(ctx, queue.PublishInput{
		TaskName: in.Schedule.TaskName,
		Payload:  payload,
		Queue:    in.Schedule.Queue,
		Delay:    in.Delay,
	})
	if err != nil {
		d.failed.Add(1)
		return "", err
	}

	d.dispatched.Add(1)

	log.Debug().
		Str("schedule_id", in.Schedule.ID.String()).
		Str("task_name", in.Schedule.TaskName).
		Str("broker_task_id", brokerID).
		Msg("Schedule dispatched")

	return brokerID, nil
}

type Stats struct {
	Dispatched int64
	Skipped    int64
	Failed     int64
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Skipped:    d.skipped.Load(),
		Failed:     d.failed.Load(),
	}
}
