package store

import (
	"context"
	"time"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/google/uuid"
)

// Schedule is the flattened view the fire engine works with: the schedule
// row joined with its task catalog entry, queue already resolved.
type Schedule struct {
	ID              uuid.UUID
	WorkspaceID     uuid.UUID
	TaskName        string
	Type            string
	IntervalSeconds int
	CronExpression  string
	OneoffRunAt     *time.Time
	Timezone        string
	MisfireGraceS   int
	JitterS         int
	Queue           string
	Params          models.JSON
	NextFireAt      *time.Time
}

// ScheduleStore is the persistence surface of the fire engine. Transact
// nests: calling it on a transaction-bound store opens a savepoint, so a
// failed row rolls back alone while the scan transaction survives.
type ScheduleStore interface {
	// GetDue fetches enabled schedules whose catalog task is enabled and
	// whose next fire time is unset or has passed, oldest first, capped to
	// limit.
	GetDue(ctx context.Context, now time.Time, limit int) ([]*Schedule, error)

	// GetStale fetches schedules whose next fire time has been in the past
	// longer than threshold.
	GetStale(ctx context.Context, now time.Time, threshold time.Duration) ([]*Schedule, error)

	// CountEnabled returns the number of enabled schedules across all
	// workspaces.
	CountEnabled(ctx context.Context) (int64, error)

	// UpdateNextFire overwrites next_fire_at (nil clears it).
	UpdateNextFire(ctx context.Context, id uuid.UUID, next *time.Time) error

	// RecordFired advances the schedule after a successful dispatch.
	RecordFired(ctx context.Context, id uuid.UUID, firedAt time.Time, next *time.Time) error

	// DisableSchedule turns the schedule off and clears next_fire_at; used
	// for oneoff schedules after their single firing.
	DisableSchedule(ctx context.Context, id uuid.UUID) error

	// CreateRun appends a run ledger row. A unique-constraint violation on
	// (schedule_id, idempotency_key) means another writer already claimed
	// the occurrence.
	CreateRun(ctx context.Context, run *models.ScheduleRun) error

	// UpdateRunEnqueued stamps the broker message id and enqueue time on a
	// claimed run after a successful publish.
	UpdateRunEnqueued(ctx context.Context, runID uint, brokerTaskID string, enqueuedAt time.Time) error

	// Transact runs fn atomically against a store bound to the transaction.
	Transact(ctx context.Context, fn func(tx ScheduleStore) error) error
}
