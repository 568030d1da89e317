package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleRun records one firing attempt and its outcome. The composite
// unique index on (schedule_id, idempotency_key) is the storage-level
// guarantee that a given occurrence is claimed at most once, even with
// concurrent fire engines.
type ScheduleRun struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ScheduleID     *uuid.UUID `gorm:"type:uuid;uniqueIndex:uniq_schedule_idem" json:"schedule_id,omitempty"`
	WorkspaceID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"workspace_id"`
	TaskName       string     `gorm:"size:100;index;not null" json:"task_name"`
	ScheduledFor   time.Time  `gorm:"not null" json:"scheduled_for"`
	EnqueuedAt     *time.Time `json:"enqueued_at,omitempty"`
	BrokerTaskID   *string    `gorm:"size:100" json:"broker_task_id,omitempty"`
	Status         string     `gorm:"size:20;not null;index" json:"status"`
	DurationMs     *int64     `json:"duration_ms,omitempty"`
	ErrorCode      *string    `gorm:"size:50" json:"error_code,omitempty"`
	ErrorMessage   *string    `gorm:"type:text" json:"error_message,omitempty"`
	IdempotencyKey string     `gorm:"size:64;not null;uniqueIndex:uniq_schedule_idem;index" json:"idempotency_key"`
	Stats          JSON       `gorm:"type:jsonb" json:"stats,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (ScheduleRun) TableName() string {
	return "schedule_runs"
}

// IsTerminal reports whether the run reached a final status.
func (r *ScheduleRun) IsTerminal() bool {
	switch NormalizeRunStatus(r.Status) {
	case RunStatusSuccess, RunStatusFailed, RunStatusPartial:
		return true
	}
	return false
}
