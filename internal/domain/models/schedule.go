package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Schedule is a recurring or one-off firing rule for a catalog task.
// Exactly one of IntervalSeconds, CronExpression, OneoffRunAt is active,
// matching ScheduleType. NextFireAt is always stored in UTC; the configured
// timezone only matters while computing the next occurrence.
type Schedule struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID     uuid.UUID      `gorm:"type:uuid;index;not null" json:"workspace_id"`
	TaskName        string         `gorm:"size:100;index;not null" json:"task_name"`
	ScheduleType    string         `gorm:"size:20;not null" json:"schedule_type"`
	IntervalSeconds *int           `json:"interval_seconds,omitempty"`
	CronExpression  *string        `gorm:"size:100" json:"cron_expression,omitempty"`
	OneoffRunAt     *time.Time     `json:"oneoff_run_at,omitempty"`
	Timezone        string         `gorm:"size:50;default:UTC" json:"timezone"`
	MisfireGraceS   int            `gorm:"default:0" json:"misfire_grace_seconds"`
	JitterS         int            `gorm:"default:0" json:"jitter_seconds"`
	QueueOverride   *string        `gorm:"size:50" json:"queue_override,omitempty"`
	Enabled         bool           `gorm:"default:true;index" json:"enabled"`
	NextFireAt      *time.Time     `gorm:"index" json:"next_fire_at,omitempty"`
	LastFiredAt     *time.Time     `json:"last_fired_at,omitempty"`
	FireCount       int            `gorm:"default:0" json:"fire_count"`
	Params          JSON           `gorm:"type:jsonb" json:"params,omitempty"`
	CreatedBy       *uuid.UUID     `gorm:"type:uuid" json:"created_by,omitempty"`
	UpdatedBy       *uuid.UUID     `gorm:"type:uuid" json:"updated_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	Workspace Workspace      `gorm:"foreignKey:WorkspaceID" json:"-"`
	Task      TaskDefinition `gorm:"foreignKey:TaskName;references:Name" json:"-"`
}

func (Schedule) TableName() string {
	return "schedules"
}

func (s *Schedule) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// GetWorkspaceID implements the WorkspaceOwned interface for authorization checks
func (s *Schedule) GetWorkspaceID() uuid.UUID {
	return s.WorkspaceID
}
