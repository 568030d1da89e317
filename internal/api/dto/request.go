package dto

import (
	"time"

	"github.com/adsync-ai/adsync/internal/domain/models"
)

// Auth

type RegisterRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,password"`
	WorkspaceName string `json:"workspace_name" validate:"required,min=3,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Schedules

type CreateScheduleRequest struct {
	TaskName        string      `json:"task_name" validate:"required,taskname"`
	ScheduleType    string      `json:"schedule_type" validate:"required,oneof=interval crontab oneoff"`
	IntervalSeconds *int        `json:"interval_seconds" validate:"omitempty,gte=60"`
	CronExpression  *string     `json:"cron_expression" validate:"omitempty,cron"`
	OneoffRunAt     *time.Time  `json:"oneoff_run_at"`
	Timezone        string      `json:"timezone" validate:"omitempty,timezone"`
	MisfireGraceS   int         `json:"misfire_grace_seconds" validate:"gte=0,lte=86400"`
	JitterS         int         `json:"jitter_seconds" validate:"gte=0,lte=3600"`
	QueueOverride   *string     `json:"queue_override" validate:"omitempty,oneof=critical sync media default"`
	Params          models.JSON `json:"params"`
}

type UpdateScheduleRequest struct {
	IntervalSeconds *int         `json:"interval_seconds" validate:"omitempty,gte=60"`
	CronExpression  *string      `json:"cron_expression" validate:"omitempty,cron"`
	OneoffRunAt     *time.Time   `json:"oneoff_run_at"`
	Timezone        *string      `json:"timezone" validate:"omitempty,timezone"`
	MisfireGraceS   *int         `json:"misfire_grace_seconds" validate:"omitempty,gte=0,lte=86400"`
	JitterS         *int         `json:"jitter_seconds" validate:"omitempty,gte=0,lte=3600"`
	QueueOverride   *string      `json:"queue_override" validate:"omitempty,oneof=critical sync media default"`
	Params          *models.JSON `json:"params"`
	Enabled         *bool        `json:"enabled"`
}

// On-demand trigger

type TriggerRequest struct {
	Action       string      `json:"action" validate:"required,taskname"`
	Provider     string      `json:"provider" validate:"omitempty,oneof=tiktok kie whisper"`
	Scope        string      `json:"scope" validate:"omitempty,max=100"`
	AuthID       string      `json:"auth_id" validate:"omitempty,max=100"`
	Args         models.JSON `json:"args"`
	Options      models.JSON `json:"options"`
	Priority     string      `json:"priority" validate:"omitempty,oneof=normal high critical"`
	DelaySeconds int         `json:"delay_seconds" validate:"gte=0,lte=86400"`
}

// Responses

type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	WorkspaceID string    `json:"workspace_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewUserResponse(u *models.User) *UserResponse {
	return &UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		WorkspaceID: u.WorkspaceID.String(),
		CreatedAt:   u.CreatedAt,
	}
}

type AuthResponse struct {
	User         *UserResponse `json:"user,omitempty"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresAt    int64         `json:"expires_at"`
}

type ScheduleResponse struct {
	ID              string      `json:"id"`
	WorkspaceID     string      `json:"workspace_id"`
	TaskName        string      `json:"task_name"`
	ScheduleType    string      `json:"schedule_type"`
	IntervalSeconds *int        `json:"interval_seconds,omitempty"`
	CronExpression  *string     `json:"cron_expression,omitempty"`
	OneoffRunAt     *time.Time  `json:"oneoff_run_at,omitempty"`
	Timezone        string      `json:"timezone"`
	MisfireGraceS   int         `json:"misfire_grace_seconds"`
	JitterS         int         `json:"jitter_seconds"`
	QueueOverride   *string     `json:"queue_override,omitempty"`
	Enabled         bool        `json:"enabled"`
	NextFireAt      *time.Time  `json:"next_fire_at,omitempty"`
	LastFiredAt     *time.Time  `json:"last_fired_at,omitempty"`
	FireCount       int         `json:"fire_count"`
	Params          models.JSON `json:"params,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

func NewScheduleResponse(s *models.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:              s.ID.String(),
		WorkspaceID:     s.WorkspaceID.String(),
		TaskName:        s.TaskName,
		ScheduleType:    s.ScheduleType,
		IntervalSeconds: s.IntervalSeconds,
		CronExpression:  s.CronExpression,
		OneoffRunAt:     s.OneoffRunAt,
		Timezone:        s.Timezone,
		MisfireGraceS:   s.MisfireGraceS,
		JitterS:         s.JitterS,
		QueueOverride:   s.QueueOverride,
		Enabled:         s.Enabled,
		NextFireAt:      s.NextFireAt,
		LastFiredAt:     s.LastFiredAt,
		FireCount:       s.FireCount,
		Params:          s.Params,
		CreatedAt:       s.CreatedAt,
	}
}

type RunResponse struct {
	ID             uint        `json:"id"`
	ScheduleID     *string     `json:"schedule_id,omitempty"`
	WorkspaceID    string      `json:"workspace_id"`
	TaskName       string      `json:"task_name"`
	ScheduledFor   time.Time   `json:"scheduled_for"`
	EnqueuedAt     *time.Time  `json:"enqueued_at,omitempty"`
	BrokerTaskID   *string     `json:"broker_task_id,omitempty"`
	Status         string      `json:"status"`
	DurationMs     *int64      `json:"duration_ms,omitempty"`
	ErrorCode      *string     `json:"error_code,omitempty"`
	ErrorMessage   *string     `json:"error_message,omitempty"`
	IdempotencyKey string      `json:"idempotency_key"`
	Stats          models.JSON `json:"stats,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

func NewRunResponse(r *models.ScheduleRun) RunResponse {
	resp := RunResponse{
		ID:             r.ID,
		WorkspaceID:    r.WorkspaceID.String(),
		TaskName:       r.TaskName,
		ScheduledFor:   r.ScheduledFor,
		EnqueuedAt:     r.EnqueuedAt,
		BrokerTaskID:   r.BrokerTaskID,
		Status:         models.NormalizeRunStatus(r.Status),
		DurationMs:     r.DurationMs,
		ErrorCode:      r.ErrorCode,
		ErrorMessage:   r.ErrorMessage,
		IdempotencyKey: r.IdempotencyKey,
		Stats:          r.Stats,
		CreatedAt:      r.CreatedAt,
	}
	if r.ScheduleID != nil {
		id := r.ScheduleID.String()
		resp.ScheduleID = &id
	}
	return resp
}

type TaskResponse struct {
	Name         string      `json:"name"`
	Version      int         `json:"version"`
	InputSchema  models.JSON `json:"input_schema,omitempty"`
	DefaultQueue string      `json:"default_queue"`
	Visibility   string      `json:"visibility"`
	Enabled      bool        `json:"enabled"`
	AllowedTags  []string    `json:"allowed_tags,omitempty"`
	BlockedTags  []string    `json:"blocked_tags,omitempty"`
}

func NewTaskResponse(t *models.TaskDefinition) TaskResponse {
	return TaskResponse{
		Name:         t.Name,
		Version:      t.Version,
		InputSchema:  t.InputSchema,
		DefaultQueue: t.DefaultQueue,
		Visibility:   t.Visibility,
		Enabled:      t.Enabled,
		AllowedTags:  t.AllowedTags,
		BlockedTags:  t.BlockedTags,
	}
}

type TriggerResponse struct {
	TaskID        string     `json:"task_id"`
	Action        string     `json:"action"`
	WorkspaceID   string     `json:"workspace_id"`
	State         string     `json:"state"`
	EnqueuedAt    *time.Time `json:"enqueued_at,omitempty"`
	StatusURL     string     `json:"status_url"`
	IdempotentHit bool       `json:"idempotent_hit"`
}
