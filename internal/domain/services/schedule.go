package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/adsync-ai/adsync/internal/domain/repositories"
	"github.com/adsync-ai/adsync/internal/scheduler/cron"
)

var (
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrInvalidCron       = errors.New("invalid cron expression")
	ErrInvalidTimezone   = errors.New("invalid timezone")
	ErrInvalidSpec       = errors.New("schedule spec does not match schedule type")
	ErrTaskUnknown       = errors.New("unknown task")
	ErrTaskNotEnabled    = errors.New("task is disabled")
	ErrTaskNotAllowed    = errors.New("task not available to this workspace")
	ErrIntervalTooSmall  = errors.New("interval below minimum")
	ErrOneoffInPast      = errors.New("oneoff run time is in the past")
	ErrWorkspaceMismatch = errors.New("schedule belongs to another workspace")
)

// MinIntervalSeconds is the smallest interval a schedule may use.
const MinIntervalSeconds = 60

type ScheduleService struct {
	scheduleRepo  *repositories.ScheduleRepository
	taskRepo      *repositories.TaskRepository
	workspaceRepo *repositories.WorkspaceRepository
	calculator    *cron.Calculator
}

func NewScheduleService(db *gorm.DB) *ScheduleService {
	return &ScheduleService{
		scheduleRepo:  repositories.NewScheduleRepository(db),
		taskRepo:      repositories.NewTaskRepository(db),
		workspaceRepo: repositories.NewWorkspaceRepository(db),
		calculator:    cron.NewCalculator(),
	}
}

type CreateScheduleInput struct {
	WorkspaceID     uuid.UUID
	CreatedBy       *uuid.UUID
	TaskName        string
	ScheduleType    string
	IntervalSeconds *int
	CronExpression  *string
	OneoffRunAt     *time.Time
	Timezone        string
	MisfireGraceS   int
	JitterS         int
	QueueOverride   *string
	Params          models.JSON
}

// Create validates the input against its schedule type and the task catalog,
// computes the initial next fire time, and persists the schedule enabled.
// Interval schedules start with a nil next fire so the first occurrence
// fires on the next poll.
func (s *ScheduleService) Create(ctx context.Context, input CreateScheduleInput) (*models.Schedule, error) {
	task, err := s.taskRepo.FindByName(ctx, input.TaskName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskUnknown
		}
		return nil, err
	}
	if !task.Enabled {
		return nil, ErrTaskNotEnabled
	}

	if len(task.AllowedTags) > 0 || len(task.BlockedTags) > 0 {
		workspace, err := s.workspaceRepo.FindByID(ctx, input.WorkspaceID)
		if err != nil {
			return nil, err
		}
		if !task.AllowsWorkspace(workspace.Tags) {
			return nil, ErrTaskNotAllowed
		}
	}

	if input.Timezone == "" {
		input.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(input.Timezone); err != nil {
		return nil, ErrInvalidTimezone
	}

	schedule := &models.Schedule{
		WorkspaceID:     input.WorkspaceID,
		TaskName:        input.TaskName,
		ScheduleType:    input.ScheduleType,
		IntervalSeconds: input.IntervalSeconds,
		CronExpression:  input.CronExpression,
		OneoffRunAt:     input.OneoffRunAt,
		Timezone:        input.Timezone,
		MisfireGraceS:   input.MisfireGraceS,
		JitterS:         input.JitterS,
		QueueOverride:   input.QueueOverride,
		Enabled:         true,
		Params:          input.Params,
		CreatedBy:       input.CreatedBy,
	}

	next, err := s.initialNextFire(schedule)
	if err != nil {
		return nil, err
	}
	schedule.NextFireAt = next

	if err := s.scheduleRepo.Create(ctx, schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

func (s *ScheduleService) initialNextFire(sched *models.Schedule) (*time.Time, error) {
	now := time.Now().UTC()
	switch sched.ScheduleType {
	case models.ScheduleTypeInterval:
		if sched.IntervalSeconds == nil {
			return nil, ErrInvalidSpec
		}
		if *sched.IntervalSeconds < MinIntervalSeconds {
			return nil, ErrIntervalTooSmall
		}
		return nil, nil
	case models.ScheduleTypeCrontab:
		if sched.CronExpression == nil {
			return nil, ErrInvalidSpec
		}
		next, err := s.calculator.NextAfter("", *sched.CronExpression, sched.Timezone, now)
		if err != nil {
			return nil, ErrInvalidCron
		}
		return &next, nil
	case models.ScheduleTypeOneoff:
		if sched.OneoffRunAt == nil {
			return nil, ErrInvalidSpec
		}
		if sched.OneoffRunAt.Before(now) {
			return nil, ErrOneoffInPast
		}
		runAt := sched.OneoffRunAt.UTC()
		return &runAt, nil
	default:
		return nil, ErrInvalidSpec
	}
}

func (s *ScheduleService) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Schedule, error) {
	schedule, err := s.scheduleRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	if schedule.WorkspaceID != workspaceID {
		return nil, ErrScheduleNotFound
	}
	return schedule, nil
}

func (s *ScheduleService) GetByWorkspace(ctx context.Context, workspaceID uuid.UUID, opts *repositories.ListOptions) ([]models.Schedule, int64, error) {
	return s.scheduleRepo.FindByWorkspaceID(ctx, workspaceID, opts)
}

type UpdateScheduleInput struct {
	UpdatedBy       *uuid.UUID
	IntervalSeconds *int
	CronExpression  *string
	OneoffRunAt     *time.Time
	Timezone        *string
	MisfireGraceS   *int
	JitterS         *int
	QueueOverride   *string
	Params          *models.JSON
	Enabled         *bool
}

// Update patches the schedule and recomputes the next fire time when the
// firing rule or timezone changed.
func (s *ScheduleService) Update(ctx context.Context, workspaceID, id uuid.UUID, input UpdateScheduleInput) (*models.Schedule, error) {
	schedule, err := s.GetByID(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	recompute := false
	if input.IntervalSeconds != nil {
		schedule.IntervalSeconds = input.IntervalSeconds
		recompute = true
	}
	if input.CronExpression != nil {
		schedule.CronExpression = input.CronExpression
		recompute = true
	}
	if input.OneoffRunAt != nil {
		schedule.OneoffRunAt = input.OneoffRunAt
		recompute = true
	}
	if input.Timezone != nil {
		if _, err := time.LoadLocation(*input.Timezone); err != nil {
			return nil, ErrInvalidTimezone
		}
		schedule.Timezone = *input.Timezone
		recompute = true
	}
	if input.MisfireGraceS != nil {
		schedule.MisfireGraceS = *input.MisfireGraceS
	}
	if input.JitterS != nil {
		schedule.JitterS = *input.JitterS
	}
	if input.QueueOverride != nil {
		schedule.QueueOverride = input.QueueOverride
	}
	if input.Params != nil {
		schedule.Params = *input.Params
	}
	if input.Enabled != nil {
		schedule.Enabled = *input.Enabled
		if *input.Enabled {
			recompute = true
		}
	}
	schedule.UpdatedBy = input.UpdatedBy

	if recompute {
		s.calculator.Invalidate(schedule.ID.String())
		next, err := s.initialNextFire(schedule)
		if err != nil {
			return nil, err
		}
		schedule.NextFireAt = next
	}

	if err := s.scheduleRepo.Update(ctx, schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

func (s *ScheduleService) Delete(ctx context.Context, workspaceID, id uuid.UUID) error {
	if _, err := s.GetByID(ctx, workspaceID, id); err != nil {
		return err
	}
	return s.scheduleRepo.Delete(ctx, id)
}

func (s *ScheduleService) SetEnabled(ctx context.Context, workspaceID, id uuid.UUID, enabled bool) (*models.Schedule, error) {
	v := enabled
	return s.Update(ctx, workspaceID, id, UpdateScheduleInput{Enabled: &v})
}
