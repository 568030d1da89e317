package store

import (
	"context"
	"time"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

type dueRow struct {
	models.Schedule
	DefaultQueue string
}

func (s *GormStore) GetDue(ctx context.Context, now time.Time, limit int) ([]*Schedule, error) {
	var rows []dueRow

	err := s.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Select("schedules.*, task_definitions.default_queue AS default_queue").
		Joins("JOIN task_definitions ON task_definitions.name = schedules.task_name").
		Where("task_definitions.enabled = ?", true).
		Where("schedules.enabled = ?", true).
		Where("schedules.next_fire_at IS NULL OR schedules.next_fire_at <= ?", now).
		Order("schedules.next_fire_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	return toSchedules(rows), nil
}

func (s *GormStore) GetStale(ctx context.Context, now time.Time, threshold time.Duration) ([]*Schedule, error) {
	cutoff := now.Add(-threshold)

	var rows []dueRow
	err := s.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Select("schedules.*, task_definitions.default_queue AS default_queue").
		Joins("JOIN task_definitions ON task_definitions.name = schedules.task_name").
		Where("task_definitions.enabled = ?", true).
		Where("schedules.enabled = ?", true).
		Where("schedules.next_fire_at IS NOT NULL AND schedules.next_fire_at < ?", cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	return toSchedules(rows), nil
}

func (s *GormStore) CountEnabled(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Where("enabled = ?", true).
		Count(&count).Error
	return count, err
}

func (s *GormStore) UpdateNextFire(ctx context.Context, id uuid.UUID, next *time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Where("id = ?", id).
		Update("next_fire_at", next).Error
}

func (s *GormStore) RecordFired(ctx context.Context, id uuid.UUID, firedAt time.Time, next *time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_fired_at": firedAt,
			"next_fire_at":  next,
			"fire_count":    gorm.Expr("fire_count + 1"),
		}).Error
}

func (s *GormStore) DisableSchedule(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"enabled":      false,
			"next_fire_at": nil,
		}).Error
}

func (s *GormStore) CreateRun(ctx context.Context, run *models.ScheduleRun) error {
	return s.db.WithContext(ctx).Create(run).Error
}

func (s *GormStore) UpdateRunEnqueued(ctx context.Context, runID uint, brokerTaskID string, enqueuedAt time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.ScheduleRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"broker_task_id": brokerTaskID,
			"enqueued_at":    enqueuedAt,
		}).Error
}

func (s *GormStore) Transact(ctx context.Context, fn func(tx ScheduleStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func toSchedules(rows []dueRow) []*Schedule {
	result := make([]*Schedule, len(rows))
	for i := range rows {
		result[i] = toSchedule(&rows[i])
	}
	return result
}

func toSchedule(row *dueRow) *Schedule {
	sched := &Schedule{
		ID:            row.ID,
		WorkspaceID:   row.WorkspaceID,
		TaskName:      row.TaskName,
		Type:          row.ScheduleType,
		Timezone:      row.Timezone,
		MisfireGraceS: row.MisfireGraceS,
		JitterS:       row.JitterS,
		Queue:         row.DefaultQueue,
		Params:        row.Params,
		NextFireAt:    row.NextFireAt,
		OneoffRunAt:   row.OneoffRunAt,
	}
	if row.IntervalSeconds != nil {
		sched.IntervalSeconds = *row.IntervalSeconds
	}
	if row.CronExpression != nil {
		sched.CronExpression = *row.CronExpression
	}
	if row.QueueOverride != nil && *row.QueueOverride != "" {
		sched.Queue = *row.QueueOverride
	}
	return sched
}
