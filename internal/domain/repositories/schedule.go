package repositories

import (
	"context"
	"time"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ScheduleRepository struct {
	*BaseRepository[models.Schedule]
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{
		BaseRepository: NewBaseRepository[models.Schedule](db),
	}
}

func (r *ScheduleRepository) FindByWorkspaceID(ctx context.Context, workspaceID uuid.UUID, opts *ListOptions) ([]models.Schedule, int64, error) {
	var schedules []models.Schedule
	var total int64

	query := r.DB().WithContext(ctx).Where("workspace_id = ?", workspaceID)
	query.Model(&models.Schedule{}).Count(&total)

	if opts != nil {
		query = query.Offset(opts.Offset).Limit(opts.Limit).Order(opts.OrderBy + " " + opts.Order)
	}

	err := query.Find(&schedules).Error
	return schedules, total, err
}

func (r *ScheduleRepository) FindByTaskName(ctx context.Context, taskName string) ([]models.Schedule, error) {
	var schedules []models.Schedule
	err := r.DB().WithContext(ctx).
		Where("task_name = ?", taskName).
		Order("created_at DESC").
		Find(&schedules).Error
	return schedules, err
}

func (r *ScheduleRepository) SetEnabled(ctx context.Context, scheduleID uuid.UUID, enabled bool) error {
	return r.DB().WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", scheduleID).
		Update("enabled", enabled).Error
}

func (r *ScheduleRepository) UpdateNextFire(ctx context.Context, scheduleID uuid.UUID, nextFireAt *time.Time) error {
	return r.DB().WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", scheduleID).
		Update("next_fire_at", nextFireAt).Error
}

func (r *ScheduleRepository) RecordFired(ctx context.Context, scheduleID uuid.UUID, firedAt time.Time, nextFireAt *time.Time) error {
	return r.DB().WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", scheduleID).
		Updates(map[string]interface{}{
			"last_fired_at": firedAt,
			"next_fire_at":  nextFireAt,
			"fire_count":    gorm.Expr("fire_count + 1"),
		}).Error
}

func (r *ScheduleRepository) DeactivateByWorkspace(ctx context.Context, workspaceID uuid.UUID) error {
	return r.DB().WithContext(ctx).Model(&models.Schedule{}).
		Where("workspace_id = ?", workspaceID).
		Update("enabled", false).Error
}
