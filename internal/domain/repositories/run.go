package repositories

import (
	"context"
	"time"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(ctx context.Context, run *models.ScheduleRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *RunRepository) FindByID(ctx context.Context, id uint) (*models.ScheduleRun, error) {
	var run models.ScheduleRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	run.Status = models.NormalizeRunStatus(run.Status)
	return &run, nil
}

// FindByIdempotency looks for a prior run carrying the same key for the same
// workspace and task, bounded to a lookback window. Historical duplicates
// are resolved in favor of the highest id.
func (r *RunRepository) FindByIdempotency(ctx context.Context, workspaceID uuid.UUID, taskName, key string, since time.Time) (*models.ScheduleRun, error) {
	var run models.ScheduleRun
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND task_name = ? AND idempotency_key = ? AND created_at >= ?",
			workspaceID, taskName, key, since).
		Order("id DESC").
		First(&run).Error
	if err != nil {
		return nil, err
	}
	run.Status = models.NormalizeRunStatus(run.Status)
	return &run, nil
}

func (r *RunRepository) FindByWorkspace(ctx context.Context, workspaceID uuid.UUID, opts *ListOptions) ([]models.ScheduleRun, int64, error) {
	var runs []models.ScheduleRun
	var total int64

	query := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID)
	query.Model(&models.ScheduleRun{}).Count(&total)

	if opts != nil {
		query = query.Offset(opts.Offset).Limit(opts.Limit).Order(opts.OrderBy + " " + opts.Order)
	}

	err := query.Find(&runs).Error
	for i := range runs {
		runs[i].Status = models.NormalizeRunStatus(runs[i].Status)
	}
	return runs, total, err
}

func (r *RunRepository) MarkRunning(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.ScheduleRun{}).
		Where("id = ?", id).
		Update("status", models.RunStatusRunning).Error
}

func (r *RunRepository) MarkCompleted(ctx context.Context, id uint, status string, durationMs int64, errorCode, errorMessage *string) error {
	return r.db.WithContext(ctx).Model(&models.ScheduleRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"duration_ms":   durationMs,
			"error_code":    errorCode,
			"error_message": errorMessage,
		}).Error
}

func (r *RunRepository) UpdateStats(ctx context.Context, id uint, stats models.JSON) error {
	return r.db.WithContext(ctx).Model(&models.ScheduleRun{}).
		Where("id = ?", id).
		Update("stats", stats).Error
}

func (r *RunRepository) SetBrokerTaskID(ctx context.Context, id uint, brokerTaskID string, enqueuedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ScheduleRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"broker_task_id": brokerTaskID,
			"enqueued_at":    enqueuedAt,
		}).Error
}

// DedupeKeepHighest removes duplicate (schedule_id, idempotency_key) rows
// left behind by historical bugs, keeping the row with the highest id.
// Run once before the unique index is introduced by migration.
func (r *RunRepository) DedupeKeepHighest(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		DELETE FROM schedule_runs
		WHERE id NOT IN (
			SELECT MAX(id) FROM schedule_runs
			GROUP BY schedule_id, idempotency_key
		)`)
	return result.RowsAffected, result.Error
}

// DeleteTerminalBefore prunes terminal runs older than the cutoff.
func (r *RunRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ? AND status IN ?", cutoff,
			[]string{models.RunStatusSuccess, models.RunStatusFailed, models.RunStatusPartial}).
		Delete(&models.ScheduleRun{})
	return result.RowsAffected, result.Error
}
