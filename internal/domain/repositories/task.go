package repositories

import (
	"context"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"gorm.io/gorm"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) FindByName(ctx context.Context, name string) (*models.TaskDefinition, error) {
	var task models.TaskDefinition
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) FindEnabled(ctx context.Context) ([]models.TaskDefinition, error) {
	var tasks []models.TaskDefinition
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("name ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *TaskRepository) FindAll(ctx context.Context) ([]models.TaskDefinition, error) {
	var tasks []models.TaskDefinition
	err := r.db.WithContext(ctx).Order("name ASC").Find(&tasks).Error
	return tasks, err
}

func (r *TaskRepository) Create(ctx context.Context, task *models.TaskDefinition) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *TaskRepository) Update(ctx context.Context, task *models.TaskDefinition) error {
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *TaskRepository) SetEnabled(ctx context.Context, name string, enabled bool) error {
	return r.db.WithContext(ctx).Model(&models.TaskDefinition{}).
		Where("name = ?", name).
		Update("enabled", enabled).Error
}
