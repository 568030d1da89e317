package models

import (
	"time"

	"gorm.io/gorm"
)

// TaskDefinition is the catalog entry for a named, enableable unit of work.
// Schedules referencing a disabled or missing entry never fire.
type TaskDefinition struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Version      int            `gorm:"default:1" json:"version"`
	InputSchema  JSON           `gorm:"type:jsonb" json:"input_schema,omitempty"`
	DefaultQueue string         `gorm:"size:50;default:default" json:"default_queue"`
	RateLimit    *int           `json:"rate_limit,omitempty"`
	TimeoutS     *int           `json:"timeout_seconds,omitempty"`
	MaxRetries   *int           `json:"max_retries,omitempty"`
	Visibility   string         `gorm:"size:20;default:tenant" json:"visibility"`
	Enabled      bool           `gorm:"default:true;index" json:"enabled"`
	AllowedTags  StringArray    `gorm:"type:text[]" json:"allowed_tags,omitempty"`
	BlockedTags  StringArray    `gorm:"type:text[]" json:"blocked_tags,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (TaskDefinition) TableName() string {
	return "task_definitions"
}

// AllowsWorkspace checks the task's tag targeting against a workspace's
// tags. A blocked tag always wins; a non-empty allow list requires at
// least one match. Tasks with no tag lists accept every workspace.
func (t *TaskDefinition) AllowsWorkspace(workspaceTags []string) bool {
	for _, blocked := range t.BlockedTags {
		for _, tag := range workspaceTags {
			if tag == blocked {
				return false
			}
		}
	}
	if len(t.AllowedTags) == 0 {
		return true
	}
	for _, allowed := range t.AllowedTags {
		for _, tag := range workspaceTags {
			if tag == allowed {
				return true
			}
		}
	}
	return false
}
