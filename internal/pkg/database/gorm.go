package database

import (
	"fmt"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/adsync-ai/adsync/internal/pkg/config"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewGormDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := cfg.DSN()

	gormConfig := &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt:                              true,
		TranslateError:                           true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Info().Msg("Database connected successfully")

	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")

	err := db.AutoMigrate(
		&models.Workspace{},
		&models.User{},
		&models.TaskDefinition{},
		&models.Schedule{},
		&models.ScheduleRun{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database migrations completed")
	return nil
}

// SeedTasks registers the built-in catalog entries if missing.
func SeedTasks(db *gorm.DB) error {
	tasks := []models.TaskDefinition{
		{
			Name:         "ttb.sync.products",
			DefaultQueue: "sync",
			Visibility:   models.TaskVisibilityTenant,
			Enabled:      true,
			InputSchema: models.JSON{
				"type": "object",
				"properties": map[string]interface{}{
					"shop_id":   map[string]interface{}{"type": "string", "minLength": 1},
					"full_sync": map[string]interface{}{"type": "boolean"},
				},
				"additionalProperties": false,
			},
		},
		{
			Name:         "ttb.sync.bc",
			DefaultQueue: "sync",
			Visibility:   models.TaskVisibilityTenant,
			Enabled:      true,
		},
		{
			Name:         "kie.video.poll",
			DefaultQueue: "media",
			Visibility:   models.TaskVisibilityPlatform,
			Enabled:      true,
		},
		{
			Name:         "whisper.transcribe",
			DefaultQueue: "media",
			Visibility:   models.TaskVisibilityTenant,
			Enabled:      true,
		},
	}

	for _, task := range tasks {
		var existing models.TaskDefinition
		if err := db.First(&existing, "name = ?", task.Name).Error; err == gorm.ErrRecordNotFound {
			if err := db.Create(&task).Error; err != nil {
				return fmt.Errorf("failed to seed task %s: %w", task.Name, err)
			}
			log.Info().Str("task", task.Name).Msg("Created task definition")
		}
	}

	return nil
}
