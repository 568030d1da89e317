package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/adsync-ai/adsync/internal/domain/models"
)

func newScheduleTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Workspace{}, &models.TaskDefinition{}, &models.Schedule{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedTask(t *testing.T, db *gorm.DB, name string, enabled bool) {
	t.Helper()
	task := &models.TaskDefinition{
		Name:    name,
		Enabled: enabled,
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}
}

func seedTaggedTask(t *testing.T, db *gorm.DB, name string, allowed, blocked []string) {
	t.Helper()
	task := &models.TaskDefinition{
		Name:        name,
		Enabled:     true,
		AllowedTags: allowed,
		BlockedTags: blocked,
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}
}

func seedWorkspace(t *testing.T, db *gorm.DB, tags ...string) uuid.UUID {
	t.Helper()
	ws := &models.Workspace{
		Name: "Acme",
		Slug: "acme-" + uuid.NewString()[:8],
		Tags: tags,
	}
	if err := db.Create(ws).Error; err != nil {
		t.Fatalf("seed workspace: %v", err)
	}
	return ws.ID
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestCreateIntervalScheduleLeavesNextFireUnset(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTask(t, db, "ttb.sync.products", true)
	svc := NewScheduleService(db)

	schedule, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:     uuid.New(),
		TaskName:        "ttb.sync.products",
		ScheduleType:    models.ScheduleTypeInterval,
		IntervalSeconds: intPtr(300),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if schedule.NextFireAt != nil {
		t.Errorf("next_fire_at = %v, want nil so the first poll fires immediately", schedule.NextFireAt)
	}
	if !schedule.Enabled {
		t.Error("schedule not enabled on create")
	}
	if schedule.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC default", schedule.Timezone)
	}
}

func TestCreateRejectsIntervalBelowMinimum(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTask(t, db, "ttb.sync.products", true)
	svc := NewScheduleService(db)

	_, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:     uuid.New(),
		TaskName:        "ttb.sync.products",
		ScheduleType:    models.ScheduleTypeInterval,
		IntervalSeconds: intPtr(30),
	})
	if !errors.Is(err, ErrIntervalTooSmall) {
		t.Fatalf("err = %v, want ErrIntervalTooSmall", err)
	}
}

func TestCreateCrontabScheduleComputesNextFire(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTask(t, db, "ttb.sync.bc", true)
	svc := NewScheduleService(db)

	schedule, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:    uuid.New(),
		TaskName:       "ttb.sync.bc",
		ScheduleType:   models.ScheduleTypeCrontab,
		CronExpression: strPtr("0 6 * * *"),
		Timezone:       "America/New_York",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if schedule.NextFireAt == nil {
		t.Fatal("next_fire_at not computed for crontab schedule")
	}
	if !schedule.NextFireAt.After(time.Now().UTC()) {
		t.Errorf("next_fire_at = %v, want future", schedule.NextFireAt)
	}
}

func TestCreateRejectsWorkspaceWithBlockedTag(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTaggedTask(t, db, "ttb.sync.products", nil, []string{"sandbox"})
	wsID := seedWorkspace(t, db, "sandbox", "apac")
	svc := NewScheduleService(db)

	_, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:     wsID,
		TaskName:        "ttb.sync.products",
		ScheduleType:    models.ScheduleTypeInterval,
		IntervalSeconds: intPtr(300),
	})
	if !errors.Is(err, ErrTaskNotAllowed) {
		t.Fatalf("err = %v, want ErrTaskNotAllowed", err)
	}
}

func TestCreateRejectsWorkspaceOutsideAllowList(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTaggedTask(t, db, "kie.video.poll", []string{"beta"}, nil)
	wsID := seedWorkspace(t, db, "apac")
	svc := NewScheduleService(db)

	_, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:     wsID,
		TaskName:        "kie.video.poll",
		ScheduleType:    models.ScheduleTypeInterval,
		IntervalSeconds: intPtr(300),
	})
	if !errors.Is(err, ErrTaskNotAllowed) {
		t.Fatalf("err = %v, want ErrTaskNotAllowed", err)
	}
}

func TestCreateAcceptsWorkspaceMatchingAllowList(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTaggedTask(t, db, "kie.video.poll", []string{"beta"}, nil)
	wsID := seedWorkspace(t, db, "beta", "apac")
	svc := NewScheduleService(db)

	schedule, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:     wsID,
		TaskName:        "kie.video.poll",
		ScheduleType:    models.ScheduleTypeInterval,
		IntervalSeconds: intPtr(300),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !schedule.Enabled {
		t.Error("schedule not enabled on create")
	}
}

func TestCreateRejectsBadCronExpression(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTask(t, db, "ttb.sync.bc", true)
	svc := NewScheduleService(db)

	_, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:    uuid.New(),
		TaskName:       "ttb.sync.bc",
		ScheduleType:   models.ScheduleTypeCrontab,
		CronExpression: strPtr("not a cron"),
	})
	if !errors.Is(err, ErrInvalidCron) {
		t.Fatalf("err = %v, want ErrInvalidCron", err)
	}
}

func TestCreateRejectsUnknownTimezone(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTask(t, db, "ttb.sync.bc", true)
	svc := NewScheduleService(db)

	_, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:    uuid.New(),
		TaskName:       "ttb.sync.bc",
		ScheduleType:   models.ScheduleTypeCrontab,
		CronExpression: strPtr("0 6 * * *"),
		Timezone:       "Mars/Olympus",
	})
	if !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("err = %v, want ErrInvalidTimezone", err)
	}
}

func TestCreateRejectsOneoffInPast(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTask(t, db, "whisper.transcribe", true)
	svc := NewScheduleService(db)

	past := time.Now().UTC().Add(-time.Hour)
	_, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:  uuid.New(),
		TaskName:     "whisper.transcribe",
		ScheduleType: models.ScheduleTypeOneoff,
		OneoffRunAt:  &past,
	})
	if !errors.Is(err, ErrOneoffInPast) {
		t.Fatalf("err = %v, want ErrOneoffInPast", err)
	}
}

func TestCreateRejectsUnknownOrDisabledTask(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTask(t, db, "ttb.sync.disables", false)
	svc := NewScheduleService(db)

	_, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:     uuid.New(),
		TaskName:        "ttb.sync.missing",
		ScheduleType:    models.ScheduleTypeInterval,
		IntervalSeconds: intPtr(300),
	})
	if !errors.Is(err, ErrTaskUnknown) {
		t.Fatalf("err = %v, want ErrTaskUnknown", err)
	}

	_, err = svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:     uuid.New(),
		TaskName:        "ttb.sync.disables",
		ScheduleType:    models.ScheduleTypeInterval,
		IntervalSeconds: intPtr(300),
	})
	if !errors.Is(err, ErrTaskNotEnabled) {
		t.Fatalf("err = %v, want ErrTaskNotEnabled", err)
	}
}

func TestGetByIDHidesOtherWorkspaces(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTask(t, db, "ttb.sync.products", true)
	svc := NewScheduleService(db)

	owner := uuid.New()
	schedule, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:     owner,
		TaskName:        "ttb.sync.products",
		ScheduleType:    models.ScheduleTypeInterval,
		IntervalSeconds: intPtr(300),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.GetByID(context.Background(), owner, schedule.ID); err != nil {
		t.Fatalf("GetByID for owner: %v", err)
	}
	if _, err := svc.GetByID(context.Background(), uuid.New(), schedule.ID); !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("err = %v, want ErrScheduleNotFound for foreign workspace", err)
	}
}

func TestUpdateRecomputesNextFireWhenRuleChanges(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTask(t, db, "ttb.sync.bc", true)
	svc := NewScheduleService(db)

	wsID := uuid.New()
	schedule, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:    wsID,
		TaskName:       "ttb.sync.bc",
		ScheduleType:   models.ScheduleTypeCrontab,
		CronExpression: strPtr("0 6 * * *"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := svc.Update(context.Background(), wsID, schedule.ID, UpdateScheduleInput{
		CronExpression: strPtr("*/15 * * * *"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if updated.NextFireAt == nil {
		t.Fatal("next_fire_at lost on update")
	}
	// A */15 rule always fires within the next 15 minutes.
	if updated.NextFireAt.After(time.Now().UTC().Add(16 * time.Minute)) {
		t.Errorf("next_fire_at = %v, want within 15 minutes of now", updated.NextFireAt)
	}
}

func TestSetEnabledRecomputesOnReenable(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTask(t, db, "ttb.sync.bc", true)
	svc := NewScheduleService(db)

	wsID := uuid.New()
	schedule, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:    wsID,
		TaskName:       "ttb.sync.bc",
		ScheduleType:   models.ScheduleTypeCrontab,
		CronExpression: strPtr("0 6 * * *"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	disabled, err := svc.SetEnabled(context.Background(), wsID, schedule.ID, false)
	if err != nil {
		t.Fatalf("SetEnabled(false): %v", err)
	}
	if disabled.Enabled {
		t.Error("schedule still enabled after disable")
	}

	enabled, err := svc.SetEnabled(context.Background(), wsID, schedule.ID, true)
	if err != nil {
		t.Fatalf("SetEnabled(true): %v", err)
	}
	if !enabled.Enabled {
		t.Error("schedule not enabled after re-enable")
	}
	if enabled.NextFireAt == nil {
		t.Error("next_fire_at not recomputed on re-enable")
	}
	if enabled.NextFireAt != nil && !enabled.NextFireAt.After(time.Now().UTC()) {
		t.Errorf("next_fire_at = %v, want future after re-enable", enabled.NextFireAt)
	}
}

func TestDeleteRequiresOwnership(t *testing.T) {
	db := newScheduleTestDB(t)
	seedTask(t, db, "ttb.sync.products", true)
	svc := NewScheduleService(db)

	owner := uuid.New()
	schedule, err := svc.Create(context.Background(), CreateScheduleInput{
		WorkspaceID:     owner,
		TaskName:        "ttb.sync.products",
		ScheduleType:    models.ScheduleTypeInterval,
		IntervalSeconds: intPtr(300),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(context.Background(), uuid.New(), schedule.ID); !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("err = %v, want ErrScheduleNotFound for foreign workspace", err)
	}
	if err := svc.Delete(context.Background(), owner, schedule.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.GetByID(context.Background(), owner, schedule.ID); !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("err = %v, want ErrScheduleNotFound after delete", err)
	}
}
