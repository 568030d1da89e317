package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Workspace{},
		&models.TaskDefinition{},
		&models.Schedule{},
		&models.ScheduleRun{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newRun(scheduleID *uuid.UUID, key, status string) *models.ScheduleRun {
	return &models.ScheduleRun{
		ScheduleID:     scheduleID,
		WorkspaceID:    uuid.New(),
		TaskName:       "ttb.sync.products",
		ScheduledFor:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Status:         status,
		IdempotencyKey: key,
	}
}

func TestCreateRunDuplicateOccurrenceRejected(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()
	schedID := uuid.New()

	if err := repo.Create(ctx, newRun(&schedID, "key-1", models.RunStatusEnqueued)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	err := repo.Create(ctx, newRun(&schedID, "key-1", models.RunStatusEnqueued))
	if err == nil {
		t.Fatal("duplicate (schedule_id, idempotency_key) accepted")
	}
	if !IsDuplicateKey(err) {
		t.Fatalf("IsDuplicateKey(%v) = false", err)
	}

	// Same key under a different schedule is a distinct occurrence.
	otherID := uuid.New()
	if err := repo.Create(ctx, newRun(&otherID, "key-1", models.RunStatusEnqueued)); err != nil {
		t.Fatalf("create under different schedule: %v", err)
	}
}

func TestFindByIdempotencyNormalizesLegacyStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	schedID := uuid.New()
	run := newRun(&schedID, "key-1", "scheduled")
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.FindByIdempotency(ctx, run.WorkspaceID, run.TaskName, "key-1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("FindByIdempotency: %v", err)
	}
	if got.Status != models.RunStatusEnqueued {
		t.Errorf("status = %q, want legacy 'scheduled' normalized to %q", got.Status, models.RunStatusEnqueued)
	}

	byID, err := repo.FindByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if byID.Status != models.RunStatusEnqueued {
		t.Errorf("FindByID status = %q, want normalized", byID.Status)
	}
}

func TestFindByIdempotencyRespectsLookback(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	schedID := uuid.New()
	run := newRun(&schedID, "key-1", models.RunStatusSuccess)
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Age the row past the window.
	old := time.Now().Add(-48 * time.Hour)
	if err := db.Model(&models.ScheduleRun{}).Where("id = ?", run.ID).Update("created_at", old).Error; err != nil {
		t.Fatalf("age row: %v", err)
	}

	_, err := repo.FindByIdempotency(ctx, run.WorkspaceID, run.TaskName, "key-1", time.Now().Add(-24*time.Hour))
	if err == nil {
		t.Fatal("row outside lookback window was returned")
	}
}

func TestDedupeKeepHighest(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	// Legacy rows have no schedule id, which the unique index treats as
	// distinct, so historical duplicates accumulate there.
	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, newRun(nil, "dup-key", models.RunStatusSuccess)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if err := repo.Create(ctx, newRun(nil, "other-key", models.RunStatusSuccess)); err != nil {
		t.Fatalf("create other: %v", err)
	}

	deleted, err := repo.DedupeKeepHighest(ctx)
	if err != nil {
		t.Fatalf("DedupeKeepHighest: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	var remaining []models.ScheduleRun
	if err := db.Where("idempotency_key = ?", "dup-key").Find(&remaining).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("remaining = %d, want 1", len(remaining))
	}
	if remaining[0].ID != 3 {
		t.Errorf("surviving id = %d, want the highest (3)", remaining[0].ID)
	}
}

func TestDeleteTerminalBefore(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	mk := func(key, status string, age time.Duration) {
		schedID := uuid.New()
		run := newRun(&schedID, key, status)
		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("create: %v", err)
		}
		if age > 0 {
			created := time.Now().Add(-age)
			if err := db.Model(&models.ScheduleRun{}).Where("id = ?", run.ID).Update("created_at", created).Error; err != nil {
				t.Fatalf("age row: %v", err)
			}
		}
	}

	mk("old-success", models.RunStatusSuccess, 40*24*time.Hour)
	mk("old-enqueued", models.RunStatusEnqueued, 40*24*time.Hour)
	mk("fresh-success", models.RunStatusSuccess, 0)

	deleted, err := repo.DeleteTerminalBefore(ctx, time.Now().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("DeleteTerminalBefore: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1 (only the old terminal run)", deleted)
	}

	var count int64
	db.Model(&models.ScheduleRun{}).Count(&count)
	if count != 2 {
		t.Errorf("remaining = %d, want 2", count)
	}
}

func TestMarkCompleted(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	schedID := uuid.New()
	run := newRun(&schedID, "key-1", models.RunStatusEnqueued)
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.MarkRunning(ctx, run.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}

	errCode := "timeout"
	errMsg := "provider did not respond"
	if err := repo.MarkCompleted(ctx, run.ID, models.RunStatusFailed, 1500, &errCode, &errMsg); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	got, err := repo.FindByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != models.RunStatusFailed {
		t.Errorf("status = %q", got.Status)
	}
	if got.DurationMs == nil || *got.DurationMs != 1500 {
		t.Errorf("duration = %v", got.DurationMs)
	}
	if got.ErrorCode == nil || *got.ErrorCode != "timeout" {
		t.Errorf("error code = %v", got.ErrorCode)
	}
	if !got.IsTerminal() {
		t.Error("failed run must be terminal")
	}
}
