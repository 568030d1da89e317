package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) (*GormStore, *gorm.DB) {
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
	return NewGormStore(db), db
}

func seedTaskDef(t *testing.T, db *gorm.DB, name, queue string, enabled bool) {
	t.Helper()
	if err := db.Create(&models.TaskDefinition{
		Name:         name,
		Version:      1,
		DefaultQueue: queue,
		Visibility:   models.TaskVisibilityTenant,
		Enabled:      enabled,
	}).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}
}

func seedSchedule(t *testing.T, db *gorm.DB, taskName string, next *time.Time, enabled bool) *models.Schedule {
	t.Helper()
	interval := 300
	sched := &models.Schedule{
		ID:              uuid.New(),
		WorkspaceID:     uuid.New(),
		TaskName:        taskName,
		ScheduleType:    models.ScheduleTypeInterval,
		IntervalSeconds: &interval,
		Timezone:        "UTC",
		Enabled:         enabled,
		NextFireAt:      next,
	}
	if err := db.Create(sched).Error; err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	return sched
}

func TestGetDueFiltersAndOrders(t *testing.T) {
	st, db := newTestStore(t)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	seedTaskDef(t, db, "ttb.sync.products", "sync", true)
	seedTaskDef(t, db, "whisper.transcribe", "media", false)

	later := now.Add(time.Hour)
	earlier := now.Add(-2 * time.Minute)
	justDue := now.Add(-time.Second)

	dueLate := seedSchedule(t, db, "ttb.sync.products", &justDue, true)
	dueEarly := seedSchedule(t, db, "ttb.sync.products", &earlier, true)
	seedSchedule(t, db, "ttb.sync.products", &later, true)       // not due
	seedSchedule(t, db, "ttb.sync.products", &earlier, false)    // schedule disabled
	seedSchedule(t, db, "whisper.transcribe", &earlier, true)    // task disabled
	unset := seedSchedule(t, db, "ttb.sync.products", nil, true) // never computed

	due, err := st.GetDue(context.Background(), now, 500)
	if err != nil {
		t.Fatalf("GetDue: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("due = %d, want 3", len(due))
	}

	ids := map[uuid.UUID]bool{}
	for _, s := range due {
		ids[s.ID] = true
	}
	for _, want := range []*models.Schedule{dueEarly, dueLate, unset} {
		if !ids[want.ID] {
			t.Errorf("schedule %s missing from due set", want.ID)
		}
	}

	// Oldest next_fire_at first among the set rows.
	var gotEarly, gotLate int
	for i, s := range due {
		switch s.ID {
		case dueEarly.ID:
			gotEarly = i
		case dueLate.ID:
			gotLate = i
		}
	}
	if gotEarly > gotLate {
		t.Error("due schedules not ordered oldest first")
	}
}

func TestGetDueResolvesQueueOverride(t *testing.T) {
	st, db := newTestStore(t)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	seedTaskDef(t, db, "ttb.sync.products", "sync", true)
	sched := seedSchedule(t, db, "ttb.sync.products", &past, true)
	override := "critical"
	if err := db.Model(sched).Update("queue_override", &override).Error; err != nil {
		t.Fatalf("set override: %v", err)
	}

	due, err := st.GetDue(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("GetDue: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due = %d", len(due))
	}
	if due[0].Queue != "critical" {
		t.Errorf("queue = %q, want override %q", due[0].Queue, "critical")
	}
}

func TestTransactNestedRollbackIsolatesRow(t *testing.T) {
	st, db := newTestStore(t)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	seedTaskDef(t, db, "ttb.sync.products", "sync", true)
	keep := seedSchedule(t, db, "ttb.sync.products", &past, true)
	drop := seedSchedule(t, db, "ttb.sync.products", &past, true)

	next := now.Add(5 * time.Minute)
	err := st.Transact(context.Background(), func(tx ScheduleStore) error {
		// Succeeding row.
		if err := tx.Transact(context.Background(), func(row ScheduleStore) error {
			return row.UpdateNextFire(context.Background(), keep.ID, &next)
		}); err != nil {
			return err
		}
		// Failing row: its savepoint rolls back alone.
		rowErr := tx.Transact(context.Background(), func(row ScheduleStore) error {
			if err := row.UpdateNextFire(context.Background(), drop.ID, &next); err != nil {
				return err
			}
			return errors.New("simulated row failure")
		})
		if rowErr == nil {
			t.Fatal("expected row error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}

	var kept, dropped models.Schedule
	db.First(&kept, "id = ?", keep.ID)
	db.First(&dropped, "id = ?", drop.ID)

	if kept.NextFireAt == nil || !kept.NextFireAt.Equal(next) {
		t.Errorf("committed row next_fire = %v, want %v", kept.NextFireAt, next)
	}
	if dropped.NextFireAt == nil || !dropped.NextFireAt.Equal(past) {
		t.Errorf("rolled-back row next_fire = %v, want unchanged %v", dropped.NextFireAt, past)
	}
}

func TestRecordFiredAdvancesAndCounts(t *testing.T) {
	st, db := newTestStore(t)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	seedTaskDef(t, db, "ttb.sync.products", "sync", true)
	sched := seedSchedule(t, db, "ttb.sync.products", &past, true)

	next := now.Add(5 * time.Minute)
	if err := st.RecordFired(context.Background(), sched.ID, now, &next); err != nil {
		t.Fatalf("RecordFired: %v", err)
	}
	if err := st.RecordFired(context.Background(), sched.ID, now.Add(5*time.Minute), nil); err != nil {
		t.Fatalf("RecordFired: %v", err)
	}

	var got models.Schedule
	db.First(&got, "id = ?", sched.ID)
	if got.FireCount != 2 {
		t.Errorf("fire count = %d, want 2", got.FireCount)
	}
	if got.NextFireAt != nil {
		t.Errorf("next fire = %v, want nil", got.NextFireAt)
	}
	if got.LastFiredAt == nil {
		t.Error("last fired not recorded")
	}
}

func TestUpdateRunEnqueuedStampsBrokerID(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	schedID := uuid.New()
	run := &models.ScheduleRun{
		ScheduleID:     &schedID,
		WorkspaceID:    uuid.New(),
		TaskName:       "ttb.sync.products",
		ScheduledFor:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Status:         models.RunStatusEnqueued,
		IdempotencyKey: "key-1",
	}
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	enqueued := time.Date(2025, 6, 1, 10, 0, 1, 0, time.UTC)
	if err := st.UpdateRunEnqueued(ctx, run.ID, "broker-42", enqueued); err != nil {
		t.Fatalf("UpdateRunEnqueued: %v", err)
	}

	var got models.ScheduleRun
	st.db.First(&got, "id = ?", run.ID)
	if got.BrokerTaskID == nil || *got.BrokerTaskID != "broker-42" {
		t.Errorf("broker id = %v", got.BrokerTaskID)
	}
	if got.EnqueuedAt == nil {
		t.Error("enqueued_at not set")
	}
}
