package trigger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/adsync-ai/adsync/internal/pkg/queue"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time           { return c.now }
func (c *fakeClock) Monotonic() time.Duration { return 0 }

type spyPublisher struct {
	inputs     []queue.PublishInput
	publishErr error
}

func (p *spyPublisher) Publish(ctx context.Context, in queue.PublishInput) (string, error) {
	if p.publishErr != nil {
		return "", p.publishErr
	}
	p.inputs = append(p.inputs, in)
	return fmt.Sprintf("broker-%d", len(p.inputs)), nil
}

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

func seedTask(t *testing.T, db *gorm.DB, name string, enabled bool, schema models.JSON) {
	t.Helper()
	task := &models.TaskDefinition{
		Name:         name,
		Version:      1,
		DefaultQueue: queue.QueueSync,
		Visibility:   models.TaskVisibilityTenant,
		Enabled:      enabled,
		InputSchema:  schema,
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}
}

func newTestService(t *testing.T) (*Service, *spyPublisher, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	pub := &spyPublisher{}
	clk := &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	return NewService(db, pub, clk, DefaultLookback), pub, db
}

func TestTriggerDispatchesExactlyOnceForReplayedKey(t *testing.T) {
	svc, pub, _ := newTestService(t)
	seedTask(t, svc.db, "ttb.sync.bc", true, nil)

	ws := uuid.New()
	in := Input{
		WorkspaceID:    ws,
		Action:         "ttb.sync.bc",
		Provider:       "tiktok",
		Scope:          "business_center",
		Args:           models.JSON{"bc_id": "42"},
		IdempotencyKey: "abc123",
	}

	first, err := svc.Trigger(context.Background(), in)
	if err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	if first.IdempotentHit {
		t.Fatal("first call flagged as idempotent hit")
	}
	if first.TaskID != "broker-1" {
		t.Fatalf("task id = %q", first.TaskID)
	}

	second, err := svc.Trigger(context.Background(), in)
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if !second.IdempotentHit {
		t.Fatal("replay not flagged as idempotent hit")
	}
	if second.TaskID != first.TaskID {
		t.Errorf("replay task id = %q, want %q", second.TaskID, first.TaskID)
	}
	if second.Status != first.Status {
		t.Errorf("replay status = %q, want %q", second.Status, first.Status)
	}
	if len(pub.inputs) != 1 {
		t.Fatalf("publisher invoked %d times, want exactly 1", len(pub.inputs))
	}
}

func TestTriggerRequiresIdempotencyKey(t *testing.T) {
	svc, pub, _ := newTestService(t)
	seedTask(t, svc.db, "ttb.sync.bc", true, nil)

	_, err := svc.Trigger(context.Background(), Input{
		WorkspaceID: uuid.New(),
		Action:      "ttb.sync.bc",
	})
	if !errors.Is(err, ErrIdempotencyKeyRequired) {
		t.Fatalf("err = %v, want ErrIdempotencyKeyRequired", err)
	}
	if len(pub.inputs) != 0 {
		t.Fatal("dispatch happened without a key")
	}
}

func TestTriggerReusedKeyWithDifferentPayloadRejected(t *testing.T) {
	svc, pub, _ := newTestService(t)
	seedTask(t, svc.db, "ttb.sync.bc", true, nil)

	ws := uuid.New()
	base := Input{
		WorkspaceID:    ws,
		Action:         "ttb.sync.bc",
		Args:           models.JSON{"bc_id": "42"},
		IdempotencyKey: "abc123",
	}
	if _, err := svc.Trigger(context.Background(), base); err != nil {
		t.Fatalf("first trigger: %v", err)
	}

	conflicting := base
	conflicting.Args = models.JSON{"bc_id": "99"}
	_, err := svc.Trigger(context.Background(), conflicting)
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want ErrIdempotencyConflict", err)
	}
	if len(pub.inputs) != 1 {
		t.Fatal("conflicting request was dispatched")
	}
}

func TestTriggerUnknownOrDisabledTask(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedTask(t, svc.db, "whisper.transcribe", false, nil)

	_, err := svc.Trigger(context.Background(), Input{
		WorkspaceID:    uuid.New(),
		Action:         "nope.missing",
		IdempotencyKey: "k1",
	})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}

	_, err = svc.Trigger(context.Background(), Input{
		WorkspaceID:    uuid.New(),
		Action:         "whisper.transcribe",
		IdempotencyKey: "k2",
	})
	if !errors.Is(err, ErrTaskDisabled) {
		t.Fatalf("err = %v, want ErrTaskDisabled", err)
	}
}

func TestTriggerValidatesArgsAgainstInputSchema(t *testing.T) {
	svc, pub, _ := newTestService(t)
	seedTask(t, svc.db, "ttb.sync.products", true, models.JSON{
		"type":     "object",
		"required": []interface{}{"shop_id"},
		"properties": map[string]interface{}{
			"shop_id": map[string]interface{}{"type": "string"},
		},
	})

	_, err := svc.Trigger(context.Background(), Input{
		WorkspaceID:    uuid.New(),
		Action:         "ttb.sync.products",
		Args:           models.JSON{},
		IdempotencyKey: "k1",
	})
	if err == nil {
		t.Fatal("schema violation accepted")
	}
	if len(pub.inputs) != 0 {
		t.Fatal("invalid request was dispatched")
	}
}

func TestTriggerCreatesAuditTrail(t *testing.T) {
	svc, _, db := newTestService(t)
	seedTask(t, svc.db, "ttb.sync.bc", true, nil)

	res, err := svc.Trigger(context.Background(), Input{
		WorkspaceID:    uuid.New(),
		Action:         "ttb.sync.bc",
		Args:           models.JSON{"bc_id": "42"},
		IdempotencyKey: "abc123",
	})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	var sched models.Schedule
	if err := db.First(&sched, "id = ?", res.ScheduleID).Error; err != nil {
		t.Fatalf("audit schedule missing: %v", err)
	}
	if sched.ScheduleType != models.ScheduleTypeOneoff {
		t.Errorf("schedule type = %q, want oneoff", sched.ScheduleType)
	}
	if sched.Enabled {
		t.Error("audit schedule must be disabled so the fire engine skips it")
	}

	var run models.ScheduleRun
	if err := db.First(&run, "id = ?", res.RunID).Error; err != nil {
		t.Fatalf("run missing: %v", err)
	}
	if run.Status != models.RunStatusEnqueued {
		t.Errorf("run status = %q", run.Status)
	}
	if run.BrokerTaskID == nil || *run.BrokerTaskID != res.TaskID {
		t.Errorf("broker task id not recorded: %v", run.BrokerTaskID)
	}
	if run.Stats["payload_hash"] == nil {
		t.Error("payload hash not stored in run stats")
	}
}

func TestTriggerPublishFailureMarksRunFailed(t *testing.T) {
	svc, pub, db := newTestService(t)
	seedTask(t, svc.db, "ttb.sync.bc", true, nil)
	pub.publishErr = errors.New("broker unavailable")

	_, err := svc.Trigger(context.Background(), Input{
		WorkspaceID:    uuid.New(),
		Action:         "ttb.sync.bc",
		Args:           models.JSON{"bc_id": "42"},
		IdempotencyKey: "abc123",
	})
	if err == nil {
		t.Fatal("publish failure not surfaced")
	}

	var run models.ScheduleRun
	if err := db.First(&run).Error; err != nil {
		t.Fatalf("run missing: %v", err)
	}
	if run.Status != models.RunStatusFailed {
		t.Errorf("run status = %q, want failed", run.Status)
	}
	if run.ErrorCode == nil || *run.ErrorCode != models.RunErrorPublish {
		t.Errorf("error code = %v, want publish_error", run.ErrorCode)
	}
}

func TestTriggerDuplicateInsertServesPriorRun(t *testing.T) {
	// When the fast-path lookup misses (here: the window lapsed between two
	// uses of the same key), the deterministic audit schedule id makes the
	// insert collide and the prior run is served instead of dispatching
	// again. The same path catches two concurrent identical requests.
	db := newTestDB(t)
	pub := &spyPublisher{}
	t0 := time.Now().UTC()
	clk := &fakeClock{now: t0}
	svc := NewService(db, pub, clk, DefaultLookback)
	seedTask(t, db, "ttb.sync.bc", true, nil)

	in := Input{
		WorkspaceID:    uuid.New(),
		Action:         "ttb.sync.bc",
		Args:           models.JSON{"bc_id": "42"},
		IdempotencyKey: "abc123",
	}
	first, err := svc.Trigger(context.Background(), in)
	if err != nil {
		t.Fatalf("first trigger: %v", err)
	}

	clk.now = t0.Add(48 * time.Hour)
	second, err := svc.Trigger(context.Background(), in)
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if !second.IdempotentHit {
		t.Fatal("storage-level duplicate not served as idempotent hit")
	}
	if second.TaskID != first.TaskID {
		t.Errorf("task id = %q, want %q", second.TaskID, first.TaskID)
	}
	if len(pub.inputs) != 1 {
		t.Fatalf("publisher invoked %d times, want exactly 1", len(pub.inputs))
	}
}

func TestTriggerEnvelopeCarriesLineage(t *testing.T) {
	svc, pub, _ := newTestService(t)
	seedTask(t, svc.db, "ttb.sync.bc", true, nil)

	res, err := svc.Trigger(context.Background(), Input{
		WorkspaceID:    uuid.New(),
		Action:         "ttb.sync.bc",
		Provider:       "tiktok",
		Scope:          "business_center",
		AuthID:         "auth-7",
		Args:           models.JSON{"bc_id": "42"},
		IdempotencyKey: "abc123",
	})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	payload := pub.inputs[0].Payload
	if payload["envelope_version"] != envelopeVersion {
		t.Errorf("envelope_version = %v", payload["envelope_version"])
	}
	if payload["provider"] != "tiktok" || payload["scope"] != "business_center" {
		t.Errorf("provider/scope = %v/%v", payload["provider"], payload["scope"])
	}
	meta, ok := payload["meta"].(map[string]interface{})
	if !ok {
		t.Fatal("meta missing from envelope")
	}
	if meta["run_id"] != res.RunID {
		t.Errorf("meta.run_id = %v, want %v", meta["run_id"], res.RunID)
	}
	if meta["idempotency_key"] != "abc123" {
		t.Errorf("meta.idempotency_key = %v", meta["idempotency_key"])
	}
}
