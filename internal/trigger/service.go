package trigger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/adsync-ai/adsync/internal/domain/repositories"
	"github.com/adsync-ai/adsync/internal/pkg/clock"
	"github.com/adsync-ai/adsync/internal/pkg/queue"
	"github.com/adsync-ai/adsync/internal/pkg/validator"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	envelopeVersion = 1

	// DefaultLookback bounds how far back a replayed idempotency key is
	// honored.
	DefaultLookback = 24 * time.Hour
)

// Service is the on-demand trigger path: it guards against duplicate side
// effects with a client-supplied idempotency key, records a disabled oneoff
// schedule plus a run as the audit trail, and publishes an envelope the
// worker can consume without a second database round-trip.
type Service struct {
	db        *gorm.DB
	tasks     *repositories.TaskRepository
	runs      *repositories.RunRepository
	publisher queue.Publisher
	clock     clock.Clock
	lookback  time.Duration
}

func NewService(db *gorm.DB, publisher queue.Publisher, clk clock.Clock, lookback time.Duration) *Service {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Service{
		db:        db,
		tasks:     repositories.NewTaskRepository(db),
		runs:      repositories.NewRunRepository(db),
		publisher: publisher,
		clock:     clk,
		lookback:  lookback,
	}
}

type Input struct {
	WorkspaceID    uuid.UUID
	Action         string
	Provider       string
	Scope          string
	AuthID         string
	Args           models.JSON
	Options        models.JSON
	Priority       string
	DelaySeconds   int
	IdempotencyKey string
	CreatedBy      *uuid.UUID
}

type Result struct {
	RunID         uint
	ScheduleID    *uuid.UUID
	TaskID        string
	Action        string
	WorkspaceID   uuid.UUID
	Status        string
	EnqueuedAt    *time.Time
	IdempotentHit bool
}

// Trigger runs the guard-then-dispatch sequence. A replayed key within the
// lookback window returns the prior run without touching the broker; a key
// reused with a different body is rejected.
func (s *Service) Trigger(ctx context.Context, in Input) (*Result, error) {
	if in.IdempotencyKey == "" {
		return nil, ErrIdempotencyKeyRequired
	}

	task, err := s.tasks.FindByName(ctx, in.Action)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if !task.Enabled {
		return nil, ErrTaskDisabled
	}

	if err := validator.ValidateParams(task.InputSchema, in.Args); err != nil {
		return nil, err
	}

	hash := PayloadHash(in.Args)
	now := s.clock.Now()

	prior, err := s.runs.FindByIdempotency(ctx, in.WorkspaceID, in.Action, in.IdempotencyKey, now.Add(-s.lookback))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if prior != nil {
		return s.replay(prior, hash)
	}

	sched := &models.Schedule{
		ID:           auditScheduleID(in.WorkspaceID, in.Action, in.IdempotencyKey),
		WorkspaceID:  in.WorkspaceID,
		TaskName:     in.Action,
		ScheduleType: models.ScheduleTypeOneoff,
		OneoffRunAt:  &now,
		Timezone:     "UTC",
		// Disabled so the fire engine never picks it up; the dispatch
		// below is the single firing.
		Enabled:   false,
		Params:    in.Args,
		CreatedBy: in.CreatedBy,
		UpdatedBy: in.CreatedBy,
	}
	run := &models.ScheduleRun{
		ScheduleID:     &sched.ID,
		WorkspaceID:    in.WorkspaceID,
		TaskName:       in.Action,
		ScheduledFor:   now,
		Status:         models.RunStatusEnqueued,
		IdempotencyKey: in.IdempotencyKey,
		Stats: models.JSON{
			"params":       map[string]interface{}(in.Args),
			"payload_hash": hash,
			"trigger":      "on_demand",
		},
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sched).Error; err != nil {
			return err
		}
		return tx.Create(run).Error
	})
	if err != nil {
		if repositories.IsDuplicateKey(err) {
			// Lost a race with a concurrent identical request, or the key
			// was reused after the lookup window lapsed. Either way the
			// surviving audit row holds the result to serve; the lookup here
			// is unbounded because the storage constraint outlives the
			// window.
			prior, lookupErr := s.runs.FindByIdempotency(ctx, in.WorkspaceID, in.Action, in.IdempotencyKey, time.Time{})
			if lookupErr != nil {
				return nil, lookupErr
			}
			return s.replay(prior, hash)
		}
		return nil, err
	}

	brokerID, err := s.publisher.Publish(ctx, queue.PublishInput{
		TaskName: in.Action,
		Payload:  s.envelope(in, run, sched.ID),
		Queue:    s.resolveQueue(in.Priority, task.DefaultQueue),
		Delay:    time.Duration(in.DelaySeconds) * time.Second,
	})
	if err != nil {
		errCode := models.RunErrorPublish
		errMsg := err.Error()
		if markErr := s.runs.MarkCompleted(ctx, run.ID, models.RunStatusFailed, 0, &errCode, &errMsg); markErr != nil {
			log.Error().Err(markErr).Uint("run_id", run.ID).Msg("Failed to mark run as publish-failed")
		}
		return nil, fmt.Errorf("publish: %w", err)
	}

	enqueuedAt := s.clock.Now()
	if err := s.runs.SetBrokerTaskID(ctx, run.ID, brokerID, enqueuedAt); err != nil {
		log.Error().Err(err).Uint("run_id", run.ID).Msg("Failed to record broker task id")
	}

	log.Info().
		Str("workspace_id", in.WorkspaceID.String()).
		Str("action", in.Action).
		Str("broker_task_id", brokerID).
		Msg("On-demand trigger dispatched")

	return &Result{
		RunID:       run.ID,
		ScheduleID:  &sched.ID,
		TaskID:      brokerID,
		Action:      in.Action,
		WorkspaceID: in.WorkspaceID,
		Status:      models.RunStatusEnqueued,
		EnqueuedAt:  &enqueuedAt,
	}, nil
}

func (s *Service) replay(prior *models.ScheduleRun, hash string) (*Result, error) {
	if stored, ok := prior.Stats["payload_hash"].(string); ok && stored != hash {
		return nil, ErrIdempotencyConflict
	}

	taskID := ""
	if prior.BrokerTaskID != nil {
		taskID = *prior.BrokerTaskID
	}

	log.Debug().
		Uint("run_id", prior.ID).
		Str("action", prior.TaskName).
		Msg("Idempotent replay served from run ledger")

	return &Result{
		RunID:         prior.ID,
		ScheduleID:    prior.ScheduleID,
		TaskID:        taskID,
		Action:        prior.TaskName,
		WorkspaceID:   prior.WorkspaceID,
		Status:        prior.Status,
		EnqueuedAt:    prior.EnqueuedAt,
		IdempotentHit: true,
	}, nil
}

func (s *Service) envelope(in Input, run *models.ScheduleRun, scheduleID uuid.UUID) map[string]interface{} {
	options := map[string]interface{}(in.Options)
	if options == nil {
		options = map[string]interface{}{}
	}
	return map[string]interface{}{
		"envelope_version": envelopeVersion,
		"provider":         in.Provider,
		"scope":            in.Scope,
		"workspace_id":     in.WorkspaceID.String(),
		"auth_id":          in.AuthID,
		"args":             map[string]interface{}(in.Args),
		"options":          options,
		"meta": map[string]interface{}{
			"run_id":          run.ID,
			"schedule_id":     scheduleID.String(),
			"idempotency_key": run.IdempotencyKey,
		},
	}
}

func (s *Service) resolveQueue(priority, taskDefault string) string {
	switch priority {
	case "critical", "high":
		return queue.QueueCritical
	case "":
		if taskDefault != "" {
			return taskDefault
		}
		return queue.QueueDefault
	default:
		if taskDefault != "" {
			return taskDefault
		}
		return queue.QueueDefault
	}
}

// PayloadHash fingerprints the normalized request body so a reused
// idempotency key with different content can be detected.
func PayloadHash(args models.JSON) string {
	raw, _ := json.Marshal(args)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// auditScheduleID derives the audit schedule's id from the idempotency
// scope. Two requests with the same key build the same id, so the loser of
// an insert race hits the primary key and replays the winner's run instead
// of dispatching a second time.
func auditScheduleID(workspaceID uuid.UUID, action, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|%s|%s", workspaceID, action, key)))
}
