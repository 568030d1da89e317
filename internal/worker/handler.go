package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/adsync-ai/adsync/internal/domain/repositories"
	"github.com/adsync-ai/adsync/internal/pkg/config"
	"github.com/adsync-ai/adsync/internal/pkg/lock"
	"github.com/adsync-ai/adsync/internal/pkg/metrics"
	pkgredis "github.com/adsync-ai/adsync/internal/pkg/redis"
	"github.com/adsync-ai/adsync/internal/provider"
)

var errLockBusy = errors.New("sync lock is held by another worker")

// SyncHandler executes one queued sync task: it resolves the run ledger row,
// takes the per-binding distributed lock, calls the provider, and records
// the outcome.
type SyncHandler struct {
	runs     *repositories.RunRepository
	registry *provider.Registry
	locks    lock.Store
	cfg      *config.WorkerConfig
}

func NewSyncHandler(db *gorm.DB, redisClient *pkgredis.Client, registry *provider.Registry, cfg *config.WorkerConfig) *SyncHandler {
	return &SyncHandler{
		runs:     repositories.NewRunRepository(db),
		registry: registry,
		locks:    redisClient,
		cfg:      cfg,
	}
}

// payload is the superset of the two message shapes on the wire: the fire
// engine's flat schedule payload and the on-demand versioned envelope.
type payload struct {
	EnvelopeVersion int                    `json:"envelope_version"`
	Provider        string                 `json:"provider"`
	Scope           string                 `json:"scope"`
	WorkspaceID     string                 `json:"workspace_id"`
	AuthID          string                 `json:"auth_id"`
	Args            map[string]interface{} `json:"args"`
	Options         map[string]interface{} `json:"options"`
	Meta            struct {
		RunID          uint   `json:"run_id"`
		ScheduleID     string `json:"schedule_id"`
		IdempotencyKey string `json:"idempotency_key"`
	} `json:"meta"`

	// Fire engine shape
	ScheduleID     string                 `json:"schedule_id"`
	IdempotencyKey string                 `json:"idempotency_key"`
	ScheduledFor   string                 `json:"scheduled_for"`
	Params         map[string]interface{} `json:"params"`
}

func (h *SyncHandler) Handle(ctx context.Context, task *asynq.Task) error {
	var p payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		// Malformed payloads never become valid; drop instead of retrying.
		log.Error().Err(err).Str("task_type", task.Type()).Msg("Dropping malformed task payload")
		return nil
	}

	workspaceID, err := uuid.Parse(p.WorkspaceID)
	if err != nil {
		log.Error().Str("task_type", task.Type()).Str("workspace_id", p.WorkspaceID).Msg("Dropping task without valid workspace")
		return nil
	}

	providerName := p.Provider
	if providerName == "" {
		prefix := task.Type()
		if i := strings.Index(prefix, "."); i >= 0 {
			prefix = prefix[:i]
		}
		if mapped, ok := taskPrefixProvider[prefix]; ok {
			providerName = mapped
		} else {
			providerName = prefix
		}
	}

	prov, err := h.registry.Get(providerName)
	if err != nil {
		log.Error().Str("task_type", task.Type()).Str("provider", providerName).Msg("Dropping task for unknown provider")
		return nil
	}

	run, err := h.resolveRun(ctx, workspaceID, task.Type(), &p)
	if err != nil {
		return fmt.Errorf("resolve run: %w", err)
	}
	if run != nil && run.IsTerminal() {
		// Broker redelivery of an already-settled run.
		log.Debug().Uint("run_id", run.ID).Msg("Skipping redelivery of terminal run")
		return nil
	}

	args := p.Args
	if args == nil {
		args = p.Params
	}

	// One sync per (workspace, provider auth) at a time. Contention is
	// returned as an error so the broker redelivers later.
	authKey := p.AuthID
	if authKey == "" {
		authKey = providerName
	}
	syncLock := lock.New(h.locks,
		fmt.Sprintf("lock:sync:%s:%s", workspaceID, authKey),
		lock.WithTTL(h.cfg.LockTTL),
		lock.WithHeartbeatInterval(h.cfg.HeartbeatInterval),
	)
	acquired, err := syncLock.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		return errLockBusy
	}
	defer func() {
		if _, err := syncLock.Release(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to release sync lock")
		}
	}()

	if run != nil {
		if err := h.runs.MarkRunning(ctx, run.ID); err != nil {
			log.Warn().Err(err).Uint("run_id", run.ID).Msg("Failed to mark run running")
		}
	}

	metrics.TaskExecutionsInProgress.WithLabelValues(task.Type()).Inc()
	start := time.Now()
	result, execErr := prov.Execute(ctx, provider.Request{
		Action:  task.Type(),
		Scope:   p.Scope,
		AuthID:  p.AuthID,
		Args:    args,
		Options: p.Options,
	})
	duration := time.Since(start)
	metrics.TaskExecutionsInProgress.WithLabelValues(task.Type()).Dec()

	status := models.RunStatusSuccess
	var errCode, errMsg *string
	switch {
	case execErr != nil:
		status = models.RunStatusFailed
		code := "provider_error"
		msg := execErr.Error()
		errCode, errMsg = &code, &msg
	case syncLock.Lost():
		// The work finished but exclusivity lapsed partway; another worker
		// may have overlapped.
		status = models.RunStatusPartial
		code := "lock_lost"
		errCode = &code
	}

	metrics.RecordTaskExecution(task.Type(), status, triggerKind(&p), duration.Seconds())
	metrics.RecordProviderRequest(providerName, status, duration.Seconds())
	if queueName, ok := asynq.GetQueueName(ctx); ok {
		metrics.QueueTasksProcessed.WithLabelValues(queueName, status).Inc()
	}

	if run != nil {
		if err := h.runs.MarkCompleted(ctx, run.ID, status, duration.Milliseconds(), errCode, errMsg); err != nil {
			log.Error().Err(err).Uint("run_id", run.ID).Msg("Failed to record run outcome")
		}
		if result != nil {
			stats := run.Stats
			if stats == nil {
				stats = models.JSON{}
			}
			stats["items_synced"] = result.Items
			if result.Output != nil {
				stats["output"] = map[string]interface{}(result.Output)
			}
			if err := h.runs.UpdateStats(ctx, run.ID, stats); err != nil {
				log.Warn().Err(err).Uint("run_id", run.ID).Msg("Failed to record run stats")
			}
		}
	}

	if execErr != nil {
		return fmt.Errorf("execute %s: %w", task.Type(), execErr)
	}

	log.Info().
		Str("task_type", task.Type()).
		Str("workspace_id", workspaceID.String()).
		Str("status", status).
		Dur("duration", duration).
		Msg("Sync task completed")
	return nil
}

// resolveRun locates the ledger row for this delivery. On-demand envelopes
// carry the run id; fire engine payloads carry the idempotency key instead.
// A missing row is tolerated: execution still proceeds, only unledgered.
func (h *SyncHandler) resolveRun(ctx context.Context, workspaceID uuid.UUID, taskName string, p *payload) (*models.ScheduleRun, error) {
	if p.Meta.RunID != 0 {
		run, err := h.runs.FindByID(ctx, p.Meta.RunID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return run, nil
	}

	key := p.IdempotencyKey
	if key == "" {
		key = p.Meta.IdempotencyKey
	}
	if key == "" {
		return nil, nil
	}

	run, err := h.runs.FindByIdempotency(ctx, workspaceID, taskName, key, time.Time{})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

func triggerKind(p *payload) string {
	if p.EnvelopeVersion > 0 {
		return "on_demand"
	}
	return "scheduled"
}
