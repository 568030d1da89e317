package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/adsync-ai/adsync/internal/domain/repositories"
	"github.com/adsync-ai/adsync/internal/pkg/clock"
	"github.com/adsync-ai/adsync/internal/pkg/queue"
	pkgredis "github.com/adsync-ai/adsync/internal/pkg/redis"
	"github.com/adsync-ai/adsync/internal/scheduler/cron"
	"github.com/adsync-ai/adsync/internal/scheduler/dispatcher"
	"github.com/adsync-ai/adsync/internal/scheduler/leader"
	"github.com/adsync-ai/adsync/internal/scheduler/metrics"
	"github.com/adsync-ai/adsync/internal/scheduler/poller"
	"github.com/adsync-ai/adsync/internal/scheduler/recovery"
	"github.com/adsync-ai/adsync/internal/scheduler/store"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Scheduler wires the fire engine together and runs it behind leader
// election: only the elected instance scans, recovers, and cleans up, while
// followers keep trying to take over.
type Scheduler struct {
	config *Config

	election     *leader.Election
	watcher      *leader.Watcher
	poller       *poller.Poller
	dispatcher   *dispatcher.Dispatcher
	staleRecov   *recovery.StaleRecovery
	cleanup      *recovery.Cleanup
	backpressure *dispatcher.BackpressureMonitor
	metrics      *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Dependencies struct {
	DB    *gorm.DB
	Redis *pkgredis.Client
	Queue *queue.Client
}

func New(cfg *Config, deps *Dependencies) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Validate()

	ctx, cancel := context.WithCancel(context.Background())

	scheduleStore := store.NewGormStore(deps.DB)
	clk := clock.New()
	calculator := cron.NewCalculator()

	election := leader.NewElection(deps.Redis, cfg.LeaderKey, cfg.LeaderTTL)

	var globalLimiter, wsLimiter dispatcher.RateLimiter
	if deps.Redis != nil {
		globalLimiter = dispatcher.NewSlidingWindowLimiter(
			deps.Redis, "scheduler:ratelimit:global", cfg.GlobalRateLimit, time.Minute,
		)
		wsLimiter = dispatcher.NewSlidingWindowLimiter(
			deps.Redis, "scheduler:ratelimit:workspace", cfg.WorkspaceLimit, time.Minute,
		)
	} else {
		globalLimiter = dispatcher.NewLocalLimiter(cfg.GlobalRateLimit, time.Minute)
		wsLimiter = dispatcher.NewLocalLimiter(cfg.WorkspaceLimit, time.Minute)
	}

	disp := dispatcher.NewDispatcher(deps.Queue, globalLimiter, wsLimiter)

	poll := poller.NewPoller(scheduleStore, disp, calculator, clk, cfg.BatchSize, cfg.RefreshInterval)
	poll.SetMinInterval(cfg.MinIntervalS)

	bp := dispatcher.NewBackpressureMonitor(deps.Redis, "asynq:{default}", cfg.MaxQueueDepth)
	poll.SetBackpressure(bp)

	staleRecov := recovery.NewStaleRecovery(scheduleStore, calculator, clk, cfg.StaleThreshold)
	cleanup := recovery.NewCleanup(repositories.NewRunRepository(deps.DB), cfg.RetentionDays)

	collector := metrics.NewCollector()
	poll.SetCollector(collector)
	staleRecov.SetCollector(collector)
	bp.OnDepth(collector.SetQueueDepth)
	watcher := leader.NewWatcher(election, cfg.LeaderTTL/3).
		OnAcquire(func() {
			collector.SetLeader(true)
			log.Info().Str("identity", election.Identity()).Msg("Leadership acquired")
		}).
		OnLose(func() {
			collector.SetLeader(false)
			log.Warn().Str("identity", election.Identity()).Msg("Leadership lost")
		})

	return &Scheduler{
		config:       cfg,
		election:     election,
		watcher:      watcher,
		poller:       poll,
		dispatcher:   disp,
		staleRecov:   staleRecov,
		cleanup:      cleanup,
		backpressure: bp,
		metrics:      collector,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (s *Scheduler) Start() error {
	log.Info().
		Str("leader_key", s.config.LeaderKey).
		Dur("refresh_interval", s.config.RefreshInterval).
		Int("batch_size", s.config.BatchSize).
		Msg("Starting scheduler")

	s.wg.Add(1)
	go s.leaderLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watcher.Watch(s.ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.backpressure.Start(s.ctx)
	}()

	return nil
}

func (s *Scheduler) Stop() error {
	log.Info().Msg("Stopping scheduler...")

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Scheduler stopped gracefully")
	case <-time.After(s.config.ShutdownTimeout):
		log.Warn().Msg("Scheduler shutdown timed out")
	}

	s.election.Release(context.Background())

	return nil
}

func (s *Scheduler) leaderLoop() {
	defer s.wg.Done()

	extendTicker := time.NewTicker(s.config.LeaderTTL / 3)
	defer extendTicker.Stop()

	acquireTicker := time.NewTicker(5 * time.Second)
	defer acquireTicker.Stop()

	var workersCancel context.CancelFunc

	stopWorkers := func() {
		if workersCancel != nil {
			workersCancel()
			workersCancel = nil
		}
	}

	startWorkers := func() {
		var workersCtx context.Context
		workersCtx, workersCancel = context.WithCancel(s.ctx)

		s.wg.Add(3)
		go func() {
			defer s.wg.Done()
			s.poller.Run(workersCtx)
		}()
		go func() {
			defer s.wg.Done()
			s.staleRecov.Run(workersCtx)
		}()
		go func() {
			defer s.wg.Done()
			s.cleanup.Run(workersCtx)
		}()
	}

	for {
		select {
		case <-s.ctx.Done():
			stopWorkers()
			return

		case <-acquireTicker.C:
			if !s.election.IsLeader() {
				acquired, err := s.election.TryAcquire(s.ctx)
				if err != nil {
					log.Error().Err(err).Msg("Failed to acquire leadership")
					continue
				}
				if acquired {
					startWorkers()
				}
			}

		case <-extendTicker.C:
			if s.election.IsLeader() {
				if !s.election.Extend(s.ctx) {
					// Scanning without leadership risks double fires
					// beyond what the run ledger constraint absorbs, so
					// workers stop before the next tick.
					stopWorkers()
				}
			}
		}
	}
}

func (s *Scheduler) IsLeader() bool {
	return s.election.IsLeader()
}

func (s *Scheduler) Metrics() *metrics.Collector {
	return s.metrics
}

func (s *Scheduler) Health() map[string]interface{} {
	snapshot := s.metrics.Snapshot()
	pollerStats := s.poller.Stats()
	dispatcherStats := s.dispatcher.Stats()

	return map[string]interface{}{
		"is_leader":        snapshot.IsLeader,
		"uptime_seconds":   int64(snapshot.Uptime.Seconds()),
		"scans_total":      pollerStats.PollCount,
		"last_scan_at":     pollerStats.LastPollAt,
		"fired_total":      pollerStats.FiredTotal,
		"misfires_total":   pollerStats.MisfiresTotal,
		"dispatched_total": dispatcherStats.Dispatched,
		"skipped_total":    dispatcherStats.Skipped,
		"failed_total":     dispatcherStats.Failed,
		"queue_depth":      s.backpressure.QueueDepth(),
	}
}
