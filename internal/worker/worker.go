package worker

import (
	"gorm.io/gorm"

	"github.com/adsync-ai/adsync/internal/pkg/config"
	"github.com/adsync-ai/adsync/internal/pkg/queue"
	pkgredis "github.com/adsync-ai/adsync/internal/pkg/redis"
	"github.com/adsync-ai/adsync/internal/provider"
)

// Worker consumes sync tasks from the queue and executes them against the
// provider registry. One handler serves every provider; routing happens on
// the task type prefix.
type Worker struct {
	server  *queue.Server
	handler *SyncHandler
}

// taskPrefixProvider maps the catalog's task name prefixes to provider
// names. TikTok Business tasks keep their historical "ttb" prefix.
var taskPrefixProvider = map[string]string{
	"ttb":     "tiktok",
	"kie":     "kie",
	"whisper": "whisper",
}

func New(cfg *config.Config, db *gorm.DB, redisClient *pkgredis.Client, registry *provider.Registry) *Worker {
	server := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency)
	handler := NewSyncHandler(db, redisClient, registry, &cfg.Worker)

	for prefix := range taskPrefixProvider {
		server.HandleFunc(prefix+".", handler.Handle)
	}

	return &Worker{server: server, handler: handler}
}

func (w *Worker) Start() error {
	return w.server.Start()
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}
