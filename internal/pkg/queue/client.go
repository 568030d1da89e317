package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adsync-ai/adsync/internal/pkg/config"
	"github.com/adsync-ai/adsync/internal/pkg/metrics"
	"github.com/hibiken/asynq"
)

const (
	QueueCritical = "critical"
	QueueSync     = "sync"
	QueueMedia    = "media"
	QueueDefault  = "default"
)

// Publisher is the broker contract the fire engine and the on-demand
// trigger path both dispatch through.
type Publisher interface {
	Publish(ctx context.Context, in PublishInput) (string, error)
}

// PublishInput describes one message: a task name routed to a named queue,
// an optional delivery delay, and an optional explicit broker task id.
type PublishInput struct {
	TaskName string
	Payload  map[string]interface{}
	Queue    string
	Delay    time.Duration
	TaskID   string
}

type Client struct {
	client *asynq.Client
}

func NewClient(cfg *config.RedisConfig) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Client{client: client}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Publish enqueues exactly one message and returns the broker-assigned task
// id. Publish failures are not retried here; the caller decides whether to
// log-and-skip or surface the error.
func (c *Client) Publish(ctx context.Context, in PublishInput) (string, error) {
	data, err := json.Marshal(in.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	queue := in.Queue
	if queue == "" {
		queue = QueueDefault
	}

	opts := []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(3),
		asynq.Timeout(5 * time.Minute),
		asynq.Retention(24 * time.Hour),
	}
	if in.Delay > 0 {
		opts = append(opts, asynq.ProcessIn(in.Delay))
	}
	if in.TaskID != "" {
		opts = append(opts, asynq.TaskID(in.TaskID))
	}

	task := asynq.NewTask(in.TaskName, data, opts...)

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", in.TaskName, err)
	}

	metrics.QueueTasksTotal.WithLabelValues(queue).Inc()
	return info.ID, nil
}
