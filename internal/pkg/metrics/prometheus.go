package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Task Execution Metrics
	TaskExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_task_executions_total",
			Help: "Total number of task executions",
		},
		[]string{"task", "status", "trigger"},
	)

	TaskExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsync_task_execution_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"task"},
	)

	TaskExecutionsInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adsync_task_executions_in_progress",
			Help: "Number of task executions currently in progress",
		},
		[]string{"task"},
	)

	// Provider Metrics
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_provider_requests_total",
			Help: "Total number of provider API requests",
		},
		[]string{"provider", "status"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsync_provider_request_duration_seconds",
			Help:    "Provider API request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// Queue Metrics
	QueueTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_queue_tasks_total",
			Help: "Total number of tasks enqueued",
		},
		[]string{"queue"},
	)

	QueueTasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_queue_tasks_processed_total",
			Help: "Total number of tasks processed",
		},
		[]string{"queue", "status"},
	)

	// Rate Limiting Metrics
	RateLimitHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"workspace_id", "endpoint"},
	)
)

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records HTTP request metrics
func ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTaskExecution records task execution metrics
func RecordTaskExecution(task, status, trigger string, durationSeconds float64) {
	TaskExecutionsTotal.WithLabelValues(task, status, trigger).Inc()
	if durationSeconds > 0 {
		TaskExecutionDuration.WithLabelValues(task).Observe(durationSeconds)
	}
}

// RecordProviderRequest records provider call metrics
func RecordProviderRequest(provider, status string, durationSeconds float64) {
	ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
	if durationSeconds > 0 {
		ProviderRequestDuration.WithLabelValues(provider).Observe(durationSeconds)
	}
}

// RecordRateLimitHit records rate limit hits
func RecordRateLimitHit(workspaceID, endpoint string) {
	RateLimitHitsTotal.WithLabelValues(workspaceID, endpoint).Inc()
}
