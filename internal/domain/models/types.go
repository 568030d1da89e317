package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
)

// JSON type for JSONB columns
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("failed to scan JSON: unsupported source type")
	}
}

// StringArray type for text[] columns
type StringArray = pq.StringArray

// Schedule types
const (
	ScheduleTypeInterval = "interval"
	ScheduleTypeCrontab  = "crontab"
	ScheduleTypeOneoff   = "oneoff"
)

// Run status constants. Legacy values (scheduled, consumed, skipped) still
// appear in rows written by earlier releases and are normalized on read.
const (
	RunStatusEnqueued = "enqueued"
	RunStatusRunning  = "running"
	RunStatusSuccess  = "success"
	RunStatusFailed   = "failed"
	RunStatusPartial  = "partial"
)

// Legacy run statuses
const (
	legacyRunStatusScheduled = "scheduled"
	legacyRunStatusConsumed  = "consumed"
	legacyRunStatusSkipped   = "skipped"
)

// Run error codes
const (
	RunErrorMisfire = "misfire"
	RunErrorPublish = "publish_error"
	RunErrorTimeout = "timeout"
)

// Task visibility
const (
	TaskVisibilityTenant   = "tenant"
	TaskVisibilityPlatform = "platform"
)

// NormalizeRunStatus maps legacy status values onto the current vocabulary.
func NormalizeRunStatus(status string) string {
	switch status {
	case legacyRunStatusScheduled:
		return RunStatusEnqueued
	case legacyRunStatusConsumed:
		return RunStatusRunning
	case legacyRunStatusSkipped:
		return RunStatusFailed
	default:
		return status
	}
}
