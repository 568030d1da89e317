package trigger

import "errors"

var (
	// ErrIdempotencyKeyRequired rejects on-demand triggers without a
	// client-supplied idempotency key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")

	// ErrIdempotencyConflict means the key was reused with a different
	// request body within the lookback window.
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different payload")

	ErrTaskNotFound = errors.New("task not found")
	ErrTaskDisabled = errors.New("task is disabled")
)
