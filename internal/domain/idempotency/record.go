package idempotency

import (
	"encoding/json"
	"time"
)

// Status tracks the lifecycle of an idempotent operation.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Record is the stored outcome of one idempotency-keyed operation. A reuse of
// Key with a different RequestFingerprint is a hard conflict, never a retry.
type Record struct {
	Key                string          `json:"key"`
	Operation          string          `json:"operation"`
	RequestFingerprint string          `json:"request_fingerprint"`
	Status             Status          `json:"status"`
	Response           json.RawMessage `json:"response,omitempty"`
	ErrorDetail        string          `json:"error_detail,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	ExpiresAt          time.Time       `json:"expires_at"`
}
