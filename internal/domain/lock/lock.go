package lock

import (
	"errors"
	"time"
)

var (
	// ErrAcquireTimeout is returned when the bounded wait for a contended
	// resource elapses. Distinct from ErrHeld so callers can tell a timed-out
	// wait from an immediate rejection.
	ErrAcquireTimeout = errors.New("lock acquisition timed out")
	ErrHeld           = errors.New("lock held by another holder")
	ErrNotHeld        = errors.New("lock not held by this holder")
)

// Lock is a short-lived, holder-scoped claim over a named resource. Expiry is
// the safety net against a holder crashing mid-operation.
type Lock struct {
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	HolderID     string    `json:"holder_id"`
	AcquiredAt   time.Time `json:"acquired_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Key returns the store key for a resource.
func Key(resourceType, resourceID string) string {
	return "lock:" + resourceType + ":" + resourceID
}
