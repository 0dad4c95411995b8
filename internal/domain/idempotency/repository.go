package idempotency

import (
	"context"
	"time"
)

// Repository defines persistence for idempotency records.
type Repository interface {
	// Claim atomically inserts a pending record for key. Returns
	// (true, nil, nil) when this caller won the claim, or
	// (false, existing, nil) when a record already exists.
	Claim(ctx context.Context, record *Record) (bool, *Record, error)
	// TakeOver re-claims an abandoned pending record older than staleBefore.
	// Returns true when this caller now owns the record.
	TakeOver(ctx context.Context, key string, staleBefore time.Time, fresh *Record) (bool, error)
	// Complete finalizes the record as completed or failed.
	Complete(ctx context.Context, record *Record) error
	// Get returns the record for key, nil if absent.
	Get(ctx context.Context, key string) (*Record, error)
	// DeleteExpired removes records past their TTL, returning the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
