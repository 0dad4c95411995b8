// Package store abstracts the shared atomic store used by the replay guard,
// nonce reservation manager and lock manager. Implementations must make each
// method a single atomic operation as observed by concurrent callers.
package store

import (
	"context"
	"time"
)

// AtomicStore is the shared-store contract. The Postgres implementation gives
// cross-instance atomicity; the in-process memory implementation is the
// fallback for environments without a shared store.
type AtomicStore interface {
	// SetIfAbsent stores value under key with a TTL only if key is absent or
	// expired. Returns true when this call created the entry.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Get returns the unexpired value for key.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// CompareAndDelete removes key only if its current value equals expected.
	// Returns true when the entry was removed.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)
	// ReserveSequence lifts the counter at key to at least floor, then
	// atomically increments it, returning the pre-increment value.
	ReserveSequence(ctx context.Context, key string, floor uint64) (uint64, error)
	// ReleaseSequence rewinds the counter only if value was the most recently
	// issued reservation. Releasing a stale value returns false and is a no-op.
	ReleaseSequence(ctx context.Context, key string, value uint64) (bool, error)
	// SyncSequence lifts the counter at key to at least floor without
	// consuming a value, returning the resulting next value.
	SyncSequence(ctx context.Context, key string, floor uint64) (uint64, error)
	// PurgeExpired removes expired keys, returning the count removed.
	PurgeExpired(ctx context.Context) (int64, error)
}
