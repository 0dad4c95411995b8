// Package lock provides short-lived, reentrant, holder-scoped locks over
// named resources, used to serialize conflicting operations.
package lock

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	domainlock "github.com/settlement-hub/settlement-hub/internal/domain/lock"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/store"
)

const retryInterval = 25 * time.Millisecond

// Manager acquires and releases locks through the shared atomic store. The
// stored value is the holder id, so release and reentrancy are holder-scoped.
type Manager struct {
	store  store.AtomicStore
	ttl    time.Duration
	logger zerolog.Logger
}

// NewManager creates a lock manager. ttl is the crash-safety expiry on every
// acquired lock.
func NewManager(st store.AtomicStore, ttl time.Duration, logger zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Manager{
		store:  st,
		ttl:    ttl,
		logger: logger.With().Str("service", "lock_manager").Logger(),
	}
}

// Acquire claims the resource for holderID, waiting up to timeout under
// contention. The same holder re-acquiring succeeds immediately. A timed-out
// wait returns domainlock.ErrAcquireTimeout, never a silent retry loop.
func (m *Manager) Acquire(ctx context.Context, resourceType, resourceID, holderID string, timeout time.Duration) (*domainlock.Lock, error) {
	key := domainlock.Key(resourceType, resourceID)
	deadline := time.Now().Add(timeout)

	for {
		acquired, err := m.store.SetIfAbsent(ctx, key, []byte(holderID), m.ttl)
		if err != nil {
			return nil, err
		}
		if acquired {
			now := time.Now().UTC()
			return &domainlock.Lock{
				ResourceType: resourceType,
				ResourceID:   resourceID,
				HolderID:     holderID,
				AcquiredAt:   now,
				ExpiresAt:    now.Add(m.ttl),
			}, nil
		}

		current, found, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if found && string(current) == holderID {
			// reentrant acquisition by the same holder
			now := time.Now().UTC()
			return &domainlock.Lock{
				ResourceType: resourceType,
				ResourceID:   resourceID,
				HolderID:     holderID,
				AcquiredAt:   now,
				ExpiresAt:    now.Add(m.ttl),
			}, nil
		}

		if timeout <= 0 || !time.Now().Add(retryInterval).Before(deadline) {
			return nil, domainlock.ErrAcquireTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Release drops the holder's claim. Releasing a lock held by someone else (or
// already expired) returns domainlock.ErrNotHeld.
func (m *Manager) Release(ctx context.Context, resourceType, resourceID, holderID string) error {
	key := domainlock.Key(resourceType, resourceID)
	removed, err := m.store.CompareAndDelete(ctx, key, []byte(holderID))
	if err != nil {
		return err
	}
	if !removed {
		return domainlock.ErrNotHeld
	}
	return nil
}
