// Package replay implements the consume-once cache guarding nonces and
// mandate hashes against re-presentation.
package replay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/settlement-hub/settlement-hub/internal/infrastructure/store"
)

const keyPrefix = "replay:"

// Guard is the replay guard. Consume is atomic: under concurrent callers
// presenting the same key exactly one call returns true. When the shared
// store errors, the guard degrades to an in-process fallback, trading
// cross-instance safety for availability.
type Guard struct {
	shared   store.AtomicStore
	fallback *store.MemoryStore
	ttl      time.Duration
	logger   zerolog.Logger
	degraded atomic.Bool
}

// NewGuard creates a replay guard over the shared store. ttl bounds memory
// growth; mandate expirations sit far inside the TTL window so an
// expired-and-reused key never corresponds to a currently valid mandate.
func NewGuard(shared store.AtomicStore, ttl time.Duration, logger zerolog.Logger) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{
		shared:   shared,
		fallback: store.NewMemoryStore(),
		ttl:      ttl,
		logger:   logger.With().Str("service", "replay_guard").Logger(),
	}
}

// Consume marks key consumed. Returns true on first consumption, false on a
// duplicate. A store failure switches to the in-process fallback rather than
// failing the request.
func (g *Guard) Consume(ctx context.Context, key string, payload []byte) (bool, error) {
	first, err := g.shared.SetIfAbsent(ctx, keyPrefix+key, payload, g.ttl)
	if err != nil {
		if g.degraded.CompareAndSwap(false, true) {
			g.logger.Error().Err(err).Msg("shared store unavailable, replay guard degraded to in-process fallback")
		}
		return g.fallback.SetIfAbsent(ctx, keyPrefix+key, payload, g.ttl)
	}
	if g.degraded.CompareAndSwap(true, false) {
		g.logger.Info().Msg("shared store recovered, replay guard no longer degraded")
	}
	return first, nil
}

// IsConsumed reports whether key has been consumed and is still inside TTL.
func (g *Guard) IsConsumed(ctx context.Context, key string) (bool, error) {
	_, found, err := g.shared.Get(ctx, keyPrefix+key)
	if err != nil {
		_, fallbackFound, fbErr := g.fallback.Get(ctx, keyPrefix+key)
		if fbErr != nil {
			return false, fbErr
		}
		return fallbackFound, nil
	}
	if !found {
		// A key consumed during a degraded window lives only in the fallback.
		_, found, err = g.fallback.Get(ctx, keyPrefix+key)
		if err != nil {
			return false, err
		}
	}
	return found, nil
}

// Revoke removes a consumed key before TTL expiry.
func (g *Guard) Revoke(ctx context.Context, key string, payload []byte) error {
	if _, err := g.shared.CompareAndDelete(ctx, keyPrefix+key, payload); err != nil {
		return err
	}
	_, _ = g.fallback.CompareAndDelete(ctx, keyPrefix+key, payload)
	return nil
}

// Degraded reports whether the guard is running on the in-process fallback.
func (g *Guard) Degraded() bool {
	return g.degraded.Load()
}
