// Package nonce hands out monotonically increasing, collision-free settlement
// sequence numbers per address, synchronized against on-chain state.
package nonce

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/settlement-hub/settlement-hub/internal/domain/settlement"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/store"
)

const keyPrefix = "nonce:"

// Manager reserves per-address transaction nonces. Reservation takes the
// maximum of the cached counter and a fresh on-chain probe as the baseline,
// then atomically increments, so a transaction confirmed through another path
// can never cause a reuse.
type Manager struct {
	store    store.AtomicStore
	probe    settlement.NonceProbe
	logger   zerolog.Logger
	degraded atomic.Bool
}

// NewManager creates a nonce manager over the shared store and chain probe.
func NewManager(st store.AtomicStore, probe settlement.NonceProbe, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  st,
		probe:  probe,
		logger: logger.With().Str("service", "nonce_manager").Logger(),
	}
}

// Reserve returns the next unused nonce for address. If the shared store is
// unavailable the manager degrades to probe-only mode: safe values but not
// collision-free under concurrency, flagged in observability output.
func (m *Manager) Reserve(ctx context.Context, address string) (uint64, error) {
	address = settlement.NormalizeAddress(address)
	onChain, err := m.probe.NextOnChainNonce(ctx, address)
	if err != nil {
		return 0, err
	}
	issued, err := m.store.ReserveSequence(ctx, keyPrefix+address, onChain)
	if err != nil {
		if m.degraded.CompareAndSwap(false, true) {
			m.logger.Error().Err(err).Msg("shared store unavailable, nonce manager degraded to probe-only mode")
		}
		return onChain, nil
	}
	if m.degraded.CompareAndSwap(true, false) {
		m.logger.Info().Msg("shared store recovered, nonce manager no longer degraded")
	}
	return issued, nil
}

// Release is best-effort compensation for a reservation that was never
// broadcast. It rewinds the counter only if value is still the most recently
// issued one; a stale release is a no-op, logged for audit.
func (m *Manager) Release(ctx context.Context, address string, value uint64) error {
	address = settlement.NormalizeAddress(address)
	rewound, err := m.store.ReleaseSequence(ctx, keyPrefix+address, value)
	if err != nil {
		return err
	}
	if !rewound {
		m.logger.Warn().
			Str("address", address).
			Uint64("nonce", value).
			Msg("stale nonce release ignored")
	}
	return nil
}

// Sync lifts the cached counter to the observed on-chain value and returns
// the resulting next nonce. The raise is atomic and never consumes a value,
// so a concurrent Reserve can neither collide with it nor leave a gap.
func (m *Manager) Sync(ctx context.Context, address string) (uint64, error) {
	address = settlement.NormalizeAddress(address)
	onChain, err := m.probe.NextOnChainNonce(ctx, address)
	if err != nil {
		return 0, err
	}
	next, err := m.store.SyncSequence(ctx, keyPrefix+address, onChain)
	if err != nil {
		return onChain, nil
	}
	return next, nil
}

// Degraded reports whether the manager is running probe-only.
func (m *Manager) Degraded() bool {
	return m.degraded.Load()
}
