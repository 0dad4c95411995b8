// Package verifier validates agent-held key material and request-level
// signatures bound to a domain and a time window.
package verifier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/settlement-hub/settlement-hub/internal/application/replay"
	"github.com/settlement-hub/settlement-hub/internal/domain/identity"
)

var (
	ErrFutureTimestamp = errors.New("envelope created in the future")
	ErrExpired         = errors.New("envelope expired")
	ErrWindowTooLong   = errors.New("envelope validity window exceeds maximum")
	ErrReplayed        = errors.New("nonce already consumed")
)

const clockSkew = 30 * time.Second

// Outcome is a successful verification: the resolved signing identity.
type Outcome struct {
	AgentID string
	KeyID   string
}

// Service verifies signature envelopes. Checks run cheapest-first and
// short-circuit: shape, algorithm allow-list, time window, replay, then the
// cryptographic verification against the directory-resolved key. Nonce
// consumption happens inside Verify; there is no separate consume step a
// caller could skip.
type Service struct {
	directory identity.Directory
	guard     *replay.Guard
	maxWindow time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a verifier. maxWindow caps Created..Expires to prevent
// long-lived replay windows.
func NewService(directory identity.Directory, guard *replay.Guard, maxWindow time.Duration, logger zerolog.Logger) *Service {
	if maxWindow <= 0 {
		maxWindow = 5 * time.Minute
	}
	return &Service{
		directory: directory,
		guard:     guard,
		maxWindow: maxWindow,
		logger:    logger.With().Str("service", "verifier").Logger(),
		now:       time.Now,
	}
}

// Verify checks env over message for the claimed agent identity. domain is
// the protocol domain the request claims; a key scoped to a different domain
// is rejected even when the signature itself is valid. nonce is the
// envelope-scoped replay key; on success it is atomically consumed.
func (s *Service) Verify(ctx context.Context, env identity.Envelope, message []byte, agentID, domain, nonce string) (*Outcome, error) {
	// 1. structural well-formedness
	if err := env.ValidateShape(); err != nil {
		return nil, err
	}

	// 2. algorithm allow-list
	alg, err := identity.ParseAlgorithm(string(env.Algorithm))
	if err != nil {
		return nil, err
	}

	// 3. time window
	now := s.now()
	if env.Created.After(now.Add(clockSkew)) {
		return nil, ErrFutureTimestamp
	}
	if !env.Created.Before(env.Expires) {
		return nil, identity.ErrMalformedEnvelope
	}
	if env.Expires.Sub(env.Created) > s.maxWindow {
		return nil, ErrWindowTooLong
	}
	if !now.Before(env.Expires) {
		return nil, ErrExpired
	}

	// 4. replay: cheap duplicate reject before the expensive crypto check
	consumed, err := s.guard.IsConsumed(ctx, nonce)
	if err != nil {
		return nil, err
	}
	if consumed {
		return nil, ErrReplayed
	}

	// 5. resolve key and verify the signature
	key, err := s.directory.ResolveKey(ctx, agentID, env.KeyID)
	if err != nil {
		return nil, err
	}
	if key.Frozen {
		return nil, identity.ErrAgentFrozen
	}
	if key.Domain != "" && !strings.EqualFold(strings.TrimSpace(domain), key.Domain) {
		return nil, identity.ErrDomainMismatch
	}
	if key.Algorithm != alg {
		return nil, identity.ErrSignatureInvalid
	}
	if err := env.Verify(message, key.PublicKey); err != nil {
		return nil, err
	}

	// Atomic consume is the authoritative replay gate; a concurrent duplicate
	// that slipped past step 4 loses here.
	first, err := s.guard.Consume(ctx, nonce, []byte(agentID))
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, ErrReplayed
	}

	s.logger.Debug().
		Str("agentId", agentID).
		Str("keyId", env.KeyID).
		Str("algorithm", string(alg)).
		Msg("signature verified")
	return &Outcome{AgentID: agentID, KeyID: env.KeyID}, nil
}
