package orchestrator

import (
	"errors"

	appidem "github.com/settlement-hub/settlement-hub/internal/application/idempotency"
	"github.com/settlement-hub/settlement-hub/internal/application/verifier"
	"github.com/settlement-hub/settlement-hub/internal/domain/identity"
	domainledger "github.com/settlement-hub/settlement-hub/internal/domain/ledger"
	domainlock "github.com/settlement-hub/settlement-hub/internal/domain/lock"
	"github.com/settlement-hub/settlement-hub/internal/domain/mandate"
	"github.com/settlement-hub/settlement-hub/internal/domain/protocol"
	"github.com/settlement-hub/settlement-hub/internal/domain/settlement"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/resilience"
)

// invariantReasons is the fixed mapping from chain-invariant kinds to wire
// reason codes. Built once; never recomputed per call.
var invariantReasons = map[mandate.InvariantKind]protocol.ReasonCode{
	mandate.KindMissingField:         protocol.ReasonMalformedMandate,
	mandate.KindWrongMandateType:     protocol.ReasonMalformedMandate,
	mandate.KindNegativeAmount:       protocol.ReasonMalformedMandate,
	mandate.KindExpiryBeforeCreation: protocol.ReasonMalformedMandate,
	mandate.KindSubjectMismatch:      protocol.ReasonSubjectMismatch,
	mandate.KindPaymentExceedsCart:   protocol.ReasonPaymentExceedsCartTotal,
	mandate.KindPaymentExceedsIntent: protocol.ReasonPaymentExceedsIntent,
	mandate.KindExpiryOrderViolation: protocol.ReasonExpiryOrderViolation,
	mandate.KindAuditHashMismatch:    protocol.ReasonAuditHashMismatch,
	mandate.KindDomainMismatch:       protocol.ReasonMandateDomainMismatch,
}

// RejectionFromError maps core errors onto the stable rejection taxonomy.
// Anything unmapped becomes an internal rejection; internal detail never
// reaches the client.
func RejectionFromError(err error) *protocol.Rejection {
	if err == nil {
		return nil
	}
	if rej, ok := err.(*protocol.Rejection); ok {
		return rej
	}

	var invariant *mandate.InvariantError
	if errors.As(err, &invariant) {
		reason, ok := invariantReasons[invariant.Kind]
		if !ok {
			reason = protocol.ReasonMalformedMandate
		}
		return protocol.Reject(reason, "%s", invariant.Message)
	}

	switch {
	case errors.Is(err, identity.ErrMalformedEnvelope):
		return protocol.Reject(protocol.ReasonMalformedEnvelope, "signature envelope is malformed")
	case errors.Is(err, identity.ErrUnsupportedAlgorithm):
		return protocol.Reject(protocol.ReasonUnsupportedAlgorithm, "signature algorithm is not allow-listed")
	case errors.Is(err, verifier.ErrFutureTimestamp):
		return protocol.Reject(protocol.ReasonFutureTimestamp, "envelope creation time is in the future")
	case errors.Is(err, verifier.ErrExpired):
		return protocol.Reject(protocol.ReasonEnvelopeExpired, "envelope validity window has passed")
	case errors.Is(err, verifier.ErrWindowTooLong):
		return protocol.Reject(protocol.ReasonWindowTooLong, "envelope validity window exceeds the allowed maximum")
	case errors.Is(err, verifier.ErrReplayed):
		return protocol.Reject(protocol.ReasonReplayedMandate, "mandate nonce has already been consumed")
	case errors.Is(err, identity.ErrSignatureInvalid):
		return protocol.Reject(protocol.ReasonSignatureInvalid, "signature verification failed")
	case errors.Is(err, identity.ErrAgentNotFound):
		return protocol.Reject(protocol.ReasonUnknownAgent, "signing identity is not registered")
	case errors.Is(err, identity.ErrAgentFrozen):
		return protocol.Reject(protocol.ReasonAgentFrozen, "signing identity is frozen")
	case errors.Is(err, identity.ErrDomainMismatch):
		return protocol.Reject(protocol.ReasonDomainMismatch, "signing key is not bound to the claimed domain")

	case errors.Is(err, appidem.ErrFingerprintConflict):
		return protocol.Reject(protocol.ReasonIdempotencyConflict, "idempotency key was reused with a different request")
	case errors.Is(err, appidem.ErrInProgress):
		return protocol.Reject(protocol.ReasonOperationInProgress, "operation is already in progress, retry later")
	case errors.Is(err, domainlock.ErrAcquireTimeout), errors.Is(err, domainlock.ErrHeld):
		return protocol.Reject(protocol.ReasonResourceLocked, "resource is locked by another operation")

	case errors.Is(err, resilience.ErrBreakerOpen):
		return protocol.Reject(protocol.ReasonDependencyUnavailable, "settlement dependency temporarily unavailable")
	case errors.Is(err, settlement.ErrDispatchFailed):
		return protocol.Reject(protocol.ReasonSettlementFailed, "settlement dispatch failed")
	case errors.Is(err, domainledger.ErrIntegrityFault):
		return protocol.Reject(protocol.ReasonLedgerIntegrityFault, "ledger integrity fault, writes are halted")
	}

	return protocol.Reject(protocol.ReasonInternal, "internal error")
}
