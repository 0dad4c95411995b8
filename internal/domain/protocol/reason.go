package protocol

import "net/http"

// ReasonCode is a stable, protocol-prefixed rejection code. TAP_* codes cover
// identity and transport-envelope failures, AP2_* codes cover mandate-chain
// failures. Codes are part of the wire contract and must never be renamed.
type ReasonCode string

const (
	// TAP identity / envelope failures.
	ReasonMalformedEnvelope    ReasonCode = "TAP_MALFORMED_ENVELOPE"
	ReasonUnsupportedAlgorithm ReasonCode = "TAP_UNSUPPORTED_ALGORITHM"
	ReasonFutureTimestamp      ReasonCode = "TAP_FUTURE_TIMESTAMP"
	ReasonEnvelopeExpired      ReasonCode = "TAP_EXPIRED"
	ReasonWindowTooLong        ReasonCode = "TAP_WINDOW_TOO_LONG"
	ReasonReplayed             ReasonCode = "TAP_REPLAYED"
	ReasonSignatureInvalid     ReasonCode = "TAP_SIGNATURE_INVALID"
	ReasonUnknownAgent         ReasonCode = "TAP_UNKNOWN_AGENT"
	ReasonAgentFrozen          ReasonCode = "TAP_AGENT_FROZEN"
	ReasonDomainMismatch       ReasonCode = "TAP_DOMAIN_MISMATCH"

	// AP2 mandate-chain failures.
	ReasonMalformedMandate        ReasonCode = "AP2_MALFORMED_MANDATE"
	ReasonSubjectMismatch         ReasonCode = "AP2_SUBJECT_MISMATCH"
	ReasonPaymentExceedsCartTotal ReasonCode = "AP2_PAYMENT_EXCEEDS_CART_TOTAL"
	ReasonPaymentExceedsIntent    ReasonCode = "AP2_PAYMENT_EXCEEDS_INTENT_LIMIT"
	ReasonExpiryOrderViolation    ReasonCode = "AP2_EXPIRY_ORDER_VIOLATION"
	ReasonMandateExpired          ReasonCode = "AP2_MANDATE_EXPIRED"
	ReasonAuditHashMismatch       ReasonCode = "AP2_AUDIT_HASH_MISMATCH"
	ReasonReplayedMandate         ReasonCode = "AP2_REPLAYED_MANDATE"
	ReasonInvalidDestination      ReasonCode = "AP2_INVALID_DESTINATION"
	ReasonMandateDomainMismatch   ReasonCode = "AP2_DOMAIN_MISMATCH"

	// Policy, conflicts, dependencies.
	ReasonPolicyDenied          ReasonCode = "POLICY_DENIED"
	ReasonIdempotencyConflict   ReasonCode = "IDEMPOTENCY_CONFLICT"
	ReasonOperationInProgress   ReasonCode = "OPERATION_IN_PROGRESS"
	ReasonResourceLocked        ReasonCode = "RESOURCE_LOCKED"
	ReasonRateLimited           ReasonCode = "RATE_LIMITED"
	ReasonDependencyUnavailable ReasonCode = "DEPENDENCY_UNAVAILABLE"
	ReasonSettlementFailed      ReasonCode = "SETTLEMENT_FAILED"
	ReasonLedgerIntegrityFault  ReasonCode = "LEDGER_INTEGRITY_FAULT"
	ReasonInternal              ReasonCode = "INTERNAL_ERROR"
)

// statusByReason is the fixed reason-code to HTTP status mapping. It is built
// once at package init; every code maps to exactly one status class.
var statusByReason = map[ReasonCode]int{
	ReasonMalformedEnvelope:    http.StatusBadRequest,
	ReasonUnsupportedAlgorithm: http.StatusBadRequest,
	ReasonFutureTimestamp:      http.StatusUnauthorized,
	ReasonEnvelopeExpired:      http.StatusUnauthorized,
	ReasonWindowTooLong:        http.StatusUnauthorized,
	ReasonReplayed:             http.StatusConflict,
	ReasonSignatureInvalid:     http.StatusUnauthorized,
	ReasonUnknownAgent:         http.StatusUnauthorized,
	ReasonAgentFrozen:          http.StatusForbidden,
	ReasonDomainMismatch:       http.StatusForbidden,

	ReasonMalformedMandate:        http.StatusBadRequest,
	ReasonSubjectMismatch:         http.StatusUnprocessableEntity,
	ReasonPaymentExceedsCartTotal: http.StatusUnprocessableEntity,
	ReasonPaymentExceedsIntent:    http.StatusUnprocessableEntity,
	ReasonExpiryOrderViolation:    http.StatusUnprocessableEntity,
	ReasonMandateExpired:          http.StatusUnprocessableEntity,
	ReasonAuditHashMismatch:       http.StatusUnprocessableEntity,
	ReasonReplayedMandate:         http.StatusConflict,
	ReasonInvalidDestination:      http.StatusUnprocessableEntity,
	ReasonMandateDomainMismatch:   http.StatusUnprocessableEntity,

	ReasonPolicyDenied:          http.StatusForbidden,
	ReasonIdempotencyConflict:   http.StatusConflict,
	ReasonOperationInProgress:   http.StatusConflict,
	ReasonResourceLocked:        http.StatusConflict,
	ReasonRateLimited:           http.StatusTooManyRequests,
	ReasonDependencyUnavailable: http.StatusServiceUnavailable,
	ReasonSettlementFailed:      http.StatusBadGateway,
	ReasonLedgerIntegrityFault:  http.StatusInternalServerError,
	ReasonInternal:              http.StatusInternalServerError,
}

// HTTPStatus returns the fixed status for a reason code. Unknown codes map to
// 500 so a missing table entry can never downgrade a failure to success.
func (c ReasonCode) HTTPStatus() int {
	if status, ok := statusByReason[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether a clean retry of the same request might succeed.
// Conflict and dependency classes are retryable; protocol violations are not.
func (c ReasonCode) Retryable() bool {
	switch c {
	case ReasonOperationInProgress, ReasonResourceLocked, ReasonRateLimited,
		ReasonDependencyUnavailable, ReasonSettlementFailed:
		return true
	default:
		return false
	}
}
