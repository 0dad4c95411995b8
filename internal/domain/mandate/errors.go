package mandate

import "fmt"

// InvariantKind enumerates chain-of-custody violations. Kinds are stable
// strings so the API layer can map them to wire-level reason codes.
type InvariantKind string

const (
	KindMissingField         InvariantKind = "missing_field"
	KindExpiryBeforeCreation InvariantKind = "expiry_before_creation"
	KindSubjectMismatch      InvariantKind = "subject_mismatch"
	KindPaymentExceedsCart   InvariantKind = "payment_exceeds_cart_total"
	KindPaymentExceedsIntent InvariantKind = "payment_exceeds_intent_limit"
	KindExpiryOrderViolation InvariantKind = "expiry_order_violation"
	KindAuditHashMismatch    InvariantKind = "audit_hash_mismatch"
	KindDomainMismatch       InvariantKind = "domain_mismatch"
	KindNegativeAmount       InvariantKind = "negative_amount"
	KindWrongMandateType     InvariantKind = "wrong_mandate_type"
)

// InvariantError is a specific, enumerable chain-invariant failure.
type InvariantError struct {
	Kind    InvariantKind
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("chain invariant %s: %s", e.Kind, e.Message)
}

func newInvariantError(kind InvariantKind, format string, args ...interface{}) *InvariantError {
	return &InvariantError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InvariantKindOf returns the kind if err is an InvariantError, else "".
func InvariantKindOf(err error) InvariantKind {
	if ie, ok := err.(*InvariantError); ok {
		return ie.Kind
	}
	return ""
}
