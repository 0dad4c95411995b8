package mandate

import "strings"

// Chain ties one Intent, one Cart and one Payment mandate into a single
// authorized transaction. Construction enforces the chain-of-custody
// invariants; a Chain value that exists is a valid chain.
type Chain struct {
	Intent  *IntentMandate
	Cart    *CartMandate
	Payment *PaymentMandate
}

// NewChain validates and links the three mandates. Any violation returns an
// *InvariantError with an enumerable kind; there is no partially valid chain.
func NewChain(intent *IntentMandate, cart *CartMandate, payment *PaymentMandate) (*Chain, error) {
	if intent == nil || cart == nil || payment == nil {
		return nil, newInvariantError(KindMissingField, "intent, cart and payment mandates are all required")
	}
	if intent.Type != TypeIntent {
		return nil, newInvariantError(KindWrongMandateType, "expected intent mandate, got %q", intent.Type)
	}
	if cart.Type != TypeCart {
		return nil, newInvariantError(KindWrongMandateType, "expected cart mandate, got %q", cart.Type)
	}
	if payment.Type != TypePayment {
		return nil, newInvariantError(KindWrongMandateType, "expected payment mandate, got %q", payment.Type)
	}

	for _, m := range []*Mandate{&intent.Mandate, &cart.Mandate, &payment.Mandate} {
		if err := m.ValidateBasic(); err != nil {
			return nil, err
		}
	}

	if cart.SubtotalMinor < 0 || cart.TaxesMinor < 0 || payment.AmountMinor < 0 {
		return nil, newInvariantError(KindNegativeAmount, "amounts must be non-negative")
	}

	// (a) one agent identity across the whole chain
	if cart.Subject != intent.Subject || payment.Subject != intent.Subject {
		return nil, newInvariantError(KindSubjectMismatch,
			"intent subject %q, cart subject %q, payment subject %q", intent.Subject, cart.Subject, payment.Subject)
	}

	// one protocol domain across the chain, and the cart's merchant domain
	// must agree with the domain it was signed under
	if !sameDomain(cart.Domain, intent.Domain) || !sameDomain(payment.Domain, intent.Domain) {
		return nil, newInvariantError(KindDomainMismatch,
			"intent domain %q, cart domain %q, payment domain %q", intent.Domain, cart.Domain, payment.Domain)
	}
	if !sameDomain(cart.MerchantDomain, cart.Domain) {
		return nil, newInvariantError(KindDomainMismatch,
			"cart merchant_domain %q does not match its mandate domain %q", cart.MerchantDomain, cart.Domain)
	}

	// (b) payment bounded by the merchant-signed cart total
	cartTotal := cart.SubtotalMinor + cart.TaxesMinor
	if payment.AmountMinor > cartTotal {
		return nil, newInvariantError(KindPaymentExceedsCart,
			"payment %d exceeds cart total %d", payment.AmountMinor, cartTotal)
	}

	// (c) payment bounded by the intent's declared ceiling, when present
	if intent.RequestedAmount != nil && payment.AmountMinor > *intent.RequestedAmount {
		return nil, newInvariantError(KindPaymentExceedsIntent,
			"payment %d exceeds intent limit %d", payment.AmountMinor, *intent.RequestedAmount)
	}

	// (d) expirations non-decreasing along the chain
	if cart.ExpiresAt.Before(intent.ExpiresAt) || payment.ExpiresAt.Before(cart.ExpiresAt) {
		return nil, newInvariantError(KindExpiryOrderViolation,
			"expirations must be non-decreasing: intent <= cart <= payment")
	}

	// Audit hash commitment binds the payment to this exact chain.
	expected := ComputeAuditHash(intent.MandateID, cart.MandateID, payment.AmountMinor, payment.Destination)
	if payment.AuditHash != expected {
		return nil, newInvariantError(KindAuditHashMismatch, "payment audit hash does not commit to this chain")
	}

	return &Chain{Intent: intent, Cart: cart, Payment: payment}, nil
}

func sameDomain(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Validate re-checks an already constructed chain. Pure, no I/O; exists for
// callers holding mandates parsed elsewhere.
func Validate(intent *IntentMandate, cart *CartMandate, payment *PaymentMandate) error {
	_, err := NewChain(intent, cart, payment)
	return err
}
