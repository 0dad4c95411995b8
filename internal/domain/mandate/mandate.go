package mandate

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/settlement-hub/settlement-hub/internal/domain/identity"
)

// Type discriminates the three mandate kinds in a chain.
type Type string

const (
	TypeIntent  Type = "intent"
	TypeCart    Type = "cart"
	TypePayment Type = "payment"
)

// Mandate is the signed, time-bounded authorization object shared by all
// three kinds. Proof is the detached signature envelope over CanonicalBytes.
type Mandate struct {
	MandateID uuid.UUID         `json:"mandate_id"`
	Type      Type              `json:"mandate_type"`
	Issuer    string            `json:"issuer"`
	Subject   string            `json:"subject"`
	Domain    string            `json:"domain"`
	Purpose   string            `json:"purpose"`
	Nonce     string            `json:"nonce"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Proof     identity.Envelope `json:"proof"`
}

// IntentMandate authorizes a class of downstream spending.
type IntentMandate struct {
	Mandate
	Scope           []string `json:"scope"`
	RequestedAmount *int64   `json:"requested_amount,omitempty"` // minor units, upper bound
}

// LineItem is one merchant-priced cart row.
type LineItem struct {
	SKU        string `json:"sku"`
	Label      string `json:"label"`
	Quantity   int    `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

// CartMandate is the merchant-signed cart contents.
type CartMandate struct {
	Mandate
	MerchantDomain string     `json:"merchant_domain"`
	LineItems      []LineItem `json:"line_items"`
	SubtotalMinor  int64      `json:"subtotal_minor"`
	TaxesMinor     int64      `json:"taxes_minor"`
	Currency       string     `json:"currency"`
}

// PaymentMandate is the final settlement instruction.
type PaymentMandate struct {
	Mandate
	Chain       string `json:"chain"`
	Token       string `json:"token"`
	AmountMinor int64  `json:"amount_minor"`
	Destination string `json:"destination"`
	AuditHash   string `json:"audit_hash"` // keccak256 commitment, hex
}

// ValidateBasic checks the fields shared by every mandate kind.
func (m *Mandate) ValidateBasic() error {
	if m.MandateID == uuid.Nil {
		return newInvariantError(KindMissingField, "mandate_id is required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return newInvariantError(KindMissingField, "subject is required")
	}
	if strings.TrimSpace(m.Issuer) == "" {
		return newInvariantError(KindMissingField, "issuer is required")
	}
	if strings.TrimSpace(m.Domain) == "" {
		return newInvariantError(KindMissingField, "domain is required")
	}
	if strings.TrimSpace(m.Nonce) == "" {
		return newInvariantError(KindMissingField, "nonce is required")
	}
	if m.CreatedAt.IsZero() || m.ExpiresAt.IsZero() {
		return newInvariantError(KindMissingField, "created_at and expires_at are required")
	}
	if !m.ExpiresAt.After(m.CreatedAt) {
		return newInvariantError(KindExpiryBeforeCreation, "expires_at must be after created_at")
	}
	return nil
}

// Expired reports whether the mandate is expired at the given instant.
func (m *Mandate) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

type signableMandate struct {
	MandateID string          `json:"mandate_id"`
	Type      Type            `json:"mandate_type"`
	Issuer    string          `json:"issuer"`
	Subject   string          `json:"subject"`
	Domain    string          `json:"domain"`
	Purpose   string          `json:"purpose"`
	Nonce     string          `json:"nonce"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Body      json.RawMessage `json:"body,omitempty"`
}

func (m *Mandate) canonicalBytes(body interface{}) ([]byte, error) {
	var raw json.RawMessage
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(signableMandate{
		MandateID: m.MandateID.String(),
		Type:      m.Type,
		Issuer:    strings.TrimSpace(m.Issuer),
		Subject:   strings.TrimSpace(m.Subject),
		Domain:    strings.TrimSpace(m.Domain),
		Purpose:   strings.TrimSpace(m.Purpose),
		Nonce:     strings.TrimSpace(m.Nonce),
		CreatedAt: m.CreatedAt.UTC(),
		ExpiresAt: m.ExpiresAt.UTC(),
		Body:      raw,
	})
}

type intentBody struct {
	Scope           []string `json:"scope"`
	RequestedAmount *int64   `json:"requested_amount,omitempty"`
}

type cartBody struct {
	MerchantDomain string     `json:"merchant_domain"`
	LineItems      []LineItem `json:"line_items"`
	SubtotalMinor  int64      `json:"subtotal_minor"`
	TaxesMinor     int64      `json:"taxes_minor"`
	Currency       string     `json:"currency"`
}

type paymentBody struct {
	Chain       string `json:"chain"`
	Token       string `json:"token"`
	AmountMinor int64  `json:"amount_minor"`
	Destination string `json:"destination"`
	AuditHash   string `json:"audit_hash"`
}

// CanonicalBytes returns the deterministic signing payload for the intent.
func (m *IntentMandate) CanonicalBytes() ([]byte, error) {
	return m.canonicalBytes(intentBody{Scope: m.Scope, RequestedAmount: m.RequestedAmount})
}

// CanonicalBytes returns the deterministic signing payload for the cart.
func (m *CartMandate) CanonicalBytes() ([]byte, error) {
	return m.canonicalBytes(cartBody{
		MerchantDomain: strings.TrimSpace(m.MerchantDomain),
		LineItems:      m.LineItems,
		SubtotalMinor:  m.SubtotalMinor,
		TaxesMinor:     m.TaxesMinor,
		Currency:       strings.ToUpper(strings.TrimSpace(m.Currency)),
	})
}

// CanonicalBytes returns the deterministic signing payload for the payment.
func (m *PaymentMandate) CanonicalBytes() ([]byte, error) {
	return m.canonicalBytes(paymentBody{
		Chain:       strings.TrimSpace(m.Chain),
		Token:       strings.TrimSpace(m.Token),
		AmountMinor: m.AmountMinor,
		Destination: strings.TrimSpace(m.Destination),
		AuditHash:   strings.TrimSpace(m.AuditHash),
	})
}

// ComputeAuditHash returns the keccak256 commitment binding a payment to the
// rest of its chain: intent id, cart id, amount and destination.
func ComputeAuditHash(intentID, cartID uuid.UUID, amountMinor int64, destination string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(intentID.String()))
	h.Write([]byte(cartID.String()))
	var amount [8]byte
	for i := 0; i < 8; i++ {
		amount[7-i] = byte(amountMinor >> (8 * i))
	}
	h.Write(amount[:])
	h.Write([]byte(strings.ToLower(strings.TrimSpace(destination))))
	return hex.EncodeToString(h.Sum(nil))
}

// ReplayKey is the consume-once key for a mandate: its nonce scoped by the
// mandate id, so distinct mandates can never collide on a shared nonce string.
func (m *Mandate) ReplayKey() string {
	return m.MandateID.String() + ":" + strings.TrimSpace(m.Nonce)
}
