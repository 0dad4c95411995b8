package settlement

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_executor.go -package=mocks . Executor,NonceProbe

import (
	"context"
	"errors"

	"github.com/settlement-hub/settlement-hub/internal/domain/mandate"
)

var ErrDispatchFailed = errors.New("settlement dispatch failed")

// DispatchResult is the collaborator's confirmation of a broadcast payment.
type DispatchResult struct {
	TxHash      string `json:"tx_hash"`
	Chain       string `json:"chain"`
	BlockNumber int64  `json:"block_number"`
	AuditAnchor string `json:"audit_anchor"`
}

// Executor dispatches an approved payment to the settlement chain. The
// collaborator must be idempotent keyed by mandate_id at its own layer too.
type Executor interface {
	DispatchPayment(ctx context.Context, payment *mandate.PaymentMandate, reservedNonce uint64) (*DispatchResult, error)
}

// NonceProbe reads the live on-chain transaction count for an address.
type NonceProbe interface {
	NextOnChainNonce(ctx context.Context, address string) (uint64, error)
}
