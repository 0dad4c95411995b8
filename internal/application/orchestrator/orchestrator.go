// Package orchestrator composes verification, policy, settlement and
// recording into the verify -> policy-check -> execute -> record pipeline
// exposed to the transport layer.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/settlement-hub/settlement-hub/internal/application/idempotency"
	appledger "github.com/settlement-hub/settlement-hub/internal/application/ledger"
	"github.com/settlement-hub/settlement-hub/internal/application/lock"
	"github.com/settlement-hub/settlement-hub/internal/application/nonce"
	"github.com/settlement-hub/settlement-hub/internal/application/verifier"
	"github.com/settlement-hub/settlement-hub/internal/domain/mandate"
	"github.com/settlement-hub/settlement-hub/internal/domain/policy"
	"github.com/settlement-hub/settlement-hub/internal/domain/protocol"
	"github.com/settlement-hub/settlement-hub/internal/domain/settlement"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/resilience"
)

const (
	accountResource = "account"
	dispatchRetries = 3
	retryBackoff    = 200 * time.Millisecond
	lockWaitTimeout = 5 * time.Second
)

// ExecuteRequest is the decoded mandate chain submitted by an agent.
type ExecuteRequest struct {
	Intent  *mandate.IntentMandate  `json:"intent"`
	Cart    *mandate.CartMandate    `json:"cart"`
	Payment *mandate.PaymentMandate `json:"payment"`
}

// ExecutionReceipt is the durable confirmation of one settled mandate chain.
type ExecutionReceipt struct {
	PaymentMandateID string `json:"payment_mandate_id"`
	TxHash           string `json:"tx_hash"`
	Chain            string `json:"chain"`
	BlockNumber      int64  `json:"block_number"`
	ReservedNonce    uint64 `json:"reserved_nonce"`
	LedgerSequence   int64  `json:"ledger_sequence"`
	AuditAnchor      string `json:"audit_anchor"`
	Replayed         bool   `json:"replayed"`
}

// Orchestrator wires the core components into the single entry point the
// transport layer calls. All collaborators are injected at construction; no
// lazy globals.
type Orchestrator struct {
	verifier      *verifier.Service
	policy        policy.Evaluator
	nonces        *nonce.Manager
	locks         *lock.Manager
	coordinator   *idempotency.Coordinator
	engine        *appledger.Engine
	executor      settlement.Executor
	breaker       *resilience.Breaker
	sourceAddress string
	logger        zerolog.Logger
}

// New creates the orchestrator. sourceAddress is the settlement address the
// hub broadcasts from; nonces are reserved against it.
func New(
	verifierSvc *verifier.Service,
	policyEval policy.Evaluator,
	nonces *nonce.Manager,
	locks *lock.Manager,
	coordinator *idempotency.Coordinator,
	engine *appledger.Engine,
	executor settlement.Executor,
	breaker *resilience.Breaker,
	sourceAddress string,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		verifier:      verifierSvc,
		policy:        policyEval,
		nonces:        nonces,
		locks:         locks,
		coordinator:   coordinator,
		engine:        engine,
		executor:      executor,
		breaker:       breaker,
		sourceAddress: settlement.NormalizeAddress(sourceAddress),
		logger:        logger.With().Str("service", "orchestrator").Logger(),
	}
}

// VerifyAndExecute runs the full pipeline for one mandate chain. Failures are
// returned as *protocol.Rejection with a stable reason code; the request is
// never crashed by a validation or protocol-violation error.
func (o *Orchestrator) VerifyAndExecute(ctx context.Context, req ExecuteRequest, idempotencyKey string) (*ExecutionReceipt, *protocol.Rejection) {
	// A latched integrity fault halts settlement before any nonce or replay
	// key is consumed; money must not move without a ledger record.
	if o.engine.Halted() {
		return nil, protocol.Reject(protocol.ReasonLedgerIntegrityFault, "ledger integrity fault, settlement is halted")
	}

	// Replay fast path: a finished outcome for this key returns before any
	// nonce is consumed, so a client retry gets its receipt back instead of a
	// replayed-mandate rejection.
	fingerprint := o.requestFingerprint(req)
	if outcome, err := o.coordinator.Lookup(ctx, idempotencyKey, fingerprint); err != nil {
		return nil, RejectionFromError(err)
	} else if outcome != nil {
		return o.receiptFromOutcome(outcome)
	}

	// Construct the chain: every chain-of-custody invariant is checked here,
	// before any network call.
	chain, err := mandate.NewChain(req.Intent, req.Cart, req.Payment)
	if err != nil {
		return nil, RejectionFromError(err)
	}

	now := time.Now()
	for _, m := range []*mandate.Mandate{&chain.Intent.Mandate, &chain.Cart.Mandate, &chain.Payment.Mandate} {
		if m.Expired(now) {
			return nil, protocol.Reject(protocol.ReasonMandateExpired, "%s mandate %s is expired", m.Type, m.MandateID)
		}
	}

	if err := settlement.ValidateAddress(chain.Payment.Destination); err != nil {
		return nil, protocol.Reject(protocol.ReasonInvalidDestination, "destination is not a valid settlement address")
	}

	// Cryptographic verification of all three proofs. Each mandate's nonce is
	// consumed inside Verify, so a verified chain can never be re-presented.
	if rej := o.verifyProofs(ctx, chain); rej != nil {
		return nil, rej
	}

	// Policy and compliance collaborators.
	decision, err := o.policy.Evaluate(ctx, chain.Payment)
	if err != nil {
		o.logger.Error().Err(err).Msg("policy evaluation failed")
		return nil, protocol.Reject(protocol.ReasonDependencyUnavailable, "policy evaluation unavailable")
	}
	if !decision.Allowed {
		return nil, protocol.Reject(protocol.ReasonPolicyDenied, "%s", decision.Reason)
	}

	// Serialize settlement for the source account.
	held, err := o.locks.Acquire(ctx, accountResource, o.sourceAddress, idempotencyKey, lockWaitTimeout)
	if err != nil {
		return nil, RejectionFromError(err)
	}
	defer func() {
		if err := o.locks.Release(ctx, held.ResourceType, held.ResourceID, held.HolderID); err != nil {
			o.logger.Warn().Err(err).Str("resource", held.ResourceID).Msg("lock release failed")
		}
	}()

	outcome, err := o.coordinator.ExecuteOnce(ctx, idempotencyKey, "verify_and_execute", fingerprint,
		func(ctx context.Context) (json.RawMessage, error) {
			receipt, err := o.settle(ctx, chain, idempotencyKey)
			if err != nil {
				return nil, err
			}
			return json.Marshal(receipt)
		})
	if err != nil {
		return nil, RejectionFromError(err)
	}
	return o.receiptFromOutcome(outcome)
}

func (o *Orchestrator) receiptFromOutcome(outcome *idempotency.Outcome) (*ExecutionReceipt, *protocol.Rejection) {
	if outcome.Failed {
		return nil, protocol.Reject(protocol.ReasonSettlementFailed, "%s", outcome.ErrorDetail)
	}
	var receipt ExecutionReceipt
	if err := json.Unmarshal(outcome.Response, &receipt); err != nil {
		o.logger.Error().Err(err).Msg("stored receipt is unreadable")
		return nil, protocol.Reject(protocol.ReasonInternal, "internal error")
	}
	receipt.Replayed = outcome.Replayed
	return &receipt, nil
}

// verifyProofs checks intent and payment signatures against the subject agent
// and the cart signature against the merchant issuer.
func (o *Orchestrator) verifyProofs(ctx context.Context, chain *mandate.Chain) *protocol.Rejection {
	intentBytes, err := chain.Intent.CanonicalBytes()
	if err != nil {
		return protocol.Reject(protocol.ReasonMalformedMandate, "intent mandate is not canonicalizable")
	}
	if _, err := o.verifier.Verify(ctx, chain.Intent.Proof, intentBytes, chain.Intent.Subject, chain.Intent.Domain, chain.Intent.ReplayKey()); err != nil {
		return RejectionFromError(err)
	}

	cartBytes, err := chain.Cart.CanonicalBytes()
	if err != nil {
		return protocol.Reject(protocol.ReasonMalformedMandate, "cart mandate is not canonicalizable")
	}
	if _, err := o.verifier.Verify(ctx, chain.Cart.Proof, cartBytes, chain.Cart.Issuer, chain.Cart.Domain, chain.Cart.ReplayKey()); err != nil {
		return RejectionFromError(err)
	}

	paymentBytes, err := chain.Payment.CanonicalBytes()
	if err != nil {
		return protocol.Reject(protocol.ReasonMalformedMandate, "payment mandate is not canonicalizable")
	}
	if _, err := o.verifier.Verify(ctx, chain.Payment.Proof, paymentBytes, chain.Payment.Subject, chain.Payment.Domain, chain.Payment.ReplayKey()); err != nil {
		return RejectionFromError(err)
	}
	return nil
}

// settle reserves a nonce, dispatches the payment with bounded retries, and
// records the outcome in the ledger. Runs inside the idempotency coordinator.
func (o *Orchestrator) settle(ctx context.Context, chain *mandate.Chain, idempotencyKey string) (*ExecutionReceipt, error) {
	reserved, err := o.nonces.Reserve(ctx, o.sourceAddress)
	if err != nil {
		return nil, err
	}

	result, err := o.dispatchWithRetry(ctx, chain.Payment, reserved)
	if err != nil {
		// Reservation was never broadcast; rewind if still the latest.
		if releaseErr := o.nonces.Release(ctx, o.sourceAddress, reserved); releaseErr != nil {
			o.logger.Warn().Err(releaseErr).Uint64("nonce", reserved).Msg("nonce release failed")
		}
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"kind":               "settlement",
		"intent_mandate_id":  chain.Intent.MandateID,
		"cart_mandate_id":    chain.Cart.MandateID,
		"payment_mandate_id": chain.Payment.MandateID,
		"subject":            chain.Payment.Subject,
		"chain":              result.Chain,
		"token":              chain.Payment.Token,
		"amount_minor":       chain.Payment.AmountMinor,
		"currency":           chain.Cart.Currency,
		"destination":        chain.Payment.Destination,
		"audit_hash":         chain.Payment.AuditHash,
		"tx_hash":            result.TxHash,
		"block_number":       result.BlockNumber,
		"audit_anchor":       result.AuditAnchor,
		"reserved_nonce":     reserved,
		"idempotency_key":    idempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	entry, err := o.engine.Append(ctx, payload)
	if err != nil {
		return nil, err
	}

	return &ExecutionReceipt{
		PaymentMandateID: chain.Payment.MandateID.String(),
		TxHash:           result.TxHash,
		Chain:            result.Chain,
		BlockNumber:      result.BlockNumber,
		ReservedNonce:    reserved,
		LedgerSequence:   entry.Sequence,
		AuditAnchor:      result.AuditAnchor,
	}, nil
}

// dispatchWithRetry calls the chain executor through the circuit breaker with
// a bounded number of backoff retries. An open breaker fails fast; the
// failure is attributed to the dependency, not the caller.
func (o *Orchestrator) dispatchWithRetry(ctx context.Context, payment *mandate.PaymentMandate, reserved uint64) (*settlement.DispatchResult, error) {
	var result *settlement.DispatchResult
	var lastErr error
	for attempt := 1; attempt <= dispatchRetries; attempt++ {
		lastErr = o.breaker.Execute(func() error {
			dispatched, err := o.executor.DispatchPayment(ctx, payment, reserved)
			if err != nil {
				return err
			}
			result = dispatched
			return nil
		})
		if lastErr == nil {
			return result, nil
		}
		if errors.Is(lastErr, resilience.ErrBreakerOpen) {
			return nil, lastErr
		}
		if attempt < dispatchRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
	}
	return nil, lastErr
}

func (o *Orchestrator) requestFingerprint(req ExecuteRequest) string {
	body, _ := json.Marshal(req)
	return idempotency.Fingerprint(body)
}
