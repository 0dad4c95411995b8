package policy

import (
	"context"

	"github.com/settlement-hub/settlement-hub/internal/domain/mandate"
)

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluator approves or denies a payment mandate after chain validation and
// before settlement. Implementations are selected via configuration.
type Evaluator interface {
	Evaluate(ctx context.Context, payment *mandate.PaymentMandate) (Decision, error)
}

// AllowAll is the permissive evaluator used when no rules are configured.
type AllowAll struct{}

func (AllowAll) Evaluate(_ context.Context, _ *mandate.PaymentMandate) (Decision, error) {
	return Decision{Allowed: true}, nil
}
