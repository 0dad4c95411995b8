package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/settlement-hub/settlement-hub/internal/domain/mandate"
)

// RuleEvaluator evaluates configured boolean expressions against payment
// mandate attributes. Every rule must evaluate to true for the payment to be
// allowed; the first failing rule names the denial reason.
//
// Expression parameters: amount_minor, chain, token, destination, subject,
// issuer, domain, purpose.
type RuleEvaluator struct {
	rules []compiledRule
}

type compiledRule struct {
	source string
	expr   *govaluate.EvaluableExpression
}

// NewRuleEvaluator compiles rule expressions. Blank rules are skipped; a rule
// that fails to parse is a construction error, not a runtime denial.
func NewRuleEvaluator(rules []string) (*RuleEvaluator, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, raw := range rules {
		src := strings.TrimSpace(raw)
		if src == "" {
			continue
		}
		expr, err := govaluate.NewEvaluableExpression(src)
		if err != nil {
			return nil, fmt.Errorf("invalid policy rule %q: %w", src, err)
		}
		compiled = append(compiled, compiledRule{source: src, expr: expr})
	}
	return &RuleEvaluator{rules: compiled}, nil
}

func (e *RuleEvaluator) Evaluate(_ context.Context, payment *mandate.PaymentMandate) (Decision, error) {
	params := map[string]interface{}{
		"amount_minor": float64(payment.AmountMinor),
		"chain":        payment.Chain,
		"token":        payment.Token,
		"destination":  payment.Destination,
		"subject":      payment.Subject,
		"issuer":       payment.Issuer,
		"domain":       payment.Domain,
		"purpose":      payment.Purpose,
	}
	for _, rule := range e.rules {
		result, err := rule.expr.Evaluate(params)
		if err != nil {
			return Decision{}, fmt.Errorf("evaluate policy rule %q: %w", rule.source, err)
		}
		allowed, ok := result.(bool)
		if !ok {
			return Decision{}, fmt.Errorf("policy rule %q did not evaluate to boolean", rule.source)
		}
		if !allowed {
			return Decision{Allowed: false, Reason: "denied by rule: " + rule.source}, nil
		}
	}
	return Decision{Allowed: true}, nil
}
