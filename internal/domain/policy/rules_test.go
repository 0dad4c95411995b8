package policy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/settlement-hub/settlement-hub/internal/domain/mandate"
)

func fixturePayment() *mandate.PaymentMandate {
	now := time.Now().UTC()
	return &mandate.PaymentMandate{
		Mandate: mandate.Mandate{
			MandateID: uuid.New(),
			Type:      mandate.TypePayment,
			Issuer:    "agent:alpha",
			Subject:   "agent:alpha",
			Domain:    "shop.example.com",
			Purpose:   "settle cart",
			Nonce:     "n-1",
			CreatedAt: now,
			ExpiresAt: now.Add(time.Minute),
		},
		Chain:       "base",
		Token:       "USDC",
		AmountMinor: 1100,
		Destination: "0x00112233445566778899aabbccddeeff00112233",
	}
}

func TestRuleEvaluatorAllows(t *testing.T) {
	eval, err := NewRuleEvaluator([]string{
		"amount_minor <= 5000",
		"token == 'USDC'",
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	decision, err := eval.Evaluate(context.Background(), fixturePayment())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow, denied: %s", decision.Reason)
	}
}

func TestRuleEvaluatorDeniesWithFirstFailingRule(t *testing.T) {
	eval, err := NewRuleEvaluator([]string{
		"amount_minor <= 1000",
		"token == 'USDC'",
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	decision, err := eval.Evaluate(context.Background(), fixturePayment())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denial")
	}
	if !strings.Contains(decision.Reason, "amount_minor <= 1000") {
		t.Fatalf("denial reason must name the failing rule, got %q", decision.Reason)
	}
}

func TestRuleEvaluatorInvalidRule(t *testing.T) {
	if _, err := NewRuleEvaluator([]string{"amount_minor <=== 1"}); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestRuleEvaluatorSkipsBlankRules(t *testing.T) {
	eval, err := NewRuleEvaluator([]string{"  ", "chain == 'base'"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	decision, err := eval.Evaluate(context.Background(), fixturePayment())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow, denied: %s", decision.Reason)
	}
}

func TestAllowAll(t *testing.T) {
	decision, err := AllowAll{}.Evaluate(context.Background(), fixturePayment())
	if err != nil || !decision.Allowed {
		t.Fatalf("AllowAll must allow, got %v %v", decision, err)
	}
}
