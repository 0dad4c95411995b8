//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	httpapi "github.com/settlement-hub/settlement-hub/internal/api/http"
	appidem "github.com/settlement-hub/settlement-hub/internal/application/idempotency"
	appledger "github.com/settlement-hub/settlement-hub/internal/application/ledger"
	applock "github.com/settlement-hub/settlement-hub/internal/application/lock"
	"github.com/settlement-hub/settlement-hub/internal/application/nonce"
	"github.com/settlement-hub/settlement-hub/internal/application/orchestrator"
	"github.com/settlement-hub/settlement-hub/internal/application/replay"
	"github.com/settlement-hub/settlement-hub/internal/application/verifier"
	"github.com/settlement-hub/settlement-hub/internal/domain/identity"
	"github.com/settlement-hub/settlement-hub/internal/domain/mandate"
	"github.com/settlement-hub/settlement-hub/internal/domain/policy"
	"github.com/settlement-hub/settlement-hub/internal/domain/settlement"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/directory"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/postgres"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/resilience"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/sse"
)

const (
	buyerAgent    = "agent:alpha"
	buyerKeyID    = "buyer-key-1"
	merchantAgent = "merchant:shop.example.com"
	merchantKeyID = "merchant-key-1"
	sourceAddr    = "0xaaaabbbbccccddddeeeeffff0000111122223333"
	destAddr      = "0x00112233445566778899aabbccddeeff00112233"
)

// stubChain is a deterministic in-test settlement backend.
type stubChain struct{}

func (stubChain) DispatchPayment(_ context.Context, payment *mandate.PaymentMandate, reservedNonce uint64) (*settlement.DispatchResult, error) {
	return &settlement.DispatchResult{
		TxHash:      fmt.Sprintf("0x%064x", reservedNonce),
		Chain:       payment.Chain,
		BlockNumber: int64(1000 + reservedNonce),
		AuditAnchor: payment.AuditHash,
	}, nil
}

func (stubChain) NextOnChainNonce(context.Context, string) (uint64, error) {
	return 100, nil
}

type testEnv struct {
	server       *httptest.Server
	buyerPriv    ed25519.PrivateKey
	merchantPriv ed25519.PrivateKey
}

func newTestEnv(t *testing.T) (*testEnv, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := postgres.RunMigrations(ctx, pool, filepath.Join(repoRoot(t), "internal", "migrations")); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"ledger_entries", "idempotency_records", "atomic_kv", "atomic_sequences"} {
		if _, err := pool.Exec(ctx, "TRUNCATE TABLE "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}

	buyerPub, buyerPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	merchantPub, merchantPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	agentDirectory := directory.NewStaticDirectory([]identity.AgentKey{
		{AgentID: buyerAgent, KeyID: buyerKeyID, Algorithm: identity.AlgorithmEd25519, PublicKey: buyerPub, Domain: "shop.example.com"},
		{AgentID: merchantAgent, KeyID: merchantKeyID, Algorithm: identity.AlgorithmEd25519, PublicKey: merchantPub, Domain: "shop.example.com"},
	})

	logger := zerolog.Nop()
	kvStore := postgres.NewKVStore(pool)
	ledgerRepo := postgres.NewLedgerRepository(pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(pool)

	chain := stubChain{}
	breaker := resilience.NewBreaker("chain_rpc", 5, 30*time.Second, logger)
	limiter := resilience.NewRateLimiter(1000, 1000)
	replayGuard := replay.NewGuard(kvStore, time.Hour, logger)
	verifierSvc := verifier.NewService(agentDirectory, replayGuard, 5*time.Minute, logger)
	nonceManager := nonce.NewManager(kvStore, chain, logger)
	lockManager := applock.NewManager(kvStore, 30*time.Second, logger)
	coordinator := appidem.NewCoordinator(idempotencyRepo, time.Hour, time.Minute, logger)
	ledgerEngine := appledger.NewEngine(ledgerRepo, 8, logger)

	orchestratorSvc := orchestrator.New(
		verifierSvc, policy.AllowAll{}, nonceManager, lockManager,
		coordinator, ledgerEngine, chain, breaker, sourceAddr, logger,
	)
	eventHub := sse.NewHub(16)
	apiServer := httpapi.NewServer(orchestratorSvc, ledgerEngine, replayGuard, nonceManager, breaker, limiter, eventHub)
	server := httptest.NewServer(apiServer.Router())

	cleanup := func() {
		server.Close()
		eventHub.Stop()
		pool.Close()
	}
	return &testEnv{server: server, buyerPriv: buyerPriv, merchantPriv: merchantPriv}, cleanup
}

func repoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found above working directory")
		}
		dir = parent
	}
}

func (e *testEnv) signedRequest(t *testing.T) orchestrator.ExecuteRequest {
	t.Helper()
	now := time.Now().UTC()
	limit := int64(5000)

	intent := &mandate.IntentMandate{
		Mandate: mandate.Mandate{
			MandateID: uuid.New(), Type: mandate.TypeIntent,
			Issuer: "user:owner", Subject: buyerAgent,
			Domain: "shop.example.com", Purpose: "purchase",
			Nonce: uuid.NewString(), CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute),
		},
		Scope:           []string{"purchase"},
		RequestedAmount: &limit,
	}
	cart := &mandate.CartMandate{
		Mandate: mandate.Mandate{
			MandateID: uuid.New(), Type: mandate.TypeCart,
			Issuer: merchantAgent, Subject: buyerAgent,
			Domain: "shop.example.com", Purpose: "cart",
			Nonce: uuid.NewString(), CreatedAt: now, ExpiresAt: now.Add(6 * time.Minute),
		},
		MerchantDomain: "shop.example.com",
		LineItems:      []mandate.LineItem{{SKU: "sku-1", Label: "widget", Quantity: 1, PriceMinor: 1000}},
		SubtotalMinor:  1000,
		TaxesMinor:     100,
		Currency:       "USD",
	}
	payment := &mandate.PaymentMandate{
		Mandate: mandate.Mandate{
			MandateID: uuid.New(), Type: mandate.TypePayment,
			Issuer: buyerAgent, Subject: buyerAgent,
			Domain: "shop.example.com", Purpose: "settle cart",
			Nonce: uuid.NewString(), CreatedAt: now, ExpiresAt: now.Add(7 * time.Minute),
		},
		Chain:       "base",
		Token:       "USDC",
		AmountMinor: 1100,
		Destination: destAddr,
	}
	payment.AuditHash = mandate.ComputeAuditHash(intent.MandateID, cart.MandateID, payment.AmountMinor, payment.Destination)

	signMandate(t, &intent.Mandate, intent.CanonicalBytes, buyerKeyID, e.buyerPriv)
	signMandate(t, &cart.Mandate, cart.CanonicalBytes, merchantKeyID, e.merchantPriv)
	signMandate(t, &payment.Mandate, payment.CanonicalBytes, buyerKeyID, e.buyerPriv)
	return orchestrator.ExecuteRequest{Intent: intent, Cart: cart, Payment: payment}
}

func signMandate(t *testing.T, m *mandate.Mandate, canonical func() ([]byte, error), keyID string, priv ed25519.PrivateKey) {
	t.Helper()
	message, err := canonical()
	if err != nil {
		t.Fatalf("canonical bytes: %v", err)
	}
	env, err := identity.SignEd25519(message, keyID, priv, time.Now().UTC(), time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	m.Proof = env
}

func (e *testEnv) execute(t *testing.T, req orchestrator.ExecuteRequest, idempotencyKey string) *http.Response {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq, err := http.NewRequest(http.MethodPost, e.server.URL+"/v1/mandates/execute", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestSettlementFlowIntegration(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	req := env.signedRequest(t)
	resp := env.execute(t, req, "idem-flow-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("execute status %d", resp.StatusCode)
	}
	var receipt orchestrator.ExecutionReceipt
	decode(t, resp, &receipt)
	if receipt.TxHash == "" || receipt.LedgerSequence != 1 || receipt.Replayed {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if receipt.ReservedNonce != 100 {
		t.Fatalf("expected first reserved nonce 100, got %d", receipt.ReservedNonce)
	}

	// a retry with the same key replays the stored receipt
	resp = env.execute(t, req, "idem-flow-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay status %d", resp.StatusCode)
	}
	var replayed orchestrator.ExecutionReceipt
	decode(t, resp, &replayed)
	if !replayed.Replayed || replayed.TxHash != receipt.TxHash {
		t.Fatalf("unexpected replayed receipt %+v", replayed)
	}

	// the settlement is durably recorded
	entryResp, err := http.Get(env.server.URL + "/v1/ledger/1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entryResp.StatusCode != http.StatusOK {
		t.Fatalf("ledger entry status %d", entryResp.StatusCode)
	}
	entryResp.Body.Close()

	proofResp, err := http.Get(env.server.URL + "/v1/ledger/1/proof")
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}
	if proofResp.StatusCode != http.StatusOK {
		t.Fatalf("proof status %d", proofResp.StatusCode)
	}
	proofResp.Body.Close()

	integrityResp, err := http.Get(env.server.URL + "/v1/ledger/integrity")
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	var report struct {
		Intact  bool  `json:"intact"`
		Entries int64 `json:"entries"`
	}
	decode(t, integrityResp, &report)
	if !report.Intact || report.Entries != 1 {
		t.Fatalf("unexpected integrity report %+v", report)
	}
}

func TestTamperedChainRejectedIntegration(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	req := env.signedRequest(t)
	req.Payment.AmountMinor = 2000
	req.Payment.AuditHash = mandate.ComputeAuditHash(
		req.Intent.MandateID, req.Cart.MandateID, req.Payment.AmountMinor, req.Payment.Destination)
	signMandate(t, &req.Payment.Mandate, req.Payment.CanonicalBytes, buyerKeyID, env.buyerPriv)

	resp := env.execute(t, req, "idem-tamper-1")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	var rejection struct {
		Reason string `json:"reason_code"`
	}
	decode(t, resp, &rejection)
	if rejection.Reason != "AP2_PAYMENT_EXCEEDS_CART_TOTAL" {
		t.Fatalf("unexpected reason %q", rejection.Reason)
	}

	// nothing reached the ledger
	integrityResp, err := http.Get(env.server.URL + "/v1/ledger/integrity")
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	var report struct {
		Entries int64 `json:"entries"`
	}
	decode(t, integrityResp, &report)
	if report.Entries != 0 {
		t.Fatalf("rejected chain produced %d ledger entries", report.Entries)
	}
}
