// Package chainrpc is the HTTP adapter for the external chain execution
// service. Wire formats beyond this thin JSON contract belong to the
// collaborator, not to the core.
package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/settlement-hub/settlement-hub/internal/domain/mandate"
	"github.com/settlement-hub/settlement-hub/internal/domain/settlement"
)

// Client implements settlement.Executor and settlement.NonceProbe.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a chain execution client with bounded request timeouts.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type dispatchRequest struct {
	MandateID   string `json:"mandate_id"`
	Chain       string `json:"chain"`
	Token       string `json:"token"`
	AmountMinor int64  `json:"amount_minor"`
	Destination string `json:"destination"`
	Nonce       uint64 `json:"nonce"`
	AuditHash   string `json:"audit_hash"`
}

func (c *Client) DispatchPayment(ctx context.Context, payment *mandate.PaymentMandate, reservedNonce uint64) (*settlement.DispatchResult, error) {
	body, err := json.Marshal(dispatchRequest{
		MandateID:   payment.MandateID.String(),
		Chain:       payment.Chain,
		Token:       payment.Token,
		AmountMinor: payment.AmountMinor,
		Destination: payment.Destination,
		Nonce:       reservedNonce,
		AuditHash:   payment.AuditHash,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/dispatch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", settlement.ErrDispatchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", settlement.ErrDispatchFailed, resp.StatusCode)
	}
	var result settlement.DispatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", settlement.ErrDispatchFailed, err)
	}
	return &result, nil
}

func (c *Client) NextOnChainNonce(ctx context.Context, address string) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/nonce/"+address, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("nonce probe failed: status %d", resp.StatusCode)
	}
	var payload struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}
	return payload.Nonce, nil
}
