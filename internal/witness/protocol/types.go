// Package protocol defines the replicated checkpoint envelope for the ledger
// witness cluster.
package protocol

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Checkpoint is a signed attestation of one ledger's chain head. Witness
// nodes replicate checkpoints through Raft so a fork of the hash chain is
// visible across process restarts and instances.
type Checkpoint struct {
	CheckpointID string    `json:"checkpoint_id"`
	LedgerID     string    `json:"ledger_id"`
	Sequence     int64     `json:"sequence"`
	EntryHash    string    `json:"entry_hash"`
	AttestedAt   time.Time `json:"attested_at"`
	Attestor     string    `json:"attestor"`
	PublicKey    string    `json:"public_key"` // base64 raw ed25519 public key
	Signature    string    `json:"signature"`  // base64 raw signature
}

type checkpointSignable struct {
	CheckpointID string    `json:"checkpoint_id"`
	LedgerID     string    `json:"ledger_id"`
	Sequence     int64     `json:"sequence"`
	EntryHash    string    `json:"entry_hash"`
	AttestedAt   time.Time `json:"attested_at"`
	Attestor     string    `json:"attestor"`
	PublicKey    string    `json:"public_key"`
}

// CanonicalBytes returns the deterministic signing payload.
func (c Checkpoint) CanonicalBytes() ([]byte, error) {
	return json.Marshal(checkpointSignable{
		CheckpointID: strings.TrimSpace(c.CheckpointID),
		LedgerID:     strings.TrimSpace(c.LedgerID),
		Sequence:     c.Sequence,
		EntryHash:    strings.TrimSpace(c.EntryHash),
		AttestedAt:   c.AttestedAt.UTC(),
		Attestor:     strings.TrimSpace(c.Attestor),
		PublicKey:    strings.TrimSpace(c.PublicKey),
	})
}

// ValidateBasic checks required immutable checkpoint fields.
func (c Checkpoint) ValidateBasic() error {
	if strings.TrimSpace(c.CheckpointID) == "" {
		return errors.New("checkpoint_id is required")
	}
	if strings.TrimSpace(c.LedgerID) == "" {
		return errors.New("ledger_id is required")
	}
	if c.Sequence <= 0 {
		return errors.New("sequence must be positive")
	}
	if strings.TrimSpace(c.EntryHash) == "" {
		return errors.New("entry_hash is required")
	}
	if c.AttestedAt.IsZero() {
		return errors.New("attested_at is required")
	}
	if strings.TrimSpace(c.Attestor) == "" {
		return errors.New("attestor is required")
	}
	if strings.TrimSpace(c.PublicKey) == "" {
		return errors.New("public_key is required")
	}
	if strings.TrimSpace(c.Signature) == "" {
		return errors.New("signature is required")
	}
	return nil
}

// Sign sets the checkpoint public key and signature for the given key.
func (c *Checkpoint) Sign(privateKey ed25519.PrivateKey) error {
	if len(privateKey) != ed25519.PrivateKeySize {
		return errors.New("invalid private key")
	}
	c.PublicKey = base64.StdEncoding.EncodeToString(privateKey.Public().(ed25519.PublicKey))
	payload, err := c.CanonicalBytes()
	if err != nil {
		return err
	}
	c.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, payload))
	return nil
}

// Verify checks basic fields and the ed25519 signature.
func (c Checkpoint) Verify() error {
	if err := c.ValidateBasic(); err != nil {
		return err
	}
	pub, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.PublicKey))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return errors.New("invalid public key")
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.Signature))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return errors.New("invalid signature encoding")
	}
	payload, err := c.CanonicalBytes()
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, payload, sig) {
		return errors.New("signature verification failed")
	}
	return nil
}
