package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenesisPriorHash anchors the first entry of a chain.
const GenesisPriorHash = "0000000000000000000000000000000000000000000000000000000000000000"

var ErrIntegrityFault = errors.New("ledger hash chain integrity fault")

// Entry is one immutable, hash-chained ledger record. PriorHash of entry n
// equals the EntryHash of entry n-1. Corrections are new compensating
// entries, never edits.
type Entry struct {
	Sequence    int64           `json:"sequence"`
	EntryID     uuid.UUID       `json:"entry_id"`
	PriorHash   string          `json:"prior_hash"`
	PayloadHash string          `json:"payload_hash"`
	EntryHash   string          `json:"entry_hash"`
	Payload     json.RawMessage `json:"payload"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// ComputePayloadHash hashes the canonical form of a payload.
func ComputePayloadHash(payload json.RawMessage) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ComputeEntryHash chains a payload hash onto the prior entry's hash.
func ComputeEntryHash(priorHash, payloadHash string) string {
	sum := sha256.Sum256([]byte(priorHash + payloadHash))
	return hex.EncodeToString(sum[:])
}

// VerifyEntry recomputes both hashes of an entry against its stored values.
func VerifyEntry(e *Entry, priorHash string) error {
	payloadHash, err := ComputePayloadHash(e.Payload)
	if err != nil {
		return err
	}
	if payloadHash != e.PayloadHash {
		return fmt.Errorf("%w: payload hash mismatch at sequence %d", ErrIntegrityFault, e.Sequence)
	}
	if e.PriorHash != priorHash {
		return fmt.Errorf("%w: prior hash mismatch at sequence %d", ErrIntegrityFault, e.Sequence)
	}
	if ComputeEntryHash(e.PriorHash, e.PayloadHash) != e.EntryHash {
		return fmt.Errorf("%w: entry hash mismatch at sequence %d", ErrIntegrityFault, e.Sequence)
	}
	return nil
}

// canonicalJSON re-marshals raw JSON through Go's map ordering, which sorts
// object keys, producing a deterministic byte form.
func canonicalJSON(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty payload")
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
