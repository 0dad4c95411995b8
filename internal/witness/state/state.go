package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/settlement-hub/settlement-hub/internal/witness/protocol"
)

// ErrForkDetected marks a checkpoint whose hash conflicts with an already
// replicated hash for the same ledger and sequence.
var ErrForkDetected = errors.New("ledger fork detected")

// Head is the latest attested position of one ledger's hash chain.
type Head struct {
	LedgerID   string    `json:"ledgerId"`
	Sequence   int64     `json:"sequence"`
	EntryHash  string    `json:"entryHash"`
	Attestor   string    `json:"attestor"`
	AttestedAt time.Time `json:"attestedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Fork records one rejected conflicting attestation, kept for auditing.
type Fork struct {
	LedgerID     string    `json:"ledgerId"`
	Sequence     int64     `json:"sequence"`
	AcceptedHash string    `json:"acceptedHash"`
	RejectedHash string    `json:"rejectedHash"`
	Attestor     string    `json:"attestor"`
	DetectedAt   time.Time `json:"detectedAt"`
}

type snapshot struct {
	Heads             map[string]Head   `json:"heads"`
	HashBySequence    map[string]string `json:"hashBySequence"`
	Forks             map[string][]Fork `json:"forks"`
	AppliedCheckpoint map[string]bool   `json:"appliedCheckpoint"`
}

// Machine is the deterministic witness state machine. Every node applies the
// same replicated checkpoints in the same order and converges on the same
// heads and fork records.
type Machine struct {
	mu sync.RWMutex
	s  snapshot
}

func NewMachine() *Machine {
	m := &Machine{}
	m.s = emptySnapshot()
	return m
}

func emptySnapshot() snapshot {
	return snapshot{
		Heads:             map[string]Head{},
		HashBySequence:    map[string]string{},
		Forks:             map[string][]Fork{},
		AppliedCheckpoint: map[string]bool{},
	}
}

// Marshal serializes current machine snapshot.
func (m *Machine) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(m.copySnapshotLocked())
}

// Unmarshal restores machine state from snapshot payload.
func (m *Machine) Unmarshal(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty snapshot")
	}
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	normalizeSnapshot(&s)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func normalizeSnapshot(s *snapshot) {
	if s.Heads == nil {
		s.Heads = map[string]Head{}
	}
	if s.HashBySequence == nil {
		s.HashBySequence = map[string]string{}
	}
	if s.Forks == nil {
		s.Forks = map[string][]Fork{}
	}
	if s.AppliedCheckpoint == nil {
		s.AppliedCheckpoint = map[string]bool{}
	}
}

func (m *Machine) copySnapshotLocked() snapshot {
	out := emptySnapshot()
	for k, v := range m.s.Heads {
		out.Heads[k] = v
	}
	for k, v := range m.s.HashBySequence {
		out.HashBySequence[k] = v
	}
	for k, v := range m.s.Forks {
		out.Forks[k] = append([]Fork(nil), v...)
	}
	for k, v := range m.s.AppliedCheckpoint {
		out.AppliedCheckpoint[k] = v
	}
	return out
}

// ApplyCheckpoint validates and applies one signed checkpoint.
func (m *Machine) ApplyCheckpoint(cp protocol.Checkpoint) error {
	if err := cp.Verify(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.AppliedCheckpoint[cp.CheckpointID] {
		return nil
	}
	ledgerID := strings.TrimSpace(cp.LedgerID)
	entryHash := strings.TrimSpace(cp.EntryHash)
	at := cp.AttestedAt.UTC()

	// A second attestation for an already witnessed sequence must carry the
	// same hash. A different hash means the ledger forked behind us.
	seqKey := sequenceKey(ledgerID, cp.Sequence)
	if accepted, ok := m.s.HashBySequence[seqKey]; ok {
		if accepted != entryHash {
			m.s.Forks[ledgerID] = append(m.s.Forks[ledgerID], Fork{
				LedgerID:     ledgerID,
				Sequence:     cp.Sequence,
				AcceptedHash: accepted,
				RejectedHash: entryHash,
				Attestor:     strings.TrimSpace(cp.Attestor),
				DetectedAt:   at,
			})
			m.s.AppliedCheckpoint[cp.CheckpointID] = true
			return fmt.Errorf("%w: ledger %s sequence %d", ErrForkDetected, ledgerID, cp.Sequence)
		}
		m.s.AppliedCheckpoint[cp.CheckpointID] = true
		return nil
	}

	// The head may only move forward.
	if head, ok := m.s.Heads[ledgerID]; ok && cp.Sequence < head.Sequence {
		m.s.AppliedCheckpoint[cp.CheckpointID] = true
		return fmt.Errorf("checkpoint regresses ledger %s: have %d, got %d", ledgerID, head.Sequence, cp.Sequence)
	}

	m.s.HashBySequence[seqKey] = entryHash
	m.s.Heads[ledgerID] = Head{
		LedgerID:   ledgerID,
		Sequence:   cp.Sequence,
		EntryHash:  entryHash,
		Attestor:   strings.TrimSpace(cp.Attestor),
		AttestedAt: at,
		UpdatedAt:  at,
	}
	m.s.AppliedCheckpoint[cp.CheckpointID] = true
	return nil
}

// GetHead returns the latest witnessed head for a ledger.
func (m *Machine) GetHead(ledgerID string) (Head, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	head, ok := m.s.Heads[strings.TrimSpace(ledgerID)]
	return head, ok
}

// ListForks returns recorded fork evidence for a ledger, oldest first.
func (m *Machine) ListForks(ledgerID string) []Fork {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Fork(nil), m.s.Forks[strings.TrimSpace(ledgerID)]...)
}

// ListHeads returns all witnessed heads sorted by ledger id.
func (m *Machine) ListHeads() []Head {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Head, 0, len(m.s.Heads))
	for _, head := range m.s.Heads {
		out = append(out, head)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LedgerID < out[j].LedgerID })
	return out
}

type Stats struct {
	Ledgers            int `json:"ledgers"`
	WitnessedSequences int `json:"witnessedSequences"`
	Forks              int `json:"forks"`
	AppliedCheckpoints int `json:"appliedCheckpoints"`
}

func (m *Machine) StateStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := Stats{
		Ledgers:            len(m.s.Heads),
		WitnessedSequences: len(m.s.HashBySequence),
		AppliedCheckpoints: len(m.s.AppliedCheckpoint),
	}
	for _, forks := range m.s.Forks {
		stats.Forks += len(forks)
	}
	return stats
}

func sequenceKey(ledgerID string, sequence int64) string {
	return fmt.Sprintf("%s@%d", ledgerID, sequence)
}
