// Package ledger implements the append-only settlement ledger: hash-chained
// entries with Merkle-tree batch proofs for external audit.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domain "github.com/settlement-hub/settlement-hub/internal/domain/ledger"
)

// IntegrityReport is the audit-surface result of a full chain walk. Broken
// reports the first sequence where recomputation diverges from stored values.
type IntegrityReport struct {
	Intact         bool   `json:"intact"`
	Entries        int64  `json:"entries"`
	BrokenSequence *int64 `json:"broken_sequence,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

// Engine is the ledger engine. Appends are serialized in-process behind a
// mutex and cross-process by the repository's sequence uniqueness. A detected
// integrity fault latches the engine closed for writes.
type Engine struct {
	repo      domain.Repository
	batchSize int
	logger    zerolog.Logger

	appendMu sync.Mutex
	halted   atomic.Bool
}

// NewEngine creates a ledger engine. batchSize is the Merkle proof window.
func NewEngine(repo domain.Repository, batchSize int, logger zerolog.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Engine{
		repo:      repo,
		batchSize: batchSize,
		logger:    logger.With().Str("service", "ledger").Logger(),
	}
}

// Append durably records payload as the next hash-chained entry. It refuses
// to append when the true prior entry cannot be read, preventing silent
// forks, and refuses permanently after an integrity fault.
func (e *Engine) Append(ctx context.Context, payload json.RawMessage) (*domain.Entry, error) {
	if e.halted.Load() {
		return nil, fmt.Errorf("%w: ledger halted", domain.ErrIntegrityFault)
	}
	e.appendMu.Lock()
	defer e.appendMu.Unlock()

	tail, err := e.repo.GetTail(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}

	priorHash := domain.GenesisPriorHash
	sequence := int64(1)
	if tail != nil {
		priorHash = tail.EntryHash
		sequence = tail.Sequence + 1
	}

	payloadHash, err := domain.ComputePayloadHash(payload)
	if err != nil {
		return nil, err
	}
	entry := &domain.Entry{
		Sequence:    sequence,
		EntryID:     uuid.New(),
		PriorHash:   priorHash,
		PayloadHash: payloadHash,
		EntryHash:   domain.ComputeEntryHash(priorHash, payloadHash),
		Payload:     payload,
		RecordedAt:  time.Now().UTC(),
	}
	if err := e.repo.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	e.logger.Info().
		Int64("sequence", entry.Sequence).
		Str("entryHash", entry.EntryHash).
		Msg("ledger entry appended")
	return entry, nil
}

// GetEntry returns the entry at sequence, nil if absent.
func (e *Engine) GetEntry(ctx context.Context, sequence int64) (*domain.Entry, error) {
	return e.repo.GetBySequence(ctx, sequence)
}

// GetProof builds the Merkle inclusion proof for the entry at sequence over
// its batch window.
func (e *Engine) GetProof(ctx context.Context, sequence int64) (*domain.MerkleProof, error) {
	entry, err := e.repo.GetBySequence(ctx, sequence)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("ledger entry %d not found", sequence)
	}

	batchStart := ((sequence - 1) / int64(e.batchSize)) * int64(e.batchSize) + 1
	batchEnd := batchStart + int64(e.batchSize) - 1
	entries, err := e.repo.ListRange(ctx, batchStart, batchEnd)
	if err != nil {
		return nil, err
	}

	leaves := make([]string, len(entries))
	index := -1
	for i, batchEntry := range entries {
		leaves[i] = batchEntry.PayloadHash
		if batchEntry.Sequence == sequence {
			index = i
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("ledger entry %d missing from its batch", sequence)
	}

	tree, err := domain.NewMerkleTree(leaves)
	if err != nil {
		return nil, err
	}
	return tree.Proof(index)
}

// VerifyChainIntegrity walks the full sequence recomputing hashes. On a
// break it reports the first divergent sequence and halts further appends:
// a forked ledger must never keep growing.
func (e *Engine) VerifyChainIntegrity(ctx context.Context) (*IntegrityReport, error) {
	count, err := e.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	report := &IntegrityReport{Intact: true, Entries: count}
	if count == 0 {
		return report, nil
	}

	priorHash := domain.GenesisPriorHash
	const window = int64(256)
	for from := int64(1); from <= count; from += window {
		to := from + window - 1
		if to > count {
			to = count
		}
		entries, err := e.repo.ListRange(ctx, from, to)
		if err != nil {
			return nil, err
		}
		expected := from
		for _, entry := range entries {
			if entry.Sequence != expected {
				seq := expected
				return e.halt(report, seq, fmt.Sprintf("gap: expected sequence %d, found %d", expected, entry.Sequence)), nil
			}
			if err := domain.VerifyEntry(entry, priorHash); err != nil {
				seq := entry.Sequence
				return e.halt(report, seq, err.Error()), nil
			}
			priorHash = entry.EntryHash
			expected++
		}
	}
	return report, nil
}

func (e *Engine) halt(report *IntegrityReport, sequence int64, detail string) *IntegrityReport {
	report.Intact = false
	report.BrokenSequence = &sequence
	report.Detail = detail
	e.halted.Store(true)
	e.logger.Error().
		Int64("sequence", sequence).
		Str("detail", detail).
		Msg("ledger integrity fault, appends halted")
	return report
}

// Halted reports whether the engine has latched closed after a fault.
func (e *Engine) Halted() bool {
	return e.halted.Load()
}
