package state

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/settlement-hub/settlement-hub/internal/witness/protocol"
)

var testKey ed25519.PrivateKey

func init() {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	testKey = priv
}

func checkpoint(t *testing.T, id, ledgerID string, sequence int64, entryHash string) protocol.Checkpoint {
	t.Helper()
	cp := protocol.Checkpoint{
		CheckpointID: id,
		LedgerID:     ledgerID,
		Sequence:     sequence,
		EntryHash:    entryHash,
		AttestedAt:   time.Now().UTC(),
		Attestor:     "hub-1",
	}
	if err := cp.Sign(testKey); err != nil {
		t.Fatalf("sign checkpoint: %v", err)
	}
	return cp
}

func TestApplyCheckpointAdvancesHead(t *testing.T) {
	m := NewMachine()
	if err := m.ApplyCheckpoint(checkpoint(t, "cp-1", "main", 1, "hash-1")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := m.ApplyCheckpoint(checkpoint(t, "cp-2", "main", 2, "hash-2")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	head, ok := m.GetHead("main")
	if !ok {
		t.Fatal("head not found")
	}
	if head.Sequence != 2 || head.EntryHash != "hash-2" {
		t.Fatalf("unexpected head %+v", head)
	}
}

func TestApplyCheckpointIdempotent(t *testing.T) {
	m := NewMachine()
	cp := checkpoint(t, "cp-1", "main", 1, "hash-1")
	if err := m.ApplyCheckpoint(cp); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := m.ApplyCheckpoint(cp); err != nil {
		t.Fatalf("re-apply of the same checkpoint must be a no-op: %v", err)
	}
	if stats := m.StateStats(); stats.AppliedCheckpoints != 1 {
		t.Fatalf("expected 1 applied checkpoint, got %d", stats.AppliedCheckpoints)
	}
}

func TestApplyCheckpointSameSequenceSameHash(t *testing.T) {
	m := NewMachine()
	if err := m.ApplyCheckpoint(checkpoint(t, "cp-1", "main", 1, "hash-1")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// a second attestor confirming the same hash is fine
	if err := m.ApplyCheckpoint(checkpoint(t, "cp-2", "main", 1, "hash-1")); err != nil {
		t.Fatalf("matching re-attestation rejected: %v", err)
	}
	if forks := m.ListForks("main"); len(forks) != 0 {
		t.Fatalf("unexpected fork records: %+v", forks)
	}
}

func TestApplyCheckpointDetectsFork(t *testing.T) {
	m := NewMachine()
	if err := m.ApplyCheckpoint(checkpoint(t, "cp-1", "main", 5, "hash-a")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	err := m.ApplyCheckpoint(checkpoint(t, "cp-2", "main", 5, "hash-b"))
	if !errors.Is(err, ErrForkDetected) {
		t.Fatalf("expected ErrForkDetected, got %v", err)
	}

	forks := m.ListForks("main")
	if len(forks) != 1 {
		t.Fatalf("expected 1 fork record, got %d", len(forks))
	}
	if forks[0].AcceptedHash != "hash-a" || forks[0].RejectedHash != "hash-b" || forks[0].Sequence != 5 {
		t.Fatalf("unexpected fork record %+v", forks[0])
	}

	// the head keeps the accepted hash
	head, _ := m.GetHead("main")
	if head.EntryHash != "hash-a" {
		t.Fatalf("head moved to rejected hash: %+v", head)
	}

	// replaying the conflicting checkpoint id is idempotent and does not
	// duplicate the evidence
	if err := m.ApplyCheckpoint(checkpoint(t, "cp-2", "main", 5, "hash-b")); err != nil {
		t.Fatalf("replayed fork checkpoint must be a no-op: %v", err)
	}
	if stats := m.StateStats(); stats.Forks != 1 {
		t.Fatalf("fork evidence duplicated: %+v", stats)
	}
}

func TestApplyCheckpointRejectsRegression(t *testing.T) {
	m := NewMachine()
	if err := m.ApplyCheckpoint(checkpoint(t, "cp-1", "main", 10, "hash-10")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := m.ApplyCheckpoint(checkpoint(t, "cp-2", "main", 3, "hash-3")); err == nil {
		t.Fatal("head regression must be rejected")
	}
	head, _ := m.GetHead("main")
	if head.Sequence != 10 {
		t.Fatalf("head regressed to %d", head.Sequence)
	}
}

func TestApplyCheckpointRejectsBadSignature(t *testing.T) {
	m := NewMachine()
	cp := checkpoint(t, "cp-1", "main", 1, "hash-1")
	cp.EntryHash = "hash-tampered"
	if err := m.ApplyCheckpoint(cp); err == nil {
		t.Fatal("unverifiable checkpoint must be rejected")
	}
	if _, ok := m.GetHead("main"); ok {
		t.Fatal("rejected checkpoint must not create a head")
	}
}

func TestLedgersAreIndependent(t *testing.T) {
	m := NewMachine()
	if err := m.ApplyCheckpoint(checkpoint(t, "cp-1", "main", 7, "hash-m")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := m.ApplyCheckpoint(checkpoint(t, "cp-2", "shadow", 2, "hash-s")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	heads := m.ListHeads()
	if len(heads) != 2 {
		t.Fatalf("expected 2 heads, got %d", len(heads))
	}
	if heads[0].LedgerID != "main" || heads[1].LedgerID != "shadow" {
		t.Fatalf("heads not sorted by ledger id: %+v", heads)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := NewMachine()
	for i := int64(1); i <= 4; i++ {
		cp := checkpoint(t, fmt.Sprintf("cp-%d", i), "main", i, fmt.Sprintf("hash-%d", i))
		if err := m.ApplyCheckpoint(cp); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if err := m.ApplyCheckpoint(checkpoint(t, "cp-fork", "main", 2, "hash-x")); !errors.Is(err, ErrForkDetected) {
		t.Fatalf("expected fork, got %v", err)
	}

	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored := NewMachine()
	if err := restored.Unmarshal(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	origStats, restoredStats := m.StateStats(), restored.StateStats()
	if origStats != restoredStats {
		t.Fatalf("stats diverged after restore: %+v vs %+v", origStats, restoredStats)
	}
	head, ok := restored.GetHead("main")
	if !ok || head.Sequence != 4 {
		t.Fatalf("restored head wrong: %+v", head)
	}
	if forks := restored.ListForks("main"); len(forks) != 1 {
		t.Fatalf("restored fork records wrong: %+v", forks)
	}

	if err := restored.Unmarshal(nil); err == nil {
		t.Fatal("empty snapshot must be rejected")
	}
}
