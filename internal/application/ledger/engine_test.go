package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/settlement-hub/settlement-hub/internal/domain/ledger"
)

// memoryRepo is an in-memory domain.Repository for engine tests. Entries are
// stored by sequence so tests can corrupt specific slots.
type memoryRepo struct {
	mu      sync.Mutex
	entries map[int64]*domain.Entry
	tail    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: make(map[int64]*domain.Entry)}
}

func (r *memoryRepo) Insert(_ context.Context, entry *domain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[entry.Sequence]; exists {
		return fmt.Errorf("sequence %d already exists", entry.Sequence)
	}
	copied := *entry
	r.entries[entry.Sequence] = &copied
	if entry.Sequence > r.tail {
		r.tail = entry.Sequence
	}
	return nil
}

func (r *memoryRepo) GetBySequence(_ context.Context, sequence int64) (*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[sequence]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (r *memoryRepo) GetTail(ctx context.Context) (*domain.Entry, error) {
	r.mu.Lock()
	tail := r.tail
	r.mu.Unlock()
	if tail == 0 {
		return nil, nil
	}
	return r.GetBySequence(ctx, tail)
}

func (r *memoryRepo) ListRange(_ context.Context, from, to int64) ([]*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Entry
	for seq := from; seq <= to; seq++ {
		if entry, ok := r.entries[seq]; ok {
			copied := *entry
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memoryRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.entries)), nil
}

// corrupt mutates the stored entry at sequence in place.
func (r *memoryRepo) corrupt(sequence int64, mutate func(*domain.Entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mutate(r.entries[sequence])
}

func appendN(t *testing.T, e *Engine, n int) []*domain.Entry {
	t.Helper()
	entries := make([]*domain.Entry, n)
	for i := 0; i < n; i++ {
		entry, err := e.Append(context.Background(), json.RawMessage(fmt.Sprintf(`{"seq_payload":%d}`, i)))
		require.NoError(t, err)
		entries[i] = entry
	}
	return entries
}

func TestEngineAppendChains(t *testing.T) {
	e := NewEngine(newMemoryRepo(), 4, zerolog.Nop())
	entries := appendN(t, e, 3)

	assert.Equal(t, int64(1), entries[0].Sequence)
	assert.Equal(t, domain.GenesisPriorHash, entries[0].PriorHash)
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].Sequence+1, entries[i].Sequence)
		assert.Equal(t, entries[i-1].EntryHash, entries[i].PriorHash)
	}
	for _, entry := range entries {
		assert.Equal(t, domain.ComputeEntryHash(entry.PriorHash, entry.PayloadHash), entry.EntryHash)
	}
}

func TestEngineGetProof(t *testing.T) {
	repo := newMemoryRepo()
	e := NewEngine(repo, 4, zerolog.Nop())
	entries := appendN(t, e, 6)

	// sequence 5 falls in the second batch window (5..8)
	proof, err := e.GetProof(context.Background(), 5)
	require.NoError(t, err)

	window, err := repo.ListRange(context.Background(), 5, 8)
	require.NoError(t, err)
	leaves := make([]string, len(window))
	for i, entry := range window {
		leaves[i] = entry.PayloadHash
	}
	tree, err := domain.NewMerkleTree(leaves)
	require.NoError(t, err)
	assert.True(t, domain.VerifyProof(entries[4].PayloadHash, proof, tree.Root()))

	_, err = e.GetProof(context.Background(), 99)
	assert.Error(t, err)
}

func TestEngineVerifyChainIntact(t *testing.T) {
	e := NewEngine(newMemoryRepo(), 4, zerolog.Nop())
	appendN(t, e, 5)

	report, err := e.VerifyChainIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Intact)
	assert.Equal(t, int64(5), report.Entries)
	assert.Nil(t, report.BrokenSequence)
	assert.False(t, e.Halted())
}

func TestEngineVerifyChainDetectsTamperAndHalts(t *testing.T) {
	repo := newMemoryRepo()
	e := NewEngine(repo, 4, zerolog.Nop())
	appendN(t, e, 5)

	repo.corrupt(3, func(entry *domain.Entry) {
		entry.Payload = json.RawMessage(`{"seq_payload":999}`)
	})

	report, err := e.VerifyChainIntegrity(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Intact)
	require.NotNil(t, report.BrokenSequence)
	assert.Equal(t, int64(3), *report.BrokenSequence)

	// the engine latches closed for writes
	assert.True(t, e.Halted())
	_, err = e.Append(context.Background(), json.RawMessage(`{"seq_payload":6}`))
	assert.ErrorIs(t, err, domain.ErrIntegrityFault)
}

func TestEngineVerifyChainDetectsGap(t *testing.T) {
	repo := newMemoryRepo()
	e := NewEngine(repo, 4, zerolog.Nop())
	appendN(t, e, 4)

	repo.mu.Lock()
	delete(repo.entries, 2)
	repo.mu.Unlock()

	report, err := e.VerifyChainIntegrity(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Intact)
	require.NotNil(t, report.BrokenSequence)
	assert.Equal(t, int64(2), *report.BrokenSequence)
}

func TestEngineVerifyEmptyLedger(t *testing.T) {
	e := NewEngine(newMemoryRepo(), 4, zerolog.Nop())
	report, err := e.VerifyChainIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Intact)
	assert.Equal(t, int64(0), report.Entries)
}
