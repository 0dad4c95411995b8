package ledger

import "context"

// Repository defines persistence for ledger entries. Implementations must
// enforce sequence uniqueness so two processes can never append the same slot.
type Repository interface {
	// Insert stores a new entry. Must fail if the sequence already exists.
	Insert(ctx context.Context, entry *Entry) error
	// GetBySequence returns the entry at the given sequence, nil if absent.
	GetBySequence(ctx context.Context, sequence int64) (*Entry, error)
	// GetTail returns the highest-sequence entry, nil for an empty ledger.
	GetTail(ctx context.Context) (*Entry, error)
	// ListRange returns entries with from <= sequence <= to, ordered by sequence.
	ListRange(ctx context.Context, from, to int64) ([]*Entry, error)
	// Count returns the total number of entries.
	Count(ctx context.Context) (int64, error)
}
