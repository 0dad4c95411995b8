package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settlement-hub/settlement-hub/internal/domain/ledger"
)

// LedgerRepository implements ledger.Repository. The primary key on sequence
// makes cross-process double-appends fail at insert time.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func (r *LedgerRepository) Insert(ctx context.Context, entry *ledger.Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ledger_entries
		(sequence, entry_id, prior_hash, payload_hash, entry_hash, payload, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.Sequence, entry.EntryID, entry.PriorHash, entry.PayloadHash, entry.EntryHash, entry.Payload, entry.RecordedAt)
	return err
}

func (r *LedgerRepository) GetBySequence(ctx context.Context, sequence int64) (*ledger.Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT sequence, entry_id, prior_hash, payload_hash, entry_hash, payload, recorded_at
		FROM ledger_entries WHERE sequence = $1
	`, sequence)
	return scanLedgerEntry(row)
}

func (r *LedgerRepository) GetTail(ctx context.Context) (*ledger.Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT sequence, entry_id, prior_hash, payload_hash, entry_hash, payload, recorded_at
		FROM ledger_entries ORDER BY sequence DESC LIMIT 1
	`)
	return scanLedgerEntry(row)
}

func (r *LedgerRepository) ListRange(ctx context.Context, from, to int64) ([]*ledger.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sequence, entry_id, prior_hash, payload_hash, entry_hash, payload, recorded_at
		FROM ledger_entries WHERE sequence >= $1 AND sequence <= $2 ORDER BY sequence
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *LedgerRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries`).Scan(&count)
	return count, err
}

func scanLedgerEntry(row pgx.Row) (*ledger.Entry, error) {
	entry := &ledger.Entry{}
	err := row.Scan(&entry.Sequence, &entry.EntryID, &entry.PriorHash, &entry.PayloadHash, &entry.EntryHash, &entry.Payload, &entry.RecordedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}
