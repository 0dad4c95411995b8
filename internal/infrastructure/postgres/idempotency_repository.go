package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settlement-hub/settlement-hub/internal/domain/idempotency"
)

// IdempotencyRepository implements idempotency.Repository. The claim path is
// a single INSERT ... ON CONFLICT DO NOTHING so exactly one concurrent caller
// can win a key.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

func (r *IdempotencyRepository) Claim(ctx context.Context, record *idempotency.Record) (bool, *idempotency.Record, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO idempotency_records
		(key, operation, request_fingerprint, status, response, error_detail, created_at, completed_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (key) DO NOTHING
	`, record.Key, record.Operation, record.RequestFingerprint, record.Status, record.Response, record.ErrorDetail, record.CreatedAt, record.CompletedAt, record.ExpiresAt)
	if err != nil {
		return false, nil, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil, nil
	}
	existing, err := r.Get(ctx, record.Key)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *IdempotencyRepository) TakeOver(ctx context.Context, key string, staleBefore time.Time, fresh *idempotency.Record) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE idempotency_records
		SET request_fingerprint = $2, status = $3, response = NULL, error_detail = '',
		    created_at = $4, completed_at = NULL, expires_at = $5
		WHERE key = $1 AND status = $6 AND created_at < $7
	`, key, fresh.RequestFingerprint, idempotency.StatusPending, fresh.CreatedAt, fresh.ExpiresAt, idempotency.StatusPending, staleBefore)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, record *idempotency.Record) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE idempotency_records
		SET status = $2, response = $3, error_detail = $4, completed_at = $5
		WHERE key = $1
	`, record.Key, record.Status, record.Response, record.ErrorDetail, record.CompletedAt)
	return err
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT key, operation, request_fingerprint, status, response, error_detail, created_at, completed_at, expires_at
		FROM idempotency_records WHERE key = $1
	`, key)
	record := &idempotency.Record{}
	err := row.Scan(&record.Key, &record.Operation, &record.RequestFingerprint, &record.Status, &record.Response, &record.ErrorDetail, &record.CreatedAt, &record.CompletedAt, &record.ExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
