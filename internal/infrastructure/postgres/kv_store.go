package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// KVStore implements store.AtomicStore on Postgres. Every operation is a
// single statement so atomicity comes from the database, not from client-side
// read-modify-write.
type KVStore struct {
	pool *pgxpool.Pool
}

func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

func (s *KVStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}
	// An expired row counts as absent and may be overwritten.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO atomic_kv (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
		WHERE atomic_kv.expires_at IS NOT NULL AND atomic_kv.expires_at <= now()
	`, key, value, expiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM atomic_kv
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())
	`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *KVStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM atomic_kv
		WHERE key = $1 AND value = $2 AND (expires_at IS NULL OR expires_at > now())
	`, key, expected)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *KVStore) ReserveSequence(ctx context.Context, key string, floor uint64) (uint64, error) {
	var issued int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO atomic_sequences (key, next_value, reserved_at)
		VALUES ($1, $2 + 1, now())
		ON CONFLICT (key) DO UPDATE
		SET next_value = GREATEST(atomic_sequences.next_value, $2) + 1, reserved_at = now()
		RETURNING next_value - 1
	`, key, int64(floor)).Scan(&issued)
	if err != nil {
		return 0, err
	}
	return uint64(issued), nil
}

func (s *KVStore) ReleaseSequence(ctx context.Context, key string, value uint64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE atomic_sequences SET next_value = $2
		WHERE key = $1 AND next_value = $2 + 1
	`, key, int64(value))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *KVStore) SyncSequence(ctx context.Context, key string, floor uint64) (uint64, error) {
	var next int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO atomic_sequences (key, next_value, reserved_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET next_value = GREATEST(atomic_sequences.next_value, $2), reserved_at = now()
		RETURNING next_value
	`, key, int64(floor)).Scan(&next)
	if err != nil {
		return 0, err
	}
	return uint64(next), nil
}

func (s *KVStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM atomic_kv WHERE expires_at IS NOT NULL AND expires_at <= now()
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
