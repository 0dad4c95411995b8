// Package idempotency ensures a client-submitted operation key executes at
// most once and replays the prior result on retry.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/settlement-hub/settlement-hub/internal/domain/idempotency"
)

var (
	// ErrInProgress signals a concurrent execution of the same key; the
	// caller should retry later rather than block.
	ErrInProgress = errors.New("operation in progress")
	// ErrFingerprintConflict signals key reuse with a different request body.
	// This is the tamper/bug detection path; neither request wins silently.
	ErrFingerprintConflict = errors.New("idempotency key reused with different request")
)

// Outcome is what execute-once returns: either the live result or the cached
// one, with Replayed distinguishing the two.
type Outcome struct {
	Response    json.RawMessage
	ErrorDetail string
	Failed      bool
	Replayed    bool
}

// Coordinator implements execute-once over the record repository.
type Coordinator struct {
	repo   domain.Repository
	ttl    time.Duration
	grace  time.Duration
	logger zerolog.Logger
}

// NewCoordinator creates a coordinator. ttl bounds record retention; grace is
// how long a pending record may sit before it is treated as abandoned.
func NewCoordinator(repo domain.Repository, ttl, grace time.Duration, logger zerolog.Logger) *Coordinator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	return &Coordinator{
		repo:   repo,
		ttl:    ttl,
		grace:  grace,
		logger: logger.With().Str("service", "idempotency").Logger(),
	}
}

// Fingerprint hashes a request body into the stable fingerprint stored with
// the key.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ExecuteOnce runs work at most once for key. The first caller creates a
// pending record, runs work, and stores the outcome. Retries with the same
// fingerprint replay the stored outcome; a pending record younger than the
// grace period yields ErrInProgress; a different fingerprint is a hard
// conflict.
func (c *Coordinator) ExecuteOnce(ctx context.Context, key, operation, fingerprint string, work func(ctx context.Context) (json.RawMessage, error)) (*Outcome, error) {
	now := time.Now().UTC()
	record := &domain.Record{
		Key:                key,
		Operation:          operation,
		RequestFingerprint: fingerprint,
		Status:             domain.StatusPending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(c.ttl),
	}

	claimed, existing, err := c.repo.Claim(ctx, record)
	if err != nil {
		return nil, err
	}
	if !claimed {
		outcome, takeOver, err := c.resolveExisting(ctx, existing, fingerprint, now)
		if err != nil || outcome != nil {
			return outcome, err
		}
		if !takeOver {
			return nil, ErrInProgress
		}
		c.logger.Warn().Str("key", key).Msg("abandoned pending record taken over")
	}

	return c.run(ctx, record, work)
}

// resolveExisting decides what a non-claiming caller gets: a replayed
// outcome, a conflict, in-progress, or permission to take over an abandoned
// pending record.
func (c *Coordinator) resolveExisting(ctx context.Context, existing *domain.Record, fingerprint string, now time.Time) (*Outcome, bool, error) {
	if existing == nil {
		return nil, false, ErrInProgress
	}
	if existing.RequestFingerprint != fingerprint {
		return nil, false, ErrFingerprintConflict
	}
	switch existing.Status {
	case domain.StatusCompleted:
		return &Outcome{Response: existing.Response, Replayed: true}, false, nil
	case domain.StatusFailed:
		return &Outcome{ErrorDetail: existing.ErrorDetail, Failed: true, Replayed: true}, false, nil
	case domain.StatusPending:
		staleBefore := now.Add(-c.grace)
		if existing.CreatedAt.Before(staleBefore) {
			fresh := &domain.Record{
				Key:                existing.Key,
				Operation:          existing.Operation,
				RequestFingerprint: fingerprint,
				Status:             domain.StatusPending,
				CreatedAt:          now,
				ExpiresAt:          now.Add(c.ttl),
			}
			taken, err := c.repo.TakeOver(ctx, existing.Key, staleBefore, fresh)
			if err != nil {
				return nil, false, err
			}
			return nil, taken, nil
		}
		return nil, false, ErrInProgress
	default:
		return nil, false, ErrInProgress
	}
}

func (c *Coordinator) run(ctx context.Context, record *domain.Record, work func(ctx context.Context) (json.RawMessage, error)) (*Outcome, error) {
	response, workErr := work(ctx)
	completedAt := time.Now().UTC()
	record.CompletedAt = &completedAt
	if workErr != nil {
		record.Status = domain.StatusFailed
		record.ErrorDetail = workErr.Error()
	} else {
		record.Status = domain.StatusCompleted
		record.Response = response
	}
	if err := c.repo.Complete(ctx, record); err != nil {
		c.logger.Error().Err(err).Str("key", record.Key).Msg("failed to finalize idempotency record")
	}
	if workErr != nil {
		return &Outcome{ErrorDetail: record.ErrorDetail, Failed: true}, workErr
	}
	return &Outcome{Response: response}, nil
}

// Lookup returns the stored outcome for key when one exists and is finished,
// nil when the key is unknown. A fingerprint mismatch is a hard conflict; a
// live pending record reports ErrInProgress. A pending record past the grace
// window falls through (nil, nil) so the caller can take it over via
// ExecuteOnce.
func (c *Coordinator) Lookup(ctx context.Context, key, fingerprint string) (*Outcome, error) {
	existing, err := c.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if existing.RequestFingerprint != fingerprint {
		return nil, ErrFingerprintConflict
	}
	switch existing.Status {
	case domain.StatusCompleted:
		return &Outcome{Response: existing.Response, Replayed: true}, nil
	case domain.StatusFailed:
		return &Outcome{ErrorDetail: existing.ErrorDetail, Failed: true, Replayed: true}, nil
	case domain.StatusPending:
		if existing.CreatedAt.Before(time.Now().UTC().Add(-c.grace)) {
			return nil, nil
		}
		return nil, ErrInProgress
	default:
		return nil, ErrInProgress
	}
}

// SweepExpired deletes records past TTL. Called from a background timer.
func (c *Coordinator) SweepExpired(ctx context.Context) (int64, error) {
	return c.repo.DeleteExpired(ctx, time.Now().UTC())
}
