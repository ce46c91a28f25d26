package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// allocationLockKey identifies the batch allocation advisory lock.
const allocationLockKey int64 = 7202401

// LockRepository takes transaction scoped PostgreSQL advisory locks. Locks are released when the
// surrounding transaction ends.
type LockRepository struct{}

// NewLockRepository constructs a LockRepository.
func NewLockRepository() *LockRepository {
	return &LockRepository{}
}

// TryAllocationLock attempts to take the batch allocation lock without waiting.
func (r *LockRepository) TryAllocationLock(ctx context.Context, tx sqlx.ExtContext) (bool, error) {
	var acquired bool
	if err := sqlx.GetContext(ctx, tx, &acquired, `SELECT pg_try_advisory_xact_lock($1)`, allocationLockKey); err != nil {
		return false, fmt.Errorf("try allocation lock: %w", err)
	}
	return acquired, nil
}

// SharedAllocationLock waits for the batch allocation lock in shared mode. Interactive writers
// hold it so a batch cannot read its snapshot while they commit, and they never block each other.
func (r *LockRepository) SharedAllocationLock(ctx context.Context, tx sqlx.ExtContext) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock_shared($1)`, allocationLockKey); err != nil {
		return fmt.Errorf("shared allocation lock: %w", err)
	}
	return nil
}

// Lock waits for the advisory lock of every key. Keys must be acquired in a stable order by the
// caller to avoid deadlocks.
func (r *LockRepository) Lock(ctx context.Context, tx sqlx.ExtContext, keys ...string) error {
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("advisory lock %s: %w", key, err)
		}
	}
	return nil
}
