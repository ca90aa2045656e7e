// Package lock provides distributed and local locking abstractions.
// For single-node deployments, memory-based locks are used.
// For distributed deployments, Redis-based locks can be used.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Locker defines the interface for distributed/local locking.
// Every successful acquisition returns an owner token; only that token releases
// the lock, so a holder whose TTL lapsed cannot free the next holder's lock.
type Locker interface {
	// Acquire attempts to acquire a lock.
	// Returns the owner token and true if the lock was acquired, false if it's
	// held by another owner. The lock will automatically expire after ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)

	// AcquireWithRetry attempts to acquire a lock with retries.
	// Will retry up to maxRetries times with retryDelay between attempts.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (string, bool, error)

	// Release releases a lock if token still owns it.
	// Returns true if the lock was released, false if it had expired or changed owner.
	Release(ctx context.Context, key, token string) (bool, error)
}

// Lock is a convenience wrapper for a specific lock instance.
type Lock struct {
	locker Locker
	key    string
	token  string
	held   bool
}

// NewLock creates a new Lock instance.
func NewLock(locker Locker, key string) *Lock {
	return &Lock{
		locker: locker,
		key:    key,
	}
}

// Acquire attempts to acquire the lock once.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	token, acquired, err := l.locker.Acquire(ctx, l.key, ttl)
	if err != nil {
		return false, err
	}
	l.token, l.held = token, acquired
	return acquired, nil
}

// AcquireWithRetry attempts to acquire the lock, retrying while it is held elsewhere.
func (l *Lock) AcquireWithRetry(ctx context.Context, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	token, acquired, err := l.locker.AcquireWithRetry(ctx, l.key, ttl, maxRetries, retryDelay)
	if err != nil {
		return false, err
	}
	l.token, l.held = token, acquired
	return acquired, nil
}

// Release releases the lock if this instance still owns it.
// It reports false when the lock had already expired or passed to another owner.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	if !l.held {
		return false, nil
	}
	l.held = false
	return l.locker.Release(ctx, l.key, l.token)
}

// Key returns the lock key.
func (l *Lock) Key() string {
	return l.key
}

// =============================================================================
// Common Lock Keys
// =============================================================================

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// QuotaReservation returns the per-user key serializing quota check and ledger write.
func (lockKeys) QuotaReservation(userID uuid.UUID) string {
	return "lock:quota:user:" + userID.String()
}

// RetentionCleanup returns the key guarding the retention cleanup pass.
func (lockKeys) RetentionCleanup() string {
	return "lock:cleanup:retention"
}
