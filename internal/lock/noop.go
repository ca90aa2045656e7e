package lock

import (
	"context"
	"time"
)

// NoOpLocker always grants locks. Used when quota.strict is disabled and in
// tests that don't exercise contention.
type NoOpLocker struct{}

// NewNoOpLocker creates a new no-op locker.
func NewNoOpLocker() *NoOpLocker {
	return &NoOpLocker{}
}

// Acquire grants the lock unless ctx is done.
func (NoOpLocker) Acquire(ctx context.Context, _ string, _ time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return "", true, nil
}

// AcquireWithRetry grants the lock unless ctx is done.
func (n NoOpLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, _ int, _ time.Duration) (string, bool, error) {
	return n.Acquire(ctx, key, ttl)
}

// Release always reports success.
func (NoOpLocker) Release(ctx context.Context, _, _ string) (bool, error) {
	return true, ctx.Err()
}

var _ Locker = (*NoOpLocker)(nil)
