package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker implements Locker using in-memory locks.
// Locks are NOT shared across process restarts or multiple instances.
type MemoryLocker struct {
	mu     sync.Mutex
	locks  map[string]memoryLock
	stopCh chan struct{}
	once   sync.Once
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLocker creates a new in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	ml := &MemoryLocker{
		locks:  make(map[string]memoryLock),
		stopCh: make(chan struct{}),
	}

	go ml.cleanupLoop()

	return ml
}

// Stop stops the background expiry sweep.
func (m *MemoryLocker) Stop() {
	m.once.Do(func() { close(m.stopCh) })
}

func (m *MemoryLocker) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryLocker) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, l := range m.locks {
		if now.After(l.expiresAt) {
			delete(m.locks, key)
		}
	}
}

// liveLocked returns the unexpired lock on key, dropping an expired one. Caller holds mu.
func (m *MemoryLocker) liveLocked(key string, now time.Time) (memoryLock, bool) {
	l, ok := m.locks[key]
	if !ok {
		return memoryLock{}, false
	}
	if now.After(l.expiresAt) {
		delete(m.locks, key)
		return memoryLock{}, false
	}
	return l, true
}

// Acquire attempts to acquire a lock.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if _, held := m.liveLocked(key, now); held {
		return "", false, nil
	}
	token := uuid.NewString()
	m.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// AcquireWithRetry attempts to acquire a lock with retries.
func (m *MemoryLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (string, bool, error) {
	return retryAcquire(ctx, m, key, ttl, maxRetries, retryDelay)
}

// Release releases a lock owned by token.
func (m *MemoryLocker) Release(ctx context.Context, key, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.liveLocked(key, time.Now())
	if !ok || l.token != token {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}

// retryAcquire polls Acquire until it succeeds, retries run out, or ctx ends.
func retryAcquire(ctx context.Context, l Locker, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (string, bool, error) {
	for i := 0; i <= maxRetries; i++ {
		token, acquired, err := l.Acquire(ctx, key, ttl)
		if err != nil {
			return "", false, err
		}
		if acquired {
			return token, true, nil
		}

		if i < maxRetries {
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return "", false, nil
}

// Ensure MemoryLocker implements Locker.
var _ Locker = (*MemoryLocker)(nil)
