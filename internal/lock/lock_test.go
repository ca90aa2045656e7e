package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	defer l.Stop()

	token, ok, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	released, err := l.Release(ctx, "k", "someone-else")
	require.NoError(t, err)
	require.False(t, released)

	released, err = l.Release(ctx, "k", token)
	require.NoError(t, err)
	require.True(t, released)

	released, err = l.Release(ctx, "k", token)
	require.NoError(t, err)
	require.False(t, released)
}

func TestMemoryLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	defer l.Stop()

	_, ok, err := l.Acquire(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLock_ExpiredHolderCannotReleaseNextOwner(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	defer l.Stop()

	key := Keys.QuotaReservation(uuid.New())
	first := NewLock(l, key)
	ok, err := first.Acquire(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	second := NewLock(l, key)
	ok, err = second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := first.Release(ctx)
	require.NoError(t, err)
	require.False(t, released)

	third := NewLock(l, key)
	ok, err = third.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second owner must still hold the lock")

	released, err = second.Release(ctx)
	require.NoError(t, err)
	require.True(t, released)
}

func TestMemoryLocker_AcquireWithRetryWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	defer l.Stop()

	token, ok, _ := l.Acquire(ctx, "k", time.Minute)
	require.True(t, ok)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = l.Release(ctx, "k", token)
	}()

	_, ok, err := l.AcquireWithRetry(ctx, "k", time.Minute, 50, 5*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLocker_AcquireWithRetryHonorsContext(t *testing.T) {
	l := NewMemoryLocker()
	defer l.Stop()

	_, ok, _ := l.Acquire(context.Background(), "k", time.Minute)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok, err := l.AcquireWithRetry(ctx, "k", time.Minute, 1000, 5*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, ok)
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	defer l.Stop()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lk := NewLock(l, Keys.QuotaReservation(uuid.Nil))
			ok, err := lk.AcquireWithRetry(ctx, time.Minute, 500, time.Millisecond)
			if err != nil || !ok {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_, _ = lk.Release(ctx)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxInside)
}

func TestNoOpLocker(t *testing.T) {
	l := NewNoOpLocker()
	_, ok, err := l.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err = l.AcquireWithRetry(ctx, "k", time.Second, 3, time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ok)
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.Equal(t, "lock:quota:user:6ba7b810-9dad-11d1-80b4-00c04fd430c8", Keys.QuotaReservation(id))
	require.Equal(t, "lock:cleanup:retention", Keys.RetentionCleanup())
}

// TestRedisLocker runs against a live Redis when AMPLIFY_TEST_REDIS_ADDR is set.
func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("AMPLIFY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AMPLIFY_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	key := "lock:test:" + uuid.NewString()
	l := NewRedisLocker(client)

	first, ok, err := l.Acquire(ctx, key, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	time.Sleep(100 * time.Millisecond)

	second, ok, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := l.Release(ctx, key, first)
	require.NoError(t, err)
	require.False(t, released, "expired owner must not release")

	released, err = l.Release(ctx, key, second)
	require.NoError(t, err)
	require.True(t, released)
}
