package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SameKeySerialises(t *testing.T) {
	l := New()
	ctx := context.Background()

	const workers = 20
	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			guard, err := l.Acquire(ctx, "1/2/shared")
			require.NoError(t, err)
			defer guard.Release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "critical sections for same key overlapped")
	assert.Equal(t, 0, l.Len(), "lock map should be empty once uncontended")
}

func TestAcquire_DistinctKeysDoNotBlock(t *testing.T) {
	l := New()
	ctx := context.Background()

	const hold = 50 * time.Millisecond
	start := time.Now()
	var wg sync.WaitGroup
	for _, key := range []string{"1/1/a", "1/1/b", "1/1/c", "1/1/d"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			guard, err := l.Acquire(ctx, key)
			require.NoError(t, err)
			defer guard.Release()
			time.Sleep(hold)
		}(key)
	}
	wg.Wait()

	// Total time should be roughly one hold, not four
	assert.Less(t, time.Since(start), 3*hold, "distinct keys blocked each other")
}

func TestAcquireTimeout_ReturnsGuardWithoutLock(t *testing.T) {
	l := New()
	ctx := context.Background()

	held, err := l.Acquire(ctx, "9/9/busy")
	require.NoError(t, err)
	require.True(t, held.HaveLock())

	guard, err := l.AcquireTimeout(ctx, "9/9/busy", 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, guard.HaveLock())

	// Releasing a guard without the lock must not release the holder's lock
	guard.Release()
	second, err := l.AcquireTimeout(ctx, "9/9/busy", 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, second.HaveLock())
	second.Release()

	held.Release()
	assert.Equal(t, 0, l.Len())
}

func TestAcquire_CancelledContext(t *testing.T) {
	l := New()

	held, err := l.Acquire(context.Background(), "1/1/held")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		guard, err := l.Acquire(ctx, "1/1/held")
		guard.Release()
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire did not return")
	}

	held.Release()
	assert.Equal(t, 0, l.Len())
}

func TestRelease_Idempotent(t *testing.T) {
	l := New()

	guard, err := l.Acquire(context.Background(), "1/1/once")
	require.NoError(t, err)
	guard.Release()
	guard.Release()

	again, err := l.AcquireTimeout(context.Background(), "1/1/once", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, again.HaveLock(), "double release corrupted lock state")
	again.Release()
}
