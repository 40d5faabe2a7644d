package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_SameKeySerializes(t *testing.T) {
	l := New[uint64]()
	ctx := context.Background()

	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, 7)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := active.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, 0, l.Len(), "entries are dropped when unused")
}

func TestLock_DifferentKeysIndependent(t *testing.T) {
	l := New[string]()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := l.Lock(ctx, "b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestLock_ContextCancelled(t *testing.T) {
	l := New[int]()

	unlock, err := l.Lock(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.Len(), "failed waiter releases its reference")

	unlock()
	assert.Equal(t, 0, l.Len())
}

func TestUnlock_Idempotent(t *testing.T) {
	l := New[int]()

	unlock, err := l.Lock(context.Background(), 1)
	require.NoError(t, err)
	unlock()
	unlock()

	unlock, ok := l.TryLock(1)
	require.True(t, ok)
	unlock()
}

func TestTryLock(t *testing.T) {
	l := New[int]()

	unlock, ok := l.TryLock(3)
	require.True(t, ok)

	_, ok = l.TryLock(3)
	assert.False(t, ok)

	unlock()
	unlock2, ok := l.TryLock(3)
	assert.True(t, ok)
	unlock2()
}
