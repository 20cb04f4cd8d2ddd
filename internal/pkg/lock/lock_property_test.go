package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Concurrent read-modify-write under the same key must equal sequential execution.
func TestConcurrentUpdatesSerializedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(0, 100000).Draw(t, "initial")
		amounts := rapid.SliceOfN(rapid.Int64Range(1, 500), 2, 20).Draw(t, "amounts")
		key := rapid.StringMatching(`member-[0-9a-f]{8}`).Draw(t, "key")

		kl := NewKeyLock()
		total := initial
		expected := initial
		for _, a := range amounts {
			expected += a
		}

		var wg sync.WaitGroup
		wg.Add(len(amounts))
		for _, a := range amounts {
			go func(amount int64) {
				defer wg.Done()
				_ = kl.WithLock(context.Background(), key, time.Second, func() error {
					cur := total
					total = cur + amount
					return nil
				})
			}(a)
		}
		wg.Wait()

		if total != expected {
			t.Fatalf("expected %d, got %d", expected, total)
		}
		if kl.Len() != 0 {
			t.Fatalf("idle keys should be dropped, %d left", kl.Len())
		}
	})
}

// Different keys never block each other.
func TestIndependentKeysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 10).Draw(t, "keys")
		kl := NewKeyLock()

		for i := 0; i < n; i++ {
			if !kl.TryLock(fmt.Sprintf("m%d", i)) {
				t.Fatalf("key m%d should be free", i)
			}
		}
		for i := 0; i < n; i++ {
			kl.Unlock(fmt.Sprintf("m%d", i))
		}
		if kl.Len() != 0 {
			t.Fatalf("expected no held keys, got %d", kl.Len())
		}
	})
}

// Only one of many simultaneous TryLock calls wins while the key is held.
func TestTryLockExclusiveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		attempts := rapid.IntRange(5, 20).Draw(t, "attempts")
		kl := NewKeyLock()
		require.True(t, kl.TryLock("m"))

		var wins atomic.Int32
		var wg sync.WaitGroup
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func() {
				defer wg.Done()
				if kl.TryLock("m") {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		kl.Unlock("m")

		if wins.Load() != 0 {
			t.Fatalf("no TryLock should succeed while held, got %d", wins.Load())
		}
		if !kl.TryLock("m") {
			t.Fatal("lock should be available after release")
		}
		kl.Unlock("m")
	})
}

func TestWithLock_Timeout(t *testing.T) {
	kl := NewKeyLock()
	require.True(t, kl.TryLock("m"))
	defer kl.Unlock("m")

	called := false
	err := kl.WithLock(context.Background(), "m", 20*time.Millisecond, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, called)
}

func TestWithLock_CallerCancelled(t *testing.T) {
	kl := NewKeyLock()
	require.True(t, kl.TryLock("m"))
	defer kl.Unlock("m")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := kl.WithLock(ctx, "m", time.Second, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnlock_NotHeld(t *testing.T) {
	kl := NewKeyLock()
	kl.Unlock("nobody")
	assert.Equal(t, 0, kl.Len())
}
