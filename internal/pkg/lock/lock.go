// Package lock provides per-key in-process locking, used to serialize
// rule gating and granting for one member.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a key cannot be acquired within the timeout.
var ErrLockTimeout = errors.New("lock acquisition timeout")

// entry is a one-slot semaphore with a reference count so idle keys are dropped.
type entry struct {
	sem  chan struct{}
	refs int
}

// KeyLock provides mutual exclusion per string key.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewKeyLock creates a new KeyLock instance.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*entry)}
}

func (kl *KeyLock) acquire(key string) *entry {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	e, ok := kl.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		kl.locks[key] = e
	}
	e.refs++
	return e
}

func (kl *KeyLock) release(key string, e *entry) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(kl.locks, key)
	}
}

// Lock blocks until the key is held or ctx is done.
func (kl *KeyLock) Lock(ctx context.Context, key string) error {
	e := kl.acquire(key)
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		kl.release(key, e)
		return ctx.Err()
	}
}

// TryLock acquires the key without blocking.
// Returns true if the lock was acquired, false otherwise.
func (kl *KeyLock) TryLock(key string) bool {
	e := kl.acquire(key)
	select {
	case e.sem <- struct{}{}:
		return true
	default:
		kl.release(key, e)
		return false
	}
}

// Unlock releases the key. Unlocking a key that is not held is a no-op.
func (kl *KeyLock) Unlock(key string) {
	kl.mu.Lock()
	e, ok := kl.locks[key]
	kl.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-e.sem:
		kl.release(key, e)
	default:
	}
}

// WithLock executes fn while holding the key, waiting at most timeout.
func (kl *KeyLock) WithLock(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := kl.Lock(lockCtx, key); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrLockTimeout
		}
		return err
	}
	defer kl.Unlock(key)

	return fn()
}

// Len returns the number of keys currently held or waited on.
func (kl *KeyLock) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
