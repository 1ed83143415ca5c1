// Package lock provides per-channel locking so that game actions against
// the same channel are serialized instead of racing at the store layer.
package lock

import (
	"context"
	"sync"
	"time"
)

// channelMutex wraps a mutex with reference counting for cleanup.
type channelMutex struct {
	mu       sync.Mutex
	refCount int
}

// ChannelLock hands out one mutex per channel identifier. Actions,
// starts and stops for a channel take the lock so their read-modify-write
// against the store cannot interleave in-process.
type ChannelLock struct {
	locks sync.Map // map[string]*channelMutex
	pool  sync.Pool
}

// NewChannelLock creates a new ChannelLock instance.
func NewChannelLock() *ChannelLock {
	return &ChannelLock{
		pool: sync.Pool{
			New: func() any {
				return &channelMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given channel.
func (cl *ChannelLock) getLock(channelID string) *channelMutex {
	if v, ok := cl.locks.Load(channelID); ok {
		return v.(*channelMutex)
	}

	newLock := cl.pool.Get().(*channelMutex)
	newLock.refCount = 0

	actual, loaded := cl.locks.LoadOrStore(channelID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool.
		cl.pool.Put(newLock)
	}
	return actual.(*channelMutex)
}

// Lock acquires the lock for a channel.
func (cl *ChannelLock) Lock(channelID string) {
	lock := cl.getLock(channelID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a channel.
func (cl *ChannelLock) Unlock(channelID string) {
	if v, ok := cl.locks.Load(channelID); ok {
		lock := v.(*channelMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (cl *ChannelLock) TryLock(channelID string) bool {
	lock := cl.getLock(channelID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// LockWithTimeout attempts to acquire the lock within the timeout.
// Returns ErrLockTimeout if the timeout hit first.
func (cl *ChannelLock) LockWithTimeout(ctx context.Context, channelID string, timeout time.Duration) error {
	lock := cl.getLock(channelID)

	done := make(chan struct{})
	go func() {
		lock.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		lock.refCount++
		return nil
	case <-timeoutCtx.Done():
		// The waiting goroutine will still acquire eventually; release
		// as soon as it does so the lock is not leaked.
		go func() {
			<-done
			lock.mu.Unlock()
		}()
		return ErrLockTimeout
	}
}

// WithLock executes fn while holding the channel's lock.
func (cl *ChannelLock) WithLock(channelID string, fn func() error) error {
	cl.Lock(channelID)
	defer cl.Unlock(channelID)
	return fn()
}

// IsLocked checks if a channel currently has an active lock.
// Point-in-time check, may change immediately after returning.
func (cl *ChannelLock) IsLocked(channelID string) bool {
	if v, ok := cl.locks.Load(channelID); ok {
		lock := v.(*channelMutex)
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
