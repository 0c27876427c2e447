package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/biddingerrors"
)

// DefaultLockTimeout bounds how long a caller waits for a product's critical section
const DefaultLockTimeout = 2 * time.Second

// Option configures a repository
type Option func(*options)

type options struct {
	lockTimeout time.Duration
}

// WithLockTimeout sets the maximum wait for a product lock
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{lockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// keyedLock hands out one exclusive slot per key. Different keys never block each other.
// A slot lives only while some caller holds or waits for it.
type keyedLock struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int // holders plus waiters; guarded by keyedLock.mu
}

func newKeyedLock() *keyedLock {
	return &keyedLock{slots: make(map[string]*lockSlot)}
}

// ref returns the key's slot, creating it on first use, and counts the caller in
func (k *keyedLock) ref(key string) *lockSlot {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.slots[key]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

// unref counts the caller out and drops the slot once nobody holds or waits for it
func (k *keyedLock) unref(key string, s *lockSlot) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// size is the number of live slots
func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

// acquire waits for the key's slot until ctx is done or timeout elapses
func (k *keyedLock) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	s := k.ref(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				k.unref(key, s)
			})
		}, nil
	case <-ctx.Done():
		k.unref(key, s)
		return nil, fmt.Errorf("lock product %s: %w", key, ctx.Err())
	case <-timer.C:
		k.unref(key, s)
		return nil, fmt.Errorf("lock product %s after %s: %w", key, timeout, biddingerrors.ErrConcurrencyConflict)
	}
}
