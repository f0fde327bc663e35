package locks

import (
	"context"
	"sync"
	"time"
)

// KeyedLock serialises operations that share a string key while letting
// unrelated keys proceed in parallel. Entries are reference counted and
// removed from the map as soon as the last interested caller is done, so
// the key space never grows unbounded.
//
// Instances are constructed and injected explicitly; there is no package
// level registry.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	refs int
	sem  chan struct{}
}

// New creates a new KeyedLock
func New() *KeyedLock {
	return &KeyedLock{
		locks: make(map[string]*refLock),
	}
}

// Guard represents the outcome of an acquisition attempt. HaveLock reports
// whether the lock was actually obtained: after a timeout the caller gets a
// Guard with HaveLock=false and may proceed, but must re-check the
// protected invariant since another holder may have completed the work.
type Guard struct {
	lock     *KeyedLock
	key      string
	haveLock bool
	once     sync.Once
}

// HaveLock reports whether the lock was obtained
func (g *Guard) HaveLock() bool {
	return g.haveLock
}

// Release releases the lock if held. Safe to call more than once and safe
// to call on a Guard that never obtained the lock.
func (g *Guard) Release() {
	g.once.Do(func() {
		if g.haveLock {
			g.lock.put(g.key, true)
		}
	})
}

// Acquire waits until the lock for key is held or ctx is cancelled
func (l *KeyedLock) Acquire(ctx context.Context, key string) (*Guard, error) {
	return l.acquire(ctx, key, nil)
}

// AcquireTimeout waits until the lock for key is held, or timeout elapses.
// Timeout is not an error: the returned Guard has HaveLock()==false and the
// caller decides how to degrade.
func (l *KeyedLock) AcquireTimeout(ctx context.Context, key string, timeout time.Duration) (*Guard, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return l.acquire(ctx, key, timer.C)
}

func (l *KeyedLock) acquire(ctx context.Context, key string, timeout <-chan time.Time) (*Guard, error) {
	sem := l.get(key)

	select {
	case sem <- struct{}{}:
		return &Guard{lock: l, key: key, haveLock: true}, nil
	case <-timeout:
		l.put(key, false)
		return &Guard{lock: l, key: key}, nil
	case <-ctx.Done():
		l.put(key, false)
		return &Guard{lock: l, key: key}, ctx.Err()
	}
}

// get returns the semaphore for key, creating it on demand and bumping the
// reference count
func (l *KeyedLock) get(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	rl, ok := l.locks[key]
	if !ok {
		rl = &refLock{sem: make(chan struct{}, 1)}
		l.locks[key] = rl
	}
	rl.refs++
	return rl.sem
}

// put drops one reference to key, deleting the entry once uncontended, and
// optionally releases the semaphore
func (l *KeyedLock) put(key string, unlock bool) {
	l.mu.Lock()
	rl := l.locks[key]
	rl.refs--
	if rl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()

	if unlock {
		<-rl.sem
	}
}

// Len returns the number of keys currently tracked
func (l *KeyedLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
