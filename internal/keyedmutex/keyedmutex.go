// Package keyedmutex provides exclusive locks scoped to arbitrary string
// keys. Callers holding different keys never contend with each other, unlike
// a single global mutex, while callers of the same key are strictly ordered.
//
// Typical use is serializing structural file operations per owner:
//
//	release, err := locks.Acquire(ctx, ownerID)
//	if err != nil {
//	    return err
//	}
//	defer release()
package keyedmutex

import (
	"context"
	"sync"
)

// KeyedMutex is a registry of per-key exclusive locks, created lazily on
// first acquisition. The registry itself is safe for concurrent use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{} // capacity 1; holds a token while locked
	refs int           // current holders plus waiters
}

// New returns an empty registry.
func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Acquire blocks until no other caller holds the lock for key, then returns
// a release function. Release must be called on every exit path (normally
// via defer); calling it more than once is safe. Acquire fails only when
// ctx is cancelled while waiting.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() {
				<-l.sem
				m.mu.Lock()
				l.refs--
				m.mu.Unlock()
			})
		}
		return release, nil
	case <-ctx.Done():
		m.mu.Lock()
		l.refs--
		m.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Cleanup removes registry entries with no current holder and no waiters,
// bounding memory growth across many distinct historical keys. It is meant
// to run periodically from a maintenance task, not on the request path.
// Entries that are held or awaited are never removed: refs is incremented
// under the registry mutex before any caller starts waiting.
func (m *KeyedMutex) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, l := range m.locks {
		if l.refs == 0 {
			delete(m.locks, k)
		}
	}
}

// Len reports the number of keys currently tracked by the registry.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
