// Package locks serializes work on a named key, either within one process or
// across processes sharing a Redis instance.
package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLockTimeout is returned when the context ends before the lock is acquired.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// Locker acquires exclusive access to a key. The returned unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// PairKey names the lock guarding first contact between two users. Order does not matter.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("pair:%d:%d", a, b)
}

// ThreadKey names the writer lock of a thread.
func ThreadKey(threadID int64) string {
	return fmt.Sprintf("thread:%d", threadID)
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Entries are dropped once nobody holds or waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

func (km *KeyedMutex) acquireEntry(key string) *keyedEntry {
	km.mu.Lock()
	defer km.mu.Unlock()
	e, ok := km.entries[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		km.entries[key] = e
	}
	e.refs++
	return e
}

func (km *KeyedMutex) releaseEntry(key string, e *keyedEntry) {
	km.mu.Lock()
	defer km.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(km.entries, key)
	}
}

func (km *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	e := km.acquireEntry(key)
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		km.releaseEntry(key, e)
		return nil, fmt.Errorf("%w %q: %v", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			km.releaseEntry(key, e)
		})
	}, nil
}

// Len reports how many keys are currently held or awaited.
func (km *KeyedMutex) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.entries)
}
