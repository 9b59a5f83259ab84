package mirror

import "sync"

// KeyedLocks serializes work per order ID so quick-successive ticks
// cannot double-act on the same order.
type KeyedLocks struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: make(map[string]*entry)}
}

// Acquire blocks until the key's lock is held and returns the release
// function. Entries are reference counted and dropped when idle, so the
// map does not grow with order churn.
func (k *KeyedLocks) Acquire(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// TryAcquire attempts the lock without blocking. It returns the release
// function and true on success, or nil and false when the key is busy.
// Callers use it to coalesce duplicate handoffs instead of queueing them.
func (k *KeyedLocks) TryAcquire(key string) (func(), bool) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	if !e.mu.TryLock() {
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
		return nil, false
	}
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}, true
}
