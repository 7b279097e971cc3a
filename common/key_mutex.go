package common

import (
	"sync"
)

var mutexPool = sync.Pool{New: func() any {
	return &refMutex{}
}}

type refMutex struct {
	sync.Mutex
	refs int
}

// KeyMutex serializes callers that work on the same key while letting callers on different keys proceed in
// parallel. Entries are reference counted and are returned to a pool when the last holder or waiter releases them,
// so the map does not grow with the number of distinct keys ever seen.
type KeyMutex[T comparable] struct {
	mu      sync.Mutex
	mutexes map[T]*refMutex
}

func NewKeyMutex[T comparable]() *KeyMutex[T] {
	return &KeyMutex[T]{mutexes: map[T]*refMutex{}}
}

// Lock acquires a lock for the given key and returns a releaser function. Caller should call releaser after
// it is done with the lock.
func (m *KeyMutex[T]) Lock(key T) func() {
	m.mu.Lock()
	if m.mutexes == nil {
		m.mutexes = map[T]*refMutex{}
	}

	mtx, ok := m.mutexes[key]
	if !ok {
		mtx = mutexPool.Get().(*refMutex)
		m.mutexes[key] = mtx
	}
	mtx.refs++
	m.mu.Unlock()

	mtx.Lock()

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key, mtx) })
	}
}

func (m *KeyMutex[T]) release(key T, mtx *refMutex) {
	mtx.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	mtx.refs--
	if mtx.refs == 0 {
		delete(m.mutexes, key)
		mutexPool.Put(mtx)
	}
}

// Len returns the number of keys that are currently held or waited on.
func (m *KeyMutex[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.mutexes)
}
