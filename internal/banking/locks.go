package banking

import (
	"slices"
	"sync"
)

// keyedMutex serializes work per account number inside one process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires every key in sorted order and returns the release func.
// Duplicate keys are locked once.
func (k *keyedMutex) Lock(keys ...string) func() {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*refMutex, 0, len(keys))
	for _, key := range keys {
		m := k.acquire(key)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			k.release(keys[i])
		}
	}
}

func (k *keyedMutex) acquire(key string) *refMutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	return m
}

func (k *keyedMutex) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	m := k.locks[key]
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
}

// size reports how many keys currently have holders or waiters.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func sortedPair(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}
