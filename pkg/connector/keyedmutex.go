// Copyright 2024-2026 Aiku AI

package connector

import (
	"sync"
)

// keyedMutex hands out one mutex per key. Entries are dropped when their last
// holder unlocks.
type keyedMutex struct {
	lock  sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock locks key and returns the matching unlock function.
func (km *keyedMutex) Lock(key string) (unlock func()) {
	km.lock.Lock()
	if km.locks == nil {
		km.locks = make(map[string]*refMutex)
	}
	m, ok := km.locks[key]
	if !ok {
		m = &refMutex{}
		km.locks[key] = m
	}
	m.refs++
	km.lock.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		km.lock.Lock()
		m.refs--
		if m.refs == 0 {
			delete(km.locks, key)
		}
		km.lock.Unlock()
	}
}

func (km *keyedMutex) size() int {
	km.lock.Lock()
	defer km.lock.Unlock()
	return len(km.locks)
}
