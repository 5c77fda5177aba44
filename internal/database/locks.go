package database

import (
	"fmt"
	"sort"
	"sync"
)

// LockManager serializes the check-then-insert sequence per resource.
// Callers lock every room and specialist a reservation touches before
// checking availability and release after the transaction commits.
// Keys are acquired in sorted order so two callers locking overlapping
// key sets cannot deadlock.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*resourceLock
}

type resourceLock struct {
	mu   sync.Mutex
	refs int
}

func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*resourceLock)}
}

// RoomKey builds the lock key for a room.
func RoomKey(roomID int64) string { return fmt.Sprintf("room:%d", roomID) }

// SpecialistKey builds the lock key for a specialist.
func SpecialistKey(specialistID int64) string { return fmt.Sprintf("specialist:%d", specialistID) }

// Lock acquires all keys and returns the release function. Duplicate
// keys are collapsed.
func (m *LockManager) Lock(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Strings(uniq)

	acquired := make([]*resourceLock, 0, len(uniq))
	for _, k := range uniq {
		acquired = append(acquired, m.acquire(k))
	}
	for _, l := range acquired {
		l.mu.Lock()
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].mu.Unlock()
		}
		m.mu.Lock()
		for _, k := range uniq {
			if l := m.locks[k]; l != nil {
				l.refs--
				if l.refs == 0 {
					delete(m.locks, k)
				}
			}
		}
		m.mu.Unlock()
	}
}

func (m *LockManager) acquire(key string) *resourceLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &resourceLock{}
		m.locks[key] = l
	}
	l.refs++
	return l
}
