package database

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockManagerSerializes(t *testing.T) {
	m := NewLockManager()

	var mu sync.Mutex
	inSection := 0
	maxSeen := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := m.Lock(RoomKey(1), SpecialistKey(2))
			defer release()

			mu.Lock()
			inSection++
			if inSection > maxSeen {
				maxSeen = inSection
			}
			mu.Unlock()

			mu.Lock()
			inSection--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, m.locks)
}

func TestLockManagerIndependentKeys(t *testing.T) {
	m := NewLockManager()

	releaseA := m.Lock(RoomKey(1))
	done := make(chan struct{})
	go func() {
		releaseB := m.Lock(RoomKey(2))
		releaseB()
		close(done)
	}()
	<-done
	releaseA()
}

func TestLockManagerDuplicateKeys(t *testing.T) {
	m := NewLockManager()

	release := m.Lock(RoomKey(1), RoomKey(1))
	release()
	release() // releasing twice is a no-op

	assert.Empty(t, m.locks)
}
