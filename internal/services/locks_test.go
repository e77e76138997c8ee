package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContactLocksSerializePerContact(t *testing.T) {
	locks := NewContactLocks()

	var mu sync.Mutex
	counters := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, contactID := range []string{"CT1", "CT2"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				unlock := locks.Lock(id)
				defer unlock()

				mu.Lock()
				counters[id]++
				mu.Unlock()
			}(contactID)
		}
	}
	wg.Wait()

	assert.Equal(t, 50, counters["CT1"])
	assert.Equal(t, 50, counters["CT2"])
}

func TestAcquirePreservesReservationOrder(t *testing.T) {
	locks := NewContactLocks()

	const n = 20
	waits := make([]func(), n)
	releases := make([]func(), n)
	for i := 0; i < n; i++ {
		waits[i], releases[i] = locks.Acquire("CT1")
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	// Start waiters in reverse so any ordering has to come from the queue,
	// not from goroutine start order
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			waits[i]()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			releases[i]()
		}(i)
	}
	wg.Wait()

	for i, got := range order {
		assert.Equal(t, i, got)
	}
}

func TestAcquireDifferentContactsIndependent(t *testing.T) {
	locks := NewContactLocks()

	_, release := locks.Acquire("CT1")
	defer release()

	// A queued slot for one contact never blocks another contact
	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("CT2")
		unlock()
		close(done)
	}()
	<-done
}

func TestContactLocksReentrantAfterUnlock(t *testing.T) {
	locks := NewContactLocks()

	unlock := locks.Lock("CT1")
	unlock()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("CT1")
		unlock()
		close(done)
	}()
	<-done
}
