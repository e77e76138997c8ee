package services

import "sync"

// ContactLocks serializes processing per contact in acquisition order: two
// messages from the same contact never run concurrently and are processed
// in the order their slots were reserved, while different contacts proceed
// in parallel. Each reservation chains on the previous one, so the queue
// is strictly FIFO; the map entry is removed once the last slot drains.
type ContactLocks struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// NewContactLocks creates an empty lock registry
func NewContactLocks() *ContactLocks {
	return &ContactLocks{
		tails: make(map[string]chan struct{}),
	}
}

// Acquire reserves the contact's next processing slot immediately. wait
// blocks until every earlier slot for the same contact has been released;
// release frees the slot for the next waiter. Reserving is what fixes the
// position in line, so callers that must preserve arrival order reserve
// synchronously and may wait on another goroutine.
func (c *ContactLocks) Acquire(contactID string) (wait, release func()) {
	done := make(chan struct{})

	c.mu.Lock()
	prev := c.tails[contactID]
	c.tails[contactID] = done
	c.mu.Unlock()

	wait = func() {
		if prev != nil {
			<-prev
		}
	}
	release = func() {
		close(done)
		c.mu.Lock()
		if c.tails[contactID] == done {
			delete(c.tails, contactID)
		}
		c.mu.Unlock()
	}
	return wait, release
}

// Lock reserves and waits in one call, for synchronous callers. Returns
// the release function.
func (c *ContactLocks) Lock(contactID string) func() {
	wait, release := c.Acquire(contactID)
	wait()
	return release
}
