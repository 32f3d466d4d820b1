package services

import (
	"context"
	"sync"
)

// componentLocks serializes builder invocations per roadmap component.
// The version-control backend offers no transactions, so two items
// must never race to branch the same component off the same base.
// Acquisition is context-aware: a cancelled item stops waiting and
// never holds a lock it cannot release.
type componentLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newComponentLocks() *componentLocks {
	return &componentLocks{
		locks: make(map[string]chan struct{}),
	}
}

// Acquire takes the lock for a component, blocking until it is free or
// the context is cancelled.
func (c *componentLocks) Acquire(ctx context.Context, componentID string) error {
	for {
		c.mu.Lock()
		ch, held := c.locks[componentID]
		if !held {
			c.locks[componentID] = make(chan struct{})
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		select {
		case <-ch:
			// Lock released; loop and try to take it.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release frees the lock for a component and wakes all waiters.
func (c *componentLocks) Release(componentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, held := c.locks[componentID]; held {
		delete(c.locks, componentID)
		close(ch)
	}
}
