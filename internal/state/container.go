// Package state provides the single-instance state containers that replace
// the ambient global stores of the original client: each container is owned
// by exactly one component, injected into its consumers, and read through
// snapshots plus change notifications.
package state

import "sync"

// Container holds one process-wide state value. The owning component mutates
// it through Set; readers take snapshots with Get and re-read on the next
// notification. Notifications are delivered best-effort: a subscriber that
// is not draining its channel misses intermediate snapshots but always
// receives the latest one eventually (latest-wins per subscriber).
type Container[T any] struct {
	mu    sync.Mutex
	value T

	nextID      int
	subscribers map[int]chan T
}

// NewContainer creates a container holding the given initial value.
func NewContainer[T any](initial T) *Container[T] {
	return &Container[T]{
		value:       initial,
		subscribers: make(map[int]chan T),
	}
}

// Get returns a snapshot of the current value.
func (c *Container[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.value
}

// Set replaces the value and notifies subscribers. Only the owning component
// calls Set.
func (c *Container[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = value

	for _, ch := range c.subscribers {
		// Drop a stale pending snapshot so the send below cannot block.
		select {
		case <-ch:
		default:
		}

		select {
		case ch <- value:
		default:
		}
	}
}

// Update applies fn to the current value under the container lock and
// notifies subscribers with the result.
func (c *Container[T]) Update(fn func(T) T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = fn(c.value)

	for _, ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}

		select {
		case ch <- c.value:
		default:
		}
	}
}

// Subscribe registers for change notifications. The returned channel has a
// one-snapshot buffer; the cancel function removes the subscription.
func (c *Container[T]) Subscribe() (<-chan T, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	ch := make(chan T, 1)
	c.subscribers[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.subscribers, id)
	}

	return ch, cancel
}
