// Package notify provides the publish counter frames are handed off with: a
// monotonically increasing value written by one producer, with blocking
// waiters on the consumer side.
package notify

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Wait once the counter has been closed and no
// newer value remains to deliver.
var ErrClosed = errors.New("notify: counter closed")

// Counter is a single-writer publish counter. Publish makes every write the
// producer performed before the call visible to any goroutine that observes
// the new value, whether through Wait or Value. The counter never decreases.
type Counter struct {
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
	val    atomic.Uint64
}

func NewCounter() *Counter {
	c := &Counter{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Publish increments the counter and wakes one waiter. The increment happens
// under the lock, so a waiter that has checked the value and is about to
// block cannot miss it.
func (c *Counter) Publish() uint64 {
	c.mu.Lock()
	v := c.val.Add(1)
	c.cond.Signal()
	c.mu.Unlock()
	return v
}

// Value returns the current counter value without blocking.
func (c *Counter) Value() uint64 {
	return c.val.Load()
}

// Wait blocks until the counter value differs from lastSeen and returns the
// new value. A publish that already moved the counter past lastSeen makes
// Wait return immediately; a value published before Close is still
// delivered before ErrClosed.
func (c *Counter) Wait(lastSeen uint64) (uint64, error) {
	if v := c.val.Load(); v != lastSeen {
		return v, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if v := c.val.Load(); v != lastSeen {
			return v, nil
		}
		if c.closed {
			return lastSeen, ErrClosed
		}
		c.cond.Wait()
	}
}

// Close wakes every blocked waiter. Publish must not be called after Close.
func (c *Counter) Close() {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
}
