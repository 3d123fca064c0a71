// Package event implements the consumer's wakeup protocol: two binary
// signals (data-available, device-status) plus a closed flag, all waited on
// through a single sync.Cond.
//
// The Cond is bound to the caller's mutex, the same one that guards the
// capture queue. Flags are therefore read and written under that mutex,
// which closes the lost-wakeup window between "queue is empty" and "wait":
// a producer can only set data-available while the consumer is either
// outside the critical section or parked in Wait (which releases the lock).
//
// Notify (Broadcast) may be called after the lock is released, so the
// producer never wakes the consumer while still holding the lock.
package event

import "sync"

// Channel is the two-signal wait primitive.
//
// Methods documented "caller holds the lock" require the Locker passed to New.
type Channel struct {
	cond *sync.Cond

	data   bool // data-available, owned by the pipeline
	status bool // device-status, owned by the device layer
	closed bool
}

// New binds a channel to l.
func New(l sync.Locker) *Channel {
	return &Channel{cond: sync.NewCond(l)}
}

// SetData raises data-available. Caller holds the lock.
func (c *Channel) SetData() {
	c.data = true
}

// ClearData lowers data-available. Caller holds the lock.
func (c *Channel) ClearData() {
	c.data = false
}

// DataAvailable reports the data-available flag. Caller holds the lock.
func (c *Channel) DataAvailable() bool {
	return c.data
}

// SetStatus raises device-status. Caller holds the lock.
func (c *Channel) SetStatus() {
	c.status = true
}

// TakeStatus lowers device-status and reports whether it was raised.
// Caller holds the lock.
func (c *Channel) TakeStatus() bool {
	was := c.status
	c.status = false
	return was
}

// Close raises the closed flag. Caller holds the lock. Follow with Notify.
func (c *Channel) Close() {
	c.closed = true
}

// Closed reports the closed flag. Caller holds the lock.
func (c *Channel) Closed() bool {
	return c.closed
}

// Wait blocks until any signal is raised or abort reports true. Caller holds
// the lock; it is released while parked and re-acquired before returning.
// abort may be nil. It is evaluated under the lock, so whoever flips its
// condition must take the lock before calling Notify.
//
// Wait does not reset any flag (manual-reset semantics): the caller decides
// what to clear after inspecting the queue and the device.
func (c *Channel) Wait(abort func() bool) {
	for !c.data && !c.status && !c.closed {
		if abort != nil && abort() {
			return
		}
		c.cond.Wait()
	}
}

// Notify wakes every waiter. Lock not required.
func (c *Channel) Notify() {
	c.cond.Broadcast()
}
