// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package window implements the credit-based flow-control counter that
// bounds how many in-flight events a source may have outstanding, plus a
// pool of dynamically shareable credits drawn from when a source
// underutilizes its static share.
package window

import "sync/atomic"

// Counter is a lock-free, suspendable credit counter. A source consumes
// credits via Take when it emits an event and the ack tracker returns
// them via Give once the event is fully acknowledged downstream.
// Suspend/Resume let a source pause consumption during reconfiguration
// without losing its outstanding balance.
type Counter struct {
	size      atomic.Int64
	max       atomic.Int64
	suspended atomic.Bool
}

// New creates a counter with the given initial (and maximum) credit
// balance.
func New(initial int64) *Counter {
	c := &Counter{}
	c.size.Store(initial)
	c.max.Store(initial)
	return c
}

// Take attempts to consume one credit. It returns false if the counter is
// at zero or suspended; the caller must then stop producing until woken.
func (c *Counter) Take() bool {
	if c.suspended.Load() {
		return false
	}
	for {
		cur := c.size.Load()
		if cur <= 0 {
			return false
		}
		if c.size.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Give returns n credits to the counter, clamped at the configured
// maximum. Returns the post-give balance.
func (c *Counter) Give(n int64) int64 {
	for {
		cur := c.size.Load()
		next := cur + n
		if max := c.max.Load(); next > max {
			next = max
		}
		if c.size.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Get returns the current balance.
func (c *Counter) Get() int64 { return c.size.Load() }

// Max returns the configured maximum balance.
func (c *Counter) Max() int64 { return c.max.Load() }

// Suspend halts Take without disturbing the balance, used while a source
// is draining during reconfiguration.
func (c *Counter) Suspend() { c.suspended.Store(true) }

// Resume re-enables Take.
func (c *Counter) Resume() { c.suspended.Store(false) }

func (c *Counter) Suspended() bool { return c.suspended.Load() }

// Resize changes the static and dynamic portions of the window's maximum.
// newStatic replaces the counter's own max outright; newDynamic is a
// request against the shared Pool (see pool.go) and may return less than
// requested if the pool is exhausted. Resize never decreases the current
// balance below zero: a shrink lowers a balance above the new maximum to
// that maximum and caps future Give calls.
func (c *Counter) Resize(newStatic int64, pool *Pool, newDynamic int64) (grantedDynamic int64) {
	if pool != nil {
		grantedDynamic = pool.Request(newDynamic)
	}
	c.max.Store(newStatic + grantedDynamic)
	if c.size.Load() > c.max.Load() {
		c.size.Store(c.max.Load())
	}
	return grantedDynamic
}
