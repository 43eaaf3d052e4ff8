// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package window

import "sync"

// Pool is a shared pool of dynamic window credits that multiple sources'
// Counters can draw from, grounded on the original project's
// DynamicWindowPool: a fixed-size pool where an underutilized source
// returns its unused share and a busy source can request more than its
// static allotment.
type Pool struct {
	mu       sync.Mutex
	size     int64
	free     int64
	balanced int64
}

// NewPool creates a dynamic pool with the given total size. All of it
// starts free.
func NewPool(size int64) *Pool {
	return &Pool{size: size, free: size, balanced: size}
}

// Request draws up to n credits from the pool's free balance, returning
// however many were actually granted (0 if the pool is exhausted).
func (p *Pool) Request(n int64) int64 {
	if n <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	granted := n
	if granted > p.free {
		granted = p.free
	}
	p.free -= granted
	return granted
}

// Release returns n previously requested credits to the pool's free
// balance, capped at the pool's total size.
func (p *Pool) Release(n int64) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free += n
	if p.free > p.size {
		p.free = p.size
	}
}

// Free reports the pool's currently unallocated credit count.
func (p *Pool) Free() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free
}

// Size reports the pool's total capacity.
func (p *Pool) Size() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Rebalance resets the free balance to the pool's original, evenly
// balanced state.
func (p *Pool) Rebalance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = p.balanced
}
