// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package queue

import (
	"container/list"
	"context"
	"sync"

	"github.com/nishisan-dev/logpipe/internal/event"
)

// MemQueue is a capacity- and byte-budget-bounded FIFO, generalized from
// the teacher's agent.RingBuffer: the same head/tail absolute-offset
// accounting and sync.Cond-driven backpressure, applied to typed events
// instead of raw bytes. It never touches disk; on crash its contents are
// lost, which is acceptable for destinations configured with
// disk-buffering disabled (spec.md's memory-only mode).
type MemQueue struct {
	mu       sync.Mutex
	notFull  sync.Cond
	notEmpty sync.Cond

	items       *list.List // of *event.Event, oldest first
	maxItems    int
	maxBytes    int64
	bytesQueued int64

	// head/tail are absolute, never-resetting counters tracking how many
	// events have ever been pushed/popped, mirroring the ring buffer's
	// offset scheme so callers can reason about progress the same way.
	head   uint64
	tail   uint64
	closed bool
}

// NewMemQueue creates a bounded queue. maxBytes <= 0 disables the byte
// budget and only maxItems is enforced.
func NewMemQueue(maxItems int, maxBytes int64) *MemQueue {
	q := &MemQueue{items: list.New(), maxItems: maxItems, maxBytes: maxBytes}
	q.notFull.L = &q.mu
	q.notEmpty.L = &q.mu
	return q
}

func approxSize(ev *event.Event) int64 {
	// Cheap, deterministic approximation used for the byte budget; exact
	// wire size would require marshaling every event just to measure it.
	size := int64(16)
	for _, name := range ev.Names() {
		v, _ := ev.Get(name)
		size += int64(len(name)) + int64(len(v.ToString())) + 8
	}
	return size
}

func (q *MemQueue) Push(ctx context.Context, ev *event.Event) error {
	sz := approxSize(ev)
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.full(sz) {
		if ctx != nil {
			unlocked := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					q.mu.Lock()
					q.notFull.Broadcast()
					q.mu.Unlock()
				case <-unlocked:
				}
			}()
			q.notFull.Wait()
			close(unlocked)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		} else {
			q.notFull.Wait()
		}
	}
	if q.closed {
		return ErrClosed
	}

	q.items.PushBack(ev)
	q.bytesQueued += sz
	q.head++
	q.notEmpty.Broadcast()
	return nil
}

func (q *MemQueue) full(nextSize int64) bool {
	if q.maxItems > 0 && q.items.Len() >= q.maxItems {
		return true
	}
	if q.maxBytes > 0 && q.bytesQueued+nextSize > q.maxBytes {
		return true
	}
	return false
}

func (q *MemQueue) Pop(ctx context.Context) (*event.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.items.Len() == 0 {
		if ctx != nil {
			unlocked := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					q.mu.Lock()
					q.notEmpty.Broadcast()
					q.mu.Unlock()
				case <-unlocked:
				}
			}()
			q.notEmpty.Wait()
			close(unlocked)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		} else {
			q.notEmpty.Wait()
		}
	}
	if q.items.Len() == 0 {
		return nil, ErrClosed
	}

	front := q.items.Remove(q.items.Front()).(*event.Event)
	q.bytesQueued -= approxSize(front)
	q.tail++
	q.notFull.Broadcast()
	return front, nil
}

// Ack is a no-op for MemQueue: Pop already removed the event from the
// ring, so there is nothing left to reclaim. It exists to satisfy the
// Queue interface for callers that treat all queues uniformly.
func (q *MemQueue) Ack(seq uint64) error { return nil }

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *MemQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
	return nil
}
