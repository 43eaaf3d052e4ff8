// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package ack implements the source's delivery acknowledgment tracker.
// Every event handed to the graph carries an implicit ack obligation;
// the tracker decides when that obligation is discharged and the
// source's window credit can be returned.
package ack

import (
	"container/heap"
	"fmt"
	"strings"
	"sync"

	"github.com/nishisan-dev/logpipe/internal/event"
	"github.com/nishisan-dev/logpipe/internal/window"
)

// Mode selects when a tracked sequence number's window credit is
// returned: at enqueue time, at confirmed single-event delivery, or at
// confirmed contiguous-batch delivery. The three are the complete set
// of ack strategies spec.md §3/§4.3 describe.
type Mode int

const (
	// ModeInstant returns a credit the moment the single event it backs
	// is confirmed delivered (or dropped) by its destination(s). Used by
	// sources with no ordering requirement.
	ModeInstant Mode = iota
	// ModeEarly returns a credit as soon as the event has been durably
	// handed off to every destination queue it fans out to, without
	// waiting for confirmed wire delivery — the source trades a wider
	// effective window for weaker delivery guarantees on crash.
	ModeEarly
	// ModeBatched withholds credit return until the lowest outstanding
	// sequence number is acknowledged, so credits are returned in
	// contiguous runs and a bookmark can be safely advanced past them.
	ModeBatched
)

// ParseMode maps a config string to a Mode, defaulting to ModeBatched
// when name is empty.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return ModeBatched, nil
	case "instant":
		return ModeInstant, nil
	case "early":
		return ModeEarly, nil
	case "batched":
		return ModeBatched, nil
	default:
		return 0, fmt.Errorf("ack: unknown mode %q", name)
	}
}

// Tracker records which sequence numbers are outstanding and returns
// their window credit to the configured Counter once acknowledged,
// matching spec.md's invariant that every Take is paired with exactly
// one terminal ack (never duplicated, never dropped).
type Tracker struct {
	mu      sync.Mutex
	mode    Mode
	window  *window.Counter
	pending map[uint64]struct{}
	heap    *seqHeap

	// bookmark is the highest sequence number known to be fully,
	// contiguously acknowledged. It only ever increases.
	bookmark uint64
	hasMark  bool

	delivered uint64
	dropped   uint64
}

// New creates a tracker bound to a window.Counter. Acknowledged events
// return exactly one credit to that counter, once, through this tracker.
func New(mode Mode, w *window.Counter) *Tracker {
	h := &seqHeap{}
	heap.Init(h)
	return &Tracker{mode: mode, window: w, pending: make(map[uint64]struct{}), heap: h}
}

// Track registers seq as outstanding. Must be called exactly once per
// event, before the event is handed to the graph.
func (t *Tracker) Track(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[seq] = struct{}{}
	if t.mode == ModeBatched {
		heap.Push(t.heap, seq)
	}
}

// Ack marks seq as resolved with the given outcome. It is a programming
// error to ack a sequence number twice or one never tracked; both are
// reported via the bool return (false) rather than panicking, since a
// duplicate/late ack can legitimately arrive after a retransmit race.
//
// outcome only feeds the delivered/dropped counters (§8 property 1); it
// does not change how or when credit is returned — a dropped event
// still frees its window slot exactly like a delivered one, since the
// window throttles outstanding work, not successful work.
func (t *Tracker) Ack(seq uint64, outcome event.AckOutcome) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[seq]; !ok {
		return false
	}
	delete(t.pending, seq)

	if outcome == event.AckDelivered {
		t.delivered++
	} else {
		t.dropped++
	}

	switch t.mode {
	case ModeBatched:
		t.drainContiguous()
		return true
	default: // ModeInstant, ModeEarly
		if t.window != nil {
			t.window.Give(1)
		}
		if !t.hasMark || seq > t.bookmark {
			t.bookmark = seq
			t.hasMark = true
		}
		return true
	}
}

// Mode returns the tracker's ack strategy.
func (t *Tracker) Mode() Mode { return t.mode }

// Stats returns the cumulative delivered/dropped counts this tracker
// has recorded.
func (t *Tracker) Stats() (delivered, dropped uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delivered, t.dropped
}

// drainContiguous pops acknowledged sequence numbers off the min-heap
// while the heap's minimum is no longer pending (i.e. has been acked),
// returning one credit per popped entry and advancing the bookmark past
// the contiguous run. Must be called with mu held.
func (t *Tracker) drainContiguous() bool {
	drained := 0
	for t.heap.Len() > 0 {
		next := (*t.heap)[0]
		if _, stillPending := t.pending[next]; stillPending {
			break
		}
		heap.Pop(t.heap)
		drained++
		if !t.hasMark || next > t.bookmark {
			t.bookmark = next
			t.hasMark = true
		}
	}
	if drained > 0 && t.window != nil {
		t.window.Give(int64(drained))
	}
	return drained > 0
}

// Bookmark returns the highest sequence number known to be contiguously
// acknowledged, and whether any ack has happened yet. It is
// monotonically non-decreasing for the lifetime of the tracker.
func (t *Tracker) Bookmark() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bookmark, t.hasMark
}

// Outstanding returns the number of tracked-but-not-yet-acked events.
func (t *Tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

type seqHeap []uint64

func (h seqHeap) Len() int            { return len(h) }
func (h seqHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h seqHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *seqHeap) Push(x any)         { *h = append(*h, x.(uint64)) }
func (h *seqHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
