// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package event

import (
	"sync"
	"sync/atomic"
)

// AckOutcome is how one branch of an event's graph traversal was finally
// resolved: handed off to a destination that confirmed delivery, or
// dropped without ever reaching one.
type AckOutcome int

const (
	AckDelivered AckOutcome = iota
	AckDropped
)

// ackState is the fan-in counter behind WithAck/Fork/ResolveAck. One
// event dispatched by a source may fan out to several destinations (or
// be dropped on one branch while delivered on another) before the
// source's window credit can be returned; ackState fires its callback
// exactly once, after every branch spawned from the event it was
// attached to has resolved.
type ackState struct {
	remaining    atomic.Int64
	deliveredAny atomic.Bool
	once         sync.Once
	notify       func(AckOutcome)
}

func newAckState(notify func(AckOutcome)) *ackState {
	s := &ackState{notify: notify}
	s.remaining.Store(1)
	return s
}

func (s *ackState) fork() {
	s.remaining.Add(1)
}

func (s *ackState) resolve(outcome AckOutcome) {
	if outcome == AckDelivered {
		s.deliveredAny.Store(true)
	}
	if s.remaining.Add(-1) <= 0 {
		s.fire()
	}
}

func (s *ackState) forceResolve(outcome AckOutcome) {
	if outcome == AckDelivered {
		s.deliveredAny.Store(true)
	}
	s.fire()
}

func (s *ackState) fire() {
	s.once.Do(func() {
		final := AckDropped
		if s.deliveredAny.Load() {
			final = AckDelivered
		}
		s.notify(final)
	})
}

// WithAck attaches a callback fired exactly once, after every branch of
// this event's traversal (this handle and any Clone descended from it)
// has been resolved. Used by a source pump whose ack strategy waits for
// confirmed destination delivery (ack.ModeInstant/ack.ModeBatched)
// rather than returning window credit at dispatch time.
func (e *Event) WithAck(notify func(AckOutcome)) {
	e.ack = newAckState(notify)
}

// Fork registers one additional outstanding branch on this event's ack
// state, called whenever the graph dispatcher spawns an independent
// downstream path for the same logical event (fan-out or replace to
// more than one successor). No-op if the event carries no ack state.
func (e *Event) Fork() {
	if e.ack != nil {
		e.ack.fork()
	}
}

// ResolveAck marks one outstanding branch of this event as finished,
// either because a destination confirmed delivery or because the branch
// ended in a drop without reaching one. No-op if the event carries no
// ack state (e.g. an early-ack-mode event, or an internal diagnostic
// event with no source window to credit).
func (e *Event) ResolveAck(outcome AckOutcome) {
	if e.ack != nil {
		e.ack.resolve(outcome)
	}
}

// ForceResolveAck fires the ack callback immediately regardless of how
// many branches remain outstanding. Used when graph dispatch aborts
// partway through a fan-out on error: the branches never visited can
// never resolve normally, so the source needs its window credit back
// unconditionally rather than leaking it forever.
func (e *Event) ForceResolveAck(outcome AckOutcome) {
	if e.ack != nil {
		e.ack.forceResolve(outcome)
	}
}
