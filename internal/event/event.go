// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package event

import (
	"errors"
	"sync/atomic"
)

// ErrReadOnly is returned by any mutator called on a read-only event or
// container. Events become read-only once handed to more than one
// downstream node by a fan-out, matching the original project's
// log-message immutability rule.
var ErrReadOnly = errors.New("event: value is read-only")

// Event is the unit of data flowing through the pipeline: a sequence
// number, an ack-tracking cookie, and an insertion-ordered set of named
// Values. Events are copy-on-write and refcounted; Clone is O(1) and
// defers any copy until a mutator actually forks shared storage.
type Event struct {
	// Seq is a process-local, monotonically increasing sequence number
	// assigned by the source that produced this event. It is the unit
	// the ack tracker and window counter operate on.
	Seq uint64

	refs     atomic.Int32
	readOnly atomic.Bool
	fields   *Mapping

	// ack is the fan-in state backing WithAck/Fork/ResolveAck, shared by
	// every Clone descended from the handle WithAck was called on. Nil
	// for events whose source uses the early ack strategy, or that carry
	// no ack obligation at all (internal diagnostic events).
	ack *ackState
}

// New creates a fresh event with the given sequence number and an empty
// field set.
func New(seq uint64) *Event {
	ev := &Event{Seq: seq, fields: NewMapping()}
	ev.refs.Store(1)
	return ev
}

// Clone returns a new handle to the same logical event, suitable for
// fan-out to multiple downstream nodes. It increments the event's
// refcount and the refcounts of its containers rather than deep-copying;
// the clone and the original both become read-only, since the original
// project does not allow divergent mutation of fanned-out messages.
func (e *Event) Clone() *Event {
	e.refs.Add(1)
	e.readOnly.Store(true)
	clone := &Event{
		Seq:    e.Seq,
		fields: e.fields.share(),
		ack:    e.ack,
	}
	clone.refs.Store(1)
	clone.readOnly.Store(true)
	clone.fields.MakeReadOnly()
	if clone.ack != nil {
		clone.ack.fork()
	}
	return clone
}

// Release decrements the event's refcount. It exists so graph dispatch
// can account for fan-out branches the way the original tracks message
// reference counts across filter/junction traversal; Go's GC reclaims
// storage regardless; Release is bookkeeping only, not explicit freeing.
func (e *Event) Release() int32 { return e.refs.Add(-1) }

func (e *Event) RefCount() int32 { return e.refs.Load() }

// MakeReadOnly marks the event (and its field mapping) read-only.
// Mutating a read-only event returns ErrReadOnly.
func (e *Event) MakeReadOnly() {
	e.readOnly.Store(true)
	e.fields.MakeReadOnly()
}

func (e *Event) ReadOnly() bool { return e.readOnly.Load() }

func (e *Event) Get(name string) (Value, bool) { return e.fields.Get(name) }

func (e *Event) Set(name string, v Value) error {
	if e.readOnly.Load() {
		return ErrReadOnly
	}
	return e.fields.Set(name, v)
}

func (e *Event) Delete(name string) error {
	if e.readOnly.Load() {
		return ErrReadOnly
	}
	return e.fields.Delete(name)
}

// Names returns field names in insertion order.
func (e *Event) Names() []string { return e.fields.Keys() }

func (e *Event) Len() int { return e.fields.Len() }
