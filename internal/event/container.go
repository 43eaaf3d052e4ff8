// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package event

import "sync/atomic"

// sharedState is embedded in every container (List, Mapping, and the
// Event's field set) to implement refcounted copy-on-write: share()
// bumps the refcount and hands out the same backing storage; any mutator
// calls cow() first, which forks storage when more than one owner holds
// it.
type sharedState struct {
	refs     atomic.Int32
	readOnly atomic.Bool
}

func newShared() *sharedState {
	s := &sharedState{}
	s.refs.Store(1)
	return s
}

func (s *sharedState) retain() { s.refs.Add(1) }

// shared reports whether more than one owner currently references this
// storage. Used to decide whether a mutator must fork before writing.
func (s *sharedState) shared() bool { return s.refs.Load() > 1 }

func (s *sharedState) markReadOnly()   { s.readOnly.Store(true) }
func (s *sharedState) isReadOnly() bool { return s.readOnly.Load() }

// List is an ordered, copy-on-write, refcounted sequence of Values.
type List struct {
	shared *sharedState
	items  []Value
}

func NewList(items ...Value) *List {
	return &List{shared: newShared(), items: append([]Value(nil), items...)}
}

// share returns a handle that references the same backing slice,
// incrementing the refcount so a later mutation on either handle forks.
func (l *List) share() *List {
	l.shared.retain()
	return &List{shared: l.shared, items: l.items}
}

func (l *List) cow() {
	if l.shared.shared() {
		l.items = append([]Value(nil), l.items...)
		l.shared = newShared()
	}
}

func (l *List) Len() int         { return len(l.items) }
func (l *List) At(i int) Value   { return l.items[i] }
func (l *List) ReadOnly() bool   { return l.shared.isReadOnly() }
func (l *List) MakeReadOnly()    { l.shared.markReadOnly() }

func (l *List) Append(v Value) error {
	if l.shared.isReadOnly() {
		return ErrReadOnly
	}
	l.cow()
	l.items = append(l.items, v)
	return nil
}

func (l *List) Set(i int, v Value) error {
	if l.shared.isReadOnly() {
		return ErrReadOnly
	}
	l.cow()
	l.items[i] = v
	return nil
}

// Mapping is an insertion-ordered, copy-on-write, refcounted map from
// string key to Value, modeled on the original project's intrusive
// insertion-ordered map (average O(1) ops, O(n) ordered iteration).
type Mapping struct {
	shared *sharedState
	keys   []string
	vals   []Value
	index  map[string]int
}

func NewMapping() *Mapping {
	return &Mapping{shared: newShared(), index: make(map[string]int)}
}

func (m *Mapping) share() *Mapping {
	m.shared.retain()
	return &Mapping{shared: m.shared, keys: m.keys, vals: m.vals, index: m.index}
}

func (m *Mapping) cow() {
	if m.shared.shared() {
		keys := append([]string(nil), m.keys...)
		vals := append([]Value(nil), m.vals...)
		idx := make(map[string]int, len(m.index))
		for k, v := range m.index {
			idx[k] = v
		}
		m.keys = keys
		m.vals = vals
		m.index = idx
		m.shared = newShared()
	}
}

func (m *Mapping) ReadOnly() bool { return m.shared.isReadOnly() }
func (m *Mapping) MakeReadOnly()  { m.shared.markReadOnly() }
func (m *Mapping) Len() int       { return len(m.keys) }

// Keys returns the keys in insertion order. Callers must not mutate the
// returned slice.
func (m *Mapping) Keys() []string { return m.keys }

func (m *Mapping) Get(key string) (Value, bool) {
	i, ok := m.index[key]
	if !ok {
		return Value{}, false
	}
	return m.vals[i], true
}

// Set inserts or overwrites key in place, preserving its original
// position in insertion order on overwrite.
func (m *Mapping) Set(key string, v Value) error {
	if m.shared.isReadOnly() {
		return ErrReadOnly
	}
	m.cow()
	if i, ok := m.index[key]; ok {
		m.vals[i] = v
		return nil
	}
	m.index[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, v)
	return nil
}

// Delete removes key, shifting later keys down by one to preserve
// insertion order of the survivors. O(n) in the worst case, matching the
// amortized cost the original's insertion-ordered map documents for
// mid-sequence deletion.
func (m *Mapping) Delete(key string) error {
	if m.shared.isReadOnly() {
		return ErrReadOnly
	}
	i, ok := m.index[key]
	if !ok {
		return nil
	}
	m.cow()
	i = m.index[key]
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.vals = append(m.vals[:i], m.vals[i+1:]...)
	delete(m.index, key)
	for k, idx := range m.index {
		if idx > i {
			m.index[k] = idx - 1
		}
	}
	return nil
}
