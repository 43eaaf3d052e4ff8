// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSetGet(t *testing.T) {
	ev := New(1)
	require.NoError(t, ev.Set("host", String("web-01")))
	require.NoError(t, ev.Set("pri", Int64(14)))

	v, ok := ev.Get("host")
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "web-01", s)

	assert.Equal(t, []string{"host", "pri"}, ev.Names())
}

func TestEventCloneIsReadOnly(t *testing.T) {
	ev := New(7)
	require.NoError(t, ev.Set("msg", String("hello")))

	clone := ev.Clone()
	assert.True(t, ev.ReadOnly())
	assert.True(t, clone.ReadOnly())

	err := clone.Set("msg", String("mutated"))
	assert.ErrorIs(t, err, ErrReadOnly)

	// Original storage is untouched.
	v, _ := ev.Get("msg")
	s, _ := v.AsString()
	assert.Equal(t, "hello", s)
}

func TestMappingCopyOnWrite(t *testing.T) {
	m1 := NewMapping()
	require.NoError(t, m1.Set("a", Int64(1)))

	m2 := m1.share()
	require.NoError(t, m2.Set("b", Int64(2)))

	// m2's mutation must not leak into m1 once shared storage forked.
	_, ok := m1.Get("b")
	assert.False(t, ok)

	_, ok = m2.Get("a")
	assert.True(t, ok)
}

func TestMappingDeletePreservesOrder(t *testing.T) {
	m := NewMapping()
	require.NoError(t, m.Set("a", Int64(1)))
	require.NoError(t, m.Set("b", Int64(2)))
	require.NoError(t, m.Set("c", Int64(3)))

	require.NoError(t, m.Delete("b"))
	assert.Equal(t, []string{"a", "c"}, m.Keys())

	v, ok := m.Get("c")
	require.True(t, ok)
	i, _ := v.AsInt64()
	assert.Equal(t, int64(3), i)
}

func TestWireRoundTrip(t *testing.T) {
	ev := New(42)
	require.NoError(t, ev.Set("host", String("db-3")))
	require.NoError(t, ev.Set("pri", Int64(13)))
	require.NoError(t, ev.Set("ok", Bool(true)))
	require.NoError(t, ev.Set("load", Float64(1.5)))

	data, err := Marshal(ev)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, ev.Seq, decoded.Seq)

	v, ok := decoded.Get("host")
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "db-3", s)
}

func TestJSONRoundTrip(t *testing.T) {
	ev := New(1)
	require.NoError(t, ev.Set("host", String("app-1")))
	require.NoError(t, ev.Set("count", Int64(5)))

	data, err := MarshalJSON(ev)
	require.NoError(t, err)

	decoded, err := UnmarshalJSON(1, data)
	require.NoError(t, err)

	v, ok := decoded.Get("count")
	require.True(t, ok)
	i, _ := v.AsInt64()
	assert.Equal(t, int64(5), i)
}
