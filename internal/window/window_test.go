// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterTakeGive(t *testing.T) {
	c := New(2)
	assert.True(t, c.Take())
	assert.True(t, c.Take())
	assert.False(t, c.Take(), "counter should be exhausted")

	assert.Equal(t, int64(1), c.Give(1))
	assert.True(t, c.Take())
}

func TestCounterGiveClampsAtMax(t *testing.T) {
	c := New(3)
	c.Take()
	got := c.Give(10)
	assert.Equal(t, int64(3), got, "give must not exceed configured max")
}

func TestCounterSuspendResume(t *testing.T) {
	c := New(1)
	c.Suspend()
	assert.False(t, c.Take())
	c.Resume()
	assert.True(t, c.Take())
}

func TestPoolRequestRelease(t *testing.T) {
	p := NewPool(10)
	assert.Equal(t, int64(4), p.Request(4))
	assert.Equal(t, int64(6), p.Free())

	// Requesting more than remains grants only what's left.
	assert.Equal(t, int64(6), p.Request(100))
	assert.Equal(t, int64(0), p.Free())

	p.Release(4)
	assert.Equal(t, int64(4), p.Free())
}

func TestWindowResizeDrawsFromPool(t *testing.T) {
	pool := NewPool(5)
	c := New(10)

	granted := c.Resize(10, pool, 5)
	assert.Equal(t, int64(5), granted)
	assert.Equal(t, int64(15), c.Max())
	assert.Equal(t, int64(0), pool.Free())
}
