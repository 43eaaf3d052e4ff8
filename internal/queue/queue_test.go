// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package queue

import (
	"context"
	"testing"

	"github.com/nishisan-dev/logpipe/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemQueuePushPopFIFO(t *testing.T) {
	q := NewMemQueue(10, 0)
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, q.Push(ctx, event.New(i)))
	}
	assert.Equal(t, 3, q.Len())

	for i := uint64(1); i <= 3; i++ {
		ev, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, ev.Seq)
	}
}

func TestMemQueueClosedUnblocks(t *testing.T) {
	q := NewMemQueue(10, 0)
	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		done <- err
	}()

	q.Close()
	err := <-done
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDiskQueuePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	q, err := OpenDiskQueue(dir, "dest-a", 0)
	require.NoError(t, err)

	ev := event.New(1)
	require.NoError(t, ev.Set("msg", event.String("hello")))
	require.NoError(t, q.Push(ctx, ev))
	require.NoError(t, q.Push(ctx, event.New(2)))
	require.NoError(t, q.Close())

	q2, err := OpenDiskQueue(dir, "dest-a", 0)
	require.NoError(t, err)
	defer q2.Close()

	assert.Equal(t, 2, q2.Len())
	got, err := q2.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Seq)
	v, ok := got.Get("msg")
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "hello", s)
}

func TestDiskQueueAckGCsFullyCoveredSegments(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// Tiny segment size forces a rotation every few pushes.
	q, err := OpenDiskQueue(dir, "dest-b", 64)
	require.NoError(t, err)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, q.Push(ctx, event.New(i)))
	}
	before := len(q.segments)
	require.NoError(t, q.Ack(4))
	after := len(q.segments)

	assert.LessOrEqual(t, after, before)
	require.NoError(t, q.Close())
}

// TestDiskQueueReplaySkipsAckedEventsInActiveSegment covers the
// crash-recovery scenario where events were acked before a crash but
// their segment hadn't been GC'd yet (e.g. it was still the active
// segment): on reopen, replay must not redeliver them.
func TestDiskQueueReplaySkipsAckedEventsInActiveSegment(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	q, err := OpenDiskQueue(dir, "dest-c", 0)
	require.NoError(t, err)

	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, q.Push(ctx, event.New(i)))
	}
	require.NoError(t, q.Ack(2))
	// No Close(): simulates a crash after 10 pushes and an ack of the
	// first 2, with the active segment never finalized.

	q2, err := OpenDiskQueue(dir, "dest-c", 0)
	require.NoError(t, err)
	defer q2.Close()

	assert.Equal(t, 8, q2.Len())
	for i := uint64(3); i <= 10; i++ {
		got, err := q2.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, got.Seq)
	}
}
