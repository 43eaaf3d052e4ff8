// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package node

import (
	"context"
	"testing"

	"github.com/nishisan-dev/logpipe/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorderNode struct {
	received []*event.Event
	outcome  Outcome
	out      func(*event.Event) []*event.Event
}

func (n *recorderNode) Init(ctx context.Context) error   { return nil }
func (n *recorderNode) Deinit(ctx context.Context) error { return nil }
func (n *recorderNode) Process(ctx context.Context, ev *event.Event) (Outcome, []*event.Event, error) {
	n.received = append(n.received, ev)
	if n.out != nil {
		return n.outcome, n.out(ev), nil
	}
	return n.outcome, nil, nil
}

func TestGraphForwardsLinearly(t *testing.T) {
	src := &recorderNode{outcome: Forward}
	sink := &recorderNode{outcome: Drop}

	g, err := NewGraph(map[string]Node{"src": src, "sink": sink},
		[]Edge{{From: "src", To: []string{"sink"}}}, "src")
	require.NoError(t, err)

	ev := event.New(1)
	require.NoError(t, g.Dispatch(context.Background(), ev))

	assert.Len(t, src.received, 1)
	assert.Len(t, sink.received, 1)
	assert.Same(t, ev, sink.received[0])
}

func TestGraphFanOutDuplicatesToEachSuccessor(t *testing.T) {
	src := &recorderNode{outcome: FanOut, out: func(ev *event.Event) []*event.Event {
		return []*event.Event{ev}
	}}
	a := &recorderNode{outcome: Drop}
	b := &recorderNode{outcome: Drop}

	g, err := NewGraph(map[string]Node{"src": src, "a": a, "b": b},
		[]Edge{{From: "src", To: []string{"a", "b"}}}, "src")
	require.NoError(t, err)

	require.NoError(t, g.Dispatch(context.Background(), event.New(1)))
	assert.Len(t, a.received, 1)
	assert.Len(t, b.received, 1)
	// Each branch must get an independent handle, not the same pointer.
	assert.NotSame(t, a.received[0], b.received[0])
}

func TestGraphDropStopsTraversal(t *testing.T) {
	src := &recorderNode{outcome: Drop}
	never := &recorderNode{outcome: Drop}

	g, err := NewGraph(map[string]Node{"src": src, "never": never},
		[]Edge{{From: "src", To: []string{"never"}}}, "src")
	require.NoError(t, err)

	require.NoError(t, g.Dispatch(context.Background(), event.New(1)))
	assert.Empty(t, never.received)
}

func TestNewGraphRejectsUnknownEdgeTarget(t *testing.T) {
	src := &recorderNode{}
	_, err := NewGraph(map[string]Node{"src": src},
		[]Edge{{From: "src", To: []string{"ghost"}}}, "src")
	assert.Error(t, err)
}
