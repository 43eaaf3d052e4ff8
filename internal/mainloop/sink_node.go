// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package mainloop

import (
	"context"
	"sync/atomic"

	"github.com/nishisan-dev/logpipe/internal/event"
	"github.com/nishisan-dev/logpipe/internal/node"
	"github.com/nishisan-dev/logpipe/internal/queue"
)

// queueSinkNode is the terminal node a destination's graph edge points
// at: it enqueues the event onto the destination's queue, always ending
// traversal here since nothing in the graph follows a terminal by
// definition (spec.md §4.7's terminal contract). A successful enqueue
// returns node.Accepted rather than node.Drop: the event's ack
// obligation is not yet resolved, it is handed off to whatever
// destination.Worker eventually drains this queue and either confirms
// delivery or, on repeated failure, gives up without acking it.
type queueSinkNode struct {
	q       queue.Queue
	counter *atomic.Uint64
}

func newQueueSinkNode(q queue.Queue, counter *atomic.Uint64) *queueSinkNode {
	return &queueSinkNode{q: q, counter: counter}
}

func (n *queueSinkNode) Init(ctx context.Context) error   { return nil }
func (n *queueSinkNode) Deinit(ctx context.Context) error { return n.q.Close() }

func (n *queueSinkNode) Process(ctx context.Context, ev *event.Event) (node.Outcome, []*event.Event, error) {
	if err := n.q.Push(ctx, ev); err != nil {
		return node.Drop, nil, err
	}
	if n.counter != nil {
		n.counter.Add(1)
	}
	return node.Accepted, nil, nil
}

// passthroughNode forwards every event unchanged to its successor(s);
// the default node.Type for a config entry with no recognized type,
// used as the simplest possible graph hop (e.g. a named junction with
// no transformation of its own).
type passthroughNode struct{}

func (passthroughNode) Init(ctx context.Context) error   { return nil }
func (passthroughNode) Deinit(ctx context.Context) error { return nil }
func (passthroughNode) Process(ctx context.Context, ev *event.Event) (node.Outcome, []*event.Event, error) {
	return node.Forward, nil, nil
}

// fanOutNode forwards the same event to every successor, used for
// router/junction nodes per spec.md §4.7.
type fanOutNode struct{}

func (fanOutNode) Init(ctx context.Context) error   { return nil }
func (fanOutNode) Deinit(ctx context.Context) error { return nil }
func (fanOutNode) Process(ctx context.Context, ev *event.Event) (node.Outcome, []*event.Event, error) {
	return node.FanOut, []*event.Event{ev}, nil
}
