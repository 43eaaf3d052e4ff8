// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package node defines the processing-node contract and the graph
// dispatcher that walks events through a static DAG of nodes, the
// capability set modeled after dshills-langgraph-go's synchronous
// depth-first engine and leofalp-aigo's fan-out/fan-in junction naming.
package node

import (
	"context"
	"fmt"

	"github.com/nishisan-dev/logpipe/internal/event"
)

// Outcome is what a node decided to do with the event it was handed.
type Outcome int

const (
	// Drop ends this event's traversal at this node; nothing downstream
	// sees it. The dispatcher resolves the event's ack obligation (if
	// any) as dropped right here.
	Drop Outcome = iota
	// Forward passes the (possibly mutated in place) input event to this
	// node's successors; with more than one, every successor after the
	// first gets its own event.Clone, taken before any branch runs.
	Forward
	// Replace passes the returned events (exactly one expected) onward
	// in place of the input event, used by transform nodes that produce
	// a differently-shaped event.
	Replace
	// FanOut passes every returned event onward to this node's
	// successor(s); used by router/junction nodes that split or
	// duplicate traffic. Each fanned-out event is independently
	// refcounted via event.Clone.
	FanOut
	// Accepted ends this event's traversal at this node, same as Drop,
	// except the node itself takes over responsibility for eventually
	// resolving the event's ack obligation rather than the dispatcher
	// resolving it immediately. Used by terminal queue-sink nodes, whose
	// actual disposition (delivered or dropped) is decided later,
	// asynchronously, by the destination worker that drains the queue.
	Accepted
)

// Node is the contract every filter/transform/router/terminal
// implementation satisfies. A terminal node (a destination queue
// adapter) returns Accepted after enqueuing, since nothing follows it in
// the graph and the destination worker resolves the event's ack later.
type Node interface {
	Init(ctx context.Context) error
	Process(ctx context.Context, ev *event.Event) (Outcome, []*event.Event, error)
	Deinit(ctx context.Context) error
}

// Edge names a node's successors by name, as resolved by Graph.
type Edge struct {
	From string
	To   []string
}

// Graph is a static DAG of named nodes, dispatched depth-first on the
// producing goroutine, matching spec.md §4.7 and the original's
// synchronous in-thread message routing (no per-node goroutine — nodes
// run on whichever worker goroutine is currently pumping the event).
type Graph struct {
	nodes    map[string]Node
	order    []string
	succ     map[string][]string
	entry    string
}

// NewGraph builds a graph from a node set and edge list, validating that
// every edge endpoint names a registered node and that entry exists.
func NewGraph(nodes map[string]Node, edges []Edge, entry string) (*Graph, error) {
	succ := make(map[string][]string, len(edges))
	for _, e := range edges {
		if _, ok := nodes[e.From]; !ok {
			return nil, fmt.Errorf("node: edge references unknown source node %q", e.From)
		}
		for _, to := range e.To {
			if _, ok := nodes[to]; !ok {
				return nil, fmt.Errorf("node: edge references unknown target node %q", to)
			}
		}
		succ[e.From] = append(succ[e.From], e.To...)
	}
	if _, ok := nodes[entry]; !ok {
		return nil, fmt.Errorf("node: entry node %q not registered", entry)
	}

	order := make([]string, 0, len(nodes))
	for name := range nodes {
		order = append(order, name)
	}

	return &Graph{nodes: nodes, order: order, succ: succ, entry: entry}, nil
}

// InitAll calls Init on every node; if any fails, the graph is not
// usable and the caller should treat it as a config error.
func (g *Graph) InitAll(ctx context.Context) error {
	for _, name := range g.order {
		if err := g.nodes[name].Init(ctx); err != nil {
			return fmt.Errorf("node: init %q: %w", name, err)
		}
	}
	return nil
}

func (g *Graph) DeinitAll(ctx context.Context) {
	for _, name := range g.order {
		_ = g.nodes[name].Deinit(ctx)
	}
}

// Dispatch walks ev depth-first from the graph's entry node, returning
// once every branch has reached a Drop or a terminal node with no
// successors. It is called synchronously on the worker goroutine that
// owns the source producing ev.
func (g *Graph) Dispatch(ctx context.Context, ev *event.Event) error {
	return g.dispatchAt(ctx, g.entry, ev)
}

func (g *Graph) dispatchAt(ctx context.Context, nodeName string, ev *event.Event) error {
	n, ok := g.nodes[nodeName]
	if !ok {
		return fmt.Errorf("node: dispatch to unknown node %q", nodeName)
	}

	outcome, out, err := n.Process(ctx, ev)
	if err != nil {
		return fmt.Errorf("node: %q: %w", nodeName, err)
	}

	successors := g.succ[nodeName]

	switch outcome {
	case Drop:
		ev.ResolveAck(event.AckDropped)
		return nil
	case Accepted:
		// The node that just ran (a queue sink) owns this event's ack
		// resolution from here on; the dispatcher has nothing left to do.
		return nil
	case Forward:
		if len(successors) == 0 {
			ev.ResolveAck(event.AckDropped)
			return nil
		}
		branches := make([]*event.Event, len(successors))
		branches[0] = ev
		for i := 1; i < len(successors); i++ {
			branches[i] = ev.Clone()
		}
		for i, s := range successors {
			if err := g.dispatchAt(ctx, s, branches[i]); err != nil {
				return err
			}
		}
		return nil
	case Replace:
		if len(successors) == 0 || len(out) == 0 {
			ev.ResolveAck(event.AckDropped)
			return nil
		}
		for _, result := range out {
			for i, s := range successors {
				branchEvent := result
				if i > 0 {
					branchEvent = result.Clone()
				}
				if err := g.dispatchAt(ctx, s, branchEvent); err != nil {
					return err
				}
			}
		}
		return nil
	case FanOut:
		if len(successors) == 0 || len(out) == 0 {
			ev.ResolveAck(event.AckDropped)
			return nil
		}
		for i, s := range successors {
			for _, result := range out {
				branchEvent := result
				if i > 0 {
					branchEvent = result.Clone()
				}
				if err := g.dispatchAt(ctx, s, branchEvent); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("node: %q returned unknown outcome %d", nodeName, outcome)
	}
}
