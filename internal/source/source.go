// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package source implements the source pump: reads frames from a
// transport, parses them into events, consumes window credit per event,
// and dispatches into the graph, grounded on the original project's
// LogSource (lib/logsource.h) flow-control coupling between a source,
// its window, and its ack tracker.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/logpipe/internal/ack"
	"github.com/nishisan-dev/logpipe/internal/event"
	"github.com/nishisan-dev/logpipe/internal/node"
	"github.com/nishisan-dev/logpipe/internal/window"
)

// Reader is the transport-agnostic byte source a Pump reads frames from.
// Implementations live in internal/transport.
type Reader interface {
	// ReadFrame returns one undecoded frame's bytes, or io.EOF when the
	// underlying transport is exhausted.
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Parser decodes a frame's bytes into an event. A parser may need more
// bytes than a single frame provides (needMore=true), in which case the
// pump buffers and retries on the next frame — grounded on spec.md §6's
// parse(bytes, event) -> {ok, need-more, error} contract.
type Parser interface {
	Parse(seq uint64, frame []byte) (ev *event.Event, needMore bool, err error)
}

// Pump drives one source: pull a frame, parse it, take a window credit,
// dispatch into the graph, track the ack obligation. It is meant to run
// on its own worker goroutine (C8).
type Pump struct {
	Name    string
	Reader  Reader
	Parser  Parser
	Window  *window.Counter
	Tracker *ack.Tracker
	Graph   *node.Graph
	Logger  *slog.Logger

	seq     atomic.Uint64
	pending []byte

	// wakeup is signalled through Notify, which the pump's ack callback
	// calls after handing each ack to the tracker, letting the pump's
	// blocking read loop resume without busy-polling — the Go analogue of the original's
	// WakeupCondition (GMutex+GCond+awoken bool).
	wakeup chan struct{}
}

func NewPump(name string, r Reader, p Parser, w *window.Counter, tr *ack.Tracker, g *node.Graph, logger *slog.Logger) *Pump {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pump{
		Name: name, Reader: r, Parser: p, Window: w, Tracker: tr, Graph: g,
		Logger: logger.With("source", name),
		wakeup: make(chan struct{}, 1),
	}
}

// Notify wakes a pump blocked waiting for window credit. Run's ack
// callback calls it after each Tracker.Ack; credit returned by other
// pumps sharing w is picked up by waitForCredit's periodic poll.
func (p *Pump) Notify() {
	select {
	case p.wakeup <- struct{}{}:
	default:
	}
}

// Run pumps frames until ctx is cancelled or the reader is exhausted.
func (p *Pump) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !p.Window.Take() {
			if err := p.waitForCredit(ctx); err != nil {
				return err
			}
			continue
		}

		frame, err := p.Reader.ReadFrame(ctx)
		if err != nil {
			p.Window.Give(1) // return the credit we couldn't spend
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("source %s: reading frame: %w", p.Name, err)
		}

		seq := p.seq.Add(1)
		ev, needMore, err := p.Parser.Parse(seq, append(p.pending, frame...))
		if err != nil {
			p.Window.Give(1)
			p.Logger.Warn("parse error, dropping frame", "error", err)
			continue
		}
		if needMore {
			p.pending = append(p.pending, frame...)
			p.Window.Give(1)
			continue
		}
		p.pending = nil

		p.Tracker.Track(seq)

		// Early ack strategy returns credit the moment the event clears
		// Dispatch (durably handed to every destination queue it fans
		// out to); instant/batched wait for a destination to actually
		// confirm delivery, via the ack state attached below and
		// resolved later by node.Graph's Drop handling and
		// destination.Worker.ackPrefix.
		deferred := p.Tracker.Mode() != ack.ModeEarly
		if deferred {
			ev.WithAck(func(outcome event.AckOutcome) {
				p.Tracker.Ack(seq, outcome)
				p.Notify()
			})
		}

		if err := p.Graph.Dispatch(ctx, ev); err != nil {
			p.Logger.Error("dispatch failed", "seq", seq, "error", err)
			if deferred {
				ev.ForceResolveAck(event.AckDropped)
			} else {
				p.Tracker.Ack(seq, event.AckDropped)
			}
			continue
		}

		if !deferred {
			p.Tracker.Ack(seq, event.AckDelivered)
		}
	}
}

func (p *Pump) waitForCredit(ctx context.Context) error {
	select {
	case <-p.wakeup:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
		// Periodic poll as a safety net in case a Give→Notify edge was
		// missed; mirrors schedule_dynamic_window_realloc's role as a
		// belt-and-suspenders wakeup in the original source.
		return nil
	}
}
