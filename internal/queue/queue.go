// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package queue implements the per-destination persistent queue: a
// bounded in-memory ring for the hot path, and an optional disk-backed
// segmented log for crash-safe replay beyond memory capacity.
package queue

import (
	"context"
	"errors"

	"github.com/nishisan-dev/logpipe/internal/event"
)

var (
	ErrClosed = errors.New("queue: closed")
	ErrFull   = errors.New("queue: at capacity")
)

// Queue is the contract a destination worker (C6) pulls batches from and
// a source (C7), via graph dispatch, pushes into.
type Queue interface {
	// Push enqueues ev, blocking until space is available, ctx is
	// cancelled, or the queue is closed.
	Push(ctx context.Context, ev *event.Event) error
	// Pop dequeues the next event in FIFO order, blocking until one is
	// available, ctx is cancelled, or the queue is closed.
	Pop(ctx context.Context) (*event.Event, error)
	// Ack confirms delivery of everything up to and including seq,
	// permitting the queue to reclaim that storage.
	Ack(seq uint64) error
	// Len reports the number of events currently queued.
	Len() int
	Close() error
}
