// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package destination implements the destination worker state machine:
// batch accumulation, submission, and retry with exponential backoff,
// generalized from the teacher's Dispatcher.startSenderWithRetry.
package destination

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/nishisan-dev/logpipe/internal/event"
	"github.com/nishisan-dev/logpipe/internal/queue"
)

// State is one node of the destination worker's state machine, exactly
// as spec.md §4.5 describes it.
type State int

const (
	StateIdle State = iota
	StateBatching
	StateFlushing
	StateRetryBackoff
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBatching:
		return "batching"
	case StateFlushing:
		return "flushing"
	case StateRetryBackoff:
		return "retry-backoff"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Transport is the thing a destination worker submits batches to: a TCP
// connection, an HTTP client, a file writer, or the S3 archiver.
// The accepted count Submit returns lets a transport accept a prefix of a batch and reject
// the remainder, mirroring the teacher's per-chunk SACK semantics.
type Transport interface {
	Submit(ctx context.Context, batch []*event.Event) (accepted int, err error)
}

// Config controls batch accumulation thresholds and retry behavior.
type Config struct {
	MaxBatchEvents int
	MaxBatchBytes  int64
	MaxLinger      time.Duration

	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	MaxRetries   int
}

func (c Config) withDefaults() Config {
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = 100
	}
	if c.MaxLinger <= 0 {
		c.MaxLinger = time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	return c
}

// Worker pulls events off a queue, accumulates them into batches, and
// submits them to a Transport, retrying with exponential backoff on
// failure exactly as the teacher's dispatcher does per-stream.
type Worker struct {
	name      string
	q         queue.Queue
	transport Transport
	cfg       Config
	logger    *slog.Logger

	mu      sync.Mutex
	state   State
	retries int

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewWorker(name string, q queue.Queue, transport Transport, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		name:      name,
		q:         q,
		transport: transport,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("destination", name),
		state:     StateIdle,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Run drives the worker loop until ctx is cancelled or Stop is called.
// It should be run on its own goroutine (one per destination, per C8).
func (w *Worker) Run(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		if w.State() == StateFatal {
			w.logger.Error("destination worker is fatally dead, not retrying further")
			return
		}

		batch, err := w.collectBatch(ctx)
		if err != nil {
			return // context cancelled or queue closed
		}
		if len(batch) == 0 {
			continue
		}

		w.submitWithRetry(ctx, batch)
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// collectBatch accumulates events from the queue until MaxBatchEvents,
// MaxBatchBytes, or MaxLinger triggers a flush, matching the three
// independent triggers spec.md §4.5 requires.
func (w *Worker) collectBatch(ctx context.Context) ([]*event.Event, error) {
	deadline := time.Now().Add(w.cfg.MaxLinger)
	var batch []*event.Event
	var bytes int64

	for len(batch) < w.cfg.MaxBatchEvents {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		popCtx, cancel := context.WithTimeout(ctx, remaining)
		ev, err := w.q.Pop(popCtx)
		cancel()
		if err != nil {
			if len(batch) > 0 {
				return batch, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Linger expired with nothing queued: loop again so the
			// caller's outer select can observe stop/cancel promptly.
			return nil, nil
		}
		batch = append(batch, ev)
		if len(batch) == 1 {
			w.setState(StateBatching)
		}
		bytes += int64(ev.Len()) * 32 // rough accounting, matches approxSize's order of magnitude
		if w.cfg.MaxBatchBytes > 0 && bytes >= w.cfg.MaxBatchBytes {
			break
		}
	}
	return batch, nil
}

// submitWithRetry submits batch, retrying with exponential backoff on
// failure. A transport that partially accepts a batch gets the accepted
// prefix acked and the rejected suffix resubmitted after the backoff
// (pushed back onto the queue only when the worker goes fatal), matching spec.md's
// destination delivery prefix property (§8): the surviving, accepted
// prefix is never re-ordered or duplicated across retries.
func (w *Worker) submitWithRetry(ctx context.Context, batch []*event.Event) {
	w.setState(StateFlushing)

	accepted, err := w.transport.Submit(ctx, batch)
	if err == nil {
		w.ackPrefix(batch, accepted)
		w.mu.Lock()
		w.retries = 0
		w.mu.Unlock()
		w.setState(StateIdle)
		return
	}

	w.ackPrefix(batch, accepted)
	rest := batch[accepted:]
	if len(rest) == 0 {
		w.setState(StateIdle)
		return
	}

	w.mu.Lock()
	w.retries++
	retries := w.retries
	w.mu.Unlock()

	if retries > w.cfg.MaxRetries {
		w.logger.Error("destination exceeded max retries, marking fatal", "error", err, "retries", retries)
		w.requeue(ctx, rest)
		w.setState(StateFatal)
		return
	}

	backoff := time.Duration(math.Min(
		float64(w.cfg.BaseBackoff)*math.Pow(2, float64(retries-1)),
		float64(w.cfg.MaxBackoff),
	))
	w.logger.Warn("destination submit failed, backing off", "error", err, "retry", retries, "backoff", backoff)
	w.setState(StateRetryBackoff)

	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return
	case <-w.stopCh:
		return
	}

	w.submitWithRetry(ctx, rest)
}

// ackPrefix acks the first n events of batch against the queue, one at a
// time, so the queue's segment GC watermark only ever advances over
// events truly confirmed delivered, and resolves each event's ack
// obligation so the originating source can return its window credit.
func (w *Worker) ackPrefix(batch []*event.Event, n int) {
	for i := 0; i < n && i < len(batch); i++ {
		if err := w.q.Ack(batch[i].Seq); err != nil {
			w.logger.Error("ack failed", "seq", batch[i].Seq, "error", err)
		}
		batch[i].ResolveAck(event.AckDelivered)
	}
}

// requeue pushes events back onto the destination's own queue after this
// worker gives up on them for good (StateFatal): spec.md §4.5 requires a
// fatally dead destination to leave its events queued rather than drop
// them, so their ack obligation is deliberately left unresolved here —
// it only clears once some future worker instance actually delivers or
// explicitly drops them.
func (w *Worker) requeue(ctx context.Context, rest []*event.Event) {
	for _, ev := range rest {
		if err := w.q.Push(ctx, ev); err != nil {
			w.logger.Error("requeue on fatal failed", "seq", ev.Seq, "error", err)
		}
	}
}
