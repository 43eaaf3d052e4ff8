// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package internalsource implements the engine's built-in internal
// source (spec.md §7's propagation policy): faults from anywhere in the
// pipeline that should be visible as first-class events rather than
// merely logged are posted here. Source and Parser adapt the sink to the
// source.Reader/Parser contracts; the engine (mainloop.Engine) reads the
// records back through them and writes each one to its log, without
// dispatching them into the graph. Grounded on the original project's
// afinter.c treatment of the internal source.
package internalsource

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nishisan-dev/logpipe/internal/errkind"
	"github.com/nishisan-dev/logpipe/internal/event"
)

// Record is one structured diagnostic event: a kind, a human message,
// and the originating component name.
type Record struct {
	Kind      errkind.Kind
	Component string
	Message   string
}

// Sink is a bounded ring of pending internal-source records. Posting
// beyond capacity drops the oldest record, matching the engine's general
// policy of never blocking the caller that raised the fault.
type Sink struct {
	mu       sync.Mutex
	cond     sync.Cond
	capacity int
	records  []Record
	closed   bool
	logger   *slog.Logger
}

func NewSink(capacity int, logger *slog.Logger) *Sink {
	if capacity <= 0 {
		capacity = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{capacity: capacity, logger: logger}
	s.cond.L = &s.mu
	return s
}

// Post enqueues a record, dropping the oldest if the sink is full.
func (s *Sink) Post(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.records) >= s.capacity {
		s.records = s.records[1:]
		s.logger.Warn("internal source ring full, dropping oldest record")
	}
	s.records = append(s.records, r)
	s.cond.Broadcast()
}

// drain pops the oldest record, blocking until one is available or the
// sink closes.
func (s *Sink) drain(ctx context.Context) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.records) == 0 && !s.closed {
		if ctx.Err() != nil {
			return Record{}, false
		}
		s.cond.Wait()
	}
	if len(s.records) == 0 {
		return Record{}, false
	}
	r := s.records[0]
	s.records = s.records[1:]
	return r, true
}

func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// Source adapts a Sink to the source.Reader contract so it can be pumped
// through a regular source.Pump and into the graph.
type Source struct {
	sink *Sink
}

func NewSource(sink *Sink) *Source { return &Source{sink: sink} }

func (s *Source) ReadFrame(ctx context.Context) ([]byte, error) {
	r, ok := s.sink.drain(ctx)
	if !ok {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errClosed
	}
	return encodeRecord(r), nil
}

func (s *Source) Close() error { s.sink.Close(); return nil }

// Parser decodes frames produced by Source back into events; kept
// alongside Source since the encoding is private to this package.
type Parser struct{}

func (Parser) Parse(seqNum uint64, frame []byte) (*event.Event, bool, error) {
	r := decodeRecord(frame)
	ev := event.New(seqNum)
	_ = ev.Set("kind", event.String(r.Kind.String()))
	_ = ev.Set("component", event.String(r.Component))
	_ = ev.Set("message", event.String(r.Message))
	return ev, false, nil
}
