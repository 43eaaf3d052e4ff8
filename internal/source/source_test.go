// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package source

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nishisan-dev/logpipe/internal/ack"
	"github.com/nishisan-dev/logpipe/internal/event"
	"github.com/nishisan-dev/logpipe/internal/node"
	"github.com/nishisan-dev/logpipe/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceReader struct {
	mu     sync.Mutex
	frames [][]byte
	i      int
}

func (r *sliceReader) ReadFrame(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.i >= len(r.frames) {
		return nil, io.EOF
	}
	f := r.frames[r.i]
	r.i++
	return f, nil
}
func (r *sliceReader) Close() error { return nil }

type echoParser struct{}

func (echoParser) Parse(seq uint64, frame []byte) (*event.Event, bool, error) {
	ev := event.New(seq)
	_ = ev.Set("raw", event.String(string(frame)))
	return ev, false, nil
}

type collectNode struct {
	mu   sync.Mutex
	seen []*event.Event
}

func (c *collectNode) Init(context.Context) error   { return nil }
func (c *collectNode) Deinit(context.Context) error { return nil }
func (c *collectNode) Process(ctx context.Context, ev *event.Event) (node.Outcome, []*event.Event, error) {
	c.mu.Lock()
	c.seen = append(c.seen, ev)
	c.mu.Unlock()
	return node.Drop, nil, nil
}

func TestPumpDispatchesParsedFrames(t *testing.T) {
	reader := &sliceReader{frames: [][]byte{[]byte("a"), []byte("b"), []byte("c")}}
	sink := &collectNode{}
	g, err := node.NewGraph(map[string]node.Node{"sink": sink}, nil, "sink")
	require.NoError(t, err)

	w := window.New(10)
	tr := ack.New(ack.ModeInstant, w)
	p := NewPump("test", reader, echoParser{}, w, tr, g, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = p.Run(ctx)
	assert.ErrorIs(t, err, io.EOF)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.seen, 3)
}

func TestPumpBlocksOnWindowExhaustion(t *testing.T) {
	reader := &sliceReader{frames: [][]byte{[]byte("a"), []byte("b")}}
	sink := &collectNode{}
	g, err := node.NewGraph(map[string]node.Node{"sink": sink}, nil, "sink")
	require.NoError(t, err)

	w := window.New(0) // no credit at all
	tr := ack.New(ack.ModeInstant, w)
	p := NewPump("test", reader, echoParser{}, w, tr, g, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Empty(t, sink.seen, "no event should be dispatched without window credit")
}
