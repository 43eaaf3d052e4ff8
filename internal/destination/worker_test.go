// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package destination

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nishisan-dev/logpipe/internal/event"
	"github.com/nishisan-dev/logpipe/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	batches  [][]*event.Event
	failN    int // fail this many calls before succeeding
	partial  int // if > 0, accept only this many events per call
}

func (f *fakeTransport) Submit(ctx context.Context, batch []*event.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)

	if f.failN > 0 {
		f.failN--
		return 0, errors.New("simulated transient failure")
	}
	if f.partial > 0 && f.partial < len(batch) {
		return f.partial, errors.New("simulated partial acceptance")
	}
	return len(batch), nil
}

func TestWorkerDeliversBatchOnSuccess(t *testing.T) {
	q := queue.NewMemQueue(10, 0)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, q.Push(context.Background(), event.New(i)))
	}

	transport := &fakeTransport{}
	cfg := Config{MaxBatchEvents: 3, MaxLinger: 50 * time.Millisecond}
	w := NewWorker("test", q, transport, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.batches) == 1 && len(transport.batches[0]) == 3
	}, time.Second, 10*time.Millisecond)

	w.Stop()
	<-done
}

func TestWorkerRetriesThenSucceeds(t *testing.T) {
	q := queue.NewMemQueue(10, 0)
	require.NoError(t, q.Push(context.Background(), event.New(1)))

	transport := &fakeTransport{failN: 2}
	cfg := Config{MaxBatchEvents: 1, MaxLinger: 20 * time.Millisecond, BaseBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}
	w := NewWorker("test", q, transport, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	require.Eventually(t, func() bool {
		return w.State() == StateIdle
	}, time.Second, 10*time.Millisecond)

	w.Stop()
	<-done

	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.GreaterOrEqual(t, len(transport.batches), 3, "expected two failures then a success")
}

func TestWorkerGoesFatalAfterMaxRetries(t *testing.T) {
	q := queue.NewMemQueue(10, 0)
	require.NoError(t, q.Push(context.Background(), event.New(1)))

	transport := &fakeTransport{failN: 100}
	cfg := Config{MaxBatchEvents: 1, MaxLinger: 10 * time.Millisecond, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, MaxRetries: 2}
	w := NewWorker("test", q, transport, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Run(ctx)

	assert.Equal(t, StateFatal, w.State())
}
