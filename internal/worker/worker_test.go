// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type blockingRunnable struct{ started chan struct{} }

func (b blockingRunnable) Run(ctx context.Context) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestThreadRequestExitStopsRunnable(t *testing.T) {
	r := blockingRunnable{started: make(chan struct{})}
	th := NewThread("t1", r, nil)
	th.Start(context.Background())

	<-r.started
	th.RequestExit()

	select {
	case <-th.Done():
	default:
		t.Fatal("thread should be done after RequestExit")
	}
}

type failingRunnable struct{}

func (failingRunnable) Run(ctx context.Context) error { return errors.New("boom") }

func TestThreadCapturesRunnableError(t *testing.T) {
	th := NewThread("t2", failingRunnable{}, nil)
	th.Start(context.Background())

	select {
	case <-th.Done():
	case <-time.After(time.Second):
		t.Fatal("thread did not finish")
	}
	assert.EqualError(t, th.Err(), "boom")
}

type panickingRunnable struct{}

func (panickingRunnable) Run(ctx context.Context) error { panic("kaboom") }

func TestThreadRecoversPanic(t *testing.T) {
	th := NewThread("t3", panickingRunnable{}, nil)
	th.Start(context.Background())

	select {
	case <-th.Done():
	case <-time.After(time.Second):
		t.Fatal("thread did not finish")
	}
	assert.ErrorContains(t, th.Err(), "kaboom")
}

func TestAdaptWrapsVoidRun(t *testing.T) {
	called := make(chan struct{})
	r := Adapt(func(ctx context.Context) { close(called) })
	th := NewThread("t4", r, nil)
	th.Start(context.Background())

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("adapted runnable never called")
	}
	th.RequestExit()
}
