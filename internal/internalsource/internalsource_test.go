// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package internalsource

import (
	"context"
	"testing"
	"time"

	"github.com/nishisan-dev/logpipe/internal/errkind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostAndDrain(t *testing.T) {
	sink := NewSink(10, nil)
	sink.Post(Record{Kind: errkind.KindCorruption, Component: "queue", Message: "bad checksum"})

	src := NewSource(sink)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frame, err := src.ReadFrame(ctx)
	require.NoError(t, err)

	ev, needMore, err := Parser{}.Parse(1, frame)
	require.NoError(t, err)
	assert.False(t, needMore)

	v, ok := ev.Get("component")
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "queue", s)
}

func TestSinkDropsOldestWhenFull(t *testing.T) {
	sink := NewSink(1, nil)
	sink.Post(Record{Message: "first"})
	sink.Post(Record{Message: "second"})

	src := NewSource(sink)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame, err := src.ReadFrame(ctx)
	require.NoError(t, err)

	r := decodeRecord(frame)
	assert.Equal(t, "second", r.Message)
}
