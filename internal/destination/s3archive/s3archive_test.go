// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package s3archive

import (
	"context"
	"errors"
	"io"
	"testing"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nishisan-dev/logpipe/internal/event"
)

type fakeS3Client struct {
	lastKey  string
	lastBody []byte
	failErr  error
}

func (f *fakeS3Client) PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	f.lastKey = *params.Key
	body, _ := io.ReadAll(params.Body)
	f.lastBody = body
	return &awss3.PutObjectOutput{}, nil
}

func newEvent(seq uint64, msg string) *event.Event {
	ev := event.New(seq)
	ev.Set("message", event.String(msg))
	return ev
}

func TestArchiverSubmitsBatchAsOneObject(t *testing.T) {
	client := &fakeS3Client{}
	a := NewWithClient(client, Config{Bucket: "bucket", Prefix: "logs"}, func(ev *event.Event) ([]byte, error) {
		v, _ := ev.Get("message")
		s, _ := v.AsString()
		return []byte(s), nil
	})

	batch := []*event.Event{newEvent(1, "one"), newEvent(2, "two")}
	accepted, err := a.Submit(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)
	assert.Equal(t, "one\ntwo\n", string(client.lastBody))
	assert.Contains(t, client.lastKey, "logs/batch-")
}

func TestArchiverPropagatesPutError(t *testing.T) {
	client := &fakeS3Client{failErr: errors.New("boom")}
	a := NewWithClient(client, Config{Bucket: "bucket"}, func(ev *event.Event) ([]byte, error) { return []byte("x"), nil })

	accepted, err := a.Submit(context.Background(), []*event.Event{newEvent(1, "one")})
	require.Error(t, err)
	assert.Equal(t, 0, accepted)
}

func TestArchiverCompressesBatchWithZstd(t *testing.T) {
	client := &fakeS3Client{}
	a := NewWithClient(client, Config{Bucket: "bucket", Prefix: "logs", Compress: true}, func(ev *event.Event) ([]byte, error) {
		v, _ := ev.Get("message")
		s, _ := v.AsString()
		return []byte(s), nil
	})

	accepted, err := a.Submit(context.Background(), []*event.Event{newEvent(1, "one"), newEvent(2, "two")})
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)
	assert.Contains(t, client.lastKey, ".log.zst")

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(client.lastBody, nil)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(plain))
}

func TestArchiverEmptyBatchIsNoop(t *testing.T) {
	client := &fakeS3Client{}
	a := NewWithClient(client, Config{Bucket: "bucket"}, nil)
	accepted, err := a.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, accepted)
	assert.Empty(t, client.lastKey)
}
