// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package s3archive implements a destination.Transport that archives
// batches of events to S3 as newline-delimited objects, grounded on
// dmitrymomot-foundation's integration/storage/s3.S3Storage: an
// interface-narrowed S3Client, config.LoadDefaultConfig for credential
// resolution, and aws.String-wrapped PutObject calls.
package s3archive

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"github.com/nishisan-dev/logpipe/internal/event"
)

// Client is the narrow subset of the S3 API an archiver needs, letting
// tests substitute a fake rather than talking to real S3.
type Client interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// Config describes where archived batches land.
type Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Compress bool // zstd-compress each object
}

// Archiver submits destination batches as one S3 object per flush,
// keyed by the first event's sequence number so objects sort the way
// they were produced.
type Archiver struct {
	client   Client
	bucket   string
	prefix   string
	compress bool
	format   func(*event.Event) ([]byte, error)

	seq atomic.Uint64
}

// New builds an Archiver, loading AWS credentials the default way
// (environment, shared config, or IAM role) exactly as
// config.LoadDefaultConfig does for the teacher's S3Storage.
func New(cfg Config, format func(*event.Event) ([]byte, error)) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3archive: bucket is required")
	}
	awsOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		awsOpts = append(awsOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3archive: loading AWS config: %w", err)
	}
	client := awss3.NewFromConfig(awsCfg)
	return NewWithClient(client, cfg, format), nil
}

// NewWithClient builds an Archiver around a caller-supplied Client,
// the seam tests use to avoid talking to real S3.
func NewWithClient(client Client, cfg Config, format func(*event.Event) ([]byte, error)) *Archiver {
	return &Archiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, compress: cfg.Compress, format: format}
}

// Submit formats every event in batch, joins them newline-delimited,
// and PutObjects the result as a single archive object. S3 has no
// partial-object semantics, so Submit is all-or-nothing: either every
// event in the batch is accepted or none are.
func (a *Archiver) Submit(ctx context.Context, batch []*event.Event) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	var buf bytes.Buffer
	for _, ev := range batch {
		line, err := a.format(ev)
		if err != nil {
			return 0, fmt.Errorf("s3archive: formatting event %d: %w", ev.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	body := buf.Bytes()
	contentType := "text/plain"
	if a.compress {
		compressed, err := zstdCompress(body)
		if err != nil {
			return 0, fmt.Errorf("s3archive: compressing batch: %w", err)
		}
		body = compressed
		contentType = "application/zstd"
	}

	key := a.objectKey(batch[0].Seq, len(batch))
	_, err := a.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return 0, fmt.Errorf("s3archive: putting object %s: %w", key, err)
	}
	return len(batch), nil
}

func zstdCompress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func (a *Archiver) objectKey(firstSeq uint64, count int) string {
	n := a.seq.Add(1)
	prefix := a.prefix
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	ext := ".log"
	if a.compress {
		ext = ".log.zst"
	}
	return fmt.Sprintf("%sbatch-%020d-%06d-n%d%s", prefix, firstSeq, n, count, ext)
}

// Close is a no-op; the AWS SDK's HTTP client manages its own
// connection pooling lifecycle.
func (a *Archiver) Close() error { return nil }
