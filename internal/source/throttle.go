// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package source

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

const maxBurstSize = 256 * 1024

// ThrottledReader wraps an io.Reader with a token-bucket rate limit,
// generalized from the teacher's ThrottledWriter (internal/agent/throttle.go)
// to the read side: a source pulling from a file or socket transport can
// be capped at bytesPerSec to avoid a single fast source starving its
// siblings' window credit turnaround.
type ThrottledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// NewThrottledReader wraps r with a rate limit of bytesPerSec. A
// non-positive bytesPerSec disables throttling and returns r unchanged.
func NewThrottledReader(ctx context.Context, r io.Reader, bytesPerSec int) io.Reader {
	if bytesPerSec <= 0 {
		return r
	}
	burst := bytesPerSec
	if burst > maxBurstSize {
		burst = maxBurstSize
	}
	return &ThrottledReader{ctx: ctx, r: r, limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

func (t *ThrottledReader) Read(p []byte) (int, error) {
	chunk := len(p)
	if burst := t.limiter.Burst(); chunk > burst {
		chunk = burst
	}
	n, err := t.r.Read(p[:chunk])
	if n > 0 {
		if werr := t.limiter.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
