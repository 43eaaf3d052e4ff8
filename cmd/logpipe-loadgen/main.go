// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command logpipe-loadgen is a synthetic RFC3164 line generator for
// exercising a logpipe tcptls source, modeled on the original
// implementation's tests/loggen rate-limited connection pool: one
// goroutine per active connection, each pacing itself to the requested
// per-connection rate and reporting an aggregate rate every second.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/logpipe/internal/transport/tcptls"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6514", "destination host:port")
	caCert := flag.String("ca-cert", "", "CA bundle for verifying the server")
	cert := flag.String("cert", "", "client certificate")
	key := flag.String("key", "", "client key")
	rate := flag.Int64("rate", 1000, "messages per second per connection")
	size := flag.Int("size", 256, "approximate message size in bytes")
	interval := flag.Duration("interval", 10*time.Second, "how long to run (ignored with -number)")
	number := flag.Int64("number", 0, "number of messages per connection, interval is ignored if set")
	connections := flag.Int("active-connections", 1, "number of concurrent connections")
	flag.Parse()

	tlsCfg, err := tcptls.NewClientConfig(*caCert, *cert, *key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logpipe-loadgen: tls config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if *number == 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *interval)
		defer cancel()
	}

	var sent atomic.Int64
	done := make(chan error, *connections)
	for i := 0; i < *connections; i++ {
		go func(idx int) {
			done <- runConnection(ctx, *addr, tlsCfg, idx, *rate, *size, *number, &sent)
		}(i)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	start := time.Now()
	lastCount := int64(0)

	finished := 0
	for finished < *connections {
		select {
		case err := <-done:
			finished++
			if err != nil {
				fmt.Fprintf(os.Stderr, "logpipe-loadgen: connection error: %v\n", err)
			}
		case <-ticker.C:
			count := sent.Load()
			elapsed := time.Since(start).Seconds()
			fmt.Fprintf(os.Stderr, "count=%d rate=%.2f msg/s avg_rate=%.2f msg/s\n",
				count, float64(count-lastCount), float64(count)/elapsed)
			lastCount = count
		}
	}
}

// runConnection opens one mTLS connection and writes framed RFC3164
// lines at the requested rate until ctx is done or number is reached,
// pacing itself one tick per message the way the original thread_data
// loop sleeps between sends to hold a target rate.
func runConnection(ctx context.Context, addr string, tlsCfg *tls.Config, idx int, rate int64, size int, number int64, sent *atomic.Int64) error {
	conn, err := tcptls.Dial(ctx, addr, tlsCfg)
	if err != nil {
		return fmt.Errorf("connection %d: dial: %w", idx, err)
	}
	defer conn.Close()

	bw := bufio.NewWriter(conn)
	interval := time.Second / time.Duration(rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq int64
	for {
		select {
		case <-ctx.Done():
			return bw.Flush()
		case <-ticker.C:
			line := generateLine(idx, seq, size)
			if _, err := bw.WriteString(line); err != nil {
				return fmt.Errorf("connection %d: write: %w", idx, err)
			}
			seq++
			sent.Add(1)
			if number > 0 && seq >= number {
				return bw.Flush()
			}
			if seq%100 == 0 {
				if err := bw.Flush(); err != nil {
					return fmt.Errorf("connection %d: flush: %w", idx, err)
				}
			}
		}
	}
}

// generateLine builds an RFC3164 frame whose payload is padded with
// repeated filler to approximate size bytes, mirroring
// generate_log_line's fixed-size message body.
func generateLine(connIdx int, seq int64, size int) string {
	ts := time.Now().Format("Jan _2 15:04:05")
	header := fmt.Sprintf("<38>%s loadgen[%d]: seq=%d ", ts, connIdx, seq)
	padLen := size - len(header) - 1
	if padLen < 0 {
		padLen = 0
	}
	return header + strings.Repeat("x", padLen) + "\n"
}
