// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package mainloop

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nishisan-dev/logpipe/internal/ack"
	"github.com/nishisan-dev/logpipe/internal/node"
	"github.com/nishisan-dev/logpipe/internal/source"
	"github.com/nishisan-dev/logpipe/internal/transport/tcptls"
	"github.com/nishisan-dev/logpipe/internal/window"
)

// tcptlsAcceptor accepts mTLS connections for one source and spawns an
// independent source.Pump per connection, all sharing the source's
// window, ack tracker, and graph — grounded on the teacher's server.Run
// accept loop (internal/server/server.go): consecutive-error backoff on
// Accept, one handler goroutine per connection, graceful drain on
// context cancellation.
type tcptlsAcceptor struct {
	name    string
	ln      net.Listener
	parser  source.Parser
	window  *window.Counter
	tracker *ack.Tracker
	graph   *node.Graph
	logger  *slog.Logger

	wg sync.WaitGroup
}

func newTCPTLSAcceptor(name, addr string, tlsCfg *tls.Config, parser source.Parser, w *window.Counter, tr *ack.Tracker, g *node.Graph, logger *slog.Logger) (*tcptlsAcceptor, error) {
	ln, err := tcptls.Listen(addr, tlsCfg)
	if err != nil {
		return nil, err
	}
	return &tcptlsAcceptor{name: name, ln: ln, parser: parser, window: w, tracker: tr, graph: g, logger: logger.With("source", name)}, nil
}

func (a *tcptlsAcceptor) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		a.ln.Close()
	}()

	var consecutiveErrors int
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				a.wg.Wait()
				return ctx.Err()
			}
			consecutiveErrors++
			delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
			if delay > 5*time.Second {
				delay = 5 * time.Second
			}
			a.logger.Warn("accept error, backing off", "error", err, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				a.wg.Wait()
				return ctx.Err()
			}
			continue
		}
		consecutiveErrors = 0

		tlsConn, ok := conn.(*tls.Conn)
		if !ok {
			conn.Close()
			continue
		}
		connID := uuid.New().String()
		connLogger := a.logger.With("conn_id", connID, "remote_addr", conn.RemoteAddr().String())
		reader := tcptls.NewReader(tlsConn)
		pump := source.NewPump(a.name, reader, a.parser, a.window, a.tracker, a.graph, connLogger)

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := pump.Run(ctx); err != nil && ctx.Err() == nil {
				connLogger.Warn("connection pump exited", "error", err)
			}
			reader.Close()
		}()
	}
}

func (a *tcptlsAcceptor) Close() error { return a.ln.Close() }
