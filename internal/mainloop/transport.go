// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package mainloop

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"github.com/nishisan-dev/logpipe/internal/config"
	"github.com/nishisan-dev/logpipe/internal/destination"
	"github.com/nishisan-dev/logpipe/internal/destination/s3archive"
	"github.com/nishisan-dev/logpipe/internal/event"
	"github.com/nishisan-dev/logpipe/internal/parser"
	"github.com/nishisan-dev/logpipe/internal/transport/file"
	"github.com/nishisan-dev/logpipe/internal/transport/tcptls"
)

// formatterFor resolves a destination's wire formatter by name, defaulting
// to RFC3164 framing for plain-text destinations.
func formatterFor(name string) func(*event.Event) ([]byte, error) {
	switch name {
	case "rfc5424":
		return nil // RFC5424 has no dedicated formatter yet; falls through to rfc3164 below.
	case "json":
		return parser.FormatJSON
	default:
		return parser.Format3164
	}
}

// fileTransport batches formatted events into one atomically-renamed file
// per flush, grounded on internal/transport/file.AtomicWriter.
type fileTransport struct {
	writer *file.AtomicWriter
	format func(*event.Event) ([]byte, error)
}

func newFileTransport(dir, prefix string, compress bool, format func(*event.Event) ([]byte, error)) (*fileTransport, error) {
	var w *file.AtomicWriter
	var err error
	if compress {
		w, err = file.NewCompressedAtomicWriter(dir, prefix)
	} else {
		w, err = file.NewAtomicWriter(dir, prefix)
	}
	if err != nil {
		return nil, err
	}
	return &fileTransport{writer: w, format: format}, nil
}

func (t *fileTransport) Submit(ctx context.Context, batch []*event.Event) (int, error) {
	var buf []byte
	for _, ev := range batch {
		line, err := t.format(ev)
		if err != nil {
			return 0, fmt.Errorf("mainloop: formatting event %d: %w", ev.Seq, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	if _, err := t.writer.WriteBatch(buf); err != nil {
		return 0, err
	}
	return len(batch), nil
}

func (t *fileTransport) Close() error { return nil }

// tcptlsTransport submits each batch over a persistent mutual-TLS
// connection, redialing lazily on the next Submit after a failure —
// the client-side mirror of the teacher's streamer.go reconnect loop.
type tcptlsTransport struct {
	addr   string
	tlsCfg *tls.Config
	dscp   int
	format func(*event.Event) ([]byte, error)

	conn *tls.Conn
	bw   *bufio.Writer
}

func newTCPTLSTransport(addr string, tlsCfg *tls.Config, dscp int, format func(*event.Event) ([]byte, error)) *tcptlsTransport {
	return &tcptlsTransport{addr: addr, tlsCfg: tlsCfg, dscp: dscp, format: format}
}

func (t *tcptlsTransport) ensureConn(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	conn, err := tcptls.Dial(ctx, t.addr, t.tlsCfg)
	if err != nil {
		return err
	}
	if err := tcptls.ApplyDSCP(conn, t.dscp); err != nil {
		conn.Close()
		return err
	}
	t.conn = conn
	t.bw = bufio.NewWriter(conn)
	return nil
}

func (t *tcptlsTransport) Submit(ctx context.Context, batch []*event.Event) (int, error) {
	if err := t.ensureConn(ctx); err != nil {
		return 0, err
	}
	accepted := 0
	for _, ev := range batch {
		line, err := t.format(ev)
		if err != nil {
			return accepted, fmt.Errorf("mainloop: formatting event %d: %w", ev.Seq, err)
		}
		if _, err := t.bw.Write(append(line, '\n')); err != nil {
			t.resetConn()
			return accepted, err
		}
		accepted++
	}
	if err := t.bw.Flush(); err != nil {
		t.resetConn()
		return accepted - 1, err
	}
	return accepted, nil
}

func (t *tcptlsTransport) resetConn() {
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn, t.bw = nil, nil
}

func (t *tcptlsTransport) Close() error {
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// buildTransport constructs the Transport a destination worker submits
// batches to, plus an io.Closer released on shutdown.
func buildTransport(d config.DestinationConfig) (destination.Transport, io.Closer, error) {
	format := formatterFor(d.Formatter)
	if format == nil {
		format = parser.Format3164
	}

	switch d.Type {
	case "file":
		t, err := newFileTransport(d.Path, d.Name, d.Compress, format)
		if err != nil {
			return nil, nil, err
		}
		return t, t, nil

	case "tcptls":
		tlsCfg, err := tcptls.NewClientConfig(d.CACert, d.Cert, d.Key)
		if err != nil {
			return nil, nil, fmt.Errorf("mainloop: destination %s: tls config: %w", d.Name, err)
		}
		dscp, err := tcptls.ParseDSCP(d.DSCP)
		if err != nil {
			return nil, nil, fmt.Errorf("mainloop: destination %s: %w", d.Name, err)
		}
		t := newTCPTLSTransport(d.Addr, tlsCfg, dscp, format)
		return t, t, nil

	case "s3":
		t, err := s3archive.New(s3ConfigFromDestination(d), format)
		if err != nil {
			return nil, nil, err
		}
		return t, t, nil

	default:
		return nil, nil, fmt.Errorf("mainloop: destination %s: unknown type %q", d.Name, d.Type)
	}
}

func s3ConfigFromDestination(d config.DestinationConfig) s3archive.Config {
	return s3archive.Config{
		Bucket:   d.Addr,
		Prefix:   d.Path,
		Compress: d.Compress,
	}
}
