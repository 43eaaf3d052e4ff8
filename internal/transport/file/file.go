// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package file implements file-tailing sources and crash-safe file
// destinations, grounded on the teacher's internal/server/storage.go
// AtomicWriter (temp-file-then-rename) and internal/agent/scanner.go's
// directory-walk source pattern.
package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/pgzip"
)

// TailReader follows a growing file, blocking for new lines the way a
// source.Reader is expected to, grounded on the original's
// modules/affile/stdin.c newline-delimited framing discipline.
type TailReader struct {
	f      *os.File
	br     *bufio.Reader
	poll   time.Duration
}

func OpenTail(path string) (*TailReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file: opening %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return &TailReader{f: f, br: bufio.NewReader(f), poll: 200 * time.Millisecond}, nil
}

func (t *TailReader) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		line, err := t.br.ReadString('\n')
		if err == nil {
			return []byte(line[:len(line)-1]), nil
		}
		if err != io.EOF {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.poll):
		}
	}
}

func (t *TailReader) Close() error { return t.f.Close() }

// AtomicWriter writes events to a rotated destination file via
// temp-then-rename, directly adapted from storage.AtomicWriter. When
// compress is set, each batch is gzipped with pgzip (parallel gzip,
// matching the original's CompressionGzip default) before being
// renamed into place with a .gz suffix.
type AtomicWriter struct {
	dir      string
	prefix   string
	compress bool
}

func NewAtomicWriter(dir, prefix string) (*AtomicWriter, error) {
	return newAtomicWriter(dir, prefix, false)
}

// NewCompressedAtomicWriter is the gzip-on-write variant used by
// destinations configured with compress: true.
func NewCompressedAtomicWriter(dir, prefix string) (*AtomicWriter, error) {
	return newAtomicWriter(dir, prefix, true)
}

func newAtomicWriter(dir, prefix string, compress bool) (*AtomicWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: creating directory %s: %w", dir, err)
	}
	return &AtomicWriter{dir: dir, prefix: prefix, compress: compress}, nil
}

// WriteBatch writes data to a temp file and atomically renames it into
// place, timestamped the way storage.Commit names finished backups.
func (w *AtomicWriter) WriteBatch(data []byte) (string, error) {
	tmp, err := os.CreateTemp(w.dir, w.prefix+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("file: creating temp file: %w", err)
	}

	if w.compress {
		gz := pgzip.NewWriter(tmp)
		if _, err := gz.Write(data); err != nil {
			gz.Close()
			tmp.Close()
			os.Remove(tmp.Name())
			return "", fmt.Errorf("file: compressing batch: %w", err)
		}
		if err := gz.Close(); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return "", fmt.Errorf("file: closing compressor: %w", err)
		}
	} else if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("file: writing temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	ext := ".log"
	if w.compress {
		ext = ".log.gz"
	}
	finalName := fmt.Sprintf("%s-%s%s", w.prefix, stampNow(), ext)
	finalPath := filepath.Join(w.dir, finalName)
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("file: renaming into place: %w", err)
	}
	return finalPath, nil
}

// stampNow is overridable in tests; production uses wall-clock UTC.
var stampNow = func() string { return time.Now().UTC().Format("20060102T150405.000000") }
