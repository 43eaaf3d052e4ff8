// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriterProducesFinalFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewAtomicWriter(dir, "batch")
	require.NoError(t, err)

	path, err := w.WriteBatch([]byte("hello world"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.True(t, filepath.Dir(path) == dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "no temp file should survive a successful write")
	}
}

func TestCompressedAtomicWriterProducesGzippedFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCompressedAtomicWriter(dir, "batch")
	require.NoError(t, err)

	path, err := w.WriteBatch([]byte("hello world"))
	require.NoError(t, err)
	assert.Contains(t, path, ".log.gz")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	buf := make([]byte, 32)
	n, _ := gz.Read(buf)
	assert.Equal(t, "hello world", string(buf[:n]))
}
