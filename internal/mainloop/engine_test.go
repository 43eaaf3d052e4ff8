// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package mainloop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, srcPath, destDir, persistFile string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "engine.yaml")
	yaml := fmt.Sprintf(`
engine:
  name: test-engine
logging:
  level: error
  format: text
persist_file: %q
entry: out
sources:
  - name: tail
    type: file
    path: %q
    parser: rfc3164
destinations:
  - name: out
    type: file
    path: %q
    formatter: json
    queue_memory_only: true
    batch:
      max_events: 1
      max_linger: 50ms
`, persistFile, srcPath, destDir)
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))
	return cfgPath
}

func TestEngineEndToEndFileToFile(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.log")
	destDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(destDir, 0o755))
	require.NoError(t, os.WriteFile(srcPath, nil, 0o644))

	persistFile := filepath.Join(dir, "state.bin")
	cfgPath := writeConfig(t, srcPath, destDir, persistFile)

	engine, err := New(cfgPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	// Give the tail reader a moment to seek to EOF before we append.
	time.Sleep(100 * time.Millisecond)

	f, err := os.OpenFile(srcPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("<34>Oct 11 22:14:15 myhost su: test message\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(destDir)
		return err == nil && len(entries) > 0
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not shut down in time")
	}

	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(destDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "test message")
}

func TestHandleControlUnknownCommand(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.log")
	destDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(destDir, 0o755))
	require.NoError(t, os.WriteFile(srcPath, nil, 0o644))
	cfgPath := writeConfig(t, srcPath, destDir, filepath.Join(dir, "state.bin"))

	engine, err := New(cfgPath)
	require.NoError(t, err)
	defer engine.persist.Close()

	assert.Equal(t, "ERR unknown command", engine.handleControl(context.Background(), "BOGUS"))
}
