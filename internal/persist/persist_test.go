// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")
	f, err := Open(path, 4)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Set("src-a", 42))
	require.NoError(t, f.Set("src-b", 7))

	v, ok := f.Get("src-a")
	require.True(t, ok)
	assert.Equal(t, uint64(42), v)

	v, ok = f.Get("src-b")
	require.True(t, ok)
	assert.Equal(t, uint64(7), v)

	_, ok = f.Get("missing")
	assert.False(t, ok)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")
	f, err := Open(path, 4)
	require.NoError(t, err)
	require.NoError(t, f.Set("dest-1", 100))
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	f2, err := Open(path, 4)
	require.NoError(t, err)
	defer f2.Close()

	v, ok := f2.Get("dest-1")
	require.True(t, ok)
	assert.Equal(t, uint64(100), v)
}

func TestSetOverwritesExistingSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")
	f, err := Open(path, 2)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Set("k", 1))
	require.NoError(t, f.Set("k", 2))

	v, ok := f.Get("k")
	require.True(t, ok)
	assert.Equal(t, uint64(2), v)
}
