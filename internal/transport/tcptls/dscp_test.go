// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package tcptls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSCPValidNames(t *testing.T) {
	tests := []struct {
		name     string
		expected int
	}{
		{"EF", 46},
		{"ef", 46},
		{"AF41", 34},
		{"af41", 34},
		{"AF11", 10},
		{"AF43", 38},
		{"CS0", 0},
		{"CS1", 8},
		{"CS7", 56},
		{"  AF31  ", 26},
	}

	for _, tt := range tests {
		val, err := ParseDSCP(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.expected, val, tt.name)
	}
}

func TestParseDSCPEmptyDisables(t *testing.T) {
	val, err := ParseDSCP("")
	require.NoError(t, err)
	assert.Equal(t, 0, val)
}

func TestParseDSCPInvalidName(t *testing.T) {
	for _, name := range []string{"DSCP1", "XX", "AF50", "best-effort", "42"} {
		_, err := ParseDSCP(name)
		assert.Error(t, err, name)
	}
}

func TestApplyDSCPNoopWhenZero(t *testing.T) {
	require.NoError(t, ApplyDSCP(nil, 0))
}
