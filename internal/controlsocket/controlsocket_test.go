// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package controlsocket

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerRespondsToCommand(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "ctl.sock")

	srv := NewServer(sockPath, func(ctx context.Context, line string) string {
		if line == "STATS" {
			return "OK events=0"
		}
		return "UNKNOWN"
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	require.Eventually(t, func() bool {
		_, err := Dial(sockPath, "PING")
		return err == nil
	}, time.Second, 10*time.Millisecond)

	resp, err := Dial(sockPath, "STATS")
	require.NoError(t, err)
	assert.Equal(t, "OK events=0", resp)
}
