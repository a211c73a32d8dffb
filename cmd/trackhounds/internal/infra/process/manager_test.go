// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build !windows

package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// DefaultManager Tests
// -----------------------------------------------------------------------------

func TestDefaultManager_Run_Success(t *testing.T) {
	pm := NewDefaultManager()

	res, err := pm.Run(context.Background(), "echo", "hello world")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, []string{"hello world"}, res.Lines())
}

func TestDefaultManager_Run_NonZeroExitIsNotAnError(t *testing.T) {
	pm := NewDefaultManager()

	res, err := pm.Run(context.Background(), "sh", "-c", "echo oops >&2; exit 3")
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Stderr, "oops")
}

func TestDefaultManager_Run_CommandNotFound(t *testing.T) {
	pm := NewDefaultManager()

	res, err := pm.Run(context.Background(), "nonexistent-command-12345")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandNotFound))
	assert.Equal(t, -1, res.ExitCode)
	assert.False(t, res.Succeeded())
}

func TestDefaultManager_Run_ContextTimeout(t *testing.T) {
	pm := NewDefaultManager()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := pm.Run(ctx, "sleep", "5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, -1, res.ExitCode)
}

func TestDefaultManager_RunInDir(t *testing.T) {
	pm := NewDefaultManager()
	dir := t.TempDir()

	res, err := pm.RunInDir(context.Background(), dir, []string{"TRACKHOUNDS_TEST=1"}, "sh", "-c", "pwd; echo $TRACKHOUNDS_TEST")
	require.NoError(t, err)
	lines := res.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], dir[len(dir)-8:])
	assert.Equal(t, "1", lines[1])
}

func TestDefaultManager_Start(t *testing.T) {
	pm := NewDefaultManager()

	pid, err := pm.Start(context.Background(), "true")
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	_, err = pm.Start(context.Background(), "nonexistent-command-12345")
	assert.True(t, errors.Is(err, ErrCommandNotFound))
}

// -----------------------------------------------------------------------------
// MockManager Tests
// -----------------------------------------------------------------------------

func TestMockManager_RecordsCalls(t *testing.T) {
	mock := &MockManager{}
	ctx := context.Background()

	_, _ = mock.Run(ctx, "docker", "info")
	_, _ = mock.RunInDir(ctx, "/res", nil, "docker", "compose", "up")
	_, _ = mock.Start(ctx, "open", "-a", "Docker")

	assert.Equal(t, []string{
		"docker info",
		"docker compose up",
		"open -a Docker",
	}, mock.CommandLines())
	assert.Equal(t, "/res", mock.GetCalls()[1].Dir)

	mock.Reset()
	assert.Empty(t, mock.GetCalls())
}

func TestScript_LongestPrefixWins(t *testing.T) {
	run := Script(map[string]*Result{
		"docker":            {ExitCode: 0, Stdout: "generic"},
		"docker ps -a":      {Stdout: "all"},
		"docker compose up": {ExitCode: 1},
	})
	ctx := context.Background()

	res, _ := run(ctx, "docker", "ps", "-a", "--format", "{{.Names}}")
	assert.Equal(t, "all", res.Stdout)

	res, _ = run(ctx, "docker", "compose", "up", "-d")
	assert.Equal(t, 1, res.ExitCode)

	res, _ = run(ctx, "docker", "info")
	assert.Equal(t, "generic", res.Stdout)

	res, _ = run(ctx, "systemctl", "start", "docker")
	assert.Equal(t, 127, res.ExitCode)
}

func TestScript_ReturnsCopies(t *testing.T) {
	shared := &Result{Stdout: "x"}
	run := Script(map[string]*Result{"docker": shared})

	res, _ := run(context.Background(), "docker")
	res.Stdout = "mutated"
	assert.Equal(t, "x", shared.Stdout)
}
