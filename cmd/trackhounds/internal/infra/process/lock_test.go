// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_AcquireRelease(t *testing.T) {
	lock := NewLock(LockConfig{LockDir: t.TempDir(), LockName: "test"})

	require.NoError(t, lock.Acquire())
	assert.True(t, lock.IsHeld())
	assert.Equal(t, os.Getpid(), lock.HolderPID())

	// Re-acquiring is a no-op.
	require.NoError(t, lock.Acquire())

	require.NoError(t, lock.Release())
	assert.False(t, lock.IsHeld())
	assert.Equal(t, 0, lock.HolderPID())

	// Releasing twice is safe.
	require.NoError(t, lock.Release())
}

func TestLock_SecondHolderRejected(t *testing.T) {
	dir := t.TempDir()
	first := NewLock(LockConfig{LockDir: dir, LockName: "test"})
	second := NewLock(LockConfig{LockDir: dir, LockName: "test"})

	require.NoError(t, first.Acquire())
	defer first.Release()

	err := second.Acquire()
	require.Error(t, err)

	var held *ErrLockHeld
	require.True(t, errors.As(err, &held))
	assert.Equal(t, os.Getpid(), held.HolderPID)
	assert.Contains(t, err.Error(), "another trackhounds supervisor is running")
	assert.False(t, second.IsHeld())

	require.NoError(t, first.Release())
	require.NoError(t, second.Acquire())
	require.NoError(t, second.Release())
}

func TestNewLock_Defaults(t *testing.T) {
	lock := NewLock(LockConfig{})
	assert.Equal(t, filepath.Join(os.TempDir(), "trackhounds.lock"), lock.LockPath())
}

func TestErrLockHeld_WithoutPID(t *testing.T) {
	err := &ErrLockHeld{LockPath: "/tmp/x.lock"}
	assert.Contains(t, err.Error(), "/tmp/x.lock")
}
