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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// errWouldBlock is returned by the platform lock primitive when another
// process holds the lock.
var errWouldBlock = errors.New("lock held by another process")

// Locker defines the interface for supervisor instance locking.
//
// # Description
//
// Prevents two supervisors from driving the container runtime at the same
// time, e.g. `trackhounds down` stopping containers while `trackhounds serve`
// is halfway through starting them.
type Locker interface {
	// Acquire attempts to get an exclusive lock.
	Acquire() error

	// Release releases the lock if held. Safe to call multiple times.
	Release() error

	// IsHeld returns true if this instance currently holds the lock.
	IsHeld() bool

	// HolderPID returns the PID recorded by the holder, or 0 if unknown.
	HolderPID() int
}

// LockConfig configures lock file location.
type LockConfig struct {
	// LockDir is the directory for lock files.
	// Default: system temp directory
	LockDir string

	// LockName is the base name for lock files.
	// Default: "trackhounds"
	LockName string
}

// Lock implements Locker using an OS advisory file lock.
//
// # How It Works
//
//  1. Creates a lock file at {LockDir}/{LockName}.lock
//  2. Takes a non-blocking exclusive lock (flock on Unix, LockFileEx on Windows)
//  3. Writes the PID to {LockDir}/{LockName}.pid for error messages
//  4. On release, removes the PID file and unlocks
//
// # Limitations
//
//   - Advisory only
//   - Network filesystems may not honour the lock
//
// # Example
//
//	lock := NewLock(LockConfig{LockDir: configDir, LockName: "supervisor"})
//	if err := lock.Acquire(); err != nil {
//	    return err
//	}
//	defer lock.Release()
type Lock struct {
	config   LockConfig
	lockPath string
	pidPath  string
	lockFile *os.File
	held     bool
}

// NewLock creates a new lock. Does not acquire it.
func NewLock(config LockConfig) *Lock {
	if config.LockDir == "" {
		config.LockDir = os.TempDir()
	}
	if config.LockName == "" {
		config.LockName = "trackhounds"
	}
	return &Lock{
		config:   config,
		lockPath: filepath.Join(config.LockDir, config.LockName+".lock"),
		pidPath:  filepath.Join(config.LockDir, config.LockName+".pid"),
	}
}

// Acquire attempts to get an exclusive lock without blocking.
//
// # Outputs
//
//   - error: *ErrLockHeld if another supervisor holds it, or a wrapped
//     system error if the lock file cannot be created
func (p *Lock) Acquire() error {
	if p.held {
		return nil
	}

	if err := os.MkdirAll(p.config.LockDir, 0750); err != nil {
		return fmt.Errorf("failed to create lock dir %s: %w", p.config.LockDir, err)
	}
	f, err := os.OpenFile(p.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file %s: %w", p.lockPath, err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, errWouldBlock) {
			return &ErrLockHeld{HolderPID: p.readHolderPID(), LockPath: p.lockPath}
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	p.lockFile = f
	p.held = true

	// PID file is informational only; the lock is held regardless.
	_ = os.WriteFile(p.pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
	return nil
}

// Release releases the lock if held.
func (p *Lock) Release() error {
	if !p.held || p.lockFile == nil {
		return nil
	}

	os.Remove(p.pidPath)
	err := unlockFile(p.lockFile)
	p.lockFile.Close()
	p.lockFile = nil
	p.held = false

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// IsHeld returns true if this instance currently holds the lock.
func (p *Lock) IsHeld() bool {
	return p.held
}

// HolderPID returns the PID recorded in the PID file, or 0.
func (p *Lock) HolderPID() int {
	return p.readHolderPID()
}

// LockPath returns the path to the lock file.
func (p *Lock) LockPath() string {
	return p.lockPath
}

func (p *Lock) readHolderPID() int {
	data, err := os.ReadFile(p.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// ErrLockHeld is returned when the lock is held by another process.
type ErrLockHeld struct {
	HolderPID int
	LockPath  string
}

// Error implements the error interface.
func (e *ErrLockHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another trackhounds supervisor is running (PID %d)", e.HolderPID)
	}
	return fmt.Sprintf("another trackhounds supervisor is running (lock: %s)", e.LockPath)
}

// Compile-time interface satisfaction check
var _ Locker = (*Lock)(nil)
