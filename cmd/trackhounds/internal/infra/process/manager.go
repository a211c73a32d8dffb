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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrCommandNotFound is returned when the executable is not on PATH.
var ErrCommandNotFound = errors.New("command not found")

// -----------------------------------------------------------------------------
// Result
// -----------------------------------------------------------------------------

// Result captures the outcome of a finished command.
//
// A non-zero ExitCode is an ordinary outcome, not an error. The error
// return of Manager methods is reserved for commands that could not be
// started or were cut short by their context.
type Result struct {
	// Stdout contains standard output.
	Stdout string

	// Stderr contains standard error.
	Stderr string

	// ExitCode is the process exit code, or -1 if it never ran to completion.
	ExitCode int

	// Duration is how long the command took.
	Duration time.Duration
}

// Succeeded reports whether the command ran and exited with code 0.
func (r *Result) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// Lines splits Stdout into trimmed, non-empty lines.
func (r *Result) Lines() []string {
	if r == nil {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(r.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Manager handles external process operations.
//
// # Description
//
// Abstracts all interaction with the operating system's process management
// so the supervisor's probing, loading and starting logic can be tested
// without a container runtime installed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Manager interface {
	// Run executes a command synchronously and returns its output.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - args: Command arguments
	//
	// # Outputs
	//
	//   - *Result: Always non-nil. ExitCode is -1 when the command did not finish.
	//   - error: Non-nil only if the command could not start or ctx expired
	//
	// # Example
	//
	//	res, err := pm.Run(ctx, "docker", "--version")
	//	installed := err == nil && res.Succeeded()
	Run(ctx context.Context, name string, args ...string) (*Result, error)

	// RunInDir is Run with an explicit working directory and extra environment.
	//
	// # Inputs
	//
	//   - dir: Working directory ("" for the current one)
	//   - env: Extra KEY=VALUE pairs appended to the parent environment
	//
	// # Limitations
	//
	//   - Output is fully buffered in memory
	RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (*Result, error)

	// Start launches a background process and returns immediately.
	//
	// # Description
	//
	// Used for fire-and-forget launches (Docker Desktop, the OS URL
	// handler). The child is reaped in the background so it does not
	// linger as a zombie.
	//
	// # Outputs
	//
	//   - int: Process ID of the started process
	//   - error: Non-nil if the process fails to start
	//
	// # Limitations
	//
	//   - Process output is discarded
	//   - Context cancellation does not kill the started process
	Start(ctx context.Context, name string, args ...string) (int, error)
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultManager implements Manager using os/exec.
type DefaultManager struct{}

// NewDefaultManager creates a Manager that executes real processes.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// Run executes a command synchronously and returns its output.
func (pm *DefaultManager) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	return pm.RunInDir(ctx, "", nil, name, args...)
}

// RunInDir executes a command in dir with env appended to the environment.
func (pm *DefaultManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (*Result, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
		Duration: time.Since(start),
	}

	if err == nil {
		result.ExitCode = 0
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return result, fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	return result, fmt.Errorf("failed to run %s: %w", name, err)
}

// Start launches a background process and returns immediately.
func (pm *DefaultManager) Start(ctx context.Context, name string, args ...string) (int, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrCommandNotFound, name)
		}
		return 0, fmt.Errorf("failed to start %s: %w", name, err)
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

// Compile-time interface satisfaction check
var _ Manager = (*DefaultManager)(nil)
