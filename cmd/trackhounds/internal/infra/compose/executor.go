// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose drives the two compose command variants against the
// trackhounds resource bundle descriptor.
//
// Two command lines are supported:
//
//	docker compose -f <file> ...   (modern, CLI plugin)
//	docker-compose -f <file> ...   (legacy, standalone binary)
//
// The executor never decides which variant to use on its own; callers
// detect the preferred variant once and ask for the other on failure.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/process"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrComposeFileMissing is returned when the descriptor doesn't exist.
	ErrComposeFileMissing = errors.New("compose file not found")

	// ErrComposeFailed is returned when a compose command exits non-zero.
	ErrComposeFailed = errors.New("compose command failed")
)

// =============================================================================
// Variants
// =============================================================================

// Variant selects the compose command line.
type Variant int

const (
	// VariantModern is the `docker compose` CLI plugin.
	VariantModern Variant = iota

	// VariantLegacy is the standalone `docker-compose` binary.
	VariantLegacy
)

// String returns the command prefix, e.g. "docker compose".
func (v Variant) String() string {
	if v == VariantLegacy {
		return "docker-compose"
	}
	return "docker compose"
}

// Label returns a short metric/log label: "modern" or "legacy".
func (v Variant) Label() string {
	if v == VariantLegacy {
		return "legacy"
	}
	return "modern"
}

// Other returns the alternate variant.
func (v Variant) Other() Variant {
	if v == VariantLegacy {
		return VariantModern
	}
	return VariantLegacy
}

// command splits a compose invocation into executable and argv.
func (v Variant) command(args ...string) (string, []string) {
	if v == VariantLegacy {
		return "docker-compose", args
	}
	return "docker", append([]string{"compose"}, args...)
}

// =============================================================================
// Interface Definition
// =============================================================================

// Executor runs compose operations for the bundle descriptor.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Up and Down are
// serialized so a shutdown never interleaves with a start.
type Executor interface {
	// DetectVariant probes `docker compose version`.
	//
	// # Outputs
	//
	//   - Variant: VariantModern if the probe exits 0, else VariantLegacy
	DetectVariant(ctx context.Context) Variant

	// Up runs `up -d --no-build` with the given variant.
	//
	// # Outputs
	//
	//   - *Result: Always non-nil
	//   - error: ErrComposeFileMissing, ErrComposeFailed, or a process error
	Up(ctx context.Context, v Variant) (*Result, error)

	// Down runs `down` with the given variant.
	Down(ctx context.Context, v Variant) (*Result, error)

	// FileExists reports whether the descriptor is on disk.
	FileExists() bool
}

// Config configures the executor.
type Config struct {
	// ComposeFile is the absolute path of the descriptor.
	ComposeFile string

	// DefaultTimeout bounds each compose command.
	// Default: 5 minutes
	DefaultTimeout time.Duration
}

// Result contains the result of a compose operation.
type Result struct {
	// Success indicates the command exited 0.
	Success bool

	// ExitCode of the compose command (-1 if it never finished).
	ExitCode int

	// Stdout contains standard output.
	Stdout string

	// Stderr contains standard error.
	Stderr string

	// Duration is how long the operation took.
	Duration time.Duration

	// Command is the full command line, for logs.
	Command string
}

// =============================================================================
// Implementation
// =============================================================================

// DefaultExecutor implements Executor over a process.Manager.
type DefaultExecutor struct {
	config Config
	proc   process.Manager
	logger *slog.Logger
	mu     sync.Mutex
}

// NewDefaultExecutor creates an executor for cfg.ComposeFile.
//
// # Inputs
//
//   - cfg: Descriptor path and timeout
//   - proc: Process manager used for every invocation
//   - logger: May be nil (slog.Default is used)
//
// # Outputs
//
//   - *DefaultExecutor: Ready executor
//
// # Example
//
//	exec := compose.NewDefaultExecutor(compose.Config{
//	    ComposeFile: bundle.ComposeFile,
//	}, process.NewDefaultManager(), logger)
//	variant := exec.DetectVariant(ctx)
//	if _, err := exec.Up(ctx, variant); err != nil {
//	    _, err = exec.Up(ctx, variant.Other())
//	}
func NewDefaultExecutor(cfg Config, proc process.Manager, logger *slog.Logger) *DefaultExecutor {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultExecutor{config: cfg, proc: proc, logger: logger}
}

// DetectVariant probes the modern plugin with `docker compose version`.
func (e *DefaultExecutor) DetectVariant(ctx context.Context) Variant {
	name, args := VariantModern.command("version")
	res, err := e.proc.Run(ctx, name, args...)
	if err == nil && res.Succeeded() {
		return VariantModern
	}
	e.logger.Debug("compose plugin unavailable, using legacy binary")
	return VariantLegacy
}

// Up runs `up -d --no-build`.
func (e *DefaultExecutor) Up(ctx context.Context, v Variant) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCompose(ctx, v, "up", "-d", "--no-build")
}

// Down runs `down`.
func (e *DefaultExecutor) Down(ctx context.Context, v Variant) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCompose(ctx, v, "down")
}

// FileExists reports whether the descriptor is on disk.
func (e *DefaultExecutor) FileExists() bool {
	info, err := os.Stat(e.config.ComposeFile)
	return err == nil && !info.IsDir()
}

// runCompose executes one compose subcommand with the configured timeout.
//
// The descriptor directory is the working directory so relative paths
// inside the descriptor resolve against the bundle.
func (e *DefaultExecutor) runCompose(ctx context.Context, v Variant, sub ...string) (*Result, error) {
	cmdStr := fmt.Sprintf("%s -f %s %s", v, e.config.ComposeFile, strings.Join(sub, " "))
	if !e.FileExists() {
		return &Result{ExitCode: -1, Command: cmdStr}, fmt.Errorf("%w: %s", ErrComposeFileMissing, e.config.ComposeFile)
	}

	args := append([]string{"-f", e.config.ComposeFile}, sub...)
	name, argv := v.command(args...)
	e.logger.Info("executing compose", "command", cmdStr)

	execCtx, cancel := context.WithTimeout(ctx, e.config.DefaultTimeout)
	defer cancel()

	start := time.Now()
	res, err := e.proc.RunInDir(execCtx, filepath.Dir(e.config.ComposeFile), nil, name, argv...)
	result := &Result{
		ExitCode: -1,
		Duration: time.Since(start),
		Command:  cmdStr,
	}
	if res != nil {
		result.ExitCode = res.ExitCode
		result.Stdout = res.Stdout
		result.Stderr = res.Stderr
		result.Success = err == nil && res.Succeeded()
	}

	if err != nil {
		return result, fmt.Errorf("%s: %w", cmdStr, err)
	}
	if !result.Success {
		return result, fmt.Errorf("%w: %s exited with code %d: %s",
			ErrComposeFailed, cmdStr, result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return result, nil
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockExecutor is a test double for Executor.
//
// Unset functions succeed. UpCalls and DownCalls record the variant of
// every invocation in order.
type MockExecutor struct {
	DetectFunc     func(context.Context) Variant
	UpFunc         func(context.Context, Variant) (*Result, error)
	DownFunc       func(context.Context, Variant) (*Result, error)
	FileExistsFunc func() bool

	UpCalls   []Variant
	DownCalls []Variant
	mu        sync.Mutex
}

// DetectVariant implements Executor.
func (m *MockExecutor) DetectVariant(ctx context.Context) Variant {
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx)
	}
	return VariantModern
}

// Up implements Executor.
func (m *MockExecutor) Up(ctx context.Context, v Variant) (*Result, error) {
	m.mu.Lock()
	m.UpCalls = append(m.UpCalls, v)
	m.mu.Unlock()

	if m.UpFunc != nil {
		return m.UpFunc(ctx, v)
	}
	return &Result{Success: true}, nil
}

// Down implements Executor.
func (m *MockExecutor) Down(ctx context.Context, v Variant) (*Result, error) {
	m.mu.Lock()
	m.DownCalls = append(m.DownCalls, v)
	m.mu.Unlock()

	if m.DownFunc != nil {
		return m.DownFunc(ctx, v)
	}
	return &Result{Success: true}, nil
}

// FileExists implements Executor.
func (m *MockExecutor) FileExists() bool {
	if m.FileExistsFunc != nil {
		return m.FileExistsFunc()
	}
	return true
}

// Compile-time interface satisfaction checks
var (
	_ Executor = (*DefaultExecutor)(nil)
	_ Executor = (*MockExecutor)(nil)
)
