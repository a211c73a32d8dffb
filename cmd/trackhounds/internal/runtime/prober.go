// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runtime detects, launches and waits for the local Docker engine.
//
// Probing is deliberately boolean: a missing binary and an unreachable
// daemon are ordinary answers that drive the startup chain, never errors.
// Launching is delegated to a per-OS Launcher chosen once at startup.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/process"
)

// DefaultProbeTimeout bounds a single probe command.
const DefaultProbeTimeout = 15 * time.Second

// Prober answers whether the runtime is installed and reachable.
type Prober interface {
	// Installed runs `docker --version`.
	Installed(ctx context.Context) bool

	// DaemonReady runs `docker info` (or an Engine API ping).
	DaemonReady(ctx context.Context) bool
}

// CLIProber probes through the docker CLI. Success is purely exit code 0.
type CLIProber struct {
	proc    process.Manager
	timeout time.Duration
	logger  *slog.Logger
}

// NewCLIProber creates a CLI prober. timeout <= 0 uses DefaultProbeTimeout.
func NewCLIProber(proc process.Manager, timeout time.Duration, logger *slog.Logger) *CLIProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIProber{proc: proc, timeout: timeout, logger: logger}
}

// Installed reports whether `docker --version` exits 0.
func (p *CLIProber) Installed(ctx context.Context) bool {
	return p.succeeds(ctx, "docker", "--version")
}

// DaemonReady reports whether `docker info` exits 0.
func (p *CLIProber) DaemonReady(ctx context.Context) bool {
	return p.succeeds(ctx, "docker", "info")
}

func (p *CLIProber) succeeds(ctx context.Context, name string, args ...string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.proc.Run(ctx, name, args...)
	if err != nil {
		p.logger.Debug("probe failed to run", "command", name, "args", args, "error", err)
		return false
	}
	return res.Succeeded()
}

// Pinger is the subset of Engine used by EngineProber.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EngineProber checks installation with the CLI and reachability with an
// Engine API ping.
type EngineProber struct {
	cli     *CLIProber
	engine  Pinger
	timeout time.Duration
}

// NewEngineProber combines a CLI prober (for Installed) with an engine ping.
func NewEngineProber(cli *CLIProber, engine Pinger) *EngineProber {
	return &EngineProber{cli: cli, engine: engine, timeout: cli.timeout}
}

// Installed delegates to the CLI prober.
func (p *EngineProber) Installed(ctx context.Context) bool {
	return p.cli.Installed(ctx)
}

// DaemonReady pings the Engine API.
func (p *EngineProber) DaemonReady(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.engine.Ping(ctx) == nil
}

// MockProber is a test double. Installed/Ready are read on every call;
// ReadyAfter, if > 0, makes DaemonReady return true from that call onwards.
type MockProber struct {
	IsInstalled bool
	IsReady     bool
	ReadyAfter  int

	ReadyCalls int
	mu         sync.Mutex
}

// Installed implements Prober.
func (m *MockProber) Installed(ctx context.Context) bool { return m.IsInstalled }

// DaemonReady implements Prober.
func (m *MockProber) DaemonReady(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadyCalls++
	if m.ReadyAfter > 0 && m.ReadyCalls >= m.ReadyAfter {
		return true
	}
	return m.IsReady
}

// Compile-time interface satisfaction checks
var (
	_ Prober = (*CLIProber)(nil)
	_ Prober = (*EngineProber)(nil)
	_ Prober = (*MockProber)(nil)
	_ Pinger = (*Engine)(nil)
)
