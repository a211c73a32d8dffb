// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/process"
)

// DefaultDesktopPath is where the Docker Desktop installer puts the
// executable on Windows.
const DefaultDesktopPath = `C:\Program Files\Docker\Docker\Docker Desktop.exe`

// ErrUnsupportedPlatform is returned by Launch on an OS with no launcher.
var ErrUnsupportedPlatform = errors.New("no runtime launcher for this platform")

// Launcher starts the container runtime daemon.
//
// Launch is fire-and-forget: it returns once the spawn has been issued,
// not when the daemon answers. Use AwaitReady to wait for the daemon.
type Launcher interface {
	Launch(ctx context.Context) error

	// Describe returns the launch command line, for logs and dialogs.
	Describe() string
}

// LauncherConfig holds per-OS overrides.
type LauncherConfig struct {
	// DesktopPath is the Docker Desktop executable on Windows.
	// Default: DefaultDesktopPath
	DesktopPath string

	// ServiceName is the systemd unit on Linux.
	// Default: "docker"
	ServiceName string

	// AppName is the application bundle name on macOS.
	// Default: "Docker"
	AppName string
}

// NewLauncher selects the launcher for goos ("windows", "darwin", "linux").
//
// # Description
//
// The platform is passed in rather than read from runtime.GOOS so the
// selection itself is testable on any host.
//
// # Example
//
//	launcher := runtime.NewLauncher(goruntime.GOOS, pm, runtime.LauncherConfig{})
//	if err := launcher.Launch(ctx); err != nil {
//	    logger.Warn("launch failed", "command", launcher.Describe(), "error", err)
//	}
func NewLauncher(goos string, proc process.Manager, cfg LauncherConfig) Launcher {
	if cfg.DesktopPath == "" {
		cfg.DesktopPath = DefaultDesktopPath
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "docker"
	}
	if cfg.AppName == "" {
		cfg.AppName = "Docker"
	}

	switch goos {
	case "windows":
		return &execLauncher{proc: proc, name: cfg.DesktopPath}
	case "darwin":
		return &execLauncher{proc: proc, name: "open", args: []string{"-a", cfg.AppName}}
	case "linux":
		return &execLauncher{proc: proc, name: "systemctl", args: []string{"start", cfg.ServiceName}}
	default:
		return unsupportedLauncher{goos: goos}
	}
}

// execLauncher spawns one command in the background.
type execLauncher struct {
	proc process.Manager
	name string
	args []string
}

func (l *execLauncher) Launch(ctx context.Context) error {
	if _, err := l.proc.Start(ctx, l.name, l.args...); err != nil {
		return fmt.Errorf("launch runtime (%s): %w", l.Describe(), err)
	}
	return nil
}

func (l *execLauncher) Describe() string {
	return process.Call{Name: l.name, Args: l.args}.CommandLine()
}

type unsupportedLauncher struct {
	goos string
}

func (l unsupportedLauncher) Launch(ctx context.Context) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedPlatform, l.goos)
}

func (l unsupportedLauncher) Describe() string {
	return "unsupported platform " + l.goos
}
