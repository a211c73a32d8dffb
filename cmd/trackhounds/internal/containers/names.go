// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package containers loads images into the runtime, starts the two-service
// topology and polls which of its containers are running.
//
// Container start follows a fixed decision chain:
//
//	list all names ─┬─ neither exists ─▶ compose up (detected) ─▶ compose up (other) ─▶ individual
//	                └─ either exists ──▶ individual (start-or-run each by name)
//
// Every branch ends with a settle wait and one status poll.
package containers

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/process"
)

// Fixed container identities.
const (
	BackendContainer  = "trackhounds-backend"
	DatabaseContainer = "trackhounds-mariadb"

	DefaultBackendPort  = 8080
	DefaultDatabasePort = 3306
)

// Lister reports container names known to the runtime.
type Lister interface {
	// RunningNames lists running containers (`docker ps`).
	RunningNames(ctx context.Context) ([]string, error)

	// AllNames lists every container including stopped ones (`docker ps -a`).
	AllNames(ctx context.Context) ([]string, error)
}

// CLILister lists names through the docker CLI.
type CLILister struct {
	Proc process.Manager
}

// RunningNames implements Lister.
func (l CLILister) RunningNames(ctx context.Context) ([]string, error) {
	return l.list(ctx, "ps", "--format", "{{.Names}}")
}

// AllNames implements Lister.
func (l CLILister) AllNames(ctx context.Context) ([]string, error) {
	return l.list(ctx, "ps", "-a", "--format", "{{.Names}}")
}

func (l CLILister) list(ctx context.Context, args ...string) ([]string, error) {
	res, err := l.Proc.Run(ctx, "docker", args...)
	if err != nil {
		return nil, fmt.Errorf("docker %v: %w", args, err)
	}
	if !res.Succeeded() {
		return nil, fmt.Errorf("docker %v exited with code %d", args, res.ExitCode)
	}
	return res.Lines(), nil
}

// EngineNamer is the subset of the Engine API client EngineLister needs.
type EngineNamer interface {
	ContainerNames(ctx context.Context, all bool) ([]string, error)
}

// EngineLister lists names through the Engine API.
type EngineLister struct {
	Engine EngineNamer
}

// RunningNames implements Lister.
func (l EngineLister) RunningNames(ctx context.Context) ([]string, error) {
	return l.Engine.ContainerNames(ctx, false)
}

// AllNames implements Lister.
func (l EngineLister) AllNames(ctx context.Context) ([]string, error) {
	return l.Engine.ContainerNames(ctx, true)
}

// MockLister is a test double with settable name lists.
type MockLister struct {
	Running []string
	All     []string
	Err     error

	mu       sync.Mutex
	AllCalls int
}

// SetRunning replaces the running list.
func (m *MockLister) SetRunning(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Running = names
}

// RunningNames implements Lister.
func (m *MockLister) RunningNames(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Running), m.Err
}

// AllNames implements Lister.
func (m *MockLister) AllNames(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AllCalls++
	return slices.Clone(m.All), m.Err
}

// Compile-time interface satisfaction checks
var (
	_ Lister = CLILister{}
	_ Lister = EngineLister{}
	_ Lister = (*MockLister)(nil)
)
