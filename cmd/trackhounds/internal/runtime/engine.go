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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Engine talks to the Docker Engine API directly instead of shelling out.
//
// # Description
//
// Used when runtime.engine_api is enabled. Reachability becomes a Ping and
// container listing becomes a single API call, which avoids spawning a
// docker CLI process every poll interval.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying client pools connections.
type Engine struct {
	cli *client.Client
}

// EngineConfig selects how the Engine client connects.
type EngineConfig struct {
	// Host overrides DOCKER_HOST and socket discovery, e.g.
	// "unix:///var/run/docker.sock" or "tcp://127.0.0.1:2375".
	Host string

	// APIVersion pins the API version. Empty negotiates with the daemon.
	APIVersion string
}

// NewEngine creates an Engine client.
//
// # Description
//
// Honours DOCKER_HOST and friends via client.FromEnv. When neither Host nor
// DOCKER_HOST is set, common Docker Desktop and Colima socket locations are
// probed so macOS installs work without extra configuration.
//
// # Outputs
//
//   - *Engine: Client wrapper. Call Close when done.
//   - error: If the client options are invalid
func NewEngine(cfg EngineConfig) (*Engine, error) {
	opts := []client.Opt{client.FromEnv}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}

	switch {
	case cfg.Host != "":
		opts = append(opts, client.WithHost(cfg.Host))
	case os.Getenv("DOCKER_HOST") == "":
		if sock := findSocket(); sock != "" {
			opts = append(opts, client.WithHost("unix://"+sock))
		}
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker engine client: %w", err)
	}
	return &Engine{cli: cli}, nil
}

// Ping checks the daemon answers on the API socket.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker engine ping: %w", err)
	}
	return nil
}

// ContainerNames lists container names without the leading "/".
// all includes stopped containers (like `docker ps -a`).
func (e *Engine) ContainerNames(ctx context.Context, all bool) ([]string, error) {
	list, err := e.cli.ContainerList(ctx, container.ListOptions{All: all})
	if err != nil {
		return nil, fmt.Errorf("docker engine list containers: %w", err)
	}
	var names []string
	for _, c := range list {
		for _, n := range c.Names {
			names = append(names, strings.TrimPrefix(n, "/"))
		}
	}
	return names, nil
}

// Close releases the client's idle connections.
func (e *Engine) Close() error {
	return e.cli.Close()
}

// findSocket returns the first existing Docker socket path, or "".
func findSocket() string {
	candidates := []string{"/var/run/docker.sock"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".docker", "run", "docker.sock"),
			filepath.Join(home, ".colima", "default", "docker.sock"),
		)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
