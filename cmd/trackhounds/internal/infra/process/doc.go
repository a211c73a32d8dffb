// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process provides abstractions for external process execution and
inter-process synchronization.

# Overview

This package contains two main components:

  - Manager: runs docker, compose and OS launcher commands
  - Locker: file-based locking so only one supervisor mutates the runtime

# Manager

Every docker, docker-compose, systemctl and open invocation goes through
Manager so the supervisor can be exercised without a container runtime.

	pm := process.NewDefaultManager()
	res, err := pm.Run(ctx, "docker", "info")
	if err == nil && res.ExitCode == 0 {
	    // daemon reachable
	}

For testing, use MockManager:

	mock := &process.MockManager{
	    RunFunc: func(ctx context.Context, name string, args ...string) (*process.Result, error) {
	        return &process.Result{Stdout: "trackhounds-backend\n"}, nil
	    },
	}

# Locker

Locker prevents `serve`, `update` and `down` from running at the same time.

	lock := process.NewLock(process.LockConfig{LockDir: configDir, LockName: "supervisor"})
	if err := lock.Acquire(); err != nil {
	    return err
	}
	defer lock.Release()

# Thread Safety

  - Manager implementations are safe for concurrent use
  - Lock is NOT safe for concurrent use from multiple goroutines
*/
package process
