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
	"time"
)

const (
	// DefaultReadyTimeout is the ceiling for the daemon to come up after launch.
	DefaultReadyTimeout = 120 * time.Second

	// DefaultReadyInterval is the re-probe interval.
	DefaultReadyInterval = 5 * time.Second
)

// ErrLaunchTimeout is returned when the daemon does not answer in time.
var ErrLaunchTimeout = errors.New("container runtime did not become ready")

// AwaitReady re-probes the daemon every interval until it answers or
// timeout elapses.
//
// # Description
//
// There is exactly one wait window. On timeout the caller surfaces an
// error to the user; nothing here schedules a retry.
//
// # Inputs
//
//   - ctx: Parent context; cancelling it aborts the wait with ctx.Err()
//   - prober: Asked DaemonReady once per tick
//   - timeout: Hard ceiling (<= 0 uses DefaultReadyTimeout)
//   - interval: Tick period (<= 0 uses DefaultReadyInterval)
//
// # Outputs
//
//   - error: nil once ready, ErrLaunchTimeout on timeout
func AwaitReady(ctx context.Context, prober Prober, timeout, interval time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	if interval <= 0 {
		interval = DefaultReadyInterval
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w within %s", ErrLaunchTimeout, timeout)
		case <-ticker.C:
			if prober.DaemonReady(ctx) {
				return nil
			}
		}
	}
}
