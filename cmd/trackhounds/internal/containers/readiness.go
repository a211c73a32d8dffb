// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package containers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Readiness modes.
const (
	ReadinessDelay = "delay"
	ReadinessTCP   = "tcp"
)

const (
	// DefaultSettleDelay is the fixed wait after a container start.
	DefaultSettleDelay = 5 * time.Second

	// DefaultReadinessTimeout bounds a TCP readiness wait.
	DefaultReadinessTimeout = 60 * time.Second

	dialTimeout = 200 * time.Millisecond
)

// ReadinessConfig selects how the starter waits for a container.
type ReadinessConfig struct {
	// Mode is ReadinessDelay (fixed settle) or ReadinessTCP (port probe).
	Mode string

	// Timeout bounds a TCP wait. Default: DefaultReadinessTimeout
	Timeout time.Duration

	// Host is dialed in TCP mode. Default: 127.0.0.1
	Host string
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// awaitPort dials host:port with exponential backoff until a connection
// is accepted or timeout elapses.
func awaitPort(ctx context.Context, host string, port int, timeout time.Duration) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second

	dialer := net.Dialer{Timeout: dialTimeout}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, conn.Close()
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(timeout))
	if err != nil {
		return fmt.Errorf("%s not accepting connections: %w", addr, err)
	}
	return nil
}
