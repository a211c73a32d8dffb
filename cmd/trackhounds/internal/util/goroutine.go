// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package util holds small helpers shared by the supervisor packages.
package util

import (
	"log/slog"
	"runtime/debug"
)

// PanicInfo describes a recovered panic.
type PanicInfo struct {
	// Value is whatever was passed to panic().
	Value any

	// Stack is the goroutine stack at the point of recovery.
	Stack string
}

// SafeGo runs fn in a new goroutine and recovers any panic.
//
// # Description
//
// Background loops (the status poller, the updater retry timer, bridge
// writers) must never take the supervisor down. A panic inside fn is
// recovered and handed to onPanic instead.
//
// # Inputs
//
//   - fn: Work to run. Must be non-nil.
//   - onPanic: Called with the recovered panic. May be nil.
//
// # Example
//
//	util.SafeGo(func() { poller.Run(ctx, 30*time.Second) }, util.LogPanic(logger, "status poller"))
//
// # Limitations
//
//   - onPanic runs on the panicking goroutine; if it panics the process dies
func SafeGo(fn func(), onPanic func(PanicInfo)) {
	go func() {
		defer RecoverPanic(onPanic)()
		fn()
	}()
}

// RecoverPanic returns a function for use with defer that recovers a panic
// and passes it to onPanic.
//
//	defer util.RecoverPanic(handler)()
func RecoverPanic(onPanic func(PanicInfo)) func() {
	return func() {
		if r := recover(); r != nil {
			if onPanic != nil {
				onPanic(PanicInfo{Value: r, Stack: string(debug.Stack())})
			}
		}
	}
}

// LogPanic returns an onPanic handler that logs at Error level.
func LogPanic(logger *slog.Logger, what string) func(PanicInfo) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(p PanicInfo) {
		logger.Error("recovered panic", "goroutine", what, "panic", p.Value, "stack", p.Stack)
	}
}
