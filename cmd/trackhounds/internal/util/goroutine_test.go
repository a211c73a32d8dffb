// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSafeGo_NormalCompletion(t *testing.T) {
	done := make(chan struct{})
	SafeGo(func() { close(done) }, func(PanicInfo) {
		t.Error("onPanic should not be called")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fn did not run")
	}
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	got := make(chan PanicInfo, 1)
	SafeGo(func() { panic("poll exploded") }, func(p PanicInfo) { got <- p })

	select {
	case p := <-got:
		if p.Value != "poll exploded" {
			t.Errorf("Value = %v", p.Value)
		}
		if !strings.Contains(p.Stack, "goroutine") {
			t.Error("Stack should contain a goroutine trace")
		}
	case <-time.After(time.Second):
		t.Fatal("panic not reported")
	}
}

func TestSafeGo_NilHandler(t *testing.T) {
	done := make(chan struct{})
	SafeGo(func() {
		defer close(done)
		panic("ignored")
	}, nil)
	<-done
}

func TestRecoverPanic_Synchronous(t *testing.T) {
	var recovered any
	func() {
		defer RecoverPanic(func(p PanicInfo) { recovered = p.Value })()
		panic(42)
	}()
	if recovered != 42 {
		t.Errorf("recovered = %v, want 42", recovered)
	}
}

func TestLogPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	LogPanic(logger, "status poller")(PanicInfo{Value: "boom", Stack: "trace"})

	out := buf.String()
	if !strings.Contains(out, "status poller") || !strings.Contains(out, "boom") {
		t.Errorf("unexpected log output: %q", out)
	}
}
