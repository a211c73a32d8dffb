// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
	"github.com/AleutianAI/trackhounds/pkg/ux"
)

func TestNotice_Blocking(t *testing.T) {
	assert.True(t, Notice{Severity: status.SeverityFatal}.Blocking())
	assert.True(t, Notice{Severity: status.SeverityError}.Blocking())
	assert.False(t, Notice{Severity: status.SeverityWarning}.Blocking())
	assert.False(t, Notice{Severity: status.SeverityInfo}.Blocking())
}

func TestBusNotifier(t *testing.T) {
	bus := status.NewBus(4, nil)
	sub := bus.Subscribe()
	defer sub.Close()

	BusNotifier{Bus: bus}.Notify(context.Background(), Notice{
		Severity: status.SeverityFatal, Title: "Docker not installed", Message: "Install Docker Desktop",
	})

	e := <-sub.C
	assert.Equal(t, status.ChannelDialog, e.Channel)
	d, ok := e.Data.(status.Dialog)
	require.True(t, ok)
	assert.Equal(t, status.SeverityFatal, d.Severity)
	assert.Equal(t, "Docker not installed", d.Title)
}

func TestLogNotifier_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	n := LogNotifier{Logger: logger}

	n.Notify(context.Background(), Notice{Severity: status.SeverityWarning, Title: "compose failed"})
	n.Notify(context.Background(), Notice{Severity: status.SeverityFatal, Title: "no runtime"})

	out := buf.String()
	assert.Contains(t, out, "level=WARN msg=\"compose failed\"")
	assert.Contains(t, out, "level=ERROR msg=\"no runtime\"")
}

func TestTerminalNotifier_NonInteractivePrints(t *testing.T) {
	old := ux.GetMode()
	ux.SetMode(ux.ModePlain)
	defer ux.SetMode(old)

	var out, errOut bytes.Buffer
	n := &TerminalNotifier{Printer: &ux.Printer{Out: &out, Err: &errOut}}

	n.Notify(context.Background(), Notice{Severity: status.SeverityError, Title: "Timeout", Message: "Docker did not start"})
	n.Notify(context.Background(), Notice{Severity: status.SeverityInfo, Title: "Update", Message: "No update available"})

	assert.Equal(t, "ERROR Timeout: Docker did not start\n", errOut.String())
	assert.Equal(t, "Update: No update available\n", out.String())
}

func TestMulti(t *testing.T) {
	a, b := &MockNotifier{}, &MockNotifier{}
	Multi{a, nil, b}.Notify(context.Background(), Notice{Severity: status.SeverityInfo, Title: "x"})
	assert.Len(t, a.Notices(), 1)
	assert.Len(t, b.Notices(), 1)
}

func TestOnce(t *testing.T) {
	m := &MockNotifier{}
	o := &Once{Next: m}
	n := Notice{Severity: status.SeverityWarning, Title: "fallback"}

	assert.True(t, o.NotifyOnce(context.Background(), "compose-fallback", n))
	assert.False(t, o.NotifyOnce(context.Background(), "compose-fallback", n))
	assert.True(t, o.NotifyOnce(context.Background(), "other", n))
	assert.Equal(t, 2, m.Count(status.SeverityWarning))
}
