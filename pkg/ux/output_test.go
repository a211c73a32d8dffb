// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withMode(t *testing.T, m Mode) {
	t.Helper()
	old := GetMode()
	SetMode(m)
	t.Cleanup(func() { SetMode(old) })
}

func newTestPrinter() (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &Printer{Out: &out, Err: &errOut}, &out, &errOut
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"plain", ModePlain},
		{"MACHINE", ModePlain},
		{" quiet ", ModePlain},
		{"rich", ModeRich},
		{"", ModeRich},
		{"fancy", ModeRich},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseMode(tt.in), tt.in)
	}
}

func TestInitMode_EnvOverride(t *testing.T) {
	withMode(t, ModeRich)
	t.Setenv("TRACKHOUNDS_OUTPUT", "plain")
	InitMode()
	assert.Equal(t, ModePlain, GetMode())
}

func TestIsTerminal_Nil(t *testing.T) {
	assert.False(t, IsTerminal(nil))
}

func TestPrinter_PlainMode(t *testing.T) {
	withMode(t, ModePlain)
	p, out, errOut := newTestPrinter()

	p.Title("ignored")
	p.Success("started")
	p.Info("polling")
	p.Warning("compose failed")
	p.Error("runtime missing")

	assert.Equal(t, "OK: started\npolling\n", out.String())
	assert.Equal(t, "WARN: compose failed\nERROR: runtime missing\n", errOut.String())
}

func TestPrinter_RichMode(t *testing.T) {
	withMode(t, ModeRich)
	p, out, errOut := newTestPrinter()

	p.Title("trackhounds")
	p.Success("started")
	p.Error("boom")

	assert.Contains(t, out.String(), "trackhounds")
	assert.Contains(t, out.String(), "started")
	assert.Contains(t, out.String(), "boom")
	assert.Empty(t, errOut.String())
}

func TestPrinter_Box(t *testing.T) {
	withMode(t, ModePlain)
	p, out, errOut := newTestPrinter()

	p.Box("info", "Status", "all good")
	p.Box("fatal", "Docker", "not installed")

	assert.Equal(t, "Status: all good\n", out.String())
	assert.Equal(t, "ERROR Docker: not installed\n", errOut.String())

	withMode(t, ModeRich)
	p, out, _ = newTestPrinter()
	p.Box("warning", "Compose", "falling back")
	assert.Contains(t, out.String(), "Compose")
	assert.Contains(t, out.String(), "falling back")
}

func TestKeyValues(t *testing.T) {
	withMode(t, ModePlain)
	got := KeyValues([]Row{{Key: "runtime", Value: "running"}, {Key: "backend", Value: "stopped", Icon: IconPending}})
	assert.Equal(t, "runtime\trunning\nbackend\tstopped\n", got)

	withMode(t, ModeRich)
	got = KeyValues([]Row{{Key: "backend", Value: "running", Icon: StateIcon(true)}})
	assert.Contains(t, got, "backend")
	assert.Contains(t, got, "running")
}

func TestProgressBar(t *testing.T) {
	withMode(t, ModePlain)
	assert.Equal(t, "57/100", ProgressBar(57, 100, 20))

	withMode(t, ModeRich)
	bar := ProgressBar(50, 100, 10)
	assert.Contains(t, bar, " 50%")
	assert.Equal(t, 5, strings.Count(bar, "█"))

	assert.Contains(t, ProgressBar(10, 0, 10), "  0%")
	assert.Contains(t, ProgressBar(200, 100, 10), "100%")
}

func TestIcon_Render(t *testing.T) {
	for _, i := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow} {
		assert.Contains(t, i.Render(), string(i))
	}
	assert.Equal(t, IconSuccess, StateIcon(true))
	assert.Equal(t, IconPending, StateIcon(false))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2<<20))
	assert.Equal(t, "3.0 GB", FormatBytes(3<<30))
}
