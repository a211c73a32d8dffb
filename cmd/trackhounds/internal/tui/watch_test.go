// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/bridge"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/resources"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
	"github.com/AleutianAI/trackhounds/pkg/ux"
)

type fakeSource struct {
	mu   sync.Mutex
	msgs []bridge.Message
	sent []string
}

func (f *fakeSource) Next() (bridge.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return bridge.Message{}, errors.New("eof")
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeSource) Send(req bridge.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req.Type)
	return nil
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m WatchModel, msg tea.Msg) (WatchModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(WatchModel)
	require.True(t, ok)
	return wm, cmd
}

func TestWatchModel_AppliesEvents(t *testing.T) {
	ux.SetMode(ux.ModePlain)
	t.Cleanup(func() { ux.SetMode(ux.ModeRich) })

	m := NewWatchModel(&fakeSource{})
	assert.Contains(t, m.View(), "waiting for status")

	m, cmd := update(t, m, EventMsg{Message: bridge.Message{Status: &status.ServiceStatus{
		Running:    true,
		Containers: status.Containers{Backend: status.ContainerState{Running: true}},
	}}})
	assert.NotNil(t, cmd, "model keeps reading the stream")

	view := m.View()
	assert.Contains(t, view, "docker\trunning")
	assert.Contains(t, view, "backend\trunning")
	assert.Contains(t, view, "database\tstopped")

	m, _ = update(t, m, EventMsg{Message: bridge.Message{Progress: &status.SetupProgress{
		Stage: status.StageLoadingImages, Detail: "Loading backend image...", Progress: 50,
	}}})
	assert.Contains(t, m.View(), "loading-images")
	assert.Contains(t, m.View(), "Loading backend image...")

	m, _ = update(t, m, EventMsg{Message: bridge.Message{Dialog: &status.Dialog{
		Severity: status.SeverityWarning, Title: "Compose unavailable", Message: "Starting containers individually.",
	}}})
	assert.Contains(t, m.View(), "Compose unavailable")

	m, _ = update(t, m, key("d"))
	assert.NotContains(t, m.View(), "Compose unavailable")

	m, _ = update(t, m, EventMsg{Message: bridge.Message{Navigation: &status.Navigation{Route: "/settings"}}})
	assert.Contains(t, m.View(), "/settings")
}

func TestWatchModel_Responses(t *testing.T) {
	tests := []struct {
		name string
		resp bridge.Response
		want string
	}{
		{"updated", bridge.Response{Type: bridge.ResponseUpdateResult, Result: &resources.FetchResult{Success: true, Version: "v2"}}, "backend updated to v2"},
		{"not updated", bridge.Response{Type: bridge.ResponseUpdateResult, Result: &resources.FetchResult{Reason: resources.ReasonNoInternet}}, "backend not updated"},
		{"error", bridge.Response{Type: bridge.ResponseError, Error: "boom"}, "error: boom"},
		{"status", bridge.Response{Type: bridge.ResponseDockerStatus, Status: &status.ServiceStatus{Running: true}}, "docker status refreshed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewWatchModel(&fakeSource{})
			resp := tt.resp
			m, _ = update(t, m, EventMsg{Message: bridge.Message{Response: &resp}})
			assert.Contains(t, m.View(), tt.want)
		})
	}
}

func TestWatchModel_KeysSendRequests(t *testing.T) {
	src := &fakeSource{}
	m := NewWatchModel(src)

	for k, want := range map[string]string{
		"r": bridge.RequestCheckDocker,
		"u": bridge.RequestUpdateBackend,
		"c": bridge.RequestCheckUpdates,
	} {
		_, cmd := update(t, m, key(k))
		require.NotNil(t, cmd)
		msg := cmd()
		sent, ok := msg.(sentMsg)
		require.True(t, ok)
		assert.Equal(t, want, sent.Request)
		assert.NoError(t, sent.Err)
	}
	assert.Len(t, src.sent, 3)
}

func TestWatchModel_Quit(t *testing.T) {
	m := NewWatchModel(&fakeSource{})
	m, cmd := update(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.View())
	assert.NoError(t, m.Err())
}

func TestWatchModel_Disconnected(t *testing.T) {
	src := &fakeSource{}
	m := NewWatchModel(src)

	msg := waitForMessage(src)()
	disc, ok := msg.(DisconnectedMsg)
	require.True(t, ok)

	m, cmd := update(t, m, disc)
	require.NotNil(t, cmd)
	assert.Error(t, m.Err())
	assert.Contains(t, m.View(), "disconnected")
}

func TestWatchModel_WindowResizeClampsProgress(t *testing.T) {
	m := NewWatchModel(&fakeSource{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 200, Height: 40})
	assert.Equal(t, 60, m.progress.Width)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 15, Height: 40})
	assert.Equal(t, 10, m.progress.Width)
}
