// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui renders a live view of a running supervisor.
//
// # Description
//
// The watch model is fed by a bridge event stream. It shows the service
// status, the current setup stage with a progress bar, the latest dialog
// and the latest navigation hint. A few keys send requests back.
//
// # Thread Safety
//
// Models are used only inside the bubbletea event loop.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/bridge"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
	"github.com/AleutianAI/trackhounds/pkg/ux"
)

// =============================================================================
// Messages
// =============================================================================

// Source is the event stream the model reads. *bridge.Client satisfies it.
type Source interface {
	Next() (bridge.Message, error)
	Send(req bridge.Request) error
}

// EventMsg carries one frame from the bridge.
type EventMsg struct {
	Message bridge.Message
}

// DisconnectedMsg signals the stream ended.
type DisconnectedMsg struct {
	Err error
}

// sentMsg reports the outcome of a key-triggered request.
type sentMsg struct {
	Request string
	Err     error
}

// waitForMessage blocks on the next frame.
func waitForMessage(src Source) tea.Cmd {
	return func() tea.Msg {
		msg, err := src.Next()
		if err != nil {
			return DisconnectedMsg{Err: err}
		}
		return EventMsg{Message: msg}
	}
}

func send(src Source, reqType string) tea.Cmd {
	return func() tea.Msg {
		return sentMsg{Request: reqType, Err: src.Send(bridge.Request{Type: reqType})}
	}
}

// =============================================================================
// Model
// =============================================================================

// WatchModel is the bubbletea model behind `trackhounds watch`.
type WatchModel struct {
	src      Source
	spinner  spinner.Model
	progress progress.Model

	status       status.ServiceStatus
	haveStatus   bool
	setup        *status.SetupProgress
	dialog       *status.Dialog
	route        string
	lastResponse string

	disconnected error
	quitting     bool
	width        int
}

// NewWatchModel creates a model reading from src.
func NewWatchModel(src Source) WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ux.ColorTan)

	return WatchModel{
		src:      src,
		spinner:  sp,
		progress: progress.New(progress.WithGradient(string(ux.ColorFieldDeep), string(ux.ColorFieldBright)), progress.WithWidth(40)),
	}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForMessage(m.src))
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := msg.Width - 20
		if w > 60 {
			w = 60
		}
		if w < 10 {
			w = 10
		}
		m.progress.Width = w
		return m, nil

	case EventMsg:
		m.apply(msg.Message)
		return m, waitForMessage(m.src)

	case DisconnectedMsg:
		m.disconnected = msg.Err
		if m.disconnected == nil {
			m.disconnected = fmt.Errorf("connection closed")
		}
		return m, tea.Quit

	case sentMsg:
		if msg.Err != nil {
			m.lastResponse = fmt.Sprintf("%s failed: %v", msg.Request, msg.Err)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "r":
		return m, send(m.src, bridge.RequestCheckDocker)
	case "u":
		m.lastResponse = "backend update requested..."
		return m, send(m.src, bridge.RequestUpdateBackend)
	case "c":
		return m, send(m.src, bridge.RequestCheckUpdates)
	case "d":
		m.dialog = nil
	}
	return m, nil
}

// apply folds one frame into the model.
func (m *WatchModel) apply(msg bridge.Message) {
	switch {
	case msg.Status != nil:
		m.status = *msg.Status
		m.haveStatus = true
	case msg.Progress != nil:
		p := *msg.Progress
		m.setup = &p
	case msg.Dialog != nil:
		d := *msg.Dialog
		m.dialog = &d
	case msg.Navigation != nil:
		m.route = msg.Navigation.Route
	case msg.Response != nil:
		m.lastResponse = describeResponse(msg.Response)
		if msg.Response.Status != nil {
			m.status = *msg.Response.Status
			m.haveStatus = true
		}
	}
}

func describeResponse(r *bridge.Response) string {
	switch {
	case r.Error != "":
		return "error: " + r.Error
	case r.Result != nil && r.Result.Success:
		return "backend updated to " + r.Result.Version
	case r.Result != nil:
		return "backend not updated: " + r.Result.Reason
	case r.Status != nil:
		return "docker status refreshed"
	default:
		return r.Type
	}
}

// View implements tea.Model.
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(ux.Styles.Title.Render("trackhounds"))
	b.WriteString("\n\n")

	if !m.haveStatus {
		fmt.Fprintf(&b, "%s waiting for status...\n", m.spinner.View())
	} else {
		b.WriteString(ux.KeyValues(m.statusRows()))
	}

	if m.setup != nil {
		b.WriteString("\n")
		stage := string(m.setup.Stage)
		if m.setup.Detail != "" {
			stage += "  " + ux.Styles.Muted.Render(m.setup.Detail)
		}
		b.WriteString(stage + "\n")
		if m.setup.Stage != status.StageComplete && m.setup.Stage != status.StageError {
			b.WriteString(m.progress.ViewAs(float64(m.setup.Progress) / 100))
			b.WriteString("\n")
		}
	}

	if m.dialog != nil {
		b.WriteString("\n")
		b.WriteString(renderDialog(*m.dialog))
		b.WriteString("\n")
	}

	if m.route != "" {
		fmt.Fprintf(&b, "\n%s %s\n", ux.Styles.Muted.Render("route:"), m.route)
	}
	if m.lastResponse != "" {
		fmt.Fprintf(&b, "\n%s\n", m.lastResponse)
	}
	if m.disconnected != nil {
		fmt.Fprintf(&b, "\n%s %s\n", ux.IconError.Render(), ux.Styles.Error.Render("disconnected: "+m.disconnected.Error()))
	}

	b.WriteString("\n")
	b.WriteString(ux.Styles.Muted.Render("r refresh · u update backend · c check for updates · d dismiss · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m WatchModel) statusRows() []ux.Row {
	docker := "stopped"
	if m.status.Running {
		docker = "running"
	}
	if m.status.Checking {
		docker = m.spinner.View() + " starting"
	}
	return []ux.Row{
		{Key: "docker", Value: docker, Icon: ux.StateIcon(m.status.Running)},
		{Key: "backend", Value: runningLabel(m.status.Containers.Backend.Running), Icon: ux.StateIcon(m.status.Containers.Backend.Running)},
		{Key: "database", Value: runningLabel(m.status.Containers.Database.Running), Icon: ux.StateIcon(m.status.Containers.Database.Running)},
	}
}

func runningLabel(b bool) string {
	if b {
		return "running"
	}
	return "stopped"
}

func renderDialog(d status.Dialog) string {
	box, title := ux.Styles.Box, ux.Styles.Title
	switch d.Severity {
	case status.SeverityWarning:
		box, title = ux.Styles.WarningBox, ux.Styles.Warning.Bold(true)
	case status.SeverityError, status.SeverityFatal:
		box, title = ux.Styles.ErrorBox, ux.Styles.Error.Bold(true)
	}
	return box.Width(60).Render(title.Render(d.Title) + "\n" + d.Message)
}

// Err returns why the stream ended, if it did.
func (m WatchModel) Err() error {
	return m.disconnected
}

// Run drives the watch UI until the user quits, the stream ends or ctx is
// cancelled. A stream that ended on its own is returned as an error.
func Run(ctx context.Context, src Source) error {
	final, err := tea.NewProgram(NewWatchModel(src), tea.WithContext(ctx), tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(WatchModel); ok && !fm.quitting {
		return fm.Err()
	}
	return nil
}
