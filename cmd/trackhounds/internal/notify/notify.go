// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notify is the supervisor's user-visible error surface.
//
// A Notice goes to every configured sink: connected UI clients (as a
// dialog event), the terminal (as a blocking note when interactive) and
// the log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/charmbracelet/huh"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
	"github.com/AleutianAI/trackhounds/pkg/ux"
)

// Notice is one user-visible message.
type Notice struct {
	Severity status.Severity
	Title    string
	Message  string
}

// Blocking reports whether the notice should hold the user's attention
// until acknowledged.
func (n Notice) Blocking() bool {
	return n.Severity == status.SeverityError || n.Severity == status.SeverityFatal
}

// Notifier delivers notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// =============================================================================
// Implementations
// =============================================================================

// BusNotifier pushes notices to UI subscribers on the dialog channel.
type BusNotifier struct {
	Bus *status.Bus
}

// Notify implements Notifier.
func (b BusNotifier) Notify(ctx context.Context, n Notice) {
	b.Bus.Publish(status.Event{
		Channel: status.ChannelDialog,
		Data:    status.Dialog{Severity: n.Severity, Title: n.Title, Message: n.Message},
	})
}

// LogNotifier writes notices to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	level := slog.LevelInfo
	switch n.Severity {
	case status.SeverityWarning:
		level = slog.LevelWarn
	case status.SeverityError, status.SeverityFatal:
		level = slog.LevelError
	}
	l.Logger.Log(ctx, level, n.Title, "message", n.Message, "severity", string(n.Severity))
}

// TerminalNotifier shows notices on the terminal.
//
// # Description
//
// Blocking notices are shown with a huh note the user must acknowledge
// when Interactive is true. Everything else, and every notice on a
// non-interactive terminal, is printed as a box.
//
// # Thread Safety
//
// Notices are shown one at a time.
type TerminalNotifier struct {
	Printer     *ux.Printer
	Interactive bool

	mu sync.Mutex
}

// NewTerminalNotifier detects interactivity from stdin.
func NewTerminalNotifier() *TerminalNotifier {
	return &TerminalNotifier{Printer: ux.NewPrinter(), Interactive: ux.IsInteractive()}
}

// Notify implements Notifier.
func (t *TerminalNotifier) Notify(ctx context.Context, n Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Interactive && n.Blocking() {
		note := huh.NewNote().
			Title(fmt.Sprintf("%s %s", ux.IconError, n.Title)).
			Description(n.Message).
			Next(true).
			NextLabel("OK")
		err := huh.NewForm(huh.NewGroup(note)).RunWithContext(ctx)
		if err == nil || errors.Is(err, huh.ErrUserAborted) {
			return
		}
		// Fall through to a printed box if the form could not run.
	}
	t.Printer.Box(string(n.Severity), n.Title, n.Message)
}

// Multi fans a notice out to several notifiers in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, nt := range m {
		if nt != nil {
			nt.Notify(ctx, n)
		}
	}
}

// Once wraps a Notifier so that each distinct key is delivered at most once.
type Once struct {
	Next Notifier

	mu   sync.Mutex
	seen map[string]bool
}

// NotifyOnce delivers n unless key was already delivered.
func (o *Once) NotifyOnce(ctx context.Context, key string, n Notice) bool {
	o.mu.Lock()
	if o.seen == nil {
		o.seen = make(map[string]bool)
	}
	if o.seen[key] {
		o.mu.Unlock()
		return false
	}
	o.seen[key] = true
	o.mu.Unlock()

	o.Next.Notify(ctx, n)
	return true
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockNotifier records notices.
type MockNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify implements Notifier.
func (m *MockNotifier) Notify(ctx context.Context, n Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, n)
}

// Notices returns a copy of everything recorded.
func (m *MockNotifier) Notices() []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notice, len(m.notices))
	copy(out, m.notices)
	return out
}

// Count returns the number of notices with severity s.
func (m *MockNotifier) Count(s status.Severity) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, notice := range m.notices {
		if notice.Severity == s {
			n++
		}
	}
	return n
}

// Compile-time interface satisfaction checks
var (
	_ Notifier = BusNotifier{}
	_ Notifier = LogNotifier{}
	_ Notifier = (*TerminalNotifier)(nil)
	_ Notifier = Multi(nil)
	_ Notifier = (*MockNotifier)(nil)
)
