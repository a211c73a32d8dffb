// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the trackhounds CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Trackhounds palette: field greens and hound tans.
var (
	ColorFieldBright = lipgloss.Color("#7BC67E") // highlights, success
	ColorFieldDeep   = lipgloss.Color("#3E8E41") // borders, accents
	ColorTan         = lipgloss.Color("#D9A441") // brand accent
	ColorBark        = lipgloss.Color("#5C4B3B") // muted text, borders

	ColorSuccess = lipgloss.Color("#7BC67E")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#8A7F73")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Key     lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTan),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Key:     lipgloss.NewStyle().Foreground(ColorFieldDeep).Width(12),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorFieldDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// Render returns the icon with appropriate styling.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// StateIcon picks the success or pending icon.
func StateIcon(ok bool) Icon {
	if ok {
		return IconSuccess
	}
	return IconPending
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes styled lines. Plain mode drops all styling and prefixes
// warnings and errors so scripts can grep for them.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// NewPrinter writes to stdout and stderr.
func NewPrinter() *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr}
}

// Title prints a heading. Silent in plain mode.
func (p *Printer) Title(text string) {
	if GetMode() == ModePlain {
		return
	}
	fmt.Fprintln(p.Out, Styles.Title.Render(text))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	if GetMode() == ModePlain {
		fmt.Fprintf(p.Out, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	if GetMode() == ModePlain {
		fmt.Fprintf(p.Err, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	if GetMode() == ModePlain {
		fmt.Fprintf(p.Err, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if GetMode() == ModePlain {
		fmt.Fprintln(p.Out, text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Box prints content in a rounded box titled title, styled by severity
// ("warning", "error", anything else is neutral).
func (p *Printer) Box(severity, title, content string) {
	if GetMode() == ModePlain {
		w := p.Out
		prefix := ""
		switch severity {
		case "warning":
			w, prefix = p.Err, "WARN "
		case "error", "fatal":
			w, prefix = p.Err, "ERROR "
		}
		fmt.Fprintf(w, "%s%s: %s\n", prefix, title, content)
		return
	}

	box, titleStyle := Styles.Box, Styles.Title
	switch severity {
	case "warning":
		box, titleStyle = Styles.WarningBox, Styles.Warning.Bold(true)
	case "error", "fatal":
		box, titleStyle = Styles.ErrorBox, Styles.Error.Bold(true)
	}
	fmt.Fprintln(p.Out, box.Width(60).Render(titleStyle.Render(title)+"\n"+content))
}

// =============================================================================
// Rendering helpers
// =============================================================================

// Row is one key/value line of a KeyValues block.
type Row struct {
	Key   string
	Value string
	Icon  Icon
}

// KeyValues renders rows as aligned "key  icon value" lines.
func KeyValues(rows []Row) string {
	var b strings.Builder
	for _, r := range rows {
		if GetMode() == ModePlain {
			fmt.Fprintf(&b, "%s\t%s\n", r.Key, r.Value)
			continue
		}
		icon := ""
		if r.Icon != "" {
			icon = r.Icon.Render() + " "
		}
		fmt.Fprintf(&b, "%s %s%s\n", Styles.Key.Render(r.Key), icon, r.Value)
	}
	return b.String()
}

// ProgressBar renders a bar width cells wide. Plain mode prints "n/total".
func ProgressBar(current, total int64, width int) string {
	if GetMode() == ModePlain {
		return fmt.Sprintf("%d/%d", current, total)
	}
	pct := 0.0
	if total > 0 {
		pct = float64(current) / float64(total)
	}
	if pct > 1 {
		pct = 1
	}
	filled := int(pct * float64(width))

	bar := Styles.Success.Render(strings.Repeat("█", filled)) +
		Styles.Muted.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
