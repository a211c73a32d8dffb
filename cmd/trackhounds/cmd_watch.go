// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/bridge"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/tui"
	"github.com/AleutianAI/trackhounds/pkg/ux"
)

// runWatch attaches to a serving supervisor's event stream. Rich mode
// runs the bubbletea viewer; plain mode prints one line per frame.
func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := watchAddr
	if addr == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		addr = cfg.Bridge.Listen
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	client, err := bridge.Dial(dialCtx, addr)
	cancel()
	if err != nil {
		return fmt.Errorf("is `trackhounds serve` running? %w", err)
	}
	defer client.Close()

	if ux.GetMode() == ux.ModePlain {
		return streamPlain(ctx, client, cmd.OutOrStdout())
	}

	err = tui.Run(ctx, client)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// streamPlain prints frames until the stream ends or ctx is cancelled.
func streamPlain(ctx context.Context, client *bridge.Client, w io.Writer) error {
	go func() {
		<-ctx.Done()
		client.Close()
	}()
	for {
		msg, err := client.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if line := describeMessage(msg); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

// describeMessage renders one frame as a single tab-separated line.
func describeMessage(m bridge.Message) string {
	switch {
	case m.Status != nil:
		return fmt.Sprintf("status\tchecking=%t\trunning=%t\tbackend=%t\tdatabase=%t",
			m.Status.Checking, m.Status.Running,
			m.Status.Containers.Backend.Running, m.Status.Containers.Database.Running)
	case m.Progress != nil:
		return fmt.Sprintf("progress\t%s\t%d\t%s", m.Progress.Stage, m.Progress.Progress, m.Progress.Detail)
	case m.Dialog != nil:
		return fmt.Sprintf("dialog\t%s\t%s\t%s", m.Dialog.Severity, m.Dialog.Title, m.Dialog.Message)
	case m.Navigation != nil:
		return "navigate\t" + m.Navigation.Route
	case m.Response != nil:
		return "response\t" + m.Response.Type
	default:
		return ""
	}
}
