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
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/bridge"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/util"
	"github.com/AleutianAI/trackhounds/pkg/ux"
)

// ErrDockerNotRunning is returned by commands that need a reachable daemon.
var ErrDockerNotRunning = errors.New("docker is not running")

// runStatus probes the daemon once, polls the containers and prints the
// result. It also reports whether a supervisor is serving the bridge.
func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{Service: "status"})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	st := a.sup.CheckDocker(ctx)

	bridgeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, bridgeErr := bridge.HTTPClient{Addr: a.cfg.Bridge.Listen}.Status(bridgeCtx)

	p := ux.NewPrinter()
	p.Title("trackhounds status")
	fmt.Fprint(p.Out, ux.KeyValues(statusRows(st, bridgeErr == nil, a.cfg.Bridge.Listen)))
	return nil
}

// statusRows renders a status snapshot as KeyValues rows.
func statusRows(st status.ServiceStatus, serving bool, listen string) []ux.Row {
	label := func(ok bool, yes, no string) string {
		if ok {
			return yes
		}
		return no
	}
	return []ux.Row{
		{Key: "docker", Value: label(st.Running, "running", "not running"), Icon: ux.StateIcon(st.Running)},
		{Key: "backend", Value: label(st.Containers.Backend.Running, "running", "stopped"), Icon: ux.StateIcon(st.Containers.Backend.Running)},
		{Key: "database", Value: label(st.Containers.Database.Running, "running", "stopped"), Icon: ux.StateIcon(st.Containers.Database.Running)},
		{Key: "supervisor", Value: label(serving, "serving on "+listen, "not serving"), Icon: ux.StateIcon(serving)},
	}
}

// runUpdate fetches the latest bundle and loads it, printing progress.
func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{Journal: true, Terminal: true, Service: "update"})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	lock, err := acquireLock(a.cfgPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	if st := a.sup.CheckDocker(ctx); !st.Running {
		return ErrDockerNotRunning
	}

	p := ux.NewPrinter()
	sub := a.bus.Subscribe()
	done := make(chan struct{})
	util.SafeGo(func() {
		defer close(done)
		printProgress(p.Out, sub.C)
	}, util.LogPanic(a.logger, "progress printer"))

	res := a.sup.UpdateBackend(ctx)
	sub.Close()
	<-done

	switch {
	case res.Success:
		p.Success("Backend updated to " + res.Version)
	case res.Reason != "":
		p.Warning("Backend not updated: " + res.Reason)
	default:
		p.Warning("Backend not updated")
	}
	return nil
}

// printProgress writes one line per setup-progress event until events
// is closed.
func printProgress(w io.Writer, events <-chan status.Event) {
	for e := range events {
		if e.Channel != status.ChannelSetupProgress {
			continue
		}
		sp, ok := e.Data.(status.SetupProgress)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%-22s %s %s\n", sp.Stage, ux.ProgressBar(int64(sp.Progress), 100, 30), sp.Detail)
	}
}

// runDown stops the containers once, the same way serve does on exit.
func runDown(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{Journal: true, Service: "down"})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	lock, err := acquireLock(a.cfgPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	p := ux.NewPrinter()
	if st := a.sup.CheckDocker(ctx); !st.Running {
		p.Info("Docker is not running; nothing to stop.")
		return nil
	}
	if err := a.sup.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop containers: %w", err)
	}
	p.Success("Containers stopped")
	return nil
}
