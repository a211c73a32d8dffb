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
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/config"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/bridge"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/process"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/updater"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/util"
)

// runServe runs the startup chain once, then serves the UI bridge until
// SIGINT or SIGTERM, then stops the containers.
//
// # Description
//
// The bridge, the config watcher and the supervisor share one errgroup.
// A failed startup chain does not end serve: the UI still needs the
// status and the dialogs that explain the failure. The bridge failing
// to listen does end it.
func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{Journal: true, Terminal: true, Service: "serve"})
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	logger := a.logger

	lock, err := acquireLock(a.cfgPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	var appUpdater updater.AppUpdater
	if a.cfg.Updater.Enabled {
		checker := updater.NewChecker(updater.Config{
			Owner:          a.cfg.Updater.Owner,
			Repo:           a.cfg.Updater.Repo,
			CurrentVersion: Version,
			InitialRetry:   a.cfg.Updater.InitialRetry,
			MaxRetry:       a.cfg.Updater.MaxRetry,
		}, a.notifier(), logger)
		defer checker.Stop()
		appUpdater = checker
	}

	srv := bridge.New(bridge.Config{
		Listen:         a.cfg.Bridge.Listen,
		UpdateInterval: a.cfg.Bridge.UpdateInterval,
	}, bridge.Deps{
		Backend: a.sup,
		Store:   a.store,
		Bus:     a.bus,
		Updater: appUpdater,
		Opener:  bridge.OSOpener{Proc: process.NewDefaultManager(), GOOS: goruntime.GOOS},
		Metrics: a.metrics,
		Logger:  logger,
	})

	watcher, err := config.NewWatcher(a.cfgPath, func(c *config.SupervisorConfig) {
		a.sup.SetPollInterval(c.Poller.Interval)
	}, logger)
	if err != nil {
		logger.Warn("config hot reload disabled", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		if err := a.sup.Start(gctx); err != nil {
			logger.Error("startup finished with errors", "error", err)
		}
		if appUpdater != nil {
			util.SafeGo(func() {
				if _, err := appUpdater.CheckNow(gctx); err != nil {
					logger.Debug("initial update check failed", "error", err)
				}
			}, util.LogPanic(logger, "update check"))
		}
		<-gctx.Done()
		return nil
	})

	runErr := g.Wait()
	logger.Info("shutting down")
	if err := a.sup.Shutdown(context.WithoutCancel(ctx)); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
